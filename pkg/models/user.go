package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a progress-sync account. Users are created once and never updated.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	Username  string    `bun:",pk" json:"username"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	Userkey   string    `bun:",notnull" json:"-"` // bcrypt hash of the key the device sends
}
