package models

import (
	"github.com/uptrace/bun"
)

// Document is the last known reading position of one book for one user.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	Username   string  `bun:",pk" json:"-"`
	Document   string  `bun:",pk" json:"document"`
	Progress   string  `bun:",notnull" json:"progress"`
	Percentage float64 `bun:",notnull" json:"percentage"`
	Device     string  `bun:",notnull" json:"device"`
	DeviceID   string  `bun:"device_id,notnull" json:"device_id"`
	Timestamp  int64   `bun:",notnull" json:"timestamp"`
}
