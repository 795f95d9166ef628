package users

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/wbip/wbip/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// Service stores sync users. Users are created once and never changed.
type Service struct {
	db   *bun.DB
	cost int
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, cost: bcrypt.DefaultCost}
}

// Create adds the user and reports whether it was created. An existing user
// with the same name is left untouched and false is returned.
func (s *Service) Create(ctx context.Context, username, userkey string) (bool, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(userkey), s.cost)
	if err != nil {
		return false, errors.WithStack(err)
	}

	user := &models.User{
		Username: username,
		Userkey:  string(hashed),
	}
	res, err := s.db.NewInsert().
		Model(user).
		On("CONFLICT (username) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return n == 1, nil
}

// CheckLogin reports whether username exists and userkey matches what it was
// registered with.
func (s *Service) CheckLogin(ctx context.Context, username, userkey string) (bool, error) {
	if username == "" || userkey == "" {
		return false, nil
	}

	user := new(models.User)
	err := s.db.NewSelect().
		Model(user).
		Where("u.username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, errors.WithStack(err)
	}

	return bcrypt.CompareHashAndPassword([]byte(user.Userkey), []byte(userkey)) == nil, nil
}
