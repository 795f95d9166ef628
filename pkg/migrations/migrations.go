package migrations

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	err := migrator.Init(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}

// RollBack undoes the most recently applied migration group. A zero group
// means there was nothing to roll back.
func RollBack(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	err := migrator.Init(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	group, err := migrator.Rollback(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}

// Status is one registered migration and whether it has been applied.
type Status struct {
	Name       string
	Comment    string
	GroupID    int64
	MigratedAt time.Time
}

func (s Status) Applied() bool {
	return s.GroupID > 0
}

// Statuses lists every registered migration, oldest first.
func Statuses(ctx context.Context, db *bun.DB) ([]Status, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	err := migrator.Init(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	statuses := make([]Status, 0, len(ms))
	for _, m := range ms {
		statuses = append(statuses, Status{
			Name:       m.Name,
			Comment:    m.Comment,
			GroupID:    m.GroupID,
			MigratedAt: m.MigratedAt,
		})
	}
	return statuses, nil
}
