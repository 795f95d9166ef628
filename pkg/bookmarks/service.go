package bookmarks

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/wbip/wbip/pkg/errcodes"
	"github.com/wbip/wbip/pkg/models"
)

// Service is the local record of upstream bookmarks. Rows are only ever
// inserted or updated, never deleted.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Upsert inserts the bookmark, or replaces the title, url and tags of the row
// with the same id.
func (svc *Service) Upsert(ctx context.Context, bookmark *models.Bookmark) error {
	return upsert(ctx, svc.db, bookmark)
}

// UpsertMany upserts every bookmark in a single transaction.
func (svc *Service) UpsertMany(ctx context.Context, bookmarks []*models.Bookmark) error {
	if len(bookmarks) == 0 {
		return nil
	}
	err := svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, bm := range bookmarks {
			if err := upsert(ctx, tx, bm); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.WithStack(err)
}

func upsert(ctx context.Context, db bun.IDB, bookmark *models.Bookmark) error {
	now := time.Now()
	if bookmark.CreatedAt.IsZero() {
		bookmark.CreatedAt = now
	}
	bookmark.UpdatedAt = now

	_, err := db.NewInsert().
		Model(bookmark).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("url = EXCLUDED.url").
		Set("tags = EXCLUDED.tags").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (svc *Service) Retrieve(ctx context.Context, id int64) (*models.Bookmark, error) {
	bookmark := &models.Bookmark{}
	err := svc.db.NewSelect().
		Model(bookmark).
		Where("bm.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Bookmark")
		}
		return nil, errors.WithStack(err)
	}

	return bookmark, nil
}
