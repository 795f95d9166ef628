package progress

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/wbip/wbip/pkg/errcodes"
	"github.com/wbip/wbip/pkg/models"
)

// Service stores one reading position per (username, document).
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Upsert records doc for username, replacing any earlier position for the same
// document.
func (svc *Service) Upsert(ctx context.Context, username string, doc *models.Document) error {
	doc.Username = username

	_, err := svc.db.NewInsert().
		Model(doc).
		On("CONFLICT (username, document) DO UPDATE").
		Set("progress = EXCLUDED.progress").
		Set("percentage = EXCLUDED.percentage").
		Set("device = EXCLUDED.device").
		Set("device_id = EXCLUDED.device_id").
		Set("timestamp = EXCLUDED.timestamp").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) Retrieve(ctx context.Context, username, document string) (*models.Document, error) {
	doc := &models.Document{}
	err := svc.db.NewSelect().
		Model(doc).
		Where("d.username = ?", username).
		Where("d.document = ?", document).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Document")
		}
		return nil, errors.WithStack(err)
	}

	return doc, nil
}
