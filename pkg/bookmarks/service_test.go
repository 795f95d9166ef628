package bookmarks

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/wbip/wbip/pkg/errcodes"
	"github.com/wbip/wbip/pkg/migrations"
	"github.com/wbip/wbip/pkg/models"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestServiceUpsert_SecondWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := NewService(db)

	first := &models.Bookmark{ID: 42, Title: "Old", URL: "https://example.com/old"}
	first.SetTags([]string{"a"})
	require.NoError(t, svc.Upsert(ctx, first))

	second := &models.Bookmark{ID: 42, Title: "New", URL: "https://example.com/new"}
	second.SetTags([]string{"b", "c"})
	require.NoError(t, svc.Upsert(ctx, second))

	count, err := db.NewSelect().Model((*models.Bookmark)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := svc.Retrieve(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "https://example.com/new", got.URL)
	assert.Equal(t, []string{"b", "c"}, got.TagList())
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestServiceUpsertMany(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := NewService(newTestDB(t))

	err := svc.UpsertMany(ctx, []*models.Bookmark{
		{ID: 1, Title: "One", URL: "https://example.com/1"},
		{ID: 2, Title: "Two", URL: "https://example.com/2"},
		{ID: 1, Title: "One again", URL: "https://example.com/1"},
	})
	require.NoError(t, err)

	got, err := svc.Retrieve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "One again", got.Title)

	_, err = svc.Retrieve(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, svc.UpsertMany(ctx, nil))
}

func TestServiceRetrieve_NotFound(t *testing.T) {
	t.Parallel()
	svc := NewService(newTestDB(t))

	_, err := svc.Retrieve(context.Background(), 404)
	require.Error(t, err)
	assert.ErrorIs(t, err, errcodes.NotFound("Bookmark"))
}
