package testutils

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/wbip/wbip/pkg/bookmarks"
	"github.com/wbip/wbip/pkg/downloadcache"
	"github.com/wbip/wbip/pkg/models"
)

type handler struct {
	db       *bun.DB
	cacheDir string
}

// createBookmarkRequest is the request body for seeding a stored bookmark.
type createBookmarkRequest struct {
	ID    int64    `json:"id" validate:"required,min=1"`
	Title string   `json:"title"`
	URL   string   `json:"url" validate:"required"`
	Tags  []string `json:"tags"`
}

// createBookmark stores a bookmark without asking upstream.
// POST /test/bookmarks.
func (h *handler) createBookmark(c echo.Context) error {
	ctx := c.Request().Context()

	var req createBookmarkRequest
	if err := c.Bind(&req); err != nil {
		return errors.WithStack(err)
	}

	bookmark := &models.Bookmark{ID: req.ID, Title: req.Title, URL: req.URL}
	bookmark.SetTags(req.Tags)
	if err := bookmarks.NewService(h.db).Upsert(ctx, bookmark); err != nil {
		return errors.Wrap(err, "failed to create bookmark")
	}

	return c.JSON(http.StatusCreated, bookmark)
}

// deleteAllDataResponse is the response body for deleting all rows.
type deleteAllDataResponse struct {
	Users     int `json:"users"`
	Documents int `json:"documents"`
	Bookmarks int `json:"bookmarks"`
}

// deleteAllData deletes every user, document and bookmark.
// DELETE /test/data.
func (h *handler) deleteAllData(c echo.Context) error {
	ctx := c.Request().Context()
	resp := deleteAllDataResponse{}

	tables := []struct {
		model   interface{}
		deleted *int
	}{
		{(*models.Document)(nil), &resp.Documents},
		{(*models.User)(nil), &resp.Users},
		{(*models.Bookmark)(nil), &resp.Bookmarks},
	}
	for _, t := range tables {
		result, err := h.db.NewDelete().
			Model(t.model).
			Where("1=1").
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to delete rows")
		}
		deleted, _ := result.RowsAffected()
		*t.deleted = int(deleted)
	}

	return c.JSON(http.StatusOK, resp)
}

type clearCacheResponse struct {
	Deleted int `json:"deleted"`
}

// clearCache removes every cached book.
// DELETE /test/cache.
func (h *handler) clearCache(c echo.Context) error {
	entries, err := downloadcache.ListCacheEntries(h.cacheDir)
	if err != nil {
		return errors.Wrap(err, "failed to list cache")
	}

	deleted := 0
	for _, entry := range entries {
		if err := downloadcache.DeleteCachedFile(h.cacheDir, entry.BookmarkID); err != nil {
			return errors.Wrap(err, "failed to delete cached book")
		}
		deleted++
	}

	return c.JSON(http.StatusOK, clearCacheResponse{Deleted: deleted})
}
