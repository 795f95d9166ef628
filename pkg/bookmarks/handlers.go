package bookmarks

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/wbip/wbip/pkg/auth"
	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/epub"
	"github.com/wbip/wbip/pkg/errcodes"
	"github.com/wbip/wbip/pkg/filegen"
	"github.com/wbip/wbip/pkg/instapaper"
	"github.com/wbip/wbip/pkg/models"
)

// Upstream is the part of the bookmarking service the entry routes call.
type Upstream interface {
	ListBookmarks(ctx context.Context, creds instapaper.Credentials, limit int) ([]*instapaper.Bookmark, error)
	AddBookmark(ctx context.Context, creds instapaper.Credentials, rawURL string) (*instapaper.Bookmark, error)
	ArchiveBookmark(ctx context.Context, creds instapaper.Credentials, id int64) error
}

// BookCache serves and builds books by bookmark ID.
type BookCache interface {
	Open(id int64) (*os.File, bool)
	Touch(id int64)
	DownloadFilename(bookmark *models.Bookmark) string
	GetOrGenerate(ctx context.Context, bookmark *models.Bookmark, creds instapaper.Credentials) (string, string, error)
}

type handler struct {
	config          *config.Config
	bookmarkService *Service
	upstream        Upstream
	cache           BookCache
}

func credentials(c echo.Context) (instapaper.Credentials, error) {
	creds, ok := auth.CredentialsFromContext(c.Request().Context())
	if !ok {
		return instapaper.Credentials{}, errcodes.Unauthorized()
	}
	return creds, nil
}

// entryID reads the :id param, which carries a ".json" suffix on the wallabag
// alias routes.
func entryID(c echo.Context) (int64, error) {
	raw := strings.TrimSuffix(c.Param("id"), ".json")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errcodes.NotFound("Entry")
	}
	return id, nil
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	creds, err := credentials(c)
	if err != nil {
		return err
	}

	params := ListEntriesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if params.Page > 1 {
		return errcodes.NotFound("Page")
	}
	perPage := params.PerPage
	if perPage == 0 {
		perPage = h.config.ListPerPage
	}

	items := make([]*Entry, 0)
	marks, err := h.syncList(ctx, creds, perPage)
	if err != nil {
		log.Err(err).Warn("upstream list failed, returning no entries")
	} else {
		for _, mark := range marks {
			items = append(items, newEntry(mark, h.config.IncludeTags))
		}
	}

	return errors.WithStack(c.JSON(http.StatusOK, EntriesResponse{
		Embedded: embeddedItems{Items: items},
	}))
}

// syncList fetches the first page upstream and records every bookmark on it.
func (h *handler) syncList(ctx context.Context, creds instapaper.Credentials, limit int) ([]*instapaper.Bookmark, error) {
	marks, err := h.upstream.ListBookmarks(ctx, creds, limit)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	stored := make([]*models.Bookmark, 0, len(marks))
	for _, mark := range marks {
		stored = append(stored, mark.Model())
	}
	if err := h.bookmarkService.UpsertMany(ctx, stored); err != nil {
		return nil, errors.WithStack(err)
	}
	return marks, nil
}

func (h *handler) add(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	creds, err := credentials(c)
	if err != nil {
		return err
	}

	params := AddEntryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	mark, err := h.upstream.AddBookmark(ctx, creds, params.URL)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := h.bookmarkService.Upsert(ctx, mark.Model()); err != nil {
		return errors.WithStack(err)
	}

	log.Info("added entry", logger.Data{"bookmark_id": mark.ID, "url": params.URL})

	return errors.WithStack(c.JSON(http.StatusOK, newEntry(mark, h.config.IncludeTags)))
}

func (h *handler) archive(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	id, err := entryID(c)
	if err != nil {
		return err
	}
	creds, err := credentials(c)
	if err != nil {
		return err
	}

	if c.Request().Method == http.MethodPatch {
		params := ArchiveEntryPayload{}
		if err := c.Bind(&params); err != nil {
			return errors.WithStack(err)
		}
		if params.Archive != 1 {
			return errors.WithStack(c.JSON(http.StatusOK, struct{}{}))
		}
	}

	log.Info("archiving entry", logger.Data{"bookmark_id": id})

	archiveCtx := context.WithoutCancel(ctx)
	go func() {
		if err := h.upstream.ArchiveBookmark(archiveCtx, creds, id); err != nil {
			logger.FromContext(archiveCtx).Err(err).Warn("archive failed", logger.Data{"bookmark_id": id})
		}
	}()

	return errors.WithStack(c.JSON(http.StatusOK, ArchiveResponse{ID: id, Archive: 1}))
}

func (h *handler) tags(c echo.Context) error {
	id, err := entryID(c)
	if err != nil {
		return err
	}
	logger.FromContext(c.Request().Context()).Warn("tagging is not supported", logger.Data{"bookmark_id": id})
	return errors.WithStack(c.JSON(http.StatusOK, struct{}{}))
}

func (h *handler) export(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	id, err := entryID(c)
	if err != nil {
		return err
	}
	creds, err := credentials(c)
	if err != nil {
		return err
	}

	if f, ok := h.cache.Open(id); ok {
		defer f.Close()
		h.cache.Touch(id)
		return h.serveBook(c, f, h.cache.DownloadFilename(&models.Bookmark{ID: id}))
	}

	bookmark, err := h.resolveBookmark(ctx, creds, id)
	if err != nil {
		return err
	}

	log.Info("building book", logger.Data{"bookmark_id": id, "title": bookmark.Title})

	// Cleanup can remove a book between it being cached and being opened, so
	// it gets one rebuild before giving up.
	for attempt := 0; attempt < 2; attempt++ {
		_, filename, err := h.cache.GetOrGenerate(ctx, bookmark, creds)
		if err != nil {
			return buildError(ctx, id, err)
		}
		if f, ok := h.cache.Open(id); ok {
			defer f.Close()
			return h.serveBook(c, f, filename)
		}
		log.Warn("cached book vanished before it was served", logger.Data{"bookmark_id": id, "attempt": attempt + 1})
	}
	return errors.Errorf("book for bookmark %d was removed before it could be served", id)
}

func buildError(ctx context.Context, id int64, err error) error {
	var genErr *filegen.GenerationError
	if errors.As(err, &genErr) {
		logger.FromContext(ctx).Warn("book generation failed", logger.Data{
			"bookmark_id": id,
			"error":       genErr.Message,
		})
		return errcodes.BuildFailed("Cannot build a book for entry " + strconv.FormatInt(id, 10) + ": " + genErr.Message)
	}
	return errors.WithStack(err)
}

// resolveBookmark returns the stored bookmark, syncing the first list page
// once if it is not stored yet.
func (h *handler) resolveBookmark(ctx context.Context, creds instapaper.Credentials, id int64) (*models.Bookmark, error) {
	bookmark, err := h.bookmarkService.Retrieve(ctx, id)
	if err == nil {
		return bookmark, nil
	}
	if !errors.Is(err, errcodes.NotFound("Bookmark")) {
		return nil, errors.WithStack(err)
	}

	if _, err := h.syncList(ctx, creds, h.config.ListPerPage); err != nil {
		logger.FromContext(ctx).Err(err).Warn("upstream list failed while resolving bookmark", logger.Data{"bookmark_id": id})
	}

	bookmark, err = h.bookmarkService.Retrieve(ctx, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return bookmark, nil
}

// serveBook answers from an already open book so a concurrent cleanup cannot
// pull the file out from under the response.
func (h *handler) serveBook(c echo.Context, f *os.File, filename string) error {
	info, err := f.Stat()
	if err != nil {
		return errors.WithStack(err)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, epub.MediaType)
	header.Set(echo.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")
	if h.config.ExportCacheControl != "" {
		header.Set("Cache-Control", h.config.ExportCacheControl)
	}

	// HEAD gets the headers and no body.
	http.ServeContent(c.Response(), c.Request(), filename, info.ModTime(), f)
	return nil
}
