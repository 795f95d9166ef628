// Package downloadcache keeps generated books on disk, keyed by bookmark ID.
// A cached book is never regenerated; presence of <id>.epub is the hit.
package downloadcache

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/wbip/wbip/pkg/instapaper"
	"github.com/wbip/wbip/pkg/models"
	"golang.org/x/sync/singleflight"
)

// Generator writes the book for a bookmark to destPath.
type Generator interface {
	Generate(ctx context.Context, destPath string, bookmark *models.Bookmark, creds instapaper.Credentials) error
}

// Cache manages the download cache for generated books.
type Cache struct {
	dir       string
	maxSize   int64
	generator Generator
	group     singleflight.Group
	now       func() time.Time
}

// NewCache creates a new Cache with the given directory and max size. A
// maxSizeBytes of zero disables size-based cleanup.
func NewCache(dir string, maxSizeBytes int64, generator Generator) *Cache {
	return &Cache{
		dir:       dir,
		maxSize:   maxSizeBytes,
		generator: generator,
		now:       time.Now,
	}
}

// Lookup returns the cached book path for a bookmark ID, if there is one.
func (c *Cache) Lookup(id int64) (string, bool) {
	path := cachedFilename(c.dir, id)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Open opens the cached book for a bookmark ID, if there is one. The handle
// stays readable after cleanup unlinks the file.
func (c *Cache) Open(id int64) (*os.File, bool) {
	f, err := os.Open(cachedFilename(c.dir, id))
	if err != nil {
		return nil, false
	}
	return f, true
}

// Touch records an access to a cached book for LRU cleanup.
func (c *Cache) Touch(id int64) {
	_ = UpdateLastAccessed(c.dir, id, c.now())
}

// DownloadFilename returns the filename a cached book was stored with, falling
// back to one derived from bookmark.
func (c *Cache) DownloadFilename(bookmark *models.Bookmark) string {
	if meta, err := ReadMetadata(c.dir, bookmark.ID); err == nil && meta != nil && meta.DownloadFilename != "" {
		return meta.DownloadFilename
	}
	return FormatDownloadFilename(bookmark)
}

// GetOrGenerate returns the path to a cached book, generating it if necessary.
// It returns the cached file path, the formatted download filename, and any
// error. Concurrent calls for the same bookmark share one generation, which
// runs detached from ctx's cancellation so an abandoned request still fills
// the cache.
func (c *Cache) GetOrGenerate(ctx context.Context, bookmark *models.Bookmark, creds instapaper.Credentials) (cachedPath string, downloadFilename string, err error) {
	if path, ok := c.Lookup(bookmark.ID); ok {
		c.Touch(bookmark.ID)
		return path, c.DownloadFilename(bookmark), nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatInt(bookmark.ID, 10), func() (any, error) {
		return c.generate(buildCtx, bookmark, creds)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", "", res.Err
		}
		return res.Val.(string), c.DownloadFilename(bookmark), nil
	case <-ctx.Done():
		return "", "", errors.WithStack(ctx.Err())
	}
}

func (c *Cache) generate(ctx context.Context, bookmark *models.Bookmark, creds instapaper.Credentials) (string, error) {
	log := logger.FromContext(ctx)

	// A build that finished while this one was queued behind the group.
	if path, ok := c.Lookup(bookmark.ID); ok {
		return path, nil
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create cache directory")
	}

	destPath := cachedFilename(c.dir, bookmark.ID)
	start := c.now()
	if err := c.generator.Generate(ctx, destPath, bookmark, creds); err != nil {
		return "", errors.Wrap(err, "failed to generate file")
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to stat generated file")
	}

	now := c.now()
	meta := &CacheMetadata{
		BookmarkID:       bookmark.ID,
		DownloadFilename: FormatDownloadFilename(bookmark),
		GeneratedAt:      now,
		LastAccessedAt:   now,
		SizeBytes:        info.Size(),
	}
	if err := WriteMetadata(c.dir, meta); err != nil {
		// The book is still served; it is only invisible to cleanup.
		log.Err(err).Warn("failed to write cache metadata", logger.Data{"bookmark_id": bookmark.ID})
	}

	log.Info("book generated", logger.Data{
		"bookmark_id": bookmark.ID,
		"size_bytes":  info.Size(),
		"duration_ms": now.Sub(start).Milliseconds(),
	})

	if c.maxSize > 0 {
		go c.TriggerCleanup(ctx)
	}

	return destPath, nil
}

// TriggerCleanup runs cache cleanup if the cache exceeds the max size.
// This runs in the current goroutine - call with `go` to run in background.
func (c *Cache) TriggerCleanup(ctx context.Context) {
	stats, err := RunCleanupWithStats(c.dir, c.maxSize)
	if err != nil {
		if !errors.Is(err, ErrCleanupRunning) {
			logger.FromContext(ctx).Err(err).Warn("cache cleanup failed")
		}
		return
	}
	if stats.FilesRemoved > 0 {
		logger.FromContext(ctx).Info("cache cleaned up", logger.Data{
			"files_removed": stats.FilesRemoved,
			"bytes_removed": stats.BytesRemoved,
		})
	}
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}

// MaxSize returns the maximum cache size in bytes.
func (c *Cache) MaxSize() int64 {
	return c.maxSize
}
