package downloadcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

const (
	bookExt    = ".epub"
	metaSuffix = ".meta.json"
)

// CacheMetadata is the sidecar stored next to each cached book.
type CacheMetadata struct {
	BookmarkID       int64     `json:"bookmark_id"`
	DownloadFilename string    `json:"download_filename"`
	GeneratedAt      time.Time `json:"generated_at"`
	LastAccessedAt   time.Time `json:"last_accessed_at"`
	SizeBytes        int64     `json:"size_bytes"`
}

// metadataFilename returns the metadata file path for a given bookmark ID.
func metadataFilename(cacheDir string, id int64) string {
	return filepath.Join(cacheDir, fmt.Sprintf("%d%s", id, metaSuffix))
}

// cachedFilename returns the cached book path for a given bookmark ID.
func cachedFilename(cacheDir string, id int64) string {
	return filepath.Join(cacheDir, fmt.Sprintf("%d%s", id, bookExt))
}

// ReadMetadata reads the cache metadata for a bookmark ID.
// Returns nil if the metadata file doesn't exist.
func ReadMetadata(cacheDir string, id int64) (*CacheMetadata, error) {
	path := metadataFilename(cacheDir, id)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read cache metadata: %s", path)
	}

	var meta CacheMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "failed to parse cache metadata: %s", path)
	}

	return &meta, nil
}

// WriteMetadata writes the cache metadata for a bookmark ID.
func WriteMetadata(cacheDir string, meta *CacheMetadata) error {
	path := metadataFilename(cacheDir, meta.BookmarkID)

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal cache metadata")
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrapf(err, "failed to write cache metadata: %s", path)
	}

	return nil
}

// UpdateLastAccessed updates the last accessed time for a cached book.
func UpdateLastAccessed(cacheDir string, id int64, now time.Time) error {
	meta, err := ReadMetadata(cacheDir, id)
	if err != nil {
		return err
	}
	if meta == nil {
		return errors.New("cache metadata not found")
	}

	meta.LastAccessedAt = now
	return WriteMetadata(cacheDir, meta)
}

// DeleteCachedFile removes both the cached book and its metadata.
func DeleteCachedFile(cacheDir string, id int64) error {
	cachedPath := cachedFilename(cacheDir, id)
	if err := os.Remove(cachedPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete cached file: %s", cachedPath)
	}

	metaPath := metadataFilename(cacheDir, id)
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete cache metadata: %s", metaPath)
	}

	return nil
}

// ListCacheEntries returns all cache entries in the directory.
func ListCacheEntries(cacheDir string) ([]*CacheMetadata, error) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read cache directory: %s", cacheDir)
	}

	var results []*CacheMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(cacheDir, entry.Name()))
		if err != nil {
			continue // Skip files we can't read
		}

		var meta CacheMetadata
		if err := json.Unmarshal(data, &meta); err != nil || meta.BookmarkID == 0 {
			continue // Skip invalid metadata files
		}

		results = append(results, &meta)
	}

	return results, nil
}

// GetTotalCacheSize returns the total size of all cached books in bytes.
func GetTotalCacheSize(cacheDir string) (int64, error) {
	entries, err := ListCacheEntries(cacheDir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, entry := range entries {
		total += entry.SizeBytes
	}

	return total, nil
}
