package downloadcache

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// CleanupThreshold is the percentage of maxSize to reduce the cache to during cleanup.
// For example, 0.8 means cleanup will reduce the cache to 80% of maxSize.
const CleanupThreshold = 0.8

// RecentAccessGrace protects books accessed this recently from cleanup, so a
// book that was just built or looked up is still there when it is served.
const RecentAccessGrace = time.Minute

const lockFilename = ".wbip-cleanup.lock"

// ErrCleanupRunning is returned when another process holds the cleanup lock.
var ErrCleanupRunning = errors.New("cache cleanup already running")

// RunCleanup removes cached books until the total size is below the threshold.
// Books are removed in LRU (least recently used) order, skipping any accessed
// within RecentAccessGrace. A maxSizeBytes of zero or less disables cleanup.
func RunCleanup(cacheDir string, maxSizeBytes int64) error {
	if maxSizeBytes <= 0 {
		return nil
	}

	totalSize, err := GetTotalCacheSize(cacheDir)
	if err != nil {
		return errors.Wrap(err, "failed to get cache size")
	}

	if totalSize <= maxSizeBytes {
		return nil
	}

	entries, err := ListCacheEntries(cacheDir)
	if err != nil {
		return errors.Wrap(err, "failed to list cache entries")
	}

	// Oldest first
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessedAt.Before(entries[j].LastAccessedAt)
	})

	targetSize := int64(float64(maxSizeBytes) * CleanupThreshold)
	protectedAfter := time.Now().Add(-RecentAccessGrace)

	for _, entry := range entries {
		if totalSize <= targetSize {
			break
		}
		// Sorted oldest first, so everything from here on is recent.
		if entry.LastAccessedAt.After(protectedAfter) {
			break
		}

		if err := DeleteCachedFile(cacheDir, entry.BookmarkID); err != nil {
			continue
		}

		totalSize -= entry.SizeBytes
	}

	return nil
}

// CleanupStats holds statistics about a cleanup operation.
type CleanupStats struct {
	FilesRemoved  int
	BytesRemoved  int64
	FilesRemained int
	BytesRemained int64
}

// RunCleanupWithStats performs cleanup under the cache's file lock and
// returns statistics. It returns ErrCleanupRunning without touching the cache
// when another cleanup holds the lock.
func RunCleanupWithStats(cacheDir string, maxSizeBytes int64) (*CleanupStats, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, errors.WithStack(err)
	}
	lock := flock.New(filepath.Join(cacheDir, lockFilename))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire cleanup lock")
	}
	if !locked {
		return nil, ErrCleanupRunning
	}
	defer func() {
		_ = lock.Unlock()
	}()

	stats := &CleanupStats{}

	entriesBefore, err := ListCacheEntries(cacheDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cache entries")
	}

	var totalBefore int64
	for _, e := range entriesBefore {
		totalBefore += e.SizeBytes
	}

	if err := RunCleanup(cacheDir, maxSizeBytes); err != nil {
		return nil, err
	}

	entriesAfter, err := ListCacheEntries(cacheDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cache entries after cleanup")
	}

	var totalAfter int64
	for _, e := range entriesAfter {
		totalAfter += e.SizeBytes
	}

	stats.FilesRemoved = len(entriesBefore) - len(entriesAfter)
	stats.BytesRemoved = totalBefore - totalAfter
	stats.FilesRemained = len(entriesAfter)
	stats.BytesRemained = totalAfter

	return stats, nil
}
