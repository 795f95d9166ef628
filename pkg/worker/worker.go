// Package worker runs the background maintenance jobs.
package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/robinjoseph08/golib/logger"
	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/downloadcache"
)

const jobTypePrune = "cache_prune"

// Cache is the book cache the worker keeps under its size limit.
type Cache interface {
	Dir() string
	MaxSize() int64
}

type Worker struct {
	config *config.Config
	log    logger.Logger
	cache  Cache
	cron   *cron.Cron
}

// New schedules cache pruning on cfg.CachePruneSchedule. Pruning is only
// scheduled when the cache has a size limit.
func New(cfg *config.Config, cache Cache) (*Worker, error) {
	w := &Worker{
		config: cfg,
		log:    logger.New(),
		cache:  cache,
		cron:   cron.New(),
	}

	if cache.MaxSize() <= 0 {
		return w, nil
	}

	_, err := w.cron.AddFunc(cfg.CachePruneSchedule, func() {
		_, _ = w.Prune(context.Background())
	})
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cache_prune_schedule %q", cfg.CachePruneSchedule)
	}
	return w, nil
}

func (w *Worker) Start() {
	w.cron.Start()
}

// Prune removes least recently used books until the cache is back under its
// limit. A prune that finds another one in progress does nothing.
func (w *Worker) Prune(ctx context.Context) (*downloadcache.CleanupStats, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return nil, errors.WithStack(err)
	}
	log := w.log.ID(id.String()).Root(logger.Data{"type": jobTypePrune})
	ctx = log.WithContext(ctx)

	stats, err := downloadcache.RunCleanupWithStats(w.cache.Dir(), w.cache.MaxSize())
	if err != nil {
		if errors.Is(err, downloadcache.ErrCleanupRunning) {
			log.Info("cache prune already running")
			return &downloadcache.CleanupStats{}, nil
		}
		logger.FromContext(ctx).Err(err).Error("cache prune error")
		return nil, errors.WithStack(err)
	}

	log.Info("cache pruned", logger.Data{
		"files_removed":  stats.FilesRemoved,
		"bytes_removed":  stats.BytesRemoved,
		"files_remained": stats.FilesRemained,
		"bytes_remained": stats.BytesRemained,
	})
	return stats, nil
}

// Shutdown stops scheduling and waits for a running prune to finish.
func (w *Worker) Shutdown() {
	<-w.cron.Stop().Done()
}
