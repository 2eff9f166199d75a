package scheduler

import (
	"context"
	"log/slog"

	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
)

// MetadataRefreshTaskName is the registered name of the cache refresh job.
const MetadataRefreshTaskName = "metadata-cache-refresh"

// CacheClearer drops cached table metadata; an empty table clears all.
type CacheClearer interface {
	ClearCache(table string)
}

// MetadataRefreshTask periodically drops the table metadata cache so schema
// changes (new tables, recreated tables with new ids) are picked up.
type MetadataRefreshTask struct {
	cache CacheClearer
	log   *slog.Logger
}

func NewMetadataRefreshTask(cache CacheClearer, log *slog.Logger) *MetadataRefreshTask {
	return &MetadataRefreshTask{
		cache: cache,
		log:   log.With(logger.Scope("metadata-refresh")),
	}
}

// Run clears the cache.
func (t *MetadataRefreshTask) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.cache.ClearCache("")
	t.log.Debug("table metadata cache cleared")
	return nil
}
