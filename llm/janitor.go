package llm

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultSummaryMaxAge   = 7 * 24 * time.Hour
	DefaultCleanupInterval = 24 * time.Hour
)

// CacheJanitor periodically deletes summary cache entries that have not
// been read for longer than maxAge.
type CacheJanitor struct {
	cache    SummaryCache
	maxAge   time.Duration
	interval time.Duration
	enabled  bool
	logger   *slog.Logger

	now func() time.Time
}

func NewCacheJanitor(cache SummaryCache, maxAge time.Duration, enabled bool, logger *slog.Logger) *CacheJanitor {
	return &CacheJanitor{
		cache:    cache,
		maxAge:   maxAge,
		interval: DefaultCleanupInterval,
		enabled:  enabled,
		logger:   logger,
		now:      time.Now,
	}
}

// Run blocks, firing a cleanup pass every interval until ctx is done.
func (j *CacheJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.CleanupStaleCache(ctx)
		}
	}
}

// CleanupStaleCache runs one scheduled cleanup pass. Disabled janitors
// skip the pass entirely.
func (j *CacheJanitor) CleanupStaleCache(ctx context.Context) {
	if !j.enabled {
		j.logger.Debug("summary cache cleanup disabled, skipping")
		return
	}

	cutoff := j.now().Add(-j.maxAge)
	deleted, err := j.cache.DeleteSummariesBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("summary cache cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		j.logger.Info("cleaned up stale cached summaries", "deleted", deleted, "cutoff", cutoff)
	}
}

// TriggerManualCleanup runs a cleanup pass regardless of the enabled
// flag and reports how many entries were removed.
func (j *CacheJanitor) TriggerManualCleanup(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.maxAge)
	deleted, err := j.cache.DeleteSummariesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	j.logger.Info("manual summary cache cleanup", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}
