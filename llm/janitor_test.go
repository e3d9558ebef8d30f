package llm

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyzer/types"
)

func TestJanitorDeletesOnlyStaleEntries(t *testing.T) {
	cache := newFakeSummaryCache()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	stale := types.CachedSummary{
		ConversationID: "conv-1",
		RangeHash:      "aaa",
		SummaryText:    "old",
		LastAccessedAt: now.Add(-8 * 24 * time.Hour),
	}
	fresh := types.CachedSummary{
		ConversationID: "conv-1",
		RangeHash:      "bbb",
		SummaryText:    "recent",
		LastAccessedAt: now.Add(-time.Hour),
	}
	require.NoError(t, cache.SaveSummary(context.Background(), stale))
	require.NoError(t, cache.SaveSummary(context.Background(), fresh))

	j := NewCacheJanitor(cache, DefaultSummaryMaxAge, true, slog.Default())
	j.now = func() time.Time { return now }

	deleted, err := j.TriggerManualCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Len(t, cache.entries, 1)

	remaining, err := cache.FindSummary(context.Background(), "conv-1", "bbb")
	require.NoError(t, err)
	assert.NotNil(t, remaining)
}

func TestJanitorScheduledPassSkippedWhenDisabled(t *testing.T) {
	cache := newFakeSummaryCache()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, cache.SaveSummary(context.Background(), types.CachedSummary{
		ConversationID: "conv-1",
		RangeHash:      "aaa",
		LastAccessedAt: now.Add(-30 * 24 * time.Hour),
	}))

	j := NewCacheJanitor(cache, DefaultSummaryMaxAge, false, slog.Default())
	j.now = func() time.Time { return now }

	j.CleanupStaleCache(context.Background())
	assert.Len(t, cache.entries, 1, "disabled janitor must not delete anything")
}

func TestJanitorManualCleanupIgnoresEnabledFlag(t *testing.T) {
	cache := newFakeSummaryCache()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, cache.SaveSummary(context.Background(), types.CachedSummary{
		ConversationID: "conv-1",
		RangeHash:      "aaa",
		LastAccessedAt: now.Add(-30 * 24 * time.Hour),
	}))

	j := NewCacheJanitor(cache, DefaultSummaryMaxAge, false, slog.Default())
	j.now = func() time.Time { return now }

	deleted, err := j.TriggerManualCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Empty(t, cache.entries)
}
