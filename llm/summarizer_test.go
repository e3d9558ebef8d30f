package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyzer/types"
)

type fakeSummaryCache struct {
	entries map[string]types.CachedSummary
	touched int
}

func newFakeSummaryCache() *fakeSummaryCache {
	return &fakeSummaryCache{entries: make(map[string]types.CachedSummary)}
}

func (c *fakeSummaryCache) key(conversationID, rangeHash string) string {
	return conversationID + "/" + rangeHash
}

func (c *fakeSummaryCache) FindSummary(_ context.Context, conversationID, rangeHash string) (*types.CachedSummary, error) {
	if entry, ok := c.entries[c.key(conversationID, rangeHash)]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (c *fakeSummaryCache) SaveSummary(_ context.Context, summary types.CachedSummary) error {
	c.entries[c.key(summary.ConversationID, summary.RangeHash)] = summary
	return nil
}

func (c *fakeSummaryCache) TouchSummary(_ context.Context, conversationID, rangeHash string) error {
	c.touched++
	return nil
}

func (c *fakeSummaryCache) DeleteSummariesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for k, entry := range c.entries {
		if entry.LastAccessedAt.Before(cutoff) {
			delete(c.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

type fakeGenerator struct {
	calls int
	text  string
	err   error
}

func (g *fakeGenerator) Generate(context.Context, string, string) (string, error) {
	g.calls++
	return g.text, g.err
}

func instantInvoker() *Invoker {
	inv := NewInvoker(DefaultMaxRetries, time.Second)
	inv.sleep = func(time.Duration) {}
	return inv
}

func sampleTurns() []types.ConversationTurn {
	return []types.ConversationTurn{
		{Role: types.RoleUser, Text: "what does the contract say about termination?"},
		{Role: types.RoleAssistant, Text: "either party may terminate with 30 days notice."},
	}
}

func TestSummarizeEmptyRange(t *testing.T) {
	gen := &fakeGenerator{text: "unused"}
	s := NewSummarizer(newFakeSummaryCache(), gen, instantInvoker(), slog.Default())

	got := s.Summarize(context.Background(), "conv-1", nil)

	assert.Equal(t, types.RoleSystem, got.Role)
	assert.Equal(t, "No previous conversation context.", got.Text)
	assert.Zero(t, gen.calls)
}

func TestSummarizeGeneratesAndCaches(t *testing.T) {
	cache := newFakeSummaryCache()
	gen := &fakeGenerator{text: "the user asked about contract termination terms."}
	s := NewSummarizer(cache, gen, instantInvoker(), slog.Default())

	got := s.Summarize(context.Background(), "conv-1", sampleTurns())

	assert.Equal(t, types.RoleSystem, got.Role)
	assert.Equal(t, "Previous conversation summary: "+gen.text, got.Text)
	assert.Equal(t, 1, gen.calls)

	require.Len(t, cache.entries, 1)
	for _, entry := range cache.entries {
		assert.Equal(t, "conv-1", entry.ConversationID)
		assert.Equal(t, gen.text, entry.SummaryText)
		assert.Equal(t, 2, entry.MessageCount)
		assert.Equal(t, len(gen.text)/4, entry.TokenEstimate)
	}
}

func TestSummarizeSecondCallHitsCache(t *testing.T) {
	cache := newFakeSummaryCache()
	gen := &fakeGenerator{text: "summary text"}
	s := NewSummarizer(cache, gen, instantInvoker(), slog.Default())

	first := s.Summarize(context.Background(), "conv-1", sampleTurns())
	second := s.Summarize(context.Background(), "conv-1", sampleTurns())

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.calls, "identical ranges must reuse the cached summary")
	assert.Equal(t, 1, cache.touched, "a cache hit refreshes the access time")
}

func TestSummarizeDifferentRangesMiss(t *testing.T) {
	cache := newFakeSummaryCache()
	gen := &fakeGenerator{text: "summary"}
	s := NewSummarizer(cache, gen, instantInvoker(), slog.Default())

	s.Summarize(context.Background(), "conv-1", sampleTurns())
	s.Summarize(context.Background(), "conv-1", append(sampleTurns(),
		types.ConversationTurn{Role: types.RoleUser, Text: "and the renewal terms?"}))

	assert.Equal(t, 2, gen.calls)
	assert.Len(t, cache.entries, 2)
}

func TestSummarizeFallbackIsNeverCached(t *testing.T) {
	cache := newFakeSummaryCache()
	gen := &fakeGenerator{err: errors.New("model down")}
	s := NewSummarizer(cache, gen, instantInvoker(), slog.Default())

	got := s.Summarize(context.Background(), "conv-1", sampleTurns())

	assert.Equal(t, types.RoleSystem, got.Role)
	assert.Equal(t, "Previous conversation covered 2 messages about various topics.", got.Text)
	assert.Empty(t, cache.entries, "degraded fallback must not poison the cache")
}

func TestBuildTranscript(t *testing.T) {
	got := buildTranscript(sampleTurns())
	assert.Equal(t,
		"User: what does the contract say about termination?\n\n"+
			"Assistant: either party may terminate with 30 days notice.\n\n",
		got)
}
