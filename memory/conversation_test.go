package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyzer/types"
)

type fakeTurnStore struct {
	turns map[string][]types.ConversationTurn
}

func newFakeTurnStore() *fakeTurnStore {
	return &fakeTurnStore{turns: make(map[string][]types.ConversationTurn)}
}

func (s *fakeTurnStore) FindTurns(_ context.Context, conversationID string) ([]types.ConversationTurn, error) {
	return s.turns[conversationID], nil
}

func (s *fakeTurnStore) AppendTurns(_ context.Context, conversationID string, turns []types.ConversationTurn) error {
	s.turns[conversationID] = append(s.turns[conversationID], turns...)
	return nil
}

func (s *fakeTurnStore) DeleteTurns(_ context.Context, conversationID string) error {
	delete(s.turns, conversationID)
	return nil
}

type fakeSummarizer struct {
	calls      int
	summarized []types.ConversationTurn
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string, turns []types.ConversationTurn) types.ConversationTurn {
	f.calls++
	f.summarized = turns
	return types.ConversationTurn{Role: types.RoleSystem, Text: "summary"}
}

// forty latin characters, ten estimated tokens per turn
func tenTokenTurn(role types.Role, seq string) types.ConversationTurn {
	return types.ConversationTurn{Role: role, Text: seq + strings.Repeat("x", 40-len(seq))}
}

func TestMemoryGetEmptyConversation(t *testing.T) {
	mem := NewConversationMemory(newFakeTurnStore(), &fakeSummarizer{}, 100, 6)

	got, err := mem.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMemoryGetUnderBudgetReturnsVerbatim(t *testing.T) {
	store := newFakeTurnStore()
	summarizer := &fakeSummarizer{}
	mem := NewConversationMemory(store, summarizer, 100, 6)

	turns := []types.ConversationTurn{
		tenTokenTurn(types.RoleUser, "q1"),
		tenTokenTurn(types.RoleAssistant, "a1"),
	}
	require.NoError(t, mem.Add(context.Background(), "conv-1", turns))

	got, err := mem.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, turns, got)
	assert.Zero(t, summarizer.calls, "summarizer must not run under budget")
}

func TestMemoryGetOverBudgetSummarizesOlderTurns(t *testing.T) {
	store := newFakeTurnStore()
	summarizer := &fakeSummarizer{}
	mem := NewConversationMemory(store, summarizer, 100, 6)

	var turns []types.ConversationTurn
	for i := 0; i < 11; i++ {
		turns = append(turns, tenTokenTurn(types.RoleUser, string(rune('a'+i))))
	}
	require.NoError(t, mem.Add(context.Background(), "conv-1", turns))

	got, err := mem.Get(context.Background(), "conv-1")
	require.NoError(t, err)

	require.Len(t, got, 7, "window must be one summary plus the recent tail")
	assert.Equal(t, types.RoleSystem, got[0].Role)
	assert.Equal(t, "summary", got[0].Text)
	assert.Equal(t, turns[5:], got[1:])

	assert.Equal(t, 1, summarizer.calls)
	assert.Equal(t, turns[:5], summarizer.summarized, "only the older turns are summarized")
}

func TestMemoryGetFewTurnsOverBudgetTruncatesWithoutSummary(t *testing.T) {
	store := newFakeTurnStore()
	summarizer := &fakeSummarizer{}
	mem := NewConversationMemory(store, summarizer, 15, 6)

	turns := []types.ConversationTurn{
		tenTokenTurn(types.RoleUser, "q1"),
		tenTokenTurn(types.RoleAssistant, "a1"),
		tenTokenTurn(types.RoleUser, "q2"),
	}
	require.NoError(t, mem.Add(context.Background(), "conv-1", turns))

	got, err := mem.Get(context.Background(), "conv-1")
	require.NoError(t, err)

	require.Len(t, got, 1, "budget fits a single ten-token turn")
	assert.Equal(t, turns[2], got[0], "the newest turn survives truncation")
	assert.Zero(t, summarizer.calls)
}

func TestMemoryClear(t *testing.T) {
	store := newFakeTurnStore()
	mem := NewConversationMemory(store, &fakeSummarizer{}, 100, 6)

	require.NoError(t, mem.Add(context.Background(), "conv-1", []types.ConversationTurn{
		tenTokenTurn(types.RoleUser, "q1"),
	}))
	require.NoError(t, mem.Clear(context.Background(), "conv-1"))

	got, err := mem.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
