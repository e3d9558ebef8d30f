package memory

import (
	"context"
	"fmt"
	"log/slog"

	"analyzer/types"
)

// Defaults for the conversation window.
const (
	DefaultMaxTokens          = 8000
	DefaultRecentMessageCount = 6
)

// TurnStore is the append-only per-conversation turn log.
type TurnStore interface {
	FindTurns(ctx context.Context, conversationID string) ([]types.ConversationTurn, error)
	AppendTurns(ctx context.Context, conversationID string, turns []types.ConversationTurn) error
	DeleteTurns(ctx context.Context, conversationID string) error
}

// Summarizer condenses a range of older turns into one system turn. It
// never fails: exhausted retries degrade to a deterministic fallback.
type Summarizer interface {
	Summarize(ctx context.Context, conversationID string, turns []types.ConversationTurn) types.ConversationTurn
}

// ConversationMemory maintains a token-budgeted window over a persisted
// conversation log. Recent turns are kept verbatim; older turns collapse
// into a cached summary when the budget is exceeded.
type ConversationMemory struct {
	store              TurnStore
	summarizer         Summarizer
	maxTokens          int
	recentMessageCount int
	logger             *slog.Logger
}

func NewConversationMemory(store TurnStore, summarizer Summarizer, maxTokens, recentMessageCount int) *ConversationMemory {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if recentMessageCount <= 0 {
		recentMessageCount = DefaultRecentMessageCount
	}
	return &ConversationMemory{
		store:              store,
		summarizer:         summarizer,
		maxTokens:          maxTokens,
		recentMessageCount: recentMessageCount,
		logger:             slog.Default(),
	}
}

// Add appends turns to the conversation log.
func (m *ConversationMemory) Add(ctx context.Context, conversationID string, turns []types.ConversationTurn) error {
	if err := m.store.AppendTurns(ctx, conversationID, turns); err != nil {
		return fmt.Errorf("failed to append turns: %w", err)
	}
	m.logger.Debug("added turns to conversation", "conversation", conversationID, "count", len(turns))
	return nil
}

// Get returns the conversation window: all turns verbatim when they fit the
// token budget, otherwise a summary of the older turns followed by the most
// recent ones, truncated further if even that exceeds the budget.
func (m *ConversationMemory) Get(ctx context.Context, conversationID string) ([]types.ConversationTurn, error) {
	turns, err := m.store.FindTurns(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	if len(turns) == 0 {
		return []types.ConversationTurn{}, nil
	}
	return m.applyWindow(ctx, conversationID, turns), nil
}

// Clear deletes all persisted turns for the conversation.
func (m *ConversationMemory) Clear(ctx context.Context, conversationID string) error {
	if err := m.store.DeleteTurns(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	m.logger.Info("cleared conversation", "conversation", conversationID)
	return nil
}

func (m *ConversationMemory) applyWindow(ctx context.Context, conversationID string, turns []types.ConversationTurn) []types.ConversationTurn {
	totalTokens := EstimateTurns(turns)
	if totalTokens <= m.maxTokens {
		return turns
	}

	m.logger.Info("token limit exceeded, summarizing older turns",
		"conversation", conversationID, "tokens", totalTokens, "limit", m.maxTokens)

	// Everything counts as recent: nothing left to summarize, just truncate.
	if len(turns) <= m.recentMessageCount {
		return m.truncateToLimit(turns)
	}

	splitPoint := len(turns) - m.recentMessageCount
	older := turns[:splitPoint]
	recent := turns[splitPoint:]

	summary := m.summarizer.Summarize(ctx, conversationID, older)

	result := make([]types.ConversationTurn, 0, len(recent)+1)
	result = append(result, summary)
	result = append(result, recent...)

	if EstimateTurns(result) > m.maxTokens {
		m.logger.Warn("still over token limit after summarization, truncating",
			"conversation", conversationID)
		return m.truncateToLimit(result)
	}

	return result
}

// truncateToLimit drops the oldest turns until the rest fits the budget,
// preserving chronological order of the kept suffix.
func (m *ConversationMemory) truncateToLimit(turns []types.ConversationTurn) []types.ConversationTurn {
	result := make([]types.ConversationTurn, 0, len(turns))
	currentTokens := 0

	for i := len(turns) - 1; i >= 0; i-- {
		turnTokens := EstimateTokens(turns[i].Text)
		if currentTokens+turnTokens > m.maxTokens {
			break
		}
		result = append([]types.ConversationTurn{turns[i]}, result...)
		currentTokens += turnTokens
	}

	m.logger.Debug("truncated window", "turns", len(result), "tokens", currentTokens)
	return result
}
