package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"analyzer/memory"
	"analyzer/types"
)

const summarizationInstructions = `You are a conversation summarizer. Create a concise summary of the conversation below.
Focus on:
- Key topics discussed
- Important facts or decisions mentioned
- Context needed to continue the conversation
- User preferences or requirements stated

Keep the summary under 300 tokens. Write it as a coherent narrative, not a bullet list.`

// SummaryCache stores generated conversation summaries keyed by
// conversation and a content hash of the summarized range.
type SummaryCache interface {
	FindSummary(ctx context.Context, conversationID, rangeHash string) (*types.CachedSummary, error)
	SaveSummary(ctx context.Context, summary types.CachedSummary) error
	TouchSummary(ctx context.Context, conversationID, rangeHash string) error
	DeleteSummariesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Summarizer compresses older conversation turns into a single system
// turn, reusing cached summaries when the same range was already
// summarized.
type Summarizer struct {
	cache   SummaryCache
	gen     GenerationService
	invoker *Invoker
	logger  *slog.Logger
}

func NewSummarizer(cache SummaryCache, gen GenerationService, invoker *Invoker, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		cache:   cache,
		gen:     gen,
		invoker: invoker,
		logger:  logger,
	}
}

// Summarize returns a system turn carrying the summary of the given
// turns. Cache hits skip generation entirely; generation failures fall
// back to a generic placeholder which is never cached.
func (s *Summarizer) Summarize(ctx context.Context, conversationID string, turns []types.ConversationTurn) types.ConversationTurn {
	if len(turns) == 0 {
		return types.ConversationTurn{Role: types.RoleSystem, Text: "No previous conversation context."}
	}

	hash := memory.RangeHash(turns)

	cached, err := s.cache.FindSummary(ctx, conversationID, hash)
	if err != nil {
		s.logger.Error("summary cache lookup failed", "conversationID", conversationID, "error", err)
	}
	if cached != nil {
		if err := s.cache.TouchSummary(ctx, conversationID, hash); err != nil {
			s.logger.Error("failed to touch cached summary", "conversationID", conversationID, "error", err)
		}
		s.logger.Info("summary cache hit", "conversationID", conversationID, "messages", cached.MessageCount)
		return types.ConversationTurn{
			Role: types.RoleSystem,
			Text: "Previous conversation summary: " + cached.SummaryText,
		}
	}

	transcript := buildTranscript(turns)
	fallback := fmt.Sprintf("Previous conversation covered %d messages about various topics.", len(turns))

	summary := s.invoker.CallWithRetry(ctx, "summarization", func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, summarizationInstructions, transcript)
	}, fallback)

	if summary == fallback {
		return types.ConversationTurn{Role: types.RoleSystem, Text: summary}
	}

	now := time.Now()
	if err := s.cache.SaveSummary(ctx, types.CachedSummary{
		ConversationID: conversationID,
		RangeHash:      hash,
		SummaryText:    summary,
		MessageCount:   len(turns),
		TokenEstimate:  len(summary) / 4,
		CreatedAt:      now,
		LastAccessedAt: now,
	}); err != nil {
		s.logger.Error("failed to cache summary", "conversationID", conversationID, "error", err)
	}

	return types.ConversationTurn{
		Role: types.RoleSystem,
		Text: "Previous conversation summary: " + summary,
	}
}

func buildTranscript(turns []types.ConversationTurn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Role.Label())
		sb.WriteString(": ")
		sb.WriteString(t.Text)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
