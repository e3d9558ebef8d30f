package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"analyzer/llm"
	"analyzer/memory"
	"analyzer/store"
	"analyzer/types"
)

const answerInstructions = `You are a document analysis assistant. Answer the question using only the
provided document excerpts and the conversation history. If the excerpts do
not contain the answer, say so. Answer in the language of the question.`

const searchLimit = 5

// ChatHandler answers questions over indexed documents while keeping
// per-conversation history inside the token window.
type ChatHandler struct {
	store    store.Storer
	memory   *memory.ConversationMemory
	embedder llm.Embedder
	gen      llm.GenerationService
	invoker  *llm.Invoker
	logger   *slog.Logger
}

func NewChatHandler(store store.Storer, mem *memory.ConversationMemory, embedder llm.Embedder, gen llm.GenerationService, invoker *llm.Invoker, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		store:    store,
		memory:   mem,
		embedder: embedder,
		gen:      gen,
		invoker:  invoker,
		logger:   logger,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := params.Validate(); len(errors) > 0 {
		return NewValidationError(errors)
	}

	ctx := c.Context()

	convID, err := uuid.Parse(params.ConversationID)
	if err != nil {
		return ErrInvalidID()
	}
	conv, err := h.store.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrNotFound(params.ConversationID, "conversation")
	}

	history, err := h.memory.Get(ctx, params.ConversationID)
	if err != nil {
		return err
	}

	embedding, err := h.embedder.Embed(ctx, params.Prompt)
	if err != nil {
		return err
	}
	chunks, err := h.store.Search(ctx, embedding, searchLimit)
	if err != nil {
		return err
	}

	prompt := buildPrompt(history, chunks, params.Prompt)

	answer, err := h.invoker.CallWithRetryOrThrow(ctx, "chat", func(ctx context.Context) (string, error) {
		return h.gen.Generate(ctx, answerInstructions, prompt)
	})
	if err != nil {
		return err
	}

	if err := h.memory.Add(ctx, params.ConversationID, []types.ConversationTurn{
		{Role: types.RoleUser, Text: params.Prompt},
		{Role: types.RoleAssistant, Text: answer},
	}); err != nil {
		h.logger.Error("failed to record conversation turns", "conversationID", params.ConversationID, "error", err)
	}
	if err := h.store.TouchConversation(ctx, convID); err != nil {
		h.logger.Error("failed to touch conversation", "conversationID", params.ConversationID, "error", err)
	}

	confidence := 0.0
	if len(chunks) > 0 {
		confidence = 1 - chunks[0].Distance
	}

	resp := types.ChatResponse{
		Answer:     answer,
		Sources:    formatSources(chunks),
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
	return c.JSON(resp)
}

func buildPrompt(history []types.ConversationTurn, chunks []types.RetrievalChunk, question string) string {
	var sb strings.Builder

	if len(history) > 0 {
		sb.WriteString("Conversation history:\n")
		for _, t := range history {
			sb.WriteString(t.Role.Label())
			sb.WriteString(": ")
			sb.WriteString(t.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(chunks) > 0 {
		sb.WriteString("Document excerpts:\n")
		for _, ch := range chunks {
			sb.WriteString(ch.Content)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString(fmt.Sprintf("Question: %s", question))
	return sb.String()
}

func formatSources(chunks []types.RetrievalChunk) []types.Source {
	sources := make([]types.Source, len(chunks))
	for i, ch := range chunks {
		sources[i] = types.Source{
			SourceFile: ch.SourceFile,
			PageNumber: ch.PageNumber,
			ChunkText:  ch.Content,
			Index:      ch.Index,
		}
	}
	return sources
}
