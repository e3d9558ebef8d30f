package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"analyzer/store"
	"analyzer/types"
)

type ConversationHandler struct {
	store  store.Storer
	logger *slog.Logger
}

func NewConversationHandler(store store.Storer, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  store,
		logger: logger,
	}
}

func (h *ConversationHandler) HandleCreate(c *fiber.Ctx) error {
	var params types.ConversationParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if params.Title == "" {
		params.Title = "New conversation"
	}

	conv, err := h.store.CreateConversation(c.Context(), params.Title)
	if err != nil {
		return err
	}
	h.logger.Info("conversation created", "id", conv.ID, "title", conv.Title)
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (h *ConversationHandler) HandleList(c *fiber.Ctx) error {
	convs, err := h.store.ListConversations(c.Context())
	if err != nil {
		return err
	}
	if convs == nil {
		convs = []types.Conversation{}
	}
	return c.JSON(convs)
}

func (h *ConversationHandler) HandleGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	conv, err := h.store.GetConversation(c.Context(), id)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrNotFound(id, "conversation")
	}
	return c.JSON(conv)
}

// HandleMessages returns the full persisted turn log. The windowed view
// with summarization applies only to what the model sees, not here.
func (h *ConversationHandler) HandleMessages(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	conv, err := h.store.GetConversation(c.Context(), id)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrNotFound(id, "conversation")
	}
	turns, err := h.store.FindTurns(c.Context(), id.String())
	if err != nil {
		return err
	}
	if turns == nil {
		turns = []types.ConversationTurn{}
	}
	return c.JSON(turns)
}

// HandleDelete removes the conversation with its turns and any cached
// summaries.
func (h *ConversationHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	conv, err := h.store.GetConversation(c.Context(), id)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrNotFound(id, "conversation")
	}
	if err := h.store.DeleteConversation(c.Context(), id); err != nil {
		return err
	}
	h.logger.Info("conversation deleted", "id", id)
	return c.JSON(fiber.Map{"deleted": id})
}
