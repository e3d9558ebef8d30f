package api

import (
	"github.com/gofiber/fiber/v2"

	"analyzer/llm"
)

type AdminHandler struct {
	janitor *llm.CacheJanitor
}

func NewAdminHandler(janitor *llm.CacheJanitor) *AdminHandler {
	return &AdminHandler{janitor: janitor}
}

// HandleCacheCleanup triggers an immediate summary cache sweep and
// reports how many entries were removed.
func (h *AdminHandler) HandleCacheCleanup(c *fiber.Ctx) error {
	deleted, err := h.janitor.TriggerManualCleanup(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}
