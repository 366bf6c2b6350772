package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/milestoner/internal/service"
)

// SettingsHandler manages platform credentials.
type SettingsHandler struct {
	settings *service.SettingsService
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Register sets up settings routes.
func (h *SettingsHandler) Register(api fiber.Router) {
	api.Get("/settings", h.Status)
	api.Post("/settings/platforms", h.Configure)
}

// Status lists configured platforms without secrets.
func (h *SettingsHandler) Status(c fiber.Ctx) error {
	return c.JSON(h.settings.Status())
}

// Configure verifies and stores credentials.
func (h *SettingsHandler) Configure(c fiber.Ctx) error {
	var body service.ConfigureRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	st, err := h.settings.Configure(c.Context(), body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(st)
}
