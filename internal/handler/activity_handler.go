package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/milestoner/internal/service"
)

// ActivityHandler serves git activity summaries and post drafts.
type ActivityHandler struct {
	activity *service.ActivityService
	drafts   *service.DraftService
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(activity *service.ActivityService, drafts *service.DraftService) *ActivityHandler {
	return &ActivityHandler{activity: activity, drafts: drafts}
}

// Register sets up activity routes.
func (h *ActivityHandler) Register(api fiber.Router) {
	api.Get("/activity", h.Summarize)
	api.Post("/drafts", h.Draft)
}

// Summarize returns commits grouped by day. Query: repo, since, range.
func (h *ActivityHandler) Summarize(c fiber.Ctx) error {
	summary, err := h.activity.Summarize(c.Context(), service.ActivityQuery{
		RepoPath: c.Query("repo"),
		Since:    c.Query("since"),
		Range:    c.Query("range"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}

// Draft returns drafting context for a post about recent work.
func (h *ActivityHandler) Draft(c fiber.Ctx) error {
	var body service.DraftRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	draft, err := h.drafts.Prepare(c.Context(), body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(draft)
}
