package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/milestoner/internal/optimal"
	"github.com/arturoeanton/milestoner/internal/service"
)

// OptimalHandler serves posting-time recommendations.
type OptimalHandler struct {
	now func() time.Time
}

// NewOptimalHandler creates a new optimal-times handler. now should return
// the current time in the configured timezone.
func NewOptimalHandler(now func() time.Time) *OptimalHandler {
	return &OptimalHandler{now: now}
}

// Register sets up optimal-time routes.
func (h *OptimalHandler) Register(api fiber.Router) {
	api.Get("/optimal-times", h.Report)
}

// Report returns the advisory view. With ?horizon= it returns only the
// recommendations for today, tomorrow or the week. ?now= overrides the
// reference time.
func (h *OptimalHandler) Report(c fiber.Ctx) error {
	now := h.now()
	if raw := c.Query("now"); raw != "" {
		t, err := service.ParseTime(raw, now.Location())
		if err != nil {
			return respondError(c, err)
		}
		now = t.In(now.Location())
	}
	if raw := c.Query("horizon"); raw != "" {
		horizon, ok := optimal.ParseHorizon(raw)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "horizon must be today, tomorrow or week"})
		}
		recs := optimal.Recommend(now, horizon)
		return c.JSON(fiber.Map{
			"current_time":    now,
			"current_quality": optimal.CurrentQuality(now),
			"recommendations": recs,
			"count":           len(recs),
		})
	}
	return c.JSON(optimal.BuildReport(now))
}
