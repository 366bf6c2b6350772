package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/milestoner/internal/service"
)

// PostHandler exposes the scheduling engine.
type PostHandler struct {
	scheduling *service.SchedulingService
}

// NewPostHandler creates a new post handler.
func NewPostHandler(scheduling *service.SchedulingService) *PostHandler {
	return &PostHandler{scheduling: scheduling}
}

// Register sets up post routes.
func (h *PostHandler) Register(api fiber.Router) {
	posts := api.Group("/posts")
	posts.Get("/", h.ListPending)
	posts.Post("/", h.Schedule)
	posts.Get("/history", h.History)
	posts.Post("/publish", h.PublishNow)
	posts.Get("/:id", h.Get)
	posts.Delete("/:id", h.Cancel)

	api.Post("/dispatch", h.Dispatch)
}

type scheduleBody struct {
	Content      string `json:"content"`
	Platform     string `json:"platform"`
	ScheduledFor string `json:"scheduled_for"`
	UseOptimal   bool   `json:"use_optimal_time"`
	Now          bool   `json:"now"`
}

// Schedule stores a new pending post. use_optimal_time wins over
// scheduled_for; with neither a time nor now the next optimal slot is used.
func (h *PostHandler) Schedule(c fiber.Ctx) error {
	var body scheduleBody
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	when, err := service.ResolveWhen(body.ScheduledFor, body.UseOptimal, body.Now, h.scheduling.Now().Location())
	if err != nil {
		return respondError(c, err)
	}

	post, err := h.scheduling.Schedule(c.Context(), service.ScheduleRequest{
		Content:  body.Content,
		Platform: body.Platform,
		When:     when,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// ListPending returns pending posts soonest first.
func (h *PostHandler) ListPending(c fiber.Ctx) error {
	view, err := h.scheduling.ListPending(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// History returns published posts, newest first.
func (h *PostHandler) History(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	posts, err := h.scheduling.History(c.Context(), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"posts": posts, "count": len(posts)})
}

// Get returns a single post.
func (h *PostHandler) Get(c fiber.Ctx) error {
	post, err := h.scheduling.Get(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// Cancel cancels a pending post.
func (h *PostHandler) Cancel(c fiber.Ctx) error {
	post, err := h.scheduling.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// PublishNow posts immediately.
func (h *PostHandler) PublishNow(c fiber.Ctx) error {
	var body struct {
		Content  string `json:"content"`
		Platform string `json:"platform"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	post, err := h.scheduling.PublishNow(c.Context(), body.Content, body.Platform)
	if err != nil {
		if post != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error(), "post": post})
		}
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// Dispatch runs one poll of the engine.
func (h *PostHandler) Dispatch(c fiber.Ctx) error {
	report, err := h.scheduling.DispatchDue(c.Context())
	if err != nil && report == nil {
		return respondError(c, err)
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "report": report})
	}
	return c.JSON(report)
}
