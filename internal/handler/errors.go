package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/milestoner/internal/port"
)

// statusFor maps typed errors to HTTP status codes.
func statusFor(err error) int {
	var (
		validation *port.ValidationError
		schedule   *port.InvalidScheduleError
		notFound   *port.NotFoundError
		transition *port.InvalidTransitionError
		duplicate  *port.DuplicateIDError
		publish    *port.PublishError
		repo       *port.RepositoryError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &schedule):
		return fiber.StatusBadRequest
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &transition), errors.As(err, &duplicate):
		return fiber.StatusConflict
	case errors.As(err, &repo):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &publish):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
