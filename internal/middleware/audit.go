package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/milestoner/internal/metrics"
)

// AuditMiddleware logs every request and records it in m (nil m is fine).
func AuditMiddleware(m *metrics.Metrics) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()
		path := c.Path()
		ip := c.IP()

		err := c.Next()

		caller := "anonymous"
		if u := GetCaller(c); u != nil {
			caller = u.Subject
		}

		status := c.Response().StatusCode()
		took := time.Since(start)
		m.HTTPRequest(method, strconv.Itoa(status), took)

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(c.Context(), level, "http request",
			"method", method,
			"path", path,
			"status", status,
			"duration_ms", took.Milliseconds(),
			"ip", ip,
			"caller", caller,
		)

		return err
	}
}
