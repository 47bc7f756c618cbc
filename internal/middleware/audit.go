package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StatusFunc maps a handler error to the status code the error handler will send.
type StatusFunc func(error) int

// Audit emits structured logs for each request/response lifecycle event.
// Handler errors are rendered later by the app's error handler, so status
// resolves the code that will be written for them.
func Audit(logger *slog.Logger, status StatusFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		code := c.Response().StatusCode()
		if err != nil && status != nil {
			code = status(err)
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", code),
			slog.Duration("duration", time.Since(start)),
		}
		if id := GetRequestID(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}

		switch {
		case err != nil && code >= fiber.StatusInternalServerError:
			logger.Error("request completed", append(attrs, slog.Any("error", err))...)
		case err != nil:
			logger.Warn("request rejected", append(attrs, slog.String("reason", err.Error()))...)
		default:
			logger.Info("request completed", attrs...)
		}
		return err
	}
}
