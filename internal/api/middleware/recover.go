package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

// Recover turns a panic in a handler into INTERNAL_ERROR. A panic while
// processing one session's frame must not take down the other sessions.
func Recover(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					slog.Any("panic", r),
					slog.String("path", c.Path()),
					slog.String("method", c.Method()),
					slog.String("session_id", c.Params("id")),
					slog.String("request_id", requestID(c)),
					slog.String("stack", string(debug.Stack())),
				)
				err = writeAppError(c, domain.ErrInternal)
			}
		}()
		return c.Next()
	}
}
