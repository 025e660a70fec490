package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger logs one line per request. Frame uploads are the hot path, so
// successful ones are logged at debug level to keep production output small.
func Logger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()

		logLevel := slog.LevelInfo
		switch {
		case status >= 500:
			logLevel = slog.LevelError
		case status >= 400:
			logLevel = slog.LevelWarn
		case isFrameUpload(c):
			logLevel = slog.LevelDebug
		}

		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", latency),
			slog.String("ip", c.IP()),
			slog.String("request_id", requestID(c)),
		}
		if id, err := GetAPIKeyID(c); err == nil {
			attrs = append(attrs, slog.String("api_key_id", id))
		}

		logger.LogAttrs(c.Context(), logLevel, "http request", attrs...)

		return err
	}
}

func isFrameUpload(c *fiber.Ctx) bool {
	return c.Method() == fiber.MethodPost && strings.HasSuffix(c.Path(), "/frames")
}
