package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

// ErrorResponse is the JSON envelope of every failed request
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			// Oversized multipart frames are rejected by fiber before any handler runs
			if fiberErr.Code == fiber.StatusRequestEntityTooLarge {
				return writeAppError(c, domain.ErrImageTooLarge)
			}
			return writeError(c, fiberErr.Code, "HTTP_ERROR", fiberErr.Message)
		}

		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			if appErr.StatusCode >= 500 {
				logger.Error("internal error",
					slog.String("code", appErr.Code),
					slog.String("path", c.Path()),
					slog.String("request_id", requestID(c)),
					slog.Any("error", appErr.Err),
				)
			}
			return writeAppError(c, appErr)
		}

		logger.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Path()),
			slog.String("request_id", requestID(c)),
		)

		return writeAppError(c, domain.ErrInternal)
	}
}

func writeAppError(c *fiber.Ctx, appErr *domain.AppError) error {
	return writeError(c, appErr.StatusCode, appErr.Code, appErr.Message)
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorBody{
			Code:      code,
			Message:   message,
			RequestID: requestID(c),
		},
	})
}

// requestID returns the id set by the requestid middleware, if any
func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
