package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

func TestErrorHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		handler    fiber.Handler
		wantStatus int
		wantCode   string
	}{
		{
			name:       "app error",
			handler:    func(c *fiber.Ctx) error { return domain.ErrSessionExpired },
			wantStatus: 410,
			wantCode:   "SESSION_EXPIRED",
		},
		{
			name: "wrapped app error",
			handler: func(c *fiber.Ctx) error {
				return domain.ErrInvalidPlan.WithError(errors.New("unknown step"))
			},
			wantStatus: 422,
			wantCode:   "INVALID_PLAN",
		},
		{
			name:       "fiber error",
			handler:    func(c *fiber.Ctx) error { return fiber.ErrMethodNotAllowed },
			wantStatus: 405,
			wantCode:   "HTTP_ERROR",
		},
		{
			name:       "body too large maps to image too large",
			handler:    func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge },
			wantStatus: 413,
			wantCode:   "IMAGE_TOO_LARGE",
		},
		{
			name:       "unknown error",
			handler:    func(c *fiber.Ctx) error { return errors.New("boom") },
			wantStatus: 500,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name:       "panic",
			handler:    func(c *fiber.Ctx) error { panic("detector exploded") },
			wantStatus: 500,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
			app.Use(requestid.New())
			app.Use(Recover(logger))
			app.Get("/sessions/:id", tt.handler)

			resp, err := app.Test(httptest.NewRequest("GET", "/sessions/abc", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, tt.wantCode, errResp.Error.Code)
			assert.NotEmpty(t, errResp.Error.Message)
			assert.Equal(t, resp.Header.Get(fiber.HeaderXRequestID), errResp.Error.RequestID)
		})
	}
}

func TestLogger_FrameUploadsAtDebug(t *testing.T) {
	var out strings.Builder
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))

	app := fiber.New()
	app.Use(Logger(logger))
	app.Post("/sessions/:id/frames", func(c *fiber.Ctx) error { return c.SendStatus(200) })
	app.Get("/sessions/:id", func(c *fiber.Ctx) error { return c.SendStatus(200) })

	_, err := app.Test(httptest.NewRequest("POST", "/sessions/abc/frames", nil))
	require.NoError(t, err)
	assert.Empty(t, out.String())

	_, err = app.Test(httptest.NewRequest("GET", "/sessions/abc", nil))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "http request")
	assert.Contains(t, out.String(), "status=200")
}
