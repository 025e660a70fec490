package middleware

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

func testKey(t *testing.T) (string, string) {
	t.Helper()
	key, hash, _, err := domain.GenerateAPIKey(domain.EnvTest)
	require.NoError(t, err)
	return key, hash
}

func TestAuth(t *testing.T) {
	validKey, validHash := testKey(t)
	otherKey, _ := testKey(t)

	tests := []struct {
		name           string
		authHeader     string
		query          string
		upgrade        bool
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "valid API key",
			authHeader:     "Bearer " + validKey,
			expectedStatus: 200,
		},
		{
			name:           "lowercase bearer scheme",
			authHeader:     "bearer " + validKey,
			expectedStatus: 200,
		},
		{
			name:           "missing Authorization header",
			expectedStatus: 401,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "well formed but unknown key",
			authHeader:     "Bearer " + otherKey,
			expectedStatus: 401,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "malformed key",
			authHeader:     "Bearer test-api-key-12345",
			expectedStatus: 401,
			expectedCode:   "INVALID_API_KEY_FORMAT",
		},
		{
			name:           "invalid Bearer format",
			authHeader:     "Basic abc123",
			expectedStatus: 401,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "empty Bearer token",
			authHeader:     "Bearer ",
			expectedStatus: 401,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "query token on websocket upgrade",
			query:          "?access_token=" + validKey,
			upgrade:        true,
			expectedStatus: 200,
		},
		{
			name:           "query token ignored on plain requests",
			query:          "?access_token=" + validKey,
			expectedStatus: 401,
			expectedCode:   "UNAUTHORIZED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))})
			app.Use(Auth(AuthConfig{APIKeyHashes: []string{validHash}}))
			app.Get("/test", func(c *fiber.Ctx) error {
				id, err := GetAPIKeyID(c)
				if err != nil {
					return err
				}
				return c.SendString(id)
			})

			req := httptest.NewRequest("GET", "/test"+tt.query, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.upgrade {
				req.Header.Set("Connection", "Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			if tt.expectedCode != "" {
				assert.Contains(t, string(body), tt.expectedCode)
				return
			}
			assert.Equal(t, validHash[:16], string(body), "identity is a hash prefix")
		})
	}
}

func TestGetAPIKeyID_Missing(t *testing.T) {
	app := fiber.New()
	app.Get("/test", func(c *fiber.Ctx) error {
		_, err := GetAPIKeyID(c)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		return c.SendStatus(204)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	require.NoError(t, err)
}
