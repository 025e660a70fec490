package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

const (
	// LocalAPIKeyID is the key to retrieve the caller identity from context.
	// It is a prefix of the key hash, never the key itself.
	LocalAPIKeyID = "api_key_id"

	apiKeyIDLength = 16
)

// AuthConfig holds the accepted API keys
type AuthConfig struct {
	// APIKeyHashes are SHA-256 hex digests of the accepted keys
	APIKeyHashes []string
	Logger       *slog.Logger
}

// Auth creates an authentication middleware using API Key
func Auth(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Extract Bearer token
		apiKey := extractBearerToken(c)
		if apiKey == "" {
			return domain.ErrUnauthorized
		}

		// 2. Reject malformed keys before hashing
		if !domain.IsValidFormat(apiKey) {
			return domain.ErrInvalidAPIKeyFormat
		}

		// 3. Compare against accepted hashes
		if !domain.MatchAPIKey(apiKey, cfg.APIKeyHashes) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rejected api key",
					slog.String("ip", c.IP()),
					slog.String("path", c.Path()),
				)
			}
			return domain.ErrUnauthorized
		}

		c.Locals(LocalAPIKeyID, domain.HashAPIKey(apiKey)[:apiKeyIDLength])

		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header. Browsers
// cannot set headers on websocket upgrades, so those may use ?access_token=.
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		if strings.EqualFold(c.Get("Upgrade"), "websocket") {
			return strings.TrimSpace(c.Query("access_token"))
		}
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// GetAPIKeyID retrieves the caller identity from Fiber context
func GetAPIKeyID(c *fiber.Ctx) (string, error) {
	id, ok := c.Locals(LocalAPIKeyID).(string)
	if !ok || id == "" {
		return "", domain.ErrUnauthorized
	}
	return id, nil
}
