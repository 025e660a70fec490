package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/liveness/internal/database"
)

// Version is reported by /health
const Version = "0.2.0"

type HealthHandler struct {
	db database.Pinger
}

// NewHealthHandler creates a health handler. db may be nil, then /ready
// only reports the process is up.
func NewHealthHandler(db database.Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db != nil {
		if err := database.HealthCheck(c.Context(), h.db); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
				Status: "unavailable",
				Error:  "database unreachable",
			})
		}
	}

	return c.JSON(HealthResponse{
		Status: "ready",
	})
}
