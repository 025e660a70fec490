package ws

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// LocalsSessionID is the fiber.Locals key holding the session uuid.UUID
const LocalsSessionID = "session_id"

// Handler upgrades the request into a session connection.
// ?role=producer claims the single frame producer slot of the session.
func Handler(hub *Hub, onFrame FrameHandler) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sessionID, ok := c.Locals(LocalsSessionID).(uuid.UUID)
		if !ok {
			_ = c.Close()
			return
		}

		client := NewClient(hub, c, sessionID, ParseRole(c.Query("role")))

		if !hub.Register(client) {
			_ = c.WriteMessage(websocket.TextMessage,
				ErrorMessage(sessionID, "PRODUCER_CONNECTED", "Session already has a frame producer"))
			_ = c.Close()
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			client.ReadPump(ctx, onFrame)
		}()

		client.WritePump()
		cancel()
		<-readDone
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
