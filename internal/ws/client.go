package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const maxMessageSize = 6 * 1024 * 1024

// FrameHandler processes one binary frame from the producer connection and
// returns the reply for it. done ends the producer connection.
type FrameHandler func(ctx context.Context, sessionID uuid.UUID, image []byte, rotation int) (reply []byte, done bool)

// controlMessage is the text message a producer sends to change frame metadata
type controlMessage struct {
	Rotation *int `json:"rotation"`
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID uuid.UUID
	role      Role
	send      chan []byte

	// inFlight is set while the producer's frame is being processed. The hub
	// keeps such a client past a terminal event so the frame still gets its reply.
	inFlight atomic.Bool
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID uuid.UUID, role Role) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		role:      role,
		send:      make(chan []byte, 256),
	}
}

// ReadPump reads until the connection fails. Frames are handled one at a
// time, in arrival order; observers may only listen.
func (c *Client) ReadPump(ctx context.Context, onFrame FrameHandler) {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	rotation := 0

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if c.role != RoleProducer {
			continue
		}

		switch messageType {
		case websocket.TextMessage:
			var ctrl controlMessage
			if err := json.Unmarshal(data, &ctrl); err != nil || ctrl.Rotation == nil {
				c.hub.Send(c, ErrorMessage(c.sessionID, "BAD_REQUEST", "Control message must be {\"rotation\": <degrees>}"))
				continue
			}
			rotation = *ctrl.Rotation

		case websocket.BinaryMessage:
			c.inFlight.Store(true)
			reply, done := onFrame(ctx, c.sessionID, data, rotation)
			if reply != nil {
				c.hub.Send(c, reply)
			}
			c.inFlight.Store(false)
			if done {
				return
			}
		}
	}
}

// WritePump is the only writer of the connection. It returns once the hub
// closes the send channel.
func (c *Client) WritePump() {
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			_ = c.conn.Close()
			// keep draining until the hub lets go of this client
			for range c.send {
			}
			return
		}
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

// ErrorMessage encodes an error event for a single connection
func ErrorMessage(sessionID uuid.UUID, code, message string) []byte {
	payload, _ := json.Marshal(Event{
		SessionID: sessionID,
		Type:      EventError,
		Data: map[string]string{
			"code":    code,
			"message": message,
		},
		Timestamp: time.Now(),
	})
	return payload
}
