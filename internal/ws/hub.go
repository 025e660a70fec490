package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type registration struct {
	client *Client
	result chan bool
}

type directMessage struct {
	client  *Client
	message []byte
}

// Hub fans session events out to the websocket connections of that session.
// All client bookkeeping happens on the Run goroutine; send channels are
// only written and closed there.
type Hub struct {
	sessions   map[uuid.UUID]map[*Client]bool
	producers  map[uuid.UUID]*Client
	broadcast  chan Event
	register   chan registration
	unregister chan *Client
	direct     chan directMessage
	done       chan struct{}
	logger     *slog.Logger
	mu         sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions:   make(map[uuid.UUID]map[*Client]bool),
		producers:  make(map[uuid.UUID]*Client),
		broadcast:  make(chan Event, 256),
		register:   make(chan registration),
		unregister: make(chan *Client),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub operations until ctx is cancelled, then closes every connection
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case reg := <-h.register:
			reg.result <- h.addClient(reg.client)
		case client := <-h.unregister:
			h.flushBroadcasts()
			h.removeClient(client)
		case msg := <-h.direct:
			h.flushBroadcasts()
			h.deliver(msg.client, msg.message)
		case event := <-h.broadcast:
			h.broadcastToSession(event)
		}
	}
}

// flushBroadcasts handles every event already published, so an event
// published before Send or Unregister reaches the client first
func (h *Hub) flushBroadcasts() {
	for {
		select {
		case event := <-h.broadcast:
			h.broadcastToSession(event)
		default:
			return
		}
	}
}

func (h *Hub) addClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.role == RoleProducer {
		if _, taken := h.producers[client.sessionID]; taken {
			return false
		}
		h.producers[client.sessionID] = client
	}

	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true
	return true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[client.sessionID]
	if !ok || !clients[client] {
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}
	if h.producers[client.sessionID] == client {
		delete(h.producers, client.sessionID)
	}

	close(client.send)
}

func (h *Hub) deliver(client *Client, message []byte) {
	if !h.sessions[client.sessionID][client] {
		return
	}

	select {
	case client.send <- message:
	default:
		h.logger.Warn("websocket client too slow, disconnecting",
			slog.String("session_id", client.sessionID.String()))
		h.removeClient(client)
	}
}

func (h *Hub) broadcastToSession(event Event) {
	clients := h.sessions[event.SessionID]
	if len(clients) == 0 {
		return
	}

	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", slog.Any("error", err))
		return
	}

	for client := range clients {
		h.deliver(client, message)
	}

	// Terminal events end every connection of the session once delivered.
	// A producer with a frame in flight is left to its ReadPump, which
	// unregisters after queueing the reply for that frame.
	if event.Type.IsTerminal() {
		for client := range h.sessions[event.SessionID] {
			if client.role == RoleProducer && client.inFlight.Load() {
				continue
			}
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)
	for _, clients := range h.sessions {
		for client := range clients {
			close(client.send)
		}
	}
	h.sessions = make(map[uuid.UUID]map[*Client]bool)
	h.producers = make(map[uuid.UUID]*Client)
}

// Register adds a client. It returns false when the hub is stopped or
// the session already has a producer connection.
func (h *Hub) Register(client *Client) bool {
	result := make(chan bool, 1)
	select {
	case h.register <- registration{client: client, result: result}:
		return <-result
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its send channel
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Send queues a message for one client. It returns once the hub has
// handled it, so messages sent before Unregister are never lost.
func (h *Hub) Send(client *Client, message []byte) {
	select {
	case h.direct <- directMessage{client: client, message: message}:
	case <-h.done:
	}
}

// Publish broadcasts an event to every connection of the session.
// Events are dropped when the hub is saturated.
func (h *Hub) Publish(sessionID uuid.UUID, eventType EventType, data interface{}) {
	event := Event{
		SessionID: sessionID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("websocket event dropped",
			slog.String("session_id", sessionID.String()),
			slog.String("type", string(eventType)))
	}
}

// ConnectedClients returns how many connections observe the session
func (h *Hub) ConnectedClients(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[sessionID])
}
