package ws

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventStepPassed    EventType = "liveness.step_passed"
	EventFrameRejected EventType = "liveness.frame_rejected"
	EventCompleted     EventType = "liveness.completed"
	EventCancelled     EventType = "liveness.cancelled"
	EventExpired       EventType = "liveness.expired"

	// EventFrameResult is only sent to the producer connection, once per frame
	EventFrameResult EventType = "liveness.frame_result"
	// EventError is only sent to the connection that caused it
	EventError EventType = "error"
)

// IsTerminal reports whether the event ends the session
func (t EventType) IsTerminal() bool {
	return t == EventCompleted || t == EventCancelled || t == EventExpired
}

type Event struct {
	SessionID uuid.UUID   `json:"session_id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Role of a connection within a session
type Role string

const (
	RoleObserver Role = "observer"
	RoleProducer Role = "producer"
)

// ParseRole defaults to observer
func ParseRole(s string) Role {
	if Role(s) == RoleProducer {
		return RoleProducer
	}
	return RoleObserver
}
