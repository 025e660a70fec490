package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventSessionStarted   EventType = "SESSION_STARTED"
	EventStepPassed       EventType = "STEP_PASSED"
	EventSessionCompleted EventType = "SESSION_COMPLETED"
	EventSessionCancelled EventType = "SESSION_CANCELLED"
	EventSessionExpired   EventType = "SESSION_EXPIRED"
	EventFaceDetected     EventType = "FACE_DETECTED"
)

// Event represents an audit event for LGPD compliance.
// Events never carry image bytes.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	SessionID uuid.UUID         `json:"session_id"`
	EventType EventType         `json:"event_type"`
	Step      string            `json:"step,omitempty"`
	Provider  string            `json:"provider"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

type sessionKey struct{}

// WithSessionID attaches the liveness session to ctx so that components
// without session knowledge (face providers) can still attribute events
func WithSessionID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFromContext returns the session attached by WithSessionID, or uuid.Nil
func SessionIDFromContext(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(sessionKey{}).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == uuid.Nil {
		event.SessionID = SessionIDFromContext(ctx)
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("session_id", event.SessionID.String()),
		slog.String("provider", event.Provider),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}
