package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Terminal session events delivered to WEBHOOK_URL
const (
	EventSessionCompleted = "liveness.completed"
	EventSessionCancelled = "liveness.cancelled"
	EventSessionExpired   = "liveness.expired"
)

type Job struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   uuid.UUID  `json:"session_id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"payload"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	Status      string     `json:"status"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type EventPayload struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	SessionID uuid.UUID      `json:"session_id"`
	Data      SessionSummary `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// SessionSummary is the terminal result without evidence images.
// Images stay in memory and are only served by the result endpoint.
type SessionSummary struct {
	Success       bool      `json:"success"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Steps         []string  `json:"steps"`
	StepsPassed   int       `json:"steps_passed"`
	AuditMode     bool      `json:"audit_mode"`
	EvidenceSteps []string  `json:"evidence_steps"`
	HasFinalPhoto bool      `json:"has_final_photo"`
	FinishedAt    time.Time `json:"finished_at"`
}
