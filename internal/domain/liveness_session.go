package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle status of a liveness session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionExpired   SessionStatus = "expired"
)

// IsTerminal reports whether no more frames are accepted in this status
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled || s == SessionExpired
}

// LivenessSession is the persisted ledger entry of a challenge session.
// Evidence images never leave memory; only metadata is stored.
type LivenessSession struct {
	ID          uuid.UUID     `json:"id"`
	Steps       []string      `json:"steps"`
	AuditMode   bool          `json:"audit_mode"`
	Status      SessionStatus `json:"status"`
	StepsPassed int           `json:"steps_passed"`
	Provider    string        `json:"provider"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CreatedAt   time.Time     `json:"created_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// IsExpired checks if the session has expired
func (s *LivenessSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// LivenessStep records one passed challenge step
type LivenessStep struct {
	SessionID   uuid.UUID `json:"session_id"`
	Index       int       `json:"index"`
	Step        string    `json:"step"`
	HasEvidence bool      `json:"has_evidence"`
	PassedAt    time.Time `json:"passed_at"`
}
