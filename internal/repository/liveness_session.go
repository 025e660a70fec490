package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

type LivenessSessionRepository struct {
	pool PgxPool
}

func NewLivenessSessionRepository(pool PgxPool) *LivenessSessionRepository {
	return &LivenessSessionRepository{pool: pool}
}

// Create persists a new active session
func (r *LivenessSessionRepository) Create(ctx context.Context, session *domain.LivenessSession) error {
	query := `
		INSERT INTO liveness_sessions (id, steps, audit_mode, status, provider, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Status == "" {
		session.Status = domain.SessionActive
	}

	err := r.pool.QueryRow(ctx, query,
		session.ID,
		session.Steps,
		session.AuditMode,
		session.Status,
		session.Provider,
		session.ExpiresAt,
	).Scan(&session.CreatedAt)

	if err != nil {
		return fmt.Errorf("create liveness session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by ID
func (r *LivenessSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error) {
	query := `
		SELECT id, steps, audit_mode, status, steps_passed, provider, expires_at, created_at, finished_at
		FROM liveness_sessions
		WHERE id = $1
	`

	var session domain.LivenessSession
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.Steps,
		&session.AuditMode,
		&session.Status,
		&session.StepsPassed,
		&session.Provider,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.FinishedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get liveness session by id: %w", err)
	}

	return &session, nil
}

// RecordStep stores a passed step and bumps the session progress atomically
func (r *LivenessSessionRepository) RecordStep(ctx context.Context, step *domain.LivenessStep) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record step: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO liveness_session_steps (session_id, step_index, step, has_evidence, passed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, step.SessionID, step.Index, step.Step, step.HasEvidence, step.PassedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("step %d of session %s already recorded: %w", step.Index, step.SessionID, err)
		}
		return fmt.Errorf("insert liveness step: %w", err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE liveness_sessions
		SET steps_passed = $2
		WHERE id = $1 AND status = 'active'
	`, step.SessionID, step.Index+1)
	if err != nil {
		return fmt.Errorf("update steps passed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSessionFinished
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record step: %w", err)
	}

	return nil
}

// ListSteps returns the passed steps of a session in plan order
func (r *LivenessSessionRepository) ListSteps(ctx context.Context, sessionID uuid.UUID) ([]domain.LivenessStep, error) {
	query := `
		SELECT session_id, step_index, step, has_evidence, passed_at
		FROM liveness_session_steps
		WHERE session_id = $1
		ORDER BY step_index ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list liveness steps: %w", err)
	}
	defer rows.Close()

	steps := make([]domain.LivenessStep, 0)
	for rows.Next() {
		var s domain.LivenessStep
		if err := rows.Scan(&s.SessionID, &s.Index, &s.Step, &s.HasEvidence, &s.PassedAt); err != nil {
			return nil, fmt.Errorf("scan liveness step: %w", err)
		}
		steps = append(steps, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liveness steps: %w", err)
	}

	return steps, nil
}

// Finish moves an active session to a terminal status.
// Finishing a session twice returns ErrSessionFinished.
func (r *LivenessSessionRepository) Finish(ctx context.Context, id uuid.UUID, status domain.SessionStatus, finishedAt time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish liveness session: status %q is not terminal", status)
	}

	query := `
		UPDATE liveness_sessions
		SET status = $2, finished_at = $3
		WHERE id = $1 AND status = 'active'
	`

	result, err := r.pool.Exec(ctx, query, id, status, finishedAt)
	if err != nil {
		return fmt.Errorf("finish liveness session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrSessionFinished
	}

	return nil
}

// ExpireStale marks active sessions past their deadline as expired.
// Catches sessions orphaned by a restart, since engines live only in memory.
func (r *LivenessSessionRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE liveness_sessions
		SET status = 'expired', finished_at = $1
		WHERE status = 'active' AND expires_at < $1
	`

	result, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale liveness sessions: %w", err)
	}

	return result.RowsAffected(), nil
}

// CountByStatus returns how many sessions exist per status
func (r *LivenessSessionRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM liveness_sessions
		GROUP BY status
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count liveness sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan session count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}
