package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool the repositories use.
// pgxmock.PgxPoolIface satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LivenessSessionRepositoryInterface defines operations for the session ledger
type LivenessSessionRepositoryInterface interface {
	Create(ctx context.Context, session *domain.LivenessSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error)
	RecordStep(ctx context.Context, step *domain.LivenessStep) error
	ListSteps(ctx context.Context, sessionID uuid.UUID) ([]domain.LivenessStep, error)
	Finish(ctx context.Context, id uuid.UUID, status domain.SessionStatus, finishedAt time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}
