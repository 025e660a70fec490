//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/liveness/internal/database"
	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

func setupIntegrationTest(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "liveness_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/liveness_test?sslmode=disable", host, port.Port())

	sqlDB, err := database.OpenSQL(ctx, connStr)
	require.NoError(t, err)
	migrator, err := database.NewMigrator(sqlDB, "liveness_test", nil)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	_ = migrator.Close()

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(connStr))
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	return pool
}

func TestLivenessSessionRepository_Integration(t *testing.T) {
	pool := setupIntegrationTest(t)
	repo := NewLivenessSessionRepository(pool)
	ctx := context.Background()

	session := &domain.LivenessSession{
		Steps:     []string{"look_left", "look_right", "smile"},
		AuditMode: true,
		Provider:  "mock",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, repo.Create(ctx, session))

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.Steps, got.Steps)
		assert.True(t, got.AuditMode)
		assert.Equal(t, domain.SessionActive, got.Status)
		assert.Nil(t, got.FinishedAt)
	})

	t.Run("steps advance progress", func(t *testing.T) {
		for i, step := range session.Steps[:2] {
			require.NoError(t, repo.RecordStep(ctx, &domain.LivenessStep{
				SessionID: session.ID, Index: i, Step: step, HasEvidence: true, PassedAt: time.Now(),
			}))
		}

		got, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.StepsPassed)

		steps, err := repo.ListSteps(ctx, session.ID)
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, "look_right", steps[1].Step)
	})

	t.Run("duplicate step index is rejected", func(t *testing.T) {
		err := repo.RecordStep(ctx, &domain.LivenessStep{SessionID: session.ID, Index: 0, Step: "look_left", PassedAt: time.Now()})
		assert.Error(t, err)
	})

	t.Run("finish once", func(t *testing.T) {
		require.NoError(t, repo.Finish(ctx, session.ID, domain.SessionCompleted, time.Now()))
		assert.ErrorIs(t, repo.Finish(ctx, session.ID, domain.SessionCancelled, time.Now()), domain.ErrSessionFinished)

		got, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionCompleted, got.Status)
		assert.NotNil(t, got.FinishedAt)
	})

	t.Run("expire stale", func(t *testing.T) {
		stale := &domain.LivenessSession{Steps: []string{"blink"}, Provider: "mock", ExpiresAt: time.Now().Add(-time.Minute)}
		require.NoError(t, repo.Create(ctx, stale))

		n, err := repo.ExpireStale(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := repo.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionExpired, got.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}
