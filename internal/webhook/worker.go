package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	batchSize = 10
	// claimLease keeps a claimed job away from other workers while it is delivered
	claimLease = time.Minute
)

type Worker struct {
	db       DB
	service  *Service
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewWorker(db DB, service *Service, logger *slog.Logger) *Worker {
	return &Worker{
		db:       db,
		service:  service,
		logger:   logger,
		interval: 5 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("webhook worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("webhook worker stopped")
			return
		case <-ticker.C:
			if err := w.processQueue(ctx); err != nil {
				w.logger.Error("failed to process webhook queue", "error", err)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

// claim leases up to batchSize due jobs in one statement
func (w *Worker) claim(ctx context.Context) ([]Job, error) {
	query := `
		UPDATE webhook_queue
		SET next_retry_at = NOW() + ($1 * INTERVAL '1 second'), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM webhook_queue
			WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		RETURNING id, session_id, event_type, payload, attempts, max_attempts
	`

	rows, err := w.db.Query(ctx, query, claimLease.Seconds(), batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim webhook jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.SessionID, &job.EventType, &job.Payload, &job.Attempts, &job.MaxAttempts); err != nil {
			return nil, fmt.Errorf("scan webhook job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (w *Worker) processQueue(ctx context.Context) error {
	jobs, err := w.claim(ctx)
	if err != nil {
		return err
	}

	for i := range jobs {
		job := &jobs[i]
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("failed to process webhook job",
				"job_id", job.ID,
				"session_id", job.SessionID,
				"attempts", job.Attempts,
				"error", err,
			)
		}
	}

	return nil
}

func (w *Worker) processJob(ctx context.Context, job *Job) error {
	if !w.service.Enabled() {
		return w.markFailed(ctx, job.ID, "webhook url not configured")
	}

	if err := w.service.deliver(ctx, job.EventType, job.Payload); err != nil {
		return w.scheduleRetry(ctx, job, err.Error())
	}

	return w.markComplete(ctx, job.ID)
}

func (w *Worker) scheduleRetry(ctx context.Context, job *Job, errorMsg string) error {
	if job.Attempts+1 >= job.MaxAttempts {
		return w.markFailed(ctx, job.ID, errorMsg)
	}

	delay := time.Duration(1<<job.Attempts) * time.Second
	nextRetry := time.Now().Add(delay)

	query := `
		UPDATE webhook_queue
		SET attempts = attempts + 1,
		    next_retry_at = $1,
		    last_error = $2,
		    status = 'pending',
		    updated_at = NOW()
		WHERE id = $3
	`

	_, err := w.db.Exec(ctx, query, nextRetry, errorMsg, job.ID)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}

	w.logger.Info("webhook job scheduled for retry",
		"job_id", job.ID,
		"attempts", job.Attempts+1,
		"next_retry", nextRetry,
	)

	return nil
}

func (w *Worker) markComplete(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE webhook_queue
		SET status = 'delivered',
		    attempts = attempts + 1,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := w.db.Exec(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}

	w.logger.Info("webhook job completed", "job_id", jobID)
	return nil
}

func (w *Worker) markFailed(ctx context.Context, jobID uuid.UUID, errorMsg string) error {
	query := `
		UPDATE webhook_queue
		SET status = 'failed',
		    attempts = attempts + 1,
		    last_error = $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	_, err := w.db.Exec(ctx, query, errorMsg, jobID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	w.logger.Warn("webhook job failed", "job_id", jobID, "error", errorMsg)
	return nil
}
