package service

import (
	"context"
	"log/slog"
	"time"
)

// CleanupWorker periodically expires sessions past their deadline
type CleanupWorker struct {
	service  *LivenessService
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
}

func NewCleanupWorker(service *LivenessService, logger *slog.Logger, interval time.Duration) *CleanupWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CleanupWorker{
		service:  service,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (w *CleanupWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("session cleanup worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session cleanup worker stopped")
			return
		case <-w.done:
			w.logger.Info("session cleanup worker stopped")
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) Stop() {
	close(w.done)
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	expired, err := w.service.CleanupExpired(ctx)
	if err != nil {
		w.logger.Error("session cleanup failed", slog.Any("error", err))
	}
	if expired > 0 {
		w.logger.Info("expired liveness sessions", slog.Int("count", expired))
	}
}
