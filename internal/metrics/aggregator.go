package metrics

import (
	"context"
	"log/slog"
	"time"
)

// StatusCounter reports how many ledger sessions are in each status
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Aggregator periodically mirrors the session ledger into gauges.
// In-memory counters only see this instance; the ledger sees every instance.
type Aggregator struct {
	repo     StatusCounter
	metrics  *Metrics
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
}

// NewAggregator creates a new metrics aggregator worker
func NewAggregator(repo StatusCounter, m *Metrics, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = 1 * time.Minute
	}

	return &Aggregator{
		repo:     repo,
		metrics:  m,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the aggregation worker
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)

	a.aggregate(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.aggregate(ctx)
		}
	}
}

// Stop gracefully shuts down the aggregator
func (a *Aggregator) Stop() {
	close(a.done)
}

func (a *Aggregator) aggregate(ctx context.Context) {
	a.logger.Debug("running metrics aggregation")

	counts, err := a.repo.CountByStatus(ctx)
	if err != nil {
		a.logger.Error("failed to count ledger sessions", "error", err)
		return
	}

	a.metrics.LedgerSessions.Reset()
	for status, n := range counts {
		a.metrics.LedgerSessions.WithLabelValues(status).Set(float64(n))
	}
}
