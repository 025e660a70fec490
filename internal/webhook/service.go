package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used for the retry queue
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Config struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

type Service struct {
	db     DB
	client *http.Client
	config Config
	logger *slog.Logger
}

func NewService(db DB, cfg Config, logger *slog.Logger) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Enabled reports whether a webhook URL is configured
func (s *Service) Enabled() bool {
	return s.config.URL != ""
}

// Send delivers the event once and enqueues it for retry on failure.
// It only returns an error when the event could be neither delivered nor enqueued.
func (s *Service) Send(ctx context.Context, event EventPayload) error {
	if !s.Enabled() {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := s.deliver(ctx, event.Type, payload); err != nil {
		s.logger.Warn("webhook delivery failed, enqueuing",
			slog.String("session_id", event.SessionID.String()),
			slog.String("event", event.Type),
			slog.Any("error", err),
		)
		return s.enqueue(ctx, event, payload, err.Error())
	}

	return nil
}

func (s *Service) deliver(ctx context.Context, eventType string, payload []byte) error {
	timestamp := time.Now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Rekko-Signature", Sign(s.config.Secret, timestamp, payload))
	req.Header.Set("X-Rekko-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Rekko-Event", eventType)
	req.Header.Set("User-Agent", "Rekko-Liveness-Webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil
}

func (s *Service) enqueue(ctx context.Context, event EventPayload, payload []byte, errorMsg string) error {
	query := `
		INSERT INTO webhook_queue (session_id, event_type, payload, max_attempts, next_retry_at, last_error)
		VALUES ($1, $2, $3, $4, NOW() + INTERVAL '1 second', $5)
	`

	_, err := s.db.Exec(ctx, query, event.SessionID, event.Type, payload, s.config.MaxAttempts, errorMsg)
	if err != nil {
		return fmt.Errorf("enqueue webhook: %w", err)
	}

	return nil
}
