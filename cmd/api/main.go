package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/liveness/internal/api"
	"github.com/saturnino-fabrica-de-software/liveness/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/liveness/internal/audit"
	"github.com/saturnino-fabrica-de-software/liveness/internal/config"
	"github.com/saturnino-fabrica-de-software/liveness/internal/database"
	"github.com/saturnino-fabrica-de-software/liveness/internal/face"
	"github.com/saturnino-fabrica-de-software/liveness/internal/metrics"
	"github.com/saturnino-fabrica-de-software/liveness/internal/repository"
	"github.com/saturnino-fabrica-de-software/liveness/internal/service"
	"github.com/saturnino-fabrica-de-software/liveness/internal/webhook"
	"github.com/saturnino-fabrica-de-software/liveness/internal/ws"
)

// multipartOverhead is added to MAX_FRAME_SIZE for the form envelope
const multipartOverhead = 1 << 20

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting Liveness API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("face_provider", cfg.FaceProvider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database (migrations are applied by cmd/migrate)
	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	defer pool.Close()

	auditLogger := audit.NewSlogLogger(logger)

	faceProvider, err := face.NewFaceProvider(ctx, cfg, auditLogger)
	if err != nil {
		return fmt.Errorf("failed to create face provider: %w", err)
	}

	repo := repository.NewLivenessSessionRepository(pool)
	hub := ws.NewHub(logger)
	m := metrics.New()

	svc := service.NewLivenessService(repo, faceProvider, service.Config{
		SessionTTL:      cfg.SessionTTL,
		ResultTTL:       cfg.ResultTTL,
		ResultCacheSize: cfg.ResultCacheSize,
		MaxFrameSize:    cfg.MaxFrameSize,
	}, logger).
		WithPublisher(hub).
		WithAuditLogger(auditLogger).
		WithMetrics(m)

	deps := &api.Dependencies{
		Service:       svc,
		Hub:           hub,
		Metrics:       m,
		DB:            pool,
		CleanupWorker: service.NewCleanupWorker(svc, logger, cfg.SessionCleanupInterval),
		Aggregator:    metrics.NewAggregator(repo, m, logger, time.Minute),
		APIKeyHashes:  cfg.APIKeyHashes,
		RateLimit: middleware.RateLimiterConfig{
			Max:    cfg.RateLimitMax,
			Window: cfg.RateLimitWindow,
		},
		BodyLimit: cfg.MaxFrameSize + multipartOverhead,
	}

	if cfg.WebhooksEnabled() {
		webhooks := webhook.NewService(pool, webhook.Config{
			URL:    cfg.WebhookURL,
			Secret: cfg.WebhookSecret,
		}, logger)
		svc.WithNotifier(webhooks)
		deps.WebhookWorker = webhook.NewWorker(pool, webhooks, logger)
		logger.Info("webhooks enabled", slog.String("url", cfg.WebhookURL))
	}

	// Setup router (also starts the hub and background workers)
	router := api.NewRouter(logger, deps)
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}
