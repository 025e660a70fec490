package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/liveness/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/liveness/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/liveness/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/liveness/internal/database"
	"github.com/saturnino-fabrica-de-software/liveness/internal/metrics"
	"github.com/saturnino-fabrica-de-software/liveness/internal/service"
	"github.com/saturnino-fabrica-de-software/liveness/internal/webhook"
	"github.com/saturnino-fabrica-de-software/liveness/internal/ws"
)

// defaultBodyLimit leaves room for the multipart envelope around a frame
const defaultBodyLimit = 6 * 1024 * 1024

type Dependencies struct {
	Service *service.LivenessService
	Hub     *ws.Hub
	Metrics *metrics.Metrics
	DB      database.Pinger

	// Background workers, started by Setup and stopped by Shutdown.
	// WebhookWorker and Aggregator are optional.
	CleanupWorker *service.CleanupWorker
	WebhookWorker *webhook.Worker
	Aggregator    *metrics.Aggregator

	APIKeyHashes []string
	RateLimit    middleware.RateLimiterConfig
	BodyLimit    int
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
	cancel      context.CancelFunc
	workers     sync.WaitGroup
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	bodyLimit := defaultBodyLimit
	if deps != nil && deps.BodyLimit > 0 {
		bodyLimit = deps.BodyLimit
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Rekko Liveness API",
		BodyLimit:    bodyLimit,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints (no auth required)
	var db database.Pinger
	if r.deps != nil {
		db = r.deps.DB
	}
	healthHandler := handler.NewHealthHandler(db)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	// Only configure authenticated routes if dependencies were provided
	if r.deps == nil {
		return
	}

	if r.deps.Metrics != nil {
		r.app.Get("/metrics", adaptor.HTTPHandler(r.deps.Metrics.Handler()))
	}

	r.startWorkers()

	// API v1 group with authentication
	v1 := r.app.Group("/v1")
	v1.Use(middleware.Auth(middleware.AuthConfig{
		APIKeyHashes: r.deps.APIKeyHashes,
		Logger:       r.logger,
	}))

	// Rate limiting (per API key) - must come after auth to have the key identity
	r.rateLimiter = middleware.NewRateLimiter(r.deps.RateLimit)
	v1.Use(r.rateLimiter.Handler())

	livenessHandler := handler.NewLivenessHandler(r.deps.Service, r.logger)

	sessions := v1.Group("/liveness/sessions")
	sessions.Post("/", livenessHandler.Start)
	sessions.Get("/:id", livenessHandler.Status)
	sessions.Delete("/:id", livenessHandler.Cancel)
	sessions.Post("/:id/frames", livenessHandler.SubmitFrame)
	sessions.Get("/:id/result", livenessHandler.Result)
	sessions.Get("/:id/steps", livenessHandler.Steps)

	// WebSocket endpoint
	sessions.Get("/:id/ws",
		ws.UpgradeMiddleware(),
		livenessHandler.RequireActiveSession(),
		ws.Handler(r.deps.Hub, livenessHandler.StreamFrames()),
	)
}

// startWorkers runs the hub and the background workers until Shutdown
func (r *Router) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.goWorker(func() { r.deps.Hub.Run(ctx) })

	if r.deps.CleanupWorker != nil {
		r.goWorker(func() { r.deps.CleanupWorker.Run(ctx) })
	}
	if r.deps.WebhookWorker != nil {
		r.goWorker(func() { r.deps.WebhookWorker.Run(ctx) })
	}
	if r.deps.Aggregator != nil {
		r.goWorker(func() { r.deps.Aggregator.Start(ctx) })
	}
}

func (r *Router) goWorker(fn func()) {
	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		fn()
	}()
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

// Shutdown stops the workers and the hub, which closes every websocket,
// then drains in-flight requests and pending webhook deliveries.
func (r *Router) Shutdown(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	err := r.app.ShutdownWithContext(ctx)
	r.workers.Wait()

	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	if r.deps != nil && r.deps.Service != nil {
		r.deps.Service.Close()
	}

	return err
}
