package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/saturnino-fabrica-de-software/liveness/internal/audit"
	"github.com/saturnino-fabrica-de-software/liveness/internal/challenge"
	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
	"github.com/saturnino-fabrica-de-software/liveness/internal/evidence"
	"github.com/saturnino-fabrica-de-software/liveness/internal/metrics"
	"github.com/saturnino-fabrica-de-software/liveness/internal/provider"
	"github.com/saturnino-fabrica-de-software/liveness/internal/webhook"
	"github.com/saturnino-fabrica-de-software/liveness/internal/ws"
)

// MaxPlanSteps bounds the challenge plan accepted from clients
const MaxPlanSteps = 16

type SessionRepositoryInterface interface {
	Create(ctx context.Context, session *domain.LivenessSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error)
	RecordStep(ctx context.Context, step *domain.LivenessStep) error
	ListSteps(ctx context.Context, sessionID uuid.UUID) ([]domain.LivenessStep, error)
	Finish(ctx context.Context, id uuid.UUID, status domain.SessionStatus, finishedAt time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// EventPublisher pushes realtime events to the session's websocket connections
type EventPublisher interface {
	Publish(sessionID uuid.UUID, eventType ws.EventType, data interface{})
}

// Notifier delivers terminal events to the integrator
type Notifier interface {
	Send(ctx context.Context, event webhook.EventPayload) error
}

type Config struct {
	SessionTTL      time.Duration
	ResultTTL       time.Duration
	ResultCacheSize int
	MaxFrameSize    int
}

// DefaultConfig mirrors the config package defaults
func DefaultConfig() Config {
	return Config{
		SessionTTL:      10 * time.Minute,
		ResultTTL:       5 * time.Minute,
		ResultCacheSize: 1024,
		MaxFrameSize:    evidence.DefaultMaxFrameSize,
	}
}

// SessionView is the externally visible state of a session
type SessionView struct {
	domain.LivenessSession
	Phase       challenge.Phase `json:"phase,omitempty"`
	CurrentStep string          `json:"current_step,omitempty"`
	Instruction string          `json:"instruction,omitempty"`
}

// Result is the terminal result kept in memory for a short while.
// Evidence images are never persisted.
type Result struct {
	Session domain.LivenessSession `json:"session"`
	challenge.SessionResult
}

// FrameResult describes what one frame did to the session
type FrameResult struct {
	SessionID       uuid.UUID       `json:"session_id"`
	Outcome         string          `json:"outcome"`
	Reason          string          `json:"reason,omitempty"`
	PassedStep      string          `json:"passed_step,omitempty"`
	CurrentStep     string          `json:"current_step,omitempty"`
	Instruction     string          `json:"instruction,omitempty"`
	Phase           challenge.Phase `json:"phase"`
	StepsPassed     int             `json:"steps_passed"`
	TotalSteps      int             `json:"total_steps"`
	DetectionFailed bool            `json:"detection_failed,omitempty"`
	Finished        bool            `json:"finished"`
}

// session is one in-memory challenge. mu serializes frame delivery; view is
// readable without waiting for an in-flight frame.
type session struct {
	mu     sync.Mutex
	record domain.LivenessSession
	engine *challenge.Engine
	view   atomic.Pointer[SessionView]
}

func (s *session) refreshView() {
	view := &SessionView{LivenessSession: s.record}
	passed, _ := s.engine.Progress()
	view.StepsPassed = passed
	view.Phase = s.engine.Phase()
	if step, ok := s.engine.CurrentStep(); ok {
		view.CurrentStep = string(step)
		view.Instruction = step.Instruction()
	} else if view.Phase == challenge.PhaseFinalizing {
		view.Instruction = challenge.FinalInstruction
	}
	view.Steps = append([]string(nil), s.record.Steps...)
	s.view.Store(view)
}

type LivenessService struct {
	repo      SessionRepositoryInterface
	provider  provider.FaceProvider
	publisher EventPublisher
	notifier  Notifier
	audit     audit.Logger
	metrics   *metrics.Metrics
	logger    *slog.Logger
	config    Config
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	results  *expirable.LRU[uuid.UUID, *Result]

	notifications sync.WaitGroup
}

func NewLivenessService(
	repo SessionRepositoryInterface,
	faceProvider provider.FaceProvider,
	cfg Config,
	logger *slog.Logger,
) *LivenessService {
	defaults := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaults.SessionTTL
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaults.ResultTTL
	}
	if cfg.ResultCacheSize <= 0 {
		cfg.ResultCacheSize = defaults.ResultCacheSize
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = defaults.MaxFrameSize
	}

	return &LivenessService{
		repo:      repo,
		provider:  faceProvider,
		publisher: nopPublisher{},
		audit:     &audit.NoOpLogger{},
		metrics:   metrics.New(),
		logger:    logger,
		config:    cfg,
		now:       time.Now,
		sessions:  make(map[uuid.UUID]*session),
		results:   expirable.NewLRU[uuid.UUID, *Result](cfg.ResultCacheSize, nil, cfg.ResultTTL),
	}
}

func (s *LivenessService) WithPublisher(p EventPublisher) *LivenessService {
	s.publisher = p
	return s
}

func (s *LivenessService) WithNotifier(n Notifier) *LivenessService {
	s.notifier = n
	return s
}

func (s *LivenessService) WithAuditLogger(l audit.Logger) *LivenessService {
	s.audit = l
	return s
}

func (s *LivenessService) WithMetrics(m *metrics.Metrics) *LivenessService {
	s.metrics = m
	return s
}

func (s *LivenessService) WithClock(now func() time.Time) *LivenessService {
	s.now = now
	return s
}

// ParsePlan validates client supplied steps: 1 to MaxPlanSteps known steps
func ParsePlan(steps []string, auditMode bool) (challenge.Plan, error) {
	if len(steps) == 0 || len(steps) > MaxPlanSteps {
		return challenge.Plan{}, domain.ErrInvalidPlan
	}

	parsed := make([]challenge.Step, 0, len(steps))
	for _, raw := range steps {
		step, err := challenge.ParseStep(raw)
		if err != nil {
			return challenge.Plan{}, domain.ErrInvalidPlan.WithMessage(fmt.Sprintf("Unknown challenge step %q", raw))
		}
		parsed = append(parsed, step)
	}

	return challenge.NewPlan(auditMode, parsed...), nil
}

// Start opens a session for the given plan
func (s *LivenessService) Start(ctx context.Context, steps []string, auditMode bool) (*SessionView, error) {
	plan, err := ParsePlan(steps, auditMode)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &session{
		record: domain.LivenessSession{
			ID:        uuid.New(),
			Steps:     planSteps(plan),
			AuditMode: auditMode,
			Status:    domain.SessionActive,
			Provider:  s.provider.Name(),
			ExpiresAt: now.Add(s.config.SessionTTL),
			CreatedAt: now,
		},
		engine: challenge.NewEngine(plan),
	}

	if err := s.repo.Create(ctx, &sess.record); err != nil {
		return nil, fmt.Errorf("start liveness session: %w", err)
	}
	sess.refreshView()

	s.mu.Lock()
	s.sessions[sess.record.ID] = sess
	s.mu.Unlock()

	s.metrics.SessionStarted()
	s.logAudit(ctx, audit.Event{
		SessionID: sess.record.ID,
		EventType: audit.EventSessionStarted,
		Success:   true,
		Metadata: map[string]string{
			"steps":      fmt.Sprint(steps),
			"audit_mode": fmt.Sprint(auditMode),
		},
	})

	s.logger.Info("liveness session started",
		slog.String("session_id", sess.record.ID.String()),
		slog.Int("steps", len(steps)),
		slog.Bool("audit_mode", auditMode),
	)

	return sess.view.Load(), nil
}

// ProcessFrame runs one frame through detection and the challenge engine.
// A frame arriving while another one of the same session is in flight is
// dropped with ErrFrameDropped.
func (s *LivenessService) ProcessFrame(ctx context.Context, sessionID uuid.UUID, frame evidence.Frame) (*FrameResult, error) {
	sess, err := s.active(sessionID)
	if err != nil {
		return nil, err
	}

	if !sess.mu.TryLock() {
		s.metrics.FrameProcessed("dropped")
		return nil, domain.ErrFrameDropped
	}
	defer sess.mu.Unlock()

	if sess.engine.Phase() == challenge.PhaseFinished {
		return nil, domain.ErrSessionFinished
	}

	if s.now().After(sess.record.ExpiresAt) {
		s.expire(ctx, sess)
		return nil, domain.ErrSessionExpired
	}

	mime, err := evidence.Validate(frame, s.config.MaxFrameSize)
	if err != nil {
		s.metrics.FrameProcessed("invalid")
		return nil, err
	}
	if frame.ReceivedAt.IsZero() {
		frame.ReceivedAt = s.now()
	}

	obs, detectionFailed := s.observe(ctx, sessionID, frame, mime)

	outcome, err := sess.engine.Process(obs, evidence.Capturer(frame))
	if err != nil {
		if errors.Is(err, challenge.ErrAlreadyFinished) {
			return nil, domain.ErrSessionFinished
		}
		return nil, fmt.Errorf("session %s: process frame: %w", sessionID, err)
	}
	s.metrics.FrameProcessed(outcome.Kind.String())

	switch outcome.Kind {
	case challenge.OutcomeRejected:
		s.publisher.Publish(sessionID, ws.EventFrameRejected, map[string]string{
			"reason": string(outcome.Reason),
		})

	case challenge.OutcomeStepPassed:
		s.stepPassed(ctx, sess, outcome.Step)

	case challenge.OutcomeCompleted:
		s.finish(ctx, sess, domain.SessionCompleted, outcome.Result)
	}

	if outcome.Kind != challenge.OutcomeCompleted {
		sess.refreshView()
	}

	return s.frameResult(sess, outcome, detectionFailed), nil
}

// observe never fails: detection errors count as a frame without a face
func (s *LivenessService) observe(ctx context.Context, sessionID uuid.UUID, frame evidence.Frame, mime string) (challenge.Observation, bool) {
	input, err := evidence.DetectorInput(frame, mime)
	if err != nil {
		s.logger.Warn("frame could not be prepared for detection",
			slog.String("session_id", sessionID.String()),
			slog.Any("error", err),
		)
		return challenge.NoFace(), true
	}

	start := time.Now()
	faces, err := s.provider.DetectFaces(audit.WithSessionID(ctx, sessionID), input)
	s.metrics.ObserveDetection(s.provider.Name(), time.Since(start), err)

	if err != nil {
		s.logger.Warn("face detection failed, treating frame as no face",
			slog.String("session_id", sessionID.String()),
			slog.String("provider", s.provider.Name()),
			slog.Any("error", err),
		)
		return challenge.NoFace(), true
	}

	return provider.Observe(faces), false
}

func (s *LivenessService) stepPassed(ctx context.Context, sess *session, step challenge.Step) {
	passed, total := sess.engine.Progress()
	id := sess.record.ID

	if err := s.repo.RecordStep(ctx, &domain.LivenessStep{
		SessionID:   id,
		Index:       passed - 1,
		Step:        string(step),
		HasEvidence: sess.engine.Plan().AuditMode(),
		PassedAt:    s.now(),
	}); err != nil {
		s.logger.Error("failed to record liveness step",
			slog.String("session_id", id.String()),
			slog.String("step", string(step)),
			slog.Any("error", err),
		)
	}

	s.logAudit(ctx, audit.Event{
		SessionID: id,
		EventType: audit.EventStepPassed,
		Step:      string(step),
		Success:   true,
	})

	data := map[string]interface{}{
		"step":         step,
		"steps_passed": passed,
		"total_steps":  total,
	}
	if next, ok := sess.engine.CurrentStep(); ok {
		data["next_step"] = next
		data["instruction"] = next.Instruction()
	}
	s.publisher.Publish(id, ws.EventStepPassed, data)
}

// Cancel ends an active session without success. In audit mode the
// evidence gathered so far is part of the result. A session already past
// its deadline is expired instead, as ProcessFrame would.
func (s *LivenessService) Cancel(ctx context.Context, sessionID uuid.UUID) (*Result, error) {
	sess, err := s.active(sessionID)
	if err != nil {
		return nil, err
	}

	// waits for an in-flight frame
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if s.now().After(sess.record.ExpiresAt) {
		if s.expire(ctx, sess) {
			return nil, domain.ErrSessionExpired
		}
		return nil, domain.ErrSessionFinished
	}

	result, err := sess.engine.Cancel(challenge.FailureCancelled)
	if err != nil {
		return nil, domain.ErrSessionFinished
	}

	return s.finish(ctx, sess, domain.SessionCancelled, result), nil
}

// CleanupExpired expires every in-memory session past its deadline and
// sweeps ledger rows orphaned by a restart
func (s *LivenessService) CleanupExpired(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.RLock()
	var expired []*session
	for _, sess := range s.sessions {
		if now.After(sess.record.ExpiresAt) {
			expired = append(expired, sess)
		}
	}
	s.mu.RUnlock()

	count := 0
	for _, sess := range expired {
		sess.mu.Lock()
		if s.expire(ctx, sess) {
			count++
		}
		sess.mu.Unlock()
	}

	orphans, err := s.repo.ExpireStale(ctx, now)
	if err != nil {
		return count, fmt.Errorf("expire stale sessions: %w", err)
	}
	if orphans > 0 {
		s.logger.Info("expired orphaned ledger sessions", slog.Int64("count", orphans))
	}

	return count, nil
}

// expire must be called with sess.mu held
func (s *LivenessService) expire(ctx context.Context, sess *session) bool {
	result, err := sess.engine.Cancel(challenge.FailureExpired)
	if err != nil {
		return false
	}
	s.finish(ctx, sess, domain.SessionExpired, result)
	return true
}

// finish releases the session, caches its result and notifies everyone
// interested. Must be called with sess.mu held.
func (s *LivenessService) finish(ctx context.Context, sess *session, status domain.SessionStatus, result *challenge.SessionResult) *Result {
	now := s.now()
	id := sess.record.ID

	passed, _ := sess.engine.Progress()
	sess.record.Status = status
	sess.record.StepsPassed = passed
	sess.record.FinishedAt = &now
	sess.refreshView()

	final := &Result{Session: sess.record, SessionResult: *result}

	s.mu.Lock()
	delete(s.sessions, id)
	s.results.Add(id, final)
	s.mu.Unlock()

	if err := s.repo.Finish(ctx, id, status, now); err != nil {
		s.logger.Error("failed to persist session status",
			slog.String("session_id", id.String()),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
	}

	s.metrics.SessionFinished(string(status))
	s.logAudit(ctx, audit.Event{
		SessionID: id,
		EventType: auditEventFor(status),
		Success:   result.Success,
		Error:     string(result.FailureReason),
	})

	summary := summarize(final)
	s.publisher.Publish(id, wsEventFor(status), summary)
	s.notify(id, webhookEventFor(status), summary)

	s.logger.Info("liveness session finished",
		slog.String("session_id", id.String()),
		slog.String("status", string(status)),
		slog.Int("steps_passed", passed),
	)

	return final
}

func (s *LivenessService) notify(sessionID uuid.UUID, eventType string, summary webhook.SessionSummary) {
	if s.notifier == nil {
		return
	}

	event := webhook.EventPayload{
		ID:        uuid.New(),
		Type:      eventType,
		SessionID: sessionID,
		Data:      summary,
		Timestamp: s.now(),
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.notifier.Send(ctx, event); err != nil {
			s.logger.Error("failed to send webhook",
				slog.String("session_id", sessionID.String()),
				slog.String("event", eventType),
				slog.Any("error", err),
			)
		}
	}()
}

// Status returns the current view of a session. Finished sessions are
// served from the result cache, then from the ledger.
func (s *LivenessService) Status(ctx context.Context, sessionID uuid.UUID) (*SessionView, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess.view.Load(), nil
	}

	if result, ok := s.results.Get(sessionID); ok {
		return &SessionView{LivenessSession: result.Session, Phase: challenge.PhaseFinished}, nil
	}

	record, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{LivenessSession: *record}
	if record.Status.IsTerminal() {
		view.Phase = challenge.PhaseFinished
	}
	return view, nil
}

// Result returns the terminal result while it is still cached
func (s *LivenessService) Result(ctx context.Context, sessionID uuid.UUID) (*Result, error) {
	if result, ok := s.results.Get(sessionID); ok {
		return result, nil
	}

	s.mu.RLock()
	_, active := s.sessions[sessionID]
	s.mu.RUnlock()
	if active {
		return nil, domain.ErrSessionInProgress
	}

	record, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !record.Status.IsTerminal() {
		// ledger row of a session lost on restart; the cleanup worker expires it
		return nil, domain.ErrSessionInProgress
	}

	return nil, domain.ErrEvidenceNotFound
}

// Steps returns the passed steps recorded in the ledger
func (s *LivenessService) Steps(ctx context.Context, sessionID uuid.UUID) ([]domain.LivenessStep, error) {
	if _, err := s.Status(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListSteps(ctx, sessionID)
}

// Exists reports whether the session is active in this instance
func (s *LivenessService) Exists(sessionID uuid.UUID) bool {
	_, err := s.active(sessionID)
	return err == nil
}

// ActiveSessions returns how many sessions this instance holds
func (s *LivenessService) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close waits for pending webhook deliveries
func (s *LivenessService) Close() {
	s.notifications.Wait()
}

func (s *LivenessService) active(sessionID uuid.UUID) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if result, ok := s.results.Get(sessionID); ok {
		if result.Session.Status == domain.SessionExpired {
			return nil, domain.ErrSessionExpired
		}
		return nil, domain.ErrSessionFinished
	}

	return nil, domain.ErrSessionNotFound
}

func (s *LivenessService) frameResult(sess *session, outcome challenge.Outcome, detectionFailed bool) *FrameResult {
	passed, total := sess.engine.Progress()
	res := &FrameResult{
		SessionID:       sess.record.ID,
		Outcome:         outcome.Kind.String(),
		Reason:          string(outcome.Reason),
		PassedStep:      string(outcome.Step),
		Phase:           sess.engine.Phase(),
		StepsPassed:     passed,
		TotalSteps:      total,
		DetectionFailed: detectionFailed,
		Finished:        outcome.Kind == challenge.OutcomeCompleted,
	}
	if step, ok := sess.engine.CurrentStep(); ok {
		res.CurrentStep = string(step)
		res.Instruction = step.Instruction()
	} else if res.Phase == challenge.PhaseFinalizing {
		res.Instruction = challenge.FinalInstruction
	}
	return res
}

func (s *LivenessService) logAudit(ctx context.Context, event audit.Event) {
	if event.Provider == "" {
		event.Provider = s.provider.Name()
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.Warn("failed to write audit event", slog.Any("error", err))
	}
}

func summarize(r *Result) webhook.SessionSummary {
	steps := make([]string, 0, len(r.PerStepEvidence))
	for step := range r.PerStepEvidence {
		steps = append(steps, string(step))
	}
	sort.Strings(steps)

	var finishedAt time.Time
	if r.Session.FinishedAt != nil {
		finishedAt = *r.Session.FinishedAt
	}

	return webhook.SessionSummary{
		Success:       r.Success,
		Status:        string(r.Session.Status),
		FailureReason: string(r.FailureReason),
		Steps:         r.Session.Steps,
		StepsPassed:   r.Session.StepsPassed,
		AuditMode:     r.Session.AuditMode,
		EvidenceSteps: steps,
		HasFinalPhoto: r.FinalEvidence != nil,
		FinishedAt:    finishedAt,
	}
}

func auditEventFor(status domain.SessionStatus) audit.EventType {
	switch status {
	case domain.SessionCompleted:
		return audit.EventSessionCompleted
	case domain.SessionExpired:
		return audit.EventSessionExpired
	default:
		return audit.EventSessionCancelled
	}
}

func wsEventFor(status domain.SessionStatus) ws.EventType {
	switch status {
	case domain.SessionCompleted:
		return ws.EventCompleted
	case domain.SessionExpired:
		return ws.EventExpired
	default:
		return ws.EventCancelled
	}
}

func webhookEventFor(status domain.SessionStatus) string {
	switch status {
	case domain.SessionCompleted:
		return webhook.EventSessionCompleted
	case domain.SessionExpired:
		return webhook.EventSessionExpired
	default:
		return webhook.EventSessionCancelled
	}
}

func planSteps(plan challenge.Plan) []string {
	steps := plan.Steps()
	out := make([]string, len(steps))
	for i, step := range steps {
		out[i] = string(step)
	}
	return out
}

type nopPublisher struct{}

func (nopPublisher) Publish(uuid.UUID, ws.EventType, interface{}) {}
