package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/liveness/internal/challenge"
	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
	"github.com/saturnino-fabrica-de-software/liveness/internal/evidence"
	"github.com/saturnino-fabrica-de-software/liveness/internal/service"
	"github.com/saturnino-fabrica-de-software/liveness/internal/ws"
)

// LivenessService is the session manager used by the handler
type LivenessService interface {
	Start(ctx context.Context, steps []string, auditMode bool) (*service.SessionView, error)
	Status(ctx context.Context, sessionID uuid.UUID) (*service.SessionView, error)
	ProcessFrame(ctx context.Context, sessionID uuid.UUID, frame evidence.Frame) (*service.FrameResult, error)
	Result(ctx context.Context, sessionID uuid.UUID) (*service.Result, error)
	Cancel(ctx context.Context, sessionID uuid.UUID) (*service.Result, error)
	Steps(ctx context.Context, sessionID uuid.UUID) ([]domain.LivenessStep, error)
	Exists(sessionID uuid.UUID) bool
}

// LivenessHandler handles liveness session requests
type LivenessHandler struct {
	service  LivenessService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewLivenessHandler creates a new LivenessHandler instance
func NewLivenessHandler(svc LivenessService, logger *slog.Logger) *LivenessHandler {
	return &LivenessHandler{
		service:  svc,
		validate: validator.New(),
		logger:   logger,
	}
}

// StartSessionRequest body of POST /v1/liveness/sessions
type StartSessionRequest struct {
	Steps     []string `json:"steps" validate:"required,min=1,max=16,dive,required"`
	AuditMode bool     `json:"audit_mode"`
}

// SessionResponse is the public view of a session
type SessionResponse struct {
	SessionID   string     `json:"session_id"`
	Status      string     `json:"status"`
	Phase       string     `json:"phase,omitempty"`
	Steps       []string   `json:"steps"`
	AuditMode   bool       `json:"audit_mode"`
	StepsPassed int        `json:"steps_passed"`
	TotalSteps  int        `json:"total_steps"`
	CurrentStep string     `json:"current_step,omitempty"`
	Instruction string     `json:"instruction,omitempty"`
	Provider    string     `json:"provider"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// EvidenceResponse carries one captured image, base64 encoded
type EvidenceResponse struct {
	Image       string    `json:"image"`
	ContentType string    `json:"content_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CapturedAt  time.Time `json:"captured_at"`
}

// ResultResponse is the terminal result of a session
type ResultResponse struct {
	SessionID     string                      `json:"session_id"`
	Status        string                      `json:"status"`
	Success       bool                        `json:"success"`
	FailureReason string                      `json:"failure_reason,omitempty"`
	StepsPassed   int                         `json:"steps_passed"`
	FinalEvidence *EvidenceResponse           `json:"final_evidence,omitempty"`
	StepEvidence  map[string]EvidenceResponse `json:"step_evidence,omitempty"`
}

// StepResponse is one passed step recorded in the ledger
type StepResponse struct {
	Index       int       `json:"index"`
	Step        string    `json:"step"`
	HasEvidence bool      `json:"has_evidence"`
	PassedAt    time.Time `json:"passed_at"`
}

// Start POST /v1/liveness/sessions - open a challenge session
func (h *LivenessHandler) Start(c *fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if err := h.validate.Struct(req); err != nil {
		return domain.ErrInvalidPlan.WithError(err)
	}

	view, err := h.service.Start(c.Context(), req.Steps, req.AuditMode)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toSessionResponse(view))
}

// Status GET /v1/liveness/sessions/:id - current progress and instruction
func (h *LivenessHandler) Status(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	view, err := h.service.Status(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(toSessionResponse(view))
}

// SubmitFrame POST /v1/liveness/sessions/:id/frames - multipart image + rotation
func (h *LivenessHandler) SubmitFrame(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	rotation, err := parseRotation(c.FormValue("rotation"))
	if err != nil {
		return err
	}

	data, err := readImage(c)
	if err != nil {
		return err
	}

	res, err := h.service.ProcessFrame(c.Context(), id, evidence.Frame{
		Data:       data,
		Rotation:   rotation,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	return c.JSON(res)
}

// Result GET /v1/liveness/sessions/:id/result - terminal result with evidence
func (h *LivenessHandler) Result(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	result, err := h.service.Result(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(toResultResponse(result))
}

// Cancel DELETE /v1/liveness/sessions/:id - stop detection, failed result
func (h *LivenessHandler) Cancel(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	result, err := h.service.Cancel(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(toResultResponse(result))
}

// Steps GET /v1/liveness/sessions/:id/steps - passed steps from the ledger
func (h *LivenessHandler) Steps(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	steps, err := h.service.Steps(c.Context(), id)
	if err != nil {
		return err
	}

	resp := make([]StepResponse, len(steps))
	for i, s := range steps {
		resp[i] = StepResponse{
			Index:       s.Index,
			Step:        s.Step,
			HasEvidence: s.HasEvidence,
			PassedAt:    s.PassedAt,
		}
	}

	return c.JSON(fiber.Map{"steps": resp})
}

// RequireActiveSession resolves :id for the websocket upgrade. Only
// active sessions accept connections.
func (h *LivenessHandler) RequireActiveSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := sessionID(c)
		if err != nil {
			return err
		}

		if !h.service.Exists(id) {
			view, err := h.service.Status(c.Context(), id)
			if err != nil {
				return err
			}
			if view.Status == domain.SessionExpired {
				return domain.ErrSessionExpired
			}
			return domain.ErrSessionFinished
		}

		c.Locals(ws.LocalsSessionID, id)
		return c.Next()
	}
}

// StreamFrames feeds websocket binary frames into the session and encodes
// one frame_result (or error) reply per frame
func (h *LivenessHandler) StreamFrames() ws.FrameHandler {
	return func(ctx context.Context, id uuid.UUID, image []byte, rotation int) ([]byte, bool) {
		res, err := h.service.ProcessFrame(ctx, id, evidence.Frame{
			Data:       image,
			Rotation:   rotation,
			ReceivedAt: time.Now(),
		})
		if err != nil {
			var appErr *domain.AppError
			if !errors.As(err, &appErr) {
				h.logger.Error("websocket frame failed",
					slog.String("session_id", id.String()),
					slog.Any("error", err),
				)
				return ws.ErrorMessage(id, domain.ErrInternal.Code, domain.ErrInternal.Message), false
			}
			return ws.ErrorMessage(id, appErr.Code, appErr.Message), isSessionGone(err)
		}

		reply, err := json.Marshal(ws.Event{
			SessionID: id,
			Type:      ws.EventFrameResult,
			Data:      res,
			Timestamp: time.Now(),
		})
		if err != nil {
			return ws.ErrorMessage(id, domain.ErrInternal.Code, domain.ErrInternal.Message), false
		}
		return reply, res.Finished
	}
}

func isSessionGone(err error) bool {
	return errors.Is(err, domain.ErrSessionFinished) ||
		errors.Is(err, domain.ErrSessionExpired) ||
		errors.Is(err, domain.ErrSessionNotFound)
}

func sessionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, domain.ErrSessionNotFound
	}
	return id, nil
}

func parseRotation(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	rotation, err := strconv.Atoi(raw)
	if err != nil || !evidence.ValidRotation(rotation) {
		return 0, domain.ErrInvalidRotation
	}
	return rotation, nil
}

// readImage reads the "image" form file. Format and size are checked by the service.
func readImage(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}
	if file.Size == 0 {
		return nil, domain.ErrInvalidImage
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	return data, nil
}

func toSessionResponse(view *service.SessionView) SessionResponse {
	return SessionResponse{
		SessionID:   view.ID.String(),
		Status:      string(view.Status),
		Phase:       string(view.Phase),
		Steps:       view.Steps,
		AuditMode:   view.AuditMode,
		StepsPassed: view.StepsPassed,
		TotalSteps:  len(view.Steps),
		CurrentStep: view.CurrentStep,
		Instruction: view.Instruction,
		Provider:    view.Provider,
		ExpiresAt:   view.ExpiresAt,
		CreatedAt:   view.CreatedAt,
		FinishedAt:  view.FinishedAt,
	}
}

func toResultResponse(result *service.Result) ResultResponse {
	resp := ResultResponse{
		SessionID:     result.Session.ID.String(),
		Status:        string(result.Session.Status),
		Success:       result.Success,
		FailureReason: string(result.FailureReason),
		StepsPassed:   result.Session.StepsPassed,
	}

	if result.FinalEvidence != nil {
		final := toEvidenceResponse(*result.FinalEvidence)
		resp.FinalEvidence = &final
	}

	if len(result.PerStepEvidence) > 0 {
		resp.StepEvidence = make(map[string]EvidenceResponse, len(result.PerStepEvidence))
		for step, frame := range result.PerStepEvidence {
			resp.StepEvidence[step.String()] = toEvidenceResponse(frame)
		}
	}

	return resp
}

func toEvidenceResponse(frame challenge.EvidenceFrame) EvidenceResponse {
	return EvidenceResponse{
		Image:       base64.StdEncoding.EncodeToString(frame.Image),
		ContentType: frame.ContentType,
		Width:       frame.Width,
		Height:      frame.Height,
		CapturedAt:  frame.CapturedAt,
	}
}
