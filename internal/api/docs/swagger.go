package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// StartSessionRequest is the body of POST /liveness/sessions
type StartSessionRequest struct {
	Steps     []string `json:"steps" example:"look_left,smile"`
	AuditMode bool     `json:"audit_mode" example:"false"`
}

// SessionResponse represents the state of a liveness session
type SessionResponse struct {
	SessionID   string   `json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status      string   `json:"status" example:"active"`
	Phase       string   `json:"phase" example:"awaiting"`
	Steps       []string `json:"steps" example:"look_left,smile"`
	AuditMode   bool     `json:"audit_mode" example:"false"`
	StepsPassed int      `json:"steps_passed" example:"1"`
	TotalSteps  int      `json:"total_steps" example:"2"`
	CurrentStep string   `json:"current_step" example:"smile"`
	Instruction string   `json:"instruction" example:"Look at the camera and smile"`
	Provider    string   `json:"provider" example:"rekognition"`
	ExpiresAt   string   `json:"expires_at" example:"2024-01-01T00:10:00Z"`
	CreatedAt   string   `json:"created_at" example:"2024-01-01T00:00:00Z"`
}

// FrameResultResponse describes what one frame did to the session
type FrameResultResponse struct {
	SessionID       string `json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Outcome         string `json:"outcome" example:"step_passed"`
	Reason          string `json:"reason,omitempty" example:"NO_FACE_DETECTED"`
	PassedStep      string `json:"passed_step,omitempty" example:"look_left"`
	CurrentStep     string `json:"current_step,omitempty" example:"smile"`
	Instruction     string `json:"instruction,omitempty" example:"Look at the camera and smile"`
	Phase           string `json:"phase" example:"awaiting"`
	StepsPassed     int    `json:"steps_passed" example:"1"`
	TotalSteps      int    `json:"total_steps" example:"2"`
	DetectionFailed bool   `json:"detection_failed,omitempty" example:"false"`
	Finished        bool   `json:"finished" example:"false"`
}

// EvidenceResponse is one captured image, base64 encoded
type EvidenceResponse struct {
	Image       string `json:"image" example:"/9j/4AAQSkZJRgABAQ..."`
	ContentType string `json:"content_type" example:"image/jpeg"`
	Width       int    `json:"width" example:"640"`
	Height      int    `json:"height" example:"480"`
	CapturedAt  string `json:"captured_at" example:"2024-01-01T00:00:12Z"`
}

// ResultResponse is the terminal result of a session
type ResultResponse struct {
	SessionID     string                      `json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status        string                      `json:"status" example:"completed"`
	Success       bool                        `json:"success" example:"true"`
	FailureReason string                      `json:"failure_reason,omitempty" example:"cancelled"`
	StepsPassed   int                         `json:"steps_passed" example:"2"`
	FinalEvidence *EvidenceResponse           `json:"final_evidence,omitempty"`
	StepEvidence  map[string]EvidenceResponse `json:"step_evidence,omitempty"`
}

// StepResponse is one passed step recorded in the ledger
type StepResponse struct {
	Index       int    `json:"index" example:"0"`
	Step        string `json:"step" example:"look_left"`
	HasEvidence bool   `json:"has_evidence" example:"false"`
	PassedAt    string `json:"passed_at" example:"2024-01-01T00:00:05Z"`
}

// StepsResponse lists passed steps
type StepsResponse struct {
	Steps []StepResponse `json:"steps"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

var (
	errUnauthorized    = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing API key"}, "401", "Unauthorized")
	errSessionNotFound = response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Liveness session not found"}, "404", "Not Found")
	errRateLimited     = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded, please try again later"}, "429", "Too Many Requests")
	errInternal        = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	apiKeyAuth         = []map[string][]string{{"ApiKeyAuth": {}}}
)

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Rekko Liveness API",
		Version:     "v1.0.0",
		Description: "Active challenge-response liveness: the user performs a sequence of head and face gestures on camera and the service decides whether a live person is present",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/liveness/sessions - Start session
		endpoint.New(
			endpoint.POST,
			"/liveness/sessions",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Start a liveness session"),
			endpoint.WithDescription("Opens a challenge session for 1 to 16 steps (look_left, look_right, smile, blink). audit_mode keeps one photo per passed step."),
			endpoint.WithBody(StartSessionRequest{}),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "201", "Session started"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				errUnauthorized,
				response.New(ErrorResponse{Code: "INVALID_PLAN", Message: "Challenge plan must list between 1 and 16 known steps"}, "422", "Unprocessable Entity"),
				errRateLimited,
				errInternal,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// GET /v1/liveness/sessions/:id - Session status
		endpoint.New(
			endpoint.GET,
			"/liveness/sessions/{id}",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Get session status"),
			endpoint.WithDescription("Returns progress, the current step and the instruction to show the user"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session ID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Session status"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errSessionNotFound, errInternal}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// POST /v1/liveness/sessions/:id/frames - Submit frame
		endpoint.New(
			endpoint.POST,
			"/liveness/sessions/{id}/frames",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Submit a camera frame"),
			endpoint.WithDescription("Runs one frame (jpeg, png or webp) through face detection and the challenge. Frames sent while another frame of the same session is processing are dropped."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session ID")),
				parameter.FileParam("image", parameter.WithRequired(), parameter.WithDescription("Camera frame")),
				parameter.IntParam("rotation", parameter.Form, parameter.WithDescription("Clockwise rotation needed to display the frame upright: 0, 90, 180 or 270")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FrameResultResponse{}, "200", "Frame processed"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errSessionNotFound,
				response.New(ErrorResponse{Code: "SESSION_FINISHED", Message: "Liveness session already finished"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "SESSION_EXPIRED", Message: "Liveness session expired"}, "410", "Gone"),
				response.New(ErrorResponse{Code: "IMAGE_TOO_LARGE", Message: "Image exceeds the maximum frame size"}, "413", "Payload Too Large"),
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted file"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INVALID_ROTATION", Message: "Rotation must be one of 0, 90, 180 or 270"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "FRAME_DROPPED", Message: "Another frame for this session is still being processed"}, "429", "Too Many Requests"),
				errInternal,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// GET /v1/liveness/sessions/:id/result - Result
		endpoint.New(
			endpoint.GET,
			"/liveness/sessions/{id}/result",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Get the session result"),
			endpoint.WithDescription("Returns the terminal result with the proof photo (and per step photos in audit mode). Results are kept in memory for a limited time."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session ID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ResultResponse{}, "200", "Session result"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errSessionNotFound,
				response.New(ErrorResponse{Code: "EVIDENCE_NOT_FOUND", Message: "Session result is no longer available"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "SESSION_IN_PROGRESS", Message: "Liveness session has not finished yet"}, "409", "Conflict"),
				errInternal,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// GET /v1/liveness/sessions/:id/steps - Passed steps
		endpoint.New(
			endpoint.GET,
			"/liveness/sessions/{id}/steps",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("List passed steps"),
			endpoint.WithDescription("Lists the steps passed so far, as recorded in the session ledger"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session ID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StepsResponse{}, "200", "Passed steps"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errSessionNotFound, errInternal}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// DELETE /v1/liveness/sessions/:id - Cancel
		endpoint.New(
			endpoint.DELETE,
			"/liveness/sessions/{id}",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Cancel a session"),
			endpoint.WithDescription("Stops detection and releases the session. The result is a failure with reason cancelled."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session ID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ResultResponse{}, "200", "Session cancelled"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errSessionNotFound,
				response.New(ErrorResponse{Code: "SESSION_FINISHED", Message: "Liveness session already finished"}, "409", "Conflict"),
				errInternal,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// GET /v1/liveness/sessions/:id/ws - Realtime channel
		endpoint.New(
			endpoint.GET,
			"/liveness/sessions/{id}/ws",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Session websocket"),
			endpoint.WithDescription("Upgrades to a websocket receiving session events. With role=producer the connection may also stream binary frames and gets one liveness.frame_result message per frame. Only one producer per session."),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session ID")),
				parameter.StrParam("role", parameter.Query, parameter.WithDescription("observer (default) or producer")),
				parameter.StrParam("access_token", parameter.Query, parameter.WithDescription("API key, for clients that cannot send the Authorization header")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(struct{}{}, "101", "Switching Protocols"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errSessionNotFound,
				response.New(ErrorResponse{Code: "SESSION_FINISHED", Message: "Liveness session already finished"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "SESSION_EXPIRED", Message: "Liveness session expired"}, "410", "Gone"),
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
