package challenge

import "fmt"

// OutcomeKind is the result of feeding one observation to the engine
type OutcomeKind int

const (
	// OutcomePending means the frame was a valid single face but nothing advanced
	OutcomePending OutcomeKind = iota
	OutcomeRejected
	OutcomeStepPassed
	OutcomeCompleted
	OutcomeAlreadyFinished
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePending:
		return "pending"
	case OutcomeRejected:
		return "rejected"
	case OutcomeStepPassed:
		return "step_passed"
	case OutcomeCompleted:
		return "completed"
	case OutcomeAlreadyFinished:
		return "already_finished"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RejectReason explains a per-frame rejection. Rejections are advisory, never terminal.
type RejectReason string

const (
	ReasonNoFaceDetected RejectReason = "NO_FACE_DETECTED"
	ReasonMultipleFaces  RejectReason = "MULTIPLE_FACES"
)

// FailureReason explains why a session ended without success
type FailureReason string

const (
	FailureNone      FailureReason = ""
	FailureCancelled FailureReason = "cancelled"
	FailureExpired   FailureReason = "expired"
)

// SessionResult is delivered exactly once, when the session terminates
type SessionResult struct {
	Success         bool                   `json:"success"`
	FinalEvidence   *EvidenceFrame         `json:"final_evidence,omitempty"`
	PerStepEvidence map[Step]EvidenceFrame `json:"per_step_evidence"`
	FailureReason   FailureReason          `json:"failure_reason,omitempty"`
}

// Outcome is what one Process call produced.
// Reason is set for OutcomeRejected, Step for OutcomeStepPassed and
// Result for OutcomeCompleted and OutcomeCancelled.
type Outcome struct {
	Kind   OutcomeKind
	Reason RejectReason
	Step   Step
	Result *SessionResult
}

// State is the mutable part of a session, threaded through Advance
type State struct {
	PlanIndex int
	Finished  bool
	Evidence  map[Step]EvidenceFrame
}

// Phase names the state machine position
type Phase string

const (
	PhaseAwaiting   Phase = "awaiting"
	PhaseFinalizing Phase = "finalizing"
	PhaseFinished   Phase = "finished"
)

// Phase returns the state machine position of s under plan
func (s State) Phase(plan Plan) Phase {
	switch {
	case s.Finished:
		return PhaseFinished
	case s.PlanIndex >= plan.Len():
		return PhaseFinalizing
	default:
		return PhaseAwaiting
	}
}

func (s State) clone() State {
	next := State{PlanIndex: s.PlanIndex, Finished: s.Finished}
	next.Evidence = make(map[Step]EvidenceFrame, len(s.Evidence))
	for k, v := range s.Evidence {
		next.Evidence[k] = v
	}
	return next
}

// Advance applies one observation to state and returns the next state.
// The input state is never modified. On error the returned state equals the input.
func Advance(plan Plan, state State, obs Observation, capturer Capturer) (State, Outcome, error) {
	if state.Finished {
		return state, Outcome{Kind: OutcomeAlreadyFinished}, ErrAlreadyFinished
	}

	if err := obs.Validate(); err != nil {
		return state, Outcome{}, err
	}

	switch obs.Kind {
	case ObservationNoFace:
		return state, Outcome{Kind: OutcomeRejected, Reason: ReasonNoFaceDetected}, nil
	case ObservationMultipleFaces:
		return state, Outcome{Kind: OutcomeRejected, Reason: ReasonMultipleFaces}, nil
	}

	face := *obs.Face

	if state.PlanIndex >= plan.Len() {
		return finalize(plan, state, face, capturer)
	}

	step := plan.At(state.PlanIndex)
	if !ValidateStep(step, face) {
		return state, Outcome{Kind: OutcomePending}, nil
	}

	next := state.clone()
	if plan.AuditMode() {
		frame, err := capturer.Capture()
		if err != nil {
			return state, Outcome{}, fmt.Errorf("capture evidence for %s: %w", step, err)
		}
		next.Evidence[step] = frame
	}
	next.PlanIndex++

	return next, Outcome{Kind: OutcomeStepPassed, Step: step}, nil
}

func finalize(plan Plan, state State, face FaceMetrics, capturer Capturer) (State, Outcome, error) {
	if !IsFaceStraight(face) {
		return state, Outcome{Kind: OutcomePending}, nil
	}

	// The final photo is mandatory regardless of audit mode
	frame, err := capturer.Capture()
	if err != nil {
		return state, Outcome{}, fmt.Errorf("capture final evidence: %w", err)
	}

	next := state.clone()
	next.Finished = true

	result := &SessionResult{
		Success:         true,
		FinalEvidence:   &frame,
		PerStepEvidence: stepEvidence(plan, next),
	}

	return next, Outcome{Kind: OutcomeCompleted, Result: result}, nil
}

func stepEvidence(plan Plan, state State) map[Step]EvidenceFrame {
	out := make(map[Step]EvidenceFrame)
	if !plan.AuditMode() {
		return out
	}
	for k, v := range state.Evidence {
		out[k] = v
	}
	return out
}

// Engine owns the plan and state of one session.
// It is not safe for concurrent use: callers deliver frames one at a time.
type Engine struct {
	plan  Plan
	state State
}

// NewEngine creates an engine at the first step of plan
func NewEngine(plan Plan) *Engine {
	return &Engine{
		plan:  plan,
		state: State{Evidence: make(map[Step]EvidenceFrame)},
	}
}

// Process feeds one observation. The capturer is only invoked when a step
// passes in audit mode or when the final photo is taken.
func (e *Engine) Process(obs Observation, capturer Capturer) (Outcome, error) {
	next, outcome, err := Advance(e.plan, e.state, obs, capturer)
	if err != nil {
		return outcome, err
	}
	e.state = next
	return outcome, nil
}

// Cancel terminates an unfinished session without success.
// In audit mode the evidence gathered so far is handed back.
func (e *Engine) Cancel(reason FailureReason) (*SessionResult, error) {
	if e.state.Finished {
		return nil, ErrAlreadyFinished
	}
	if reason == FailureNone {
		reason = FailureCancelled
	}

	e.state = e.state.clone()
	e.state.Finished = true

	return &SessionResult{
		Success:         false,
		PerStepEvidence: stepEvidence(e.plan, e.state),
		FailureReason:   reason,
	}, nil
}

// Plan returns the session plan
func (e *Engine) Plan() Plan {
	return e.plan
}

// State returns a snapshot of the current state
func (e *Engine) State() State {
	return e.state.clone()
}

// Phase returns the state machine position
func (e *Engine) Phase() Phase {
	return e.state.Phase(e.plan)
}

// CurrentStep returns the step being awaited, if any
func (e *Engine) CurrentStep() (Step, bool) {
	if e.state.Finished || e.state.PlanIndex >= e.plan.Len() {
		return "", false
	}
	return e.plan.At(e.state.PlanIndex), true
}

// Progress returns how many steps passed out of the plan length
func (e *Engine) Progress() (passed, total int) {
	return e.state.PlanIndex, e.plan.Len()
}
