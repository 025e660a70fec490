package challenge

import (
	"fmt"
	"strings"
)

// Step identifies one challenge the user must perform
type Step string

const (
	StepLookLeft  Step = "look_left"
	StepLookRight Step = "look_right"
	StepSmile     Step = "smile"
	StepBlink     Step = "blink"
)

// FinalInstruction is shown once every step passed, until the proof photo is taken
const FinalInstruction = "Look straight at the camera"

var knownSteps = map[Step]string{
	StepLookLeft:  "Turn your head to the left",
	StepLookRight: "Turn your head to the right",
	StepSmile:     "Look at the camera and smile",
	StepBlink:     "Blink your eyes",
}

// IsKnown reports whether the step has a validation rule
func (s Step) IsKnown() bool {
	_, ok := knownSteps[s]
	return ok
}

// Instruction returns the prompt shown to the user while the step is current
func (s Step) Instruction() string {
	if text, ok := knownSteps[s]; ok {
		return text
	}
	return ""
}

func (s Step) String() string {
	return string(s)
}

// ParseStep converts a wire value (case-insensitive) into a known Step
func ParseStep(value string) (Step, error) {
	step := Step(strings.ToLower(strings.TrimSpace(value)))
	if !step.IsKnown() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, value)
	}
	return step, nil
}

// Plan is the ordered list of steps for one session.
// It is immutable: accessors hand out copies.
type Plan struct {
	steps     []Step
	auditMode bool
}

// NewPlan builds a plan. Order is kept as given and duplicates are allowed.
func NewPlan(auditMode bool, steps ...Step) Plan {
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return Plan{steps: cp, auditMode: auditMode}
}

// Len returns the number of steps
func (p Plan) Len() int {
	return len(p.steps)
}

// At returns the step at index i
func (p Plan) At(i int) Step {
	return p.steps[i]
}

// Steps returns a copy of the ordered steps
func (p Plan) Steps() []Step {
	cp := make([]Step, len(p.steps))
	copy(cp, p.steps)
	return cp
}

// AuditMode reports whether per-step evidence is retained
func (p Plan) AuditMode() bool {
	return p.auditMode
}
