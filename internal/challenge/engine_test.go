package challenge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCapturer records how often the engine asked for evidence
type countingCapturer struct {
	calls int
	err   error
}

func (c *countingCapturer) Capture() (EvidenceFrame, error) {
	c.calls++
	if c.err != nil {
		return EvidenceFrame{}, c.err
	}
	return EvidenceFrame{
		Image:       []byte{byte(c.calls)},
		ContentType: "image/jpeg",
		CapturedAt:  time.Now(),
	}, nil
}

func single(yaw float64) Observation {
	return Single(FaceMetrics{Yaw: yaw})
}

func TestEngine_ScenarioA_StandardMode(t *testing.T) {
	engine := NewEngine(NewPlan(false, StepLookLeft, StepSmile))
	capturer := &countingCapturer{}

	out, err := engine.Process(single(0), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out.Kind)
	assert.Equal(t, 0, engine.State().PlanIndex)

	out, err = engine.Process(single(40), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStepPassed, out.Kind)
	assert.Equal(t, StepLookLeft, out.Step)
	assert.Equal(t, 1, engine.State().PlanIndex)

	out, err = engine.Process(Single(FaceMetrics{Yaw: 0, SmileProbability: Probability(0.9)}), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStepPassed, out.Kind)
	assert.Equal(t, StepSmile, out.Step)
	assert.Equal(t, 2, engine.State().PlanIndex)
	assert.Equal(t, 0, capturer.calls, "standard mode must not capture per step")

	out, err = engine.Process(single(0), capturer)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, out.Kind)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Success)
	assert.NotNil(t, out.Result.FinalEvidence)
	assert.Empty(t, out.Result.PerStepEvidence)
	assert.Equal(t, 1, capturer.calls)
	assert.Equal(t, PhaseFinished, engine.Phase())
}

func TestEngine_ScenarioB_AuditMode(t *testing.T) {
	engine := NewEngine(NewPlan(true, StepBlink))
	capturer := &countingCapturer{}

	out, err := engine.Process(Single(FaceMetrics{Yaw: 0, LeftEyeOpenProbability: Probability(0.9)}), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out.Kind)
	assert.Equal(t, 0, capturer.calls)

	out, err = engine.Process(Single(FaceMetrics{Yaw: 0, LeftEyeOpenProbability: Probability(0.2)}), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStepPassed, out.Kind)
	assert.Equal(t, StepBlink, out.Step)
	assert.Equal(t, 1, capturer.calls)

	out, err = engine.Process(single(0), capturer)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, out.Kind)
	require.Len(t, out.Result.PerStepEvidence, 1)
	assert.Contains(t, out.Result.PerStepEvidence, StepBlink)
	assert.NotNil(t, out.Result.FinalEvidence)
	assert.Equal(t, 2, capturer.calls)
}

func TestEngine_ScenarioC_MultipleFacesNeverAdvance(t *testing.T) {
	engine := NewEngine(NewPlan(false, StepLookLeft, StepLookRight))
	capturer := &countingCapturer{}

	_, err := engine.Process(single(50), capturer)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		out, err := engine.Process(MultipleFaces(), capturer)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, out.Kind)
		assert.Equal(t, ReasonMultipleFaces, out.Reason)
		assert.Equal(t, 1, engine.State().PlanIndex)
		assert.False(t, engine.State().Finished)
	}

	out, err := engine.Process(single(-50), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStepPassed, out.Kind)

	out, err = engine.Process(single(2), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out.Kind)
}

func TestEngine_ScenarioD_IdempotentAfterFinish(t *testing.T) {
	engine := NewEngine(NewPlan(true, StepLookLeft))
	capturer := &countingCapturer{}

	_, err := engine.Process(single(40), capturer)
	require.NoError(t, err)
	out, err := engine.Process(single(0), capturer)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, out.Kind)

	calls := capturer.calls
	before := engine.State()

	for _, obs := range []Observation{single(40), single(0), NoFace(), MultipleFaces()} {
		out, err := engine.Process(obs, capturer)
		assert.ErrorIs(t, err, ErrAlreadyFinished)
		assert.Equal(t, OutcomeAlreadyFinished, out.Kind)
		assert.Nil(t, out.Result)
	}

	assert.Equal(t, calls, capturer.calls, "no capture after finish")
	assert.Equal(t, before, engine.State())
}

func TestEngine_RejectionsInEveryPhase(t *testing.T) {
	engine := NewEngine(NewPlan(false, StepLookRight))
	capturer := &countingCapturer{}

	out, err := engine.Process(NoFace(), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, out.Kind)
	assert.Equal(t, ReasonNoFaceDetected, out.Reason)

	_, err = engine.Process(single(-40), capturer)
	require.NoError(t, err)
	assert.Equal(t, PhaseFinalizing, engine.Phase())

	out, err = engine.Process(NoFace(), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, out.Kind)
	assert.Equal(t, PhaseFinalizing, engine.Phase())
	assert.Equal(t, 0, capturer.calls)
}

func TestEngine_FinalGateHoldsUntilStraight(t *testing.T) {
	engine := NewEngine(NewPlan(false, StepLookLeft))
	capturer := &countingCapturer{}

	_, err := engine.Process(single(45), capturer)
	require.NoError(t, err)

	for _, yaw := range []float64{45, 20, -12, 10} {
		out, err := engine.Process(single(yaw), capturer)
		require.NoError(t, err)
		assert.Equal(t, OutcomePending, out.Kind, "yaw=%v", yaw)
	}
	assert.Equal(t, 0, capturer.calls)

	out, err := engine.Process(single(-3), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out.Kind)
}

func TestEngine_OnlyCurrentStepIsEvaluated(t *testing.T) {
	engine := NewEngine(NewPlan(false, StepLookLeft, StepLookRight))
	capturer := &countingCapturer{}

	// look_right is satisfied but look_left is current
	out, err := engine.Process(single(-60), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out.Kind)
	assert.Equal(t, 0, engine.State().PlanIndex)

	step, ok := engine.CurrentStep()
	assert.True(t, ok)
	assert.Equal(t, StepLookLeft, step)
}

func TestEngine_StepsEmittedInPlanOrder(t *testing.T) {
	plan := NewPlan(true, StepSmile, StepLookLeft, StepSmile, StepBlink)
	engine := NewEngine(plan)
	capturer := &countingCapturer{}

	smiling := Single(FaceMetrics{Yaw: 1, SmileProbability: Probability(0.95)})
	observations := []Observation{
		smiling, smiling, // second frame is evaluated against look_left
		single(50),
		NoFace(),
		smiling,
		Single(FaceMetrics{LeftEyeOpenProbability: Probability(0.05)}),
		single(0),
	}

	var passed []Step
	lastIndex := 0
	var result *SessionResult
	for _, obs := range observations {
		out, err := engine.Process(obs, capturer)
		require.NoError(t, err)

		idx := engine.State().PlanIndex
		assert.GreaterOrEqual(t, idx, lastIndex)
		assert.LessOrEqual(t, idx, plan.Len())
		lastIndex = idx

		switch out.Kind {
		case OutcomeStepPassed:
			passed = append(passed, out.Step)
		case OutcomeCompleted:
			result = out.Result
		}
	}

	assert.Equal(t, plan.Steps(), passed)
	require.NotNil(t, result)
	// duplicates share a key: one entry per distinct step
	assert.Len(t, result.PerStepEvidence, 3)
	assert.Equal(t, 5, capturer.calls)
}

func TestEngine_CaptureFailureLeavesStateUntouched(t *testing.T) {
	engine := NewEngine(NewPlan(true, StepLookLeft))
	capturer := &countingCapturer{err: errors.New("decode failed")}

	_, err := engine.Process(single(40), capturer)
	require.Error(t, err)
	assert.Equal(t, 0, engine.State().PlanIndex)
	assert.Empty(t, engine.State().Evidence)

	capturer.err = nil
	out, err := engine.Process(single(40), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStepPassed, out.Kind)

	capturer.err = errors.New("decode failed")
	_, err = engine.Process(single(0), capturer)
	require.Error(t, err)
	assert.False(t, engine.State().Finished)
}

func TestEngine_MalformedObservation(t *testing.T) {
	engine := NewEngine(NewPlan(false, StepLookLeft))
	capturer := &countingCapturer{}

	_, err := engine.Process(Observation{Kind: ObservationSingle}, capturer)
	assert.ErrorIs(t, err, ErrMalformedObservation)

	_, err = engine.Process(Observation{}, capturer)
	assert.ErrorIs(t, err, ErrMalformedObservation)

	assert.Equal(t, 0, engine.State().PlanIndex)
	assert.False(t, engine.State().Finished)
}

func TestEngine_EmptyPlanFinalizesOnStraightFace(t *testing.T) {
	engine := NewEngine(NewPlan(false))
	capturer := &countingCapturer{}

	assert.Equal(t, PhaseFinalizing, engine.Phase())
	out, err := engine.Process(single(0), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out.Kind)
}

func TestEngine_Cancel(t *testing.T) {
	t.Run("audit mode hands back gathered evidence", func(t *testing.T) {
		engine := NewEngine(NewPlan(true, StepLookLeft, StepLookRight))
		capturer := &countingCapturer{}

		_, err := engine.Process(single(40), capturer)
		require.NoError(t, err)

		result, err := engine.Cancel(FailureExpired)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Nil(t, result.FinalEvidence)
		assert.Equal(t, FailureExpired, result.FailureReason)
		assert.Contains(t, result.PerStepEvidence, StepLookLeft)

		out, err := engine.Process(single(-40), capturer)
		assert.ErrorIs(t, err, ErrAlreadyFinished)
		assert.Equal(t, OutcomeAlreadyFinished, out.Kind)
		assert.Equal(t, 1, capturer.calls)
	})

	t.Run("defaults to cancelled", func(t *testing.T) {
		engine := NewEngine(NewPlan(false, StepBlink))

		result, err := engine.Cancel(FailureNone)
		require.NoError(t, err)
		assert.Equal(t, FailureCancelled, result.FailureReason)
		assert.Empty(t, result.PerStepEvidence)
	})

	t.Run("cannot cancel twice", func(t *testing.T) {
		engine := NewEngine(NewPlan(false, StepBlink))

		_, err := engine.Cancel(FailureCancelled)
		require.NoError(t, err)
		_, err = engine.Cancel(FailureCancelled)
		assert.ErrorIs(t, err, ErrAlreadyFinished)
	})
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	plan := NewPlan(true, StepLookLeft)
	state := State{Evidence: map[Step]EvidenceFrame{}}
	capturer := &countingCapturer{}

	next, out, err := Advance(plan, state, single(40), capturer)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStepPassed, out.Kind)
	assert.Equal(t, 0, state.PlanIndex)
	assert.Empty(t, state.Evidence)
	assert.Equal(t, 1, next.PlanIndex)
	assert.Len(t, next.Evidence, 1)
}

func TestPlan_IsImmutable(t *testing.T) {
	steps := []Step{StepLookLeft, StepSmile}
	plan := NewPlan(false, steps...)

	steps[0] = StepBlink
	assert.Equal(t, StepLookLeft, plan.At(0))

	got := plan.Steps()
	got[1] = StepBlink
	assert.Equal(t, StepSmile, plan.At(1))
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "step_passed", OutcomeStepPassed.String())
	assert.Equal(t, "completed", OutcomeCompleted.String())
	assert.Equal(t, "pending", OutcomePending.String())
}
