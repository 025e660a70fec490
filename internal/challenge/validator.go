package challenge

// Fixed thresholds, in degrees and probabilities
const (
	// LookYawThreshold is the head turn needed for look_left (yaw above) and look_right (yaw below the negative)
	LookYawThreshold = 35.0
	// SmileYawTolerance keeps the face roughly frontal while smiling
	SmileYawTolerance = 15.0
	// SmileProbabilityThreshold must be exceeded for smile
	SmileProbabilityThreshold = 0.70
	// BlinkEyeOpenThreshold must be undercut by the left eye for blink
	BlinkEyeOpenThreshold = 0.40
	// StraightYawTolerance gates the final proof photo. Tighter than SmileYawTolerance on purpose.
	StraightYawTolerance = 10.0

	// DefaultSmileProbability is assumed when the detector did not classify a smile
	DefaultSmileProbability = 0.0
	// DefaultEyeOpenProbability is assumed when the detector did not classify the eye
	DefaultEyeOpenProbability = 1.0
)

// ValidateStep reports whether the metrics satisfy the given step.
// Unknown steps never pass.
func ValidateStep(step Step, m FaceMetrics) bool {
	switch step {
	case StepLookLeft:
		return m.Yaw > LookYawThreshold
	case StepLookRight:
		return m.Yaw < -LookYawThreshold
	case StepSmile:
		return m.Yaw > -SmileYawTolerance && m.Yaw < SmileYawTolerance &&
			m.smile() > SmileProbabilityThreshold
	case StepBlink:
		return m.leftEyeOpen() < BlinkEyeOpenThreshold
	default:
		return false
	}
}

// IsFaceStraight reports whether the face is centered enough for the proof photo
func IsFaceStraight(m FaceMetrics) bool {
	return m.Yaw > -StraightYawTolerance && m.Yaw < StraightYawTolerance
}

func (m FaceMetrics) smile() float64 {
	if m.SmileProbability == nil {
		return DefaultSmileProbability
	}
	return *m.SmileProbability
}

func (m FaceMetrics) leftEyeOpen() float64 {
	if m.LeftEyeOpenProbability == nil {
		return DefaultEyeOpenProbability
	}
	return *m.LeftEyeOpenProbability
}
