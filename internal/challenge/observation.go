package challenge

import (
	"fmt"
	"time"
)

// ObservationKind classifies one frame's detection result
type ObservationKind int

const (
	ObservationUnknown ObservationKind = iota
	ObservationNoFace
	ObservationMultipleFaces
	ObservationSingle
)

func (k ObservationKind) String() string {
	switch k {
	case ObservationNoFace:
		return "no_face"
	case ObservationMultipleFaces:
		return "multiple_faces"
	case ObservationSingle:
		return "single"
	default:
		return "unknown"
	}
}

// FaceMetrics are the pose and expression signals of a single detected face.
// Yaw is in degrees, positive when the user turns to their left.
// Probabilities are nil when the detector could not classify them.
type FaceMetrics struct {
	Yaw                    float64
	SmileProbability       *float64
	LeftEyeOpenProbability *float64
}

// Probability is a helper for filling the optional metric fields
func Probability(v float64) *float64 {
	return &v
}

// Observation is the detection result for one frame
type Observation struct {
	Kind ObservationKind
	Face *FaceMetrics
}

// NoFace builds an observation for a frame without faces
func NoFace() Observation {
	return Observation{Kind: ObservationNoFace}
}

// MultipleFaces builds an observation for a frame with more than one face
func MultipleFaces() Observation {
	return Observation{Kind: ObservationMultipleFaces}
}

// Single builds an observation for a frame with exactly one face
func Single(m FaceMetrics) Observation {
	return Observation{Kind: ObservationSingle, Face: &m}
}

// Validate checks the observation shape
func (o Observation) Validate() error {
	switch o.Kind {
	case ObservationNoFace, ObservationMultipleFaces:
		return nil
	case ObservationSingle:
		if o.Face == nil {
			return fmt.Errorf("%w: single face without metrics", ErrMalformedObservation)
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %d", ErrMalformedObservation, o.Kind)
	}
}

// EvidenceFrame is a captured, displayable image of a frame
type EvidenceFrame struct {
	Image       []byte    `json:"image"`
	ContentType string    `json:"content_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Capturer produces an EvidenceFrame from the frame that produced the
// current observation. The engine calls it lazily, at most once per observation.
type Capturer interface {
	Capture() (EvidenceFrame, error)
}

// CaptureFunc adapts a function to the Capturer interface
type CaptureFunc func() (EvidenceFrame, error)

// Capture calls f()
func (f CaptureFunc) Capture() (EvidenceFrame, error) {
	return f()
}
