package provider

import (
	"context"

	"github.com/saturnino-fabrica-de-software/liveness/internal/challenge"
)

// FaceProvider define a interface para provedores de detecção facial
type FaceProvider interface {
	// Name identifica o provider em logs, métricas e auditoria
	Name() string

	// DetectFaces detecta faces na imagem e retorna pose e expressão de cada uma
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)
}

// DetectedFace represents a detected face in the image.
// Probabilities are nil when the provider could not classify them.
type DetectedFace struct {
	BoundingBox             BoundingBox `json:"bounding_box"`
	Confidence              float64     `json:"confidence"`
	QualityScore            float64     `json:"quality_score"`
	Pose                    *Pose       `json:"pose,omitempty"`
	SmileProbability        *float64    `json:"smile_probability,omitempty"`
	LeftEyeOpenProbability  *float64    `json:"left_eye_open_probability,omitempty"`
	RightEyeOpenProbability *float64    `json:"right_eye_open_probability,omitempty"`
}

// Pose represents face orientation angles, in degrees.
// Yaw is positive when the person turns to their own left.
type Pose struct {
	Pitch float64 `json:"pitch"` // up/down rotation
	Roll  float64 `json:"roll"`  // tilted rotation
	Yaw   float64 `json:"yaw"`   // left/right rotation
}

// BoundingBox represents the face area in the image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Metrics converts a detected face into the signals the challenge engine reads.
// A missing pose counts as frontal.
func (f DetectedFace) Metrics() challenge.FaceMetrics {
	m := challenge.FaceMetrics{
		SmileProbability:       f.SmileProbability,
		LeftEyeOpenProbability: f.LeftEyeOpenProbability,
	}
	if f.Pose != nil {
		m.Yaw = f.Pose.Yaw
	}
	return m
}

// Observe classifies a detection result into an engine observation
func Observe(faces []DetectedFace) challenge.Observation {
	switch len(faces) {
	case 0:
		return challenge.NoFace()
	case 1:
		return challenge.Single(faces[0].Metrics())
	default:
		return challenge.MultipleFaces()
	}
}
