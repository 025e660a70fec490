package deepface

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/saturnino-fabrica-de-software/liveness/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels

	// yawGain converts the horizontal eye-midpoint offset (relative to half
	// the face width) into the sine of the head yaw
	yawGain = 2.0

	providerName = "deepface"
)

// Provider implements provider.FaceProvider using DeepFace API.
// DeepFace has no eye-state classifier, so LeftEyeOpenProbability is always nil
// and blink steps cannot be satisfied with this provider.
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// Name implements provider.FaceProvider
func (p *Provider) Name() string {
	return providerName
}

// DetectFaces detects faces and estimates pose and smile for each
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	imageBase64 := base64.StdEncoding.EncodeToString(image)

	resp, err := p.client.Analyze(ctx, imageBase64)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("detect faces: %w: %v", ErrInvalidImageFormat, err)
		}
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.FaceConfidence < p.client.config.MinFaceConfidence {
			continue
		}
		faces = append(faces, p.toDetectedFace(result))
	}

	return faces, nil
}

func (p *Provider) toDetectedFace(result AnalyzeResult) provider.DetectedFace {
	area := result.Region
	faceArea := float64(area.W * area.H)

	face := provider.DetectedFace{
		BoundingBox: provider.BoundingBox{
			X:      float64(area.X),
			Y:      float64(area.Y),
			Width:  float64(area.W),
			Height: float64(area.H),
		},
		Confidence:   calculateConfidence(faceArea),
		QualityScore: calculateQuality(faceArea),
	}

	if yaw, ok := estimateYaw(area); ok {
		if p.client.config.MirrorYaw {
			yaw = -yaw
		}
		face.Pose = &provider.Pose{Yaw: yaw}
	}

	if happy, ok := result.Emotion["happy"]; ok {
		smile := math.Max(0, math.Min(1, happy/100.0))
		face.SmileProbability = &smile
	}

	return face
}

// estimateYaw approximates the head yaw in degrees from where the eyes sit
// inside the face region. Turning to the person's own left moves the eye
// midpoint towards the right of the (unmirrored) image, giving positive yaw.
func estimateYaw(area FacialArea) (float64, bool) {
	if area.LeftEye == nil || area.RightEye == nil || area.W <= 0 {
		return 0, false
	}

	eyeMidX := float64(area.LeftEye[0]+area.RightEye[0]) / 2.0
	centerX := float64(area.X) + float64(area.W)/2.0
	offset := (eyeMidX - centerX) / (float64(area.W) / 2.0)

	sin := math.Max(-1, math.Min(1, offset*yawGain))
	return math.Asin(sin) * 180 / math.Pi, true
}

// calculateConfidence estimates confidence based on face area
// DeepFace doesn't return confidence, so we estimate based on face size
// Larger faces are more likely to be accurately detected
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5 // Low confidence for very small faces
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// calculateQuality estimates quality score based on face area
func calculateQuality(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.4 // Low quality for very small faces
	}
	// Scale from 0.6 to 0.95 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.6 + (normalized * 0.35)
}

// Ensure Provider implements provider.FaceProvider
var _ provider.FaceProvider = (*Provider)(nil)
