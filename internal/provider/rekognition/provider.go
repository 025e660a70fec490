package rekognition

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/liveness/internal/audit"
	"github.com/saturnino-fabrica-de-software/liveness/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100

	providerName = "rekognition"
)

// Provider implements the provider.FaceProvider interface using AWS Rekognition DetectFaces
type Provider struct {
	client      *Client
	auditLogger audit.Logger
}

// ProviderOption defines optional configuration for Provider
type ProviderOption func(*Provider)

// WithAuditLogger sets the audit logger for the provider
func WithAuditLogger(logger audit.Logger) ProviderOption {
	return func(p *Provider) {
		p.auditLogger = logger
	}
}

// Ensure Provider implements provider.FaceProvider interface at compile time
var _ provider.FaceProvider = (*Provider)(nil)

// NewProvider creates a new Rekognition provider using the default AWS credential chain
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}

	return NewProviderWithClient(client, opts...), nil
}

// NewProviderWithClient creates a provider around an existing client
func NewProviderWithClient(client *Client, opts ...ProviderOption) *Provider {
	p := &Provider{client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements provider.FaceProvider
func (p *Provider) Name() string {
	return providerName
}

// logAudit logs an audit event if an audit logger is configured
// Audit failure does not affect the operation (fire-and-forget)
func (p *Provider) logAudit(ctx context.Context, success bool, err error, metadata map[string]string) {
	if p.auditLogger == nil {
		return
	}

	event := audit.Event{
		EventType: audit.EventFaceDetected,
		Provider:  providerName,
		Success:   success,
		Metadata:  metadata,
	}

	if err != nil {
		event.Error = err.Error()
	}

	_ = p.auditLogger.Log(ctx, event)
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}
	if len(image) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(image), minImageSize)
	}
	if len(image) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(image), maxImageSize)
	}
	return nil
}

// DetectFaces detects faces in an image using AWS Rekognition DetectFaces API
// Returns an empty slice if no faces are detected (not an error)
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	if err := validateImage(image); err != nil {
		p.logAudit(ctx, false, err, map[string]string{
			"image_size": strconv.Itoa(len(image)),
		})
		return nil, err
	}

	input := &rekognition.DetectFacesInput{
		Image: &types.Image{
			Bytes: image,
		},
		Attributes: []types.Attribute{types.AttributeAll},
	}

	output, err := p.client.rekognition.DetectFaces(ctx, input)
	if err != nil {
		err = ParseAPIError(err)
		p.logAudit(ctx, false, err, map[string]string{
			"image_size": strconv.Itoa(len(image)),
		})
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if float64(aws.ToFloat32(detail.Confidence)) < p.client.config.MinConfidence {
			continue
		}
		faces = append(faces, p.toDetectedFace(detail))
	}

	p.logAudit(ctx, true, nil, map[string]string{
		"faces_count": strconv.Itoa(len(faces)),
		"image_size":  strconv.Itoa(len(image)),
	})

	return faces, nil
}

func (p *Provider) toDetectedFace(detail types.FaceDetail) provider.DetectedFace {
	face := provider.DetectedFace{
		Confidence:   float64(aws.ToFloat32(detail.Confidence)),
		QualityScore: calculateQualityScore(detail.Quality),
	}

	if box := detail.BoundingBox; box != nil {
		face.BoundingBox = provider.BoundingBox{
			X:      float64(aws.ToFloat32(box.Left)),
			Y:      float64(aws.ToFloat32(box.Top)),
			Width:  float64(aws.ToFloat32(box.Width)),
			Height: float64(aws.ToFloat32(box.Height)),
		}
	}

	if pose := detail.Pose; pose != nil {
		yaw := float64(aws.ToFloat32(pose.Yaw))
		if p.client.config.MirrorYaw {
			yaw = -yaw
		}
		face.Pose = &provider.Pose{
			Pitch: float64(aws.ToFloat32(pose.Pitch)),
			Roll:  float64(aws.ToFloat32(pose.Roll)),
			Yaw:   yaw,
		}
	}

	if smile := detail.Smile; smile != nil {
		face.SmileProbability = probability(smile.Value, smile.Confidence)
	}

	// Rekognition reports a single EyesOpen attribute for both eyes
	if eyes := detail.EyesOpen; eyes != nil {
		open := probability(eyes.Value, eyes.Confidence)
		face.LeftEyeOpenProbability = open
		face.RightEyeOpenProbability = open
	}

	return face
}

// probability turns a boolean attribute and its confidence (0-100) into
// the probability that the attribute holds
func probability(value bool, confidence *float32) *float64 {
	if confidence == nil {
		return nil
	}
	c := float64(*confidence) / 100.0
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	if !value {
		c = 1 - c
	}
	return &c
}

// calculateQualityScore computes an overall quality score from Rekognition quality metrics
// Returns a score between 0.0 (poor quality) and 1.0 (excellent quality)
func calculateQualityScore(quality *types.ImageQuality) float64 {
	if quality == nil {
		return 0.0
	}

	// AWS Rekognition provides brightness and sharpness scores (0-100)
	brightness := float64(aws.ToFloat32(quality.Brightness)) / 100.0
	sharpness := float64(aws.ToFloat32(quality.Sharpness)) / 100.0

	// Sharpness matters more than brightness for pose estimation
	return brightness*0.3 + sharpness*0.7
}
