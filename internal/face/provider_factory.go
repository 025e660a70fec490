package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/liveness/internal/audit"
	"github.com/saturnino-fabrica-de-software/liveness/internal/config"
	"github.com/saturnino-fabrica-de-software/liveness/internal/provider"
	"github.com/saturnino-fabrica-de-software/liveness/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/liveness/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/liveness/internal/provider/rekognition"
)

// ProviderType defines supported face detection provider types
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace provider (local, for dev/test)
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeRekognition is the AWS Rekognition provider (cloud, for prod)
	ProviderTypeRekognition ProviderType = "rekognition"
	// ProviderTypeMock answers every frame with a frontal face (local demos, tests)
	ProviderTypeMock ProviderType = "mock"
)

// NewFaceProvider creates a FaceProvider instance based on configuration
//
// Environment variables:
//   - FACE_PROVIDER: "deepface", "rekognition" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5005")
//   - AWS_REGION: AWS region for Rekognition (default: "us-east-1")
//   - AWS_ACCESS_KEY_ID: AWS credentials (via AWS SDK credential chain)
//   - AWS_SECRET_ACCESS_KEY: AWS credentials (via AWS SDK credential chain)
func NewFaceProvider(ctx context.Context, cfg *config.Config, auditLogger audit.Logger) (provider.FaceProvider, error) {
	providerType := ProviderType(cfg.FaceProvider)

	switch providerType {
	case ProviderTypeRekognition:
		return createRekognitionProvider(ctx, cfg, auditLogger)

	case ProviderTypeDeepFace, "":
		// Default to DeepFace for dev/test environments
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s, %s)",
			cfg.FaceProvider, ProviderTypeDeepFace, ProviderTypeRekognition, ProviderTypeMock)
	}
}

// createRekognitionProvider creates an AWS Rekognition provider instance
func createRekognitionProvider(ctx context.Context, cfg *config.Config, auditLogger audit.Logger) (provider.FaceProvider, error) {
	rekogConfig := rekognition.DefaultConfig()
	if cfg.AWSRegion != "" {
		rekogConfig.Region = cfg.AWSRegion
	}
	rekogConfig.MirrorYaw = cfg.RekognitionMirrorYaw
	if cfg.MinFaceConfidence > 0 {
		rekogConfig.MinConfidence = cfg.MinFaceConfidence
	}

	var opts []rekognition.ProviderOption
	if auditLogger != nil {
		opts = append(opts, rekognition.WithAuditLogger(auditLogger))
	}

	prov, err := rekognition.NewProvider(ctx, rekogConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("create rekognition provider in %s: %w", rekogConfig.Region, err)
	}

	return prov, nil
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) provider.FaceProvider {
	deepfaceConfig := deepface.DefaultConfig()

	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceDetector != "" {
		deepfaceConfig.Detector = cfg.DeepFaceDetector
	}

	return deepface.NewProvider(deepfaceConfig)
}
