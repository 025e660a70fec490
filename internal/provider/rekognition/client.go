package rekognition

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/smithy-go"
)

const (
	errCodeAccessDenied       = "AccessDeniedException"
	errCodeInvalidParameter   = "InvalidParameterException"
	errCodeInvalidImageFormat = "InvalidImageFormatException"
	errCodeImageTooLarge      = "ImageTooLargeException"
	errCodeThroughputExceeded = "ProvisionedThroughputExceededException"
	errCodeThrottling         = "ThrottlingException"
	errCodeUnrecognizedClient = "UnrecognizedClientException"
)

// RekognitionAPI is the subset of the AWS client the provider calls
type RekognitionAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// Client wraps the AWS Rekognition client
type Client struct {
	rekognition RekognitionAPI
	config      Config
}

// NewClient creates a new Rekognition client with the provided configuration
// It uses the AWS default credential chain to authenticate
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	// Load AWS SDK config using default credential chain
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		rekognition: rekognition.NewFromConfig(awsCfg),
		config:      cfg,
	}, nil
}

// NewClientWithAPI builds a client around an existing API implementation
func NewClientWithAPI(api RekognitionAPI, cfg Config) *Client {
	return &Client{
		rekognition: api,
		config:      cfg,
	}
}

// ParseAPIError maps AWS error codes to package sentinels
func ParseAPIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeAccessDenied, errCodeUnrecognizedClient:
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.ErrorMessage())
		case errCodeInvalidParameter, errCodeInvalidImageFormat, errCodeImageTooLarge:
			return fmt.Errorf("%w: %s", ErrInvalidImage, apiErr.ErrorMessage())
		case errCodeThroughputExceeded, errCodeThrottling:
			return fmt.Errorf("%w: %s", ErrThrottled, apiErr.ErrorMessage())
		}
	}

	return err
}
