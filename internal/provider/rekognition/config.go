package rekognition

// Config holds configuration for AWS Rekognition provider
type Config struct {
	// Region is the AWS region where Rekognition service will be used (e.g., "us-east-1")
	Region string

	// MirrorYaw flips the sign of the reported yaw. Rekognition reports yaw from
	// the camera's point of view; front cameras that do not mirror the preview
	// need the flip so that positive yaw means the user turned to their own left.
	MirrorYaw bool

	// MinConfidence discards detections below this confidence (0-100)
	MinConfidence float64
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:        "us-east-1",
		MirrorYaw:     false,
		MinConfidence: 90,
	}
}
