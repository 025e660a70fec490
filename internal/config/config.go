package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000" validate:"min=1,max=65535"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Provider
	FaceProvider         string  `envconfig:"FACE_PROVIDER" default:"deepface" validate:"oneof=deepface rekognition mock"`
	DeepFaceURL          string  `envconfig:"DEEPFACE_URL" default:"http://localhost:5005" validate:"omitempty,url"`
	DeepFaceDetector     string  `envconfig:"DEEPFACE_DETECTOR" default:"retinaface"`
	AWSRegion            string  `envconfig:"AWS_REGION" default:"us-east-1"`
	RekognitionMirrorYaw bool    `envconfig:"REKOGNITION_MIRROR_YAW" default:"false"`
	MinFaceConfidence    float64 `envconfig:"MIN_FACE_CONFIDENCE" default:"90" validate:"min=0,max=100"`

	// Liveness sessions
	SessionTTL             time.Duration `envconfig:"SESSION_TTL" default:"10m" validate:"gt=0"`
	SessionCleanupInterval time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"1m" validate:"gt=0"`
	ResultCacheSize        int           `envconfig:"RESULT_CACHE_SIZE" default:"1024" validate:"min=1"`
	ResultTTL              time.Duration `envconfig:"RESULT_TTL" default:"5m" validate:"gt=0"`
	MaxFrameSize           int           `envconfig:"MAX_FRAME_SIZE" default:"5242880" validate:"min=1024"`

	// Rate limiting (per API key)
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"600" validate:"min=1"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m" validate:"gt=0"`

	// Webhooks (optional)
	WebhookURL    string `envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET" validate:"required_with=WebhookURL"`

	// Security: SHA-256 hex digests of the accepted API keys (see cmd/genkey)
	APIKeyHashes []string `envconfig:"API_KEY_HASHES" required:"true" validate:"min=1,dive,len=64,hexadecimal"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges envconfig cannot express
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// WebhooksEnabled reports whether terminal events are delivered to WEBHOOK_URL
func (c *Config) WebhooksEnabled() bool {
	return c.WebhookURL != ""
}
