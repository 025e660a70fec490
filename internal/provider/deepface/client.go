package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Config holds the configuration for the DeepFace client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Detector   string
	RetryCount int
	// RetryBase is the first backoff interval, doubled on every attempt
	RetryBase time.Duration
	// MinFaceConfidence discards regions DeepFace is not confident are faces (0-1)
	MinFaceConfidence float64
	// MirrorYaw flips the sign of the estimated yaw
	MirrorYaw bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:5005",
		Timeout:           30 * time.Second,
		Detector:          "retinaface",
		RetryCount:        3,
		RetryBase:         time.Second,
		MinFaceConfidence: 0.5,
	}
}

// maxBackoff is the maximum backoff duration for retries
const maxBackoff = 30 * time.Second

// Client is the HTTP client for DeepFace API
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new DeepFace client
func NewClient(config Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Analyze calls POST /analyze with the emotion action. Detection is not
// enforced, so a frame without faces yields results with zero confidence
// instead of an error.
func (c *Client) Analyze(ctx context.Context, imageBase64 string) (*AnalyzeResponse, error) {
	req := AnalyzeRequest{
		Img:              imageBase64,
		Actions:          []string{"emotion"},
		Detector:         c.config.Detector,
		EnforceDetection: false,
	}

	var resp AnalyzeResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/analyze", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *Client) backoff() retry.Backoff {
	base := c.config.RetryBase
	if base <= 0 {
		base = time.Second
	}
	retries := c.config.RetryCount
	if retries < 0 {
		retries = 0
	}

	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithMaxRetries(uint64(retries), b)
}

// doRequestWithRetry retries network failures and 5xx answers with exponential backoff.
// Client errors (4xx) are returned immediately.
func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := c.doRequest(ctx, method, path, body, result)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if isRetryable(err) {
		return fmt.Errorf("%w: %v", ErrDeepFaceUnavailable, err)
	}
	return err
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	// decoding failures are not transient
	return !errors.Is(err, ErrInvalidResponse)
}

// doRequest executes a single HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	url := c.config.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	return nil
}
