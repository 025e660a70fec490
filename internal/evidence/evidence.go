// Package evidence turns raw camera frames into the oriented, displayable
// JPEG images handed back as liveness proof.
package evidence

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/liveness/internal/challenge"
	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
)

const (
	// MinFrameSize abaixo disso nenhum detector consegue trabalhar
	MinFrameSize = 100

	// DefaultMaxFrameSize matches the Rekognition inline image limit
	DefaultMaxFrameSize = 5 * 1024 * 1024

	// MaxFramePixels bounds the decoded bitmap. Compressed size alone does not:
	// a flat PNG of a few hundred KB can decode to gigabytes.
	MaxFramePixels = 4096 * 4096

	// JPEGQuality used when re-encoding evidence
	JPEGQuality = 90

	contentTypeJPEG = "image/jpeg"
)

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Frame is one camera frame as sent by the client.
// Rotation is the clockwise rotation, in degrees, needed to display the frame upright.
type Frame struct {
	Data       []byte
	Rotation   int
	ReceivedAt time.Time
}

// ValidRotation reports whether r is a right-angle rotation
func ValidRotation(r int) bool {
	switch r {
	case 0, 90, 180, 270:
		return true
	default:
		return false
	}
}

// Validate checks size, rotation and that the payload is a supported image.
// It returns the detected MIME type.
func Validate(f Frame, maxSize int) (string, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	if len(f.Data) < MinFrameSize {
		return "", domain.ErrInvalidImage.WithMessage("Frame is too small to be an image")
	}
	if len(f.Data) > maxSize {
		return "", domain.ErrImageTooLarge
	}
	if !ValidRotation(f.Rotation) {
		return "", domain.ErrInvalidRotation
	}

	mime := mimetype.Detect(f.Data)
	if !allowedMIME[mime.String()] {
		return "", domain.ErrInvalidImage.WithMessage(fmt.Sprintf("Unsupported frame format %s", mime.String()))
	}

	// Only the header is read here; nothing is decoded yet
	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return "", domain.ErrInvalidImage.WithError(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", domain.ErrInvalidImage.WithMessage("Frame has no pixels")
	}
	if cfg.Width*cfg.Height > MaxFramePixels {
		return "", domain.ErrImageTooLarge.WithMessage(
			fmt.Sprintf("Frame of %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxFramePixels))
	}

	return mime.String(), nil
}

// Capture decodes the frame, applies its rotation and re-encodes it as JPEG
func Capture(f Frame) (challenge.EvidenceFrame, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return challenge.EvidenceFrame{}, domain.ErrInvalidImage.WithError(err)
	}

	img = rotate(img, f.Rotation)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return challenge.EvidenceFrame{}, fmt.Errorf("encode evidence: %w", err)
	}

	capturedAt := f.ReceivedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	bounds := img.Bounds()
	return challenge.EvidenceFrame{
		Image:       buf.Bytes(),
		ContentType: contentTypeJPEG,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		CapturedAt:  capturedAt,
	}, nil
}

// Capturer defers decoding until the engine actually needs the image
func Capturer(f Frame) challenge.CaptureFunc {
	return func() (challenge.EvidenceFrame, error) {
		return Capture(f)
	}
}

// imaging rotates counter-clockwise, clients report clockwise
func rotate(img image.Image, degrees int) image.Image {
	switch degrees {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// DetectorInput returns bytes a detection provider can read, upright.
// Detectors measure yaw along the image X axis, so rotated frames are turned
// the same way as the evidence. WebP is converted to JPEG since Rekognition
// only accepts JPEG and PNG.
func DetectorInput(f Frame, mime string) ([]byte, error) {
	if mime != "image/webp" && f.Rotation == 0 {
		return f.Data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, rotate(img, f.Rotation), imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("prepare detector input: %w", err)
	}
	return buf.Bytes(), nil
}
