package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so wrapped copies
// created by WithError still satisfy errors.Is against the predefined value.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// WithMessage returns a copy with a more specific message
func (e *AppError) WithMessage(msg string) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    msg,
		StatusCode: e.StatusCode,
		Err:        e.Err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing API key",
		StatusCode: 401,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrImageTooLarge = &AppError{
		Code:       "IMAGE_TOO_LARGE",
		Message:    "Image exceeds the maximum frame size",
		StatusCode: 413,
	}

	ErrInvalidAPIKeyFormat = &AppError{
		Code:       "INVALID_API_KEY_FORMAT",
		Message:    "Invalid API key format",
		StatusCode: 401,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	// Liveness session errors
	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Liveness session not found",
		StatusCode: 404,
	}

	ErrSessionFinished = &AppError{
		Code:       "SESSION_FINISHED",
		Message:    "Liveness session already finished",
		StatusCode: 409,
	}

	ErrSessionExpired = &AppError{
		Code:       "SESSION_EXPIRED",
		Message:    "Liveness session expired",
		StatusCode: 410,
	}

	ErrSessionInProgress = &AppError{
		Code:       "SESSION_IN_PROGRESS",
		Message:    "Liveness session has not finished yet",
		StatusCode: 409,
	}

	ErrInvalidPlan = &AppError{
		Code:       "INVALID_PLAN",
		Message:    "Challenge plan must list between 1 and 16 known steps",
		StatusCode: 422,
	}

	ErrFrameDropped = &AppError{
		Code:       "FRAME_DROPPED",
		Message:    "Another frame for this session is still being processed",
		StatusCode: 429,
	}

	ErrInvalidRotation = &AppError{
		Code:       "INVALID_ROTATION",
		Message:    "Rotation must be one of 0, 90, 180 or 270",
		StatusCode: 422,
	}

	ErrEvidenceNotFound = &AppError{
		Code:       "EVIDENCE_NOT_FOUND",
		Message:    "Session result is no longer available",
		StatusCode: 404,
	}
)
