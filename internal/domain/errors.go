package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAdmissionRejected = errors.New("too many requests")
	ErrAuthRejected      = errors.New("unauthorized")
	ErrAuthNotConfigured = errors.New("server authentication is not configured")
	ErrValidation        = errors.New("validation failed")
	ErrUploadTooLarge    = errors.New("upload exceeds size limit")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrSourceUnreadable  = errors.New("source image is unreadable")
	ErrRenderFailure     = errors.New("render failed")
	ErrEmptyRender       = errors.New("render produced no data")
	ErrArchiveFailure    = errors.New("archive build failed")
)

// ValidationError carries a caller-facing message naming the violated constraint.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
