// Package errors defines the error taxonomy shared across the recommender:
// sentinel errors for each failure class plus an AppError wrapper carrying an
// HTTP status code for the serving layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed queries or identifiers. Surfaced to the
	// caller, never retried.
	ErrValidation = errors.New("invalid input")
	// ErrItemNotFound marks a reference to an item absent from the current
	// artifact version.
	ErrItemNotFound = errors.New("item not found")
	// ErrDimensionMismatch marks a query vector whose length differs from the
	// indexed dimension. Indicates a build/version inconsistency and is fatal
	// for the call.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmbeddingUnavailable marks a transient embedding-provider outage.
	// Retried with backoff during builds only.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrStaleVersion marks a reference to an artifact version no longer
	// retained. Callers should retry against the current version.
	ErrStaleVersion = errors.New("stale artifact version")
	// ErrNoVersion marks an operation attempted before any artifact version
	// has been published.
	ErrNoVersion = errors.New("no artifact version published")
	// ErrBuildFailed marks an index build aborted without publishing.
	ErrBuildFailed = errors.New("index build failed")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrInternal    = errors.New("internal error")
	ErrTimeout     = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel with a caller-facing message. The HTTP status is
// derived from the sentinel class.
func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusFor(sentinel),
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return New(sentinel, fmt.Sprintf(format, args...))
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return statusFor(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStaleVersion):
		return http.StatusConflict
	case errors.Is(err, ErrNoVersion), errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
