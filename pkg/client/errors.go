package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrUnsupportedMethod is returned for HTTP methods other than GET and
	// POST. Never retried and no request is sent.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")

	// ErrContextCancelled is returned when the context is cancelled during
	// a retry backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassUnauthorized represents 401 responses. A re-login has
	// already run by the time the error surfaces, so a retry carries a
	// fresh token.
	ErrorClassUnauthorized ErrorClass = "unauthorized"

	// ErrorClassRateLimit represents 429 throttling responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassClient represents any other non-success status.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNetwork represents connection-level failures.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError represents a Graph request failure with classification and the
// raw response body for diagnostics.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graph %s error (status %d): %v", e.Class, e.StatusCode, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("graph %s error (status %d): %s", e.Class, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("graph %s error (status %d)", e.Class, e.StatusCode)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its
// classification.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassUnauthorized:
		// Retried so the replayed request picks up the refreshed token
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassServer:
		return true
	case ErrorClassNetwork:
		return true
	case ErrorClassClient:
		// Other non-success statuses are terminal
		return false
	default:
		return false
	}
}

// classOf extracts the error class from an error chain, defaulting to
// network for untyped errors.
func classOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ErrorClassNetwork
}
