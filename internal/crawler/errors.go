package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// Page-level failure errors.
var (
	// ErrTransport is returned when a page could not be fetched.
	// Network errors and retryable HTTP statuses are retried with backoff.
	ErrTransport = errors.New("transport error")

	// ErrParse is returned when a fetched page could not be parsed.
	// The page is skipped.
	ErrParse = errors.New("parse error")

	// ErrCapReached signals that a record cap stopped collection.
	// It is a stop reason, not a failure, and never escapes a session.
	ErrCapReached = errors.New("record cap reached")

	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// StatusError is returned when the server answers with a non-success status.
// It unwraps to ErrTransport.
type StatusError struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Unwrap returns ErrTransport.
func (e *StatusError) Unwrap() error {
	return ErrTransport
}

// Retryable reports whether the status may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// isRetryable reports whether a fetch error is worth another attempt.
func isRetryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Retryable()
	}
	return errors.Is(err, ErrTransport)
}
