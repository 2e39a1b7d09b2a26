package compliance

import (
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/reviewgate/internal/model"
)

// Gate denial errors. A *DeniedError returned by the gate unwraps to one of
// these, so callers can use errors.Is.
var (
	// ErrRobotsExcluded is returned when robots.txt disallows the path.
	// It is terminal for the target and must not be retried.
	ErrRobotsExcluded = errors.New(model.ReasonRobotsExcluded)

	// ErrRateLimited is returned when a per-window cap is reached.
	// It is retryable after a backoff.
	ErrRateLimited = errors.New(model.ReasonRateLimited)

	// ErrInvalidURL is returned when a URL cannot be parsed or has no host.
	ErrInvalidURL = errors.New("invalid url")
)

// DeniedError describes why the gate refused a request.
type DeniedError struct {
	// Reason is the machine-readable reason (robots_excluded, rate_limited).
	Reason string

	// Domain is the domain key the decision was made for.
	Domain string

	// URL is the requested URL, set for robots decisions.
	URL string

	// Window is the window whose cap was reached, set for rate limiting.
	Window time.Duration

	// RetryAfter estimates when the window will have room again.
	RetryAfter time.Duration

	err error
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("request denied (%s): %s", e.Reason, e.URL)
	}
	if e.Window > 0 {
		return fmt.Sprintf("request denied (%s): %s reached its %s cap, retry after %s",
			e.Reason, e.Domain, e.Window, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("request denied (%s): %s", e.Reason, e.Domain)
}

// Unwrap returns the sentinel error for the reason.
func (e *DeniedError) Unwrap() error {
	return e.err
}

// DenialReason returns the reason of a gate denial, or "" if err is not one.
func DenialReason(err error) string {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Reason
	}
	return ""
}
