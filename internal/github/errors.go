package github

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoCredentials is returned when an API call is attempted with
	// neither a custom token nor a pool installed.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrBadPath flags an API path that cannot be resolved.
	ErrBadPath = errors.New("bad api path")
	// ErrUnexpectedResponse flags an API result that is neither a scalar
	// nor a collection.
	ErrUnexpectedResponse = errors.New("unexpected api response")
	// ErrRetryExhausted is returned when the bounded rotation or 202-retry
	// loop runs out of attempts.
	ErrRetryExhausted = errors.New("retry limit exhausted")
)

// RateLimitError signals that the authenticated credential exhausted its
// quota for the requested scope. Reset is the epoch second at which the
// quota returns to full.
type RateLimitError struct {
	Reset     int64
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limit exceeded, resets at %s", time.Unix(e.Reset, 0).UTC().Format(time.RFC3339))
}

// APIError is a non-2xx response that is not a rate-limit signal.
type APIError struct {
	Status  int
	Message string
	URL     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s returned %d: %s", e.URL, e.Status, e.Message)
}
