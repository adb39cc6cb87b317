package lynkapi

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrTransport        = errors.New("lynk api: host unreachable or transport failure")
	ErrUnexpectedStatus = errors.New("lynk api: non-success status")
	ErrBadResponse      = errors.New("lynk api: invalid response format or malformed data")

	// ErrInvalidEvent is returned by Track for events that are dropped locally.
	ErrInvalidEvent = errors.New("lynk api: invalid tracking event")
	// ErrClosed is returned by Track after Destroy or Close.
	ErrClosed = errors.New("lynk api: client destroyed")
)

// APIError wraps a sentinel with the failing operation and HTTP status.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("lynk api: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Sentinel, e.Err}
	}
	return []error{e.Sentinel}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
