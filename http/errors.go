package http

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// HTTPError indicates a non-success HTTP response.
type HTTPError struct {
	// URL is the requested URL.
	URL string
	// StatusCode is the HTTP status code.
	StatusCode int
}

// Error returns a string representation of the HTTP error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http status %d", e.URL, e.StatusCode)
}

// IsTransient reports whether an error is likely to succeed on retry:
// network errors, timeouts, 429 and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unclassified errors (connection resets wrapped by url.Error, etc.)
	// are treated as transient.
	return true
}
