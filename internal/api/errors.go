package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound matches any *Error carrying HTTP 404.
var ErrNotFound = errors.New("not found")

// Error is returned by every Client call that fails.
// StatusCode is zero for transport failures (no HTTP response was received).
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0 && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	case e.StatusCode == 0:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Message, e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports ErrNotFound for 404 responses.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsTransport reports whether the request never produced an HTTP response.
func (e *Error) IsTransport() bool {
	return e.StatusCode == 0
}

// Message returns the text a user should see for err: the backend's
// {error} text for application errors, the full error otherwise.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && !apiErr.IsTransport() && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
