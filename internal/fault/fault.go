// Package fault defines the error taxonomy shared by the YouTube and Orbit layers.
package fault

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match them with errors.Is.
var (
	// ErrInvalidInput marks a missing or malformed caller-supplied argument.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks an entity that does not exist upstream.
	ErrNotFound = errors.New("not found")
	// ErrUpstream marks a transport failure or an unexpected upstream response.
	ErrUpstream = errors.New("upstream error")
)

// UpstreamError describes a failed call to a remote service.
// It matches both ErrUpstream and the underlying cause:
//
//	var upErr *fault.UpstreamError
//	if errors.As(err, &upErr) {
//		fmt.Printf("%s %s failed with %d: %s\n", upErr.Service, upErr.Op, upErr.StatusCode, upErr.Body)
//	}
type UpstreamError struct {
	// Service is the remote service ("youtube", "orbit").
	Service string
	// Op is the operation that failed (e.g. "commentThreads.list").
	Op string
	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int
	// Body is the upstream response body or message, if any.
	Body string
	// Err is the underlying error.
	Err error
}

// Error returns a string representation of the upstream error.
func (e *UpstreamError) Error() string {
	msg := e.Service + ": " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes ErrUpstream and the cause to errors.Is and errors.As.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

// InvalidInput returns an error wrapping ErrInvalidInput with a formatted message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
