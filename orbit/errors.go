package orbit

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	ythttp "ytorbit/http"
	"ytorbit/internal/fault"
)

// Kind classifies a failed submission.
type Kind int

const (
	// KindTransport means no HTTP error response was received: network
	// failure, open circuit or rate limiting that outlasted the retries.
	// It aborts a batch.
	KindTransport Kind = iota
	// KindDuplicate means Orbit already holds an activity with this key.
	KindDuplicate
	// KindStructured means Orbit rejected the activity for another reason.
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindDuplicate:
		return "duplicate"
	case KindStructured:
		return "structured"
	default:
		return "transport"
	}
}

// SubmitError describes one activity Orbit did not accept.
type SubmitError struct {
	Kind       Kind
	Key        string
	StatusCode int
	// Detail is the error payload Orbit returned, or the transport error text.
	Detail string
	Err    error
}

func (e *SubmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("orbit: activity %s: %s error (status %d): %s", e.Key, e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("orbit: activity %s: %s error: %s", e.Key, e.Kind, e.Detail)
}

// Unwrap exposes the cause. Transport failures also match fault.ErrUpstream.
func (e *SubmitError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind == KindTransport {
		errs = append(errs, fault.ErrUpstream)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// classify turns an error from the HTTP client into a SubmitError.
func classify(key string, err error) *SubmitError {
	var httpErr *ythttp.HTTPError
	if !errors.As(err, &httpErr) {
		return &SubmitError{Kind: KindTransport, Key: key, Detail: err.Error(), Err: err}
	}

	payload := parseErrorPayload(httpErr.Body)
	if payload.detail == "" {
		payload.detail = http.StatusText(httpErr.StatusCode)
	}
	kind := KindStructured
	if payload.duplicateKey {
		kind = KindDuplicate
	}
	return &SubmitError{
		Kind:       kind,
		Key:        key,
		StatusCode: httpErr.StatusCode,
		Detail:     payload.detail,
		Err:        err,
	}
}

// IsTransientError is the circuit breaker classifier for clients that talk
// to Orbit. A response carrying Orbit's error envelope never counts; other
// errors follow ythttp.IsTransientHTTPError.
func IsTransientError(err error) bool {
	var httpErr *ythttp.HTTPError
	if errors.As(err, &httpErr) && parseErrorPayload(httpErr.Body).envelope {
		return false
	}
	return ythttp.IsTransientHTTPError(err)
}

type errorPayload struct {
	detail       string
	duplicateKey bool
	// envelope is set when the body is an Orbit {"errors":...} or
	// {"error":...} object.
	envelope bool
}

// parseErrorPayload reads Orbit's error body, usually
// {"errors":{"key":["has already been taken"]}}.
func parseErrorPayload(body []byte) errorPayload {
	body = bytes.TrimSpace(body)
	var envelope struct {
		Errors json.RawMessage `json:"errors"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errorPayload{detail: truncate(string(body))}
	}

	raw := envelope.Errors
	if len(raw) == 0 {
		raw = envelope.Error
	}
	if len(raw) == 0 {
		return errorPayload{detail: truncate(string(body))}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil {
		_, dup := fields["key"]
		return errorPayload{detail: string(raw), duplicateKey: dup, envelope: true}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return errorPayload{detail: text, envelope: true}
	}
	return errorPayload{detail: string(raw), envelope: true}
}

func truncate(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
