package http

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errTransient = errors.New("connection reset")

func openCircuit(t *testing.T, cb *CircuitBreaker, host string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		cb.RecordFailure(host, errTransient)
	}
	if cb.GetState(host) != CircuitOpen {
		t.Fatalf("circuit for %s should be open after %d failures", host, n)
	}
}

func TestCircuitBreakerClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if state := cb.GetState(OrbitHost); state != CircuitClosed {
		t.Errorf("initial state = %v, want closed", state)
	}
	if err := cb.Allow(OrbitHost); err != nil {
		t.Errorf("Allow() in closed state returned error: %v", err)
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second})

	cb.RecordFailure(OrbitHost, errTransient)
	cb.RecordFailure(OrbitHost, errTransient)
	if cb.GetState(OrbitHost) != CircuitClosed {
		t.Error("circuit should still be closed after 2 failures")
	}

	cb.RecordFailure(OrbitHost, errTransient)
	if cb.GetState(OrbitHost) != CircuitOpen {
		t.Error("circuit should be open after 3 failures")
	}
	if err := cb.Allow(OrbitHost); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	tests := []struct {
		name    string
		trialOK bool
		want    CircuitState
	}{
		{"trial request succeeds", true, CircuitClosed},
		{"trial request fails", false, CircuitOpen},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: 20 * time.Millisecond})
			openCircuit(t, cb, YouTubeDataAPIHost, 2)

			time.Sleep(30 * time.Millisecond)
			if cb.GetState(YouTubeDataAPIHost) != CircuitHalfOpen {
				t.Fatal("circuit should report half-open after the recovery timeout")
			}
			if err := cb.Allow(YouTubeDataAPIHost); err != nil {
				t.Fatalf("trial request rejected: %v", err)
			}
			if err := cb.Allow(YouTubeDataAPIHost); !errors.Is(err, ErrCircuitOpen) {
				t.Errorf("second half-open request = %v, want ErrCircuitOpen", err)
			}

			if tc.trialOK {
				cb.RecordSuccess(YouTubeDataAPIHost)
			} else {
				cb.RecordFailure(YouTubeDataAPIHost, errTransient)
			}
			if got := cb.GetState(YouTubeDataAPIHost); got != tc.want {
				t.Errorf("state after trial request = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	cb.RecordFailure(OrbitHost, errTransient)
	cb.RecordFailure(OrbitHost, errTransient)
	cb.RecordSuccess(OrbitHost)
	cb.RecordFailure(OrbitHost, errTransient)
	cb.RecordFailure(OrbitHost, errTransient)

	if cb.GetState(OrbitHost) != CircuitClosed {
		t.Error("a success should reset the consecutive failure count")
	}
}

func TestCircuitBreakerIgnoresPermanentErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		IsTransientError: IsTransientHTTPError,
	})

	for i := 0; i < 5; i++ {
		cb.RecordFailure(OrbitHost, &HTTPError{StatusCode: 422})
	}
	if cb.GetState(OrbitHost) != CircuitClosed {
		t.Error("circuit should remain closed for 4xx responses")
	}

	cb.RecordFailure(OrbitHost, &HTTPError{StatusCode: 502})
	cb.RecordFailure(OrbitHost, &RateLimitError{StatusCode: 429})
	if cb.GetState(OrbitHost) != CircuitOpen {
		t.Error("circuit should open for 5xx and rate limit responses")
	}
}

func TestCircuitBreakerPerHostIsolation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	openCircuit(t, cb, YouTubeDataAPIHost, 2)

	if cb.GetState(OrbitHost) != CircuitClosed {
		t.Error("orbit circuit should be unaffected")
	}
	if err := cb.Allow(OrbitHost); err != nil {
		t.Errorf("Allow(%s) returned error: %v", OrbitHost, err)
	}
}

func TestCircuitBreakerNilSafety(t *testing.T) {
	var cb *CircuitBreaker

	if err := cb.Allow(OrbitHost); err != nil {
		t.Errorf("nil Allow() returned error: %v", err)
	}
	cb.RecordSuccess(OrbitHost)
	cb.RecordFailure(OrbitHost, errTransient)
	if state := cb.GetState(OrbitHost); state != CircuitClosed {
		t.Errorf("nil GetState() = %v, want closed", state)
	}
}

func TestNewCircuitBreakerFillsDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	want := DefaultCircuitBreakerConfig()
	if cb.config.FailureThreshold != want.FailureThreshold ||
		cb.config.RecoveryTimeout != want.RecoveryTimeout ||
		cb.config.HalfOpenMaxRequests != want.HalfOpenMaxRequests {
		t.Errorf("config = %+v, want defaults", cb.config)
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestIsTransientHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &RateLimitError{StatusCode: 429}, true},
		{"500", &HTTPError{StatusCode: 500}, true},
		{"503", &HTTPError{StatusCode: 503}, true},
		{"400", &HTTPError{StatusCode: 400}, false},
		{"422", &HTTPError{StatusCode: 422}, false},
		{"network", fmt.Errorf("%w: dial tcp: refused", ErrRequestFailed), true},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{"circuit open", ErrCircuitOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientHTTPError(tt.err); got != tt.want {
				t.Errorf("IsTransientHTTPError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
