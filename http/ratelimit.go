package http

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Well-known hosts with their own default rates.
const (
	// YouTubeDataAPIHost serves the YouTube Data API v3.
	YouTubeDataAPIHost = "youtube.googleapis.com"
	// LegacyGoogleAPIsHost is the older YouTube Data API host.
	LegacyGoogleAPIsHost = "www.googleapis.com"
	// OrbitHost serves the Orbit REST API.
	OrbitHost = "app.orbit.love"
)

// Backoff defaults applied after a 429/503.
const (
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 60 * time.Second
	BackoffMultiplier     = 2.0
	BackoffCooldownPeriod = 5 * time.Minute
	MinRPSMultiplier      = 0.25
)

// RateLimiterConfig defines rate limiting behavior.
type RateLimiterConfig struct {
	// DefaultRPS applies to hosts without an entry in HostRates. 0 means unlimited.
	DefaultRPS float64
	// HostRates maps host names to requests per second.
	HostRates map[string]float64
	// EnableDynamicBackoff reduces a host's rate after rate limit responses.
	EnableDynamicBackoff bool
	// InitialBackoff is the first backoff after a rate limit response.
	InitialBackoff time.Duration
	// MaxBackoff caps the backoff.
	MaxBackoff time.Duration
}

// DefaultRateLimiterConfig returns defaults aligned with the YouTube Data API
// and Orbit's documented limit of 120 requests per minute.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		HostRates: map[string]float64{
			YouTubeDataAPIHost:   5.0,
			LegacyGoogleAPIsHost: 5.0,
			OrbitHost:            2.0,
		},
		EnableDynamicBackoff: true,
		InitialBackoff:       DefaultInitialBackoff,
		MaxBackoff:           DefaultMaxBackoff,
	}
}

// BackoffState tracks rate limit backoff for a host.
type BackoffState struct {
	CurrentBackoff    time.Duration
	LastError         time.Time
	ConsecutiveErrors int
	OriginalRPS       float64
}

// RateLimiter manages per-host request rate limiting using a token bucket.
type RateLimiter struct {
	limiters     map[string]*rate.Limiter
	backoffState map[string]*BackoffState
	mu           sync.Mutex
	config       RateLimiterConfig
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.HostRates == nil {
		cfg.HostRates = make(map[string]float64)
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	return &RateLimiter{
		limiters:     make(map[string]*rate.Limiter),
		backoffState: make(map[string]*BackoffState),
		config:       cfg,
	}
}

// Wait blocks until the host's limiter allows a request or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}
	limiter := rl.getLimiter(extractDomain(urlStr))
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// getLimiter returns the limiter for a host, creating one if necessary.
// Returns nil for unlimited hosts.
func (rl *RateLimiter) getLimiter(domain string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters[domain]; ok {
		return limiter
	}
	rps := rl.rpsFor(domain)
	if rps <= 0 {
		return nil
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[domain] = limiter
	return limiter
}

// rpsFor must be called with the mutex held.
func (rl *RateLimiter) rpsFor(domain string) float64 {
	if rps, ok := rl.config.HostRates[domain]; ok {
		return rps
	}
	return rl.config.DefaultRPS
}

// RecordRateLimitError records a 429/503 for the URL's host and returns the
// backoff to honour before the next request.
func (rl *RateLimiter) RecordRateLimitError(urlStr string, retryAfter time.Duration) time.Duration {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		if retryAfter > 0 {
			return retryAfter
		}
		return DefaultInitialBackoff
	}

	domain := extractDomain(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoffState[domain]
	if !ok {
		state = &BackoffState{
			CurrentBackoff: rl.config.InitialBackoff,
			OriginalRPS:    rl.rpsFor(domain),
		}
		rl.backoffState[domain] = state
	} else {
		state.CurrentBackoff = time.Duration(float64(state.CurrentBackoff) * BackoffMultiplier)
		if state.CurrentBackoff > rl.config.MaxBackoff {
			state.CurrentBackoff = rl.config.MaxBackoff
		}
	}
	state.LastError = time.Now()
	state.ConsecutiveErrors++

	if retryAfter > state.CurrentBackoff {
		state.CurrentBackoff = retryAfter
	}

	// 1 error: 75%, 2 errors: 50%, 3+ errors: 25% of the configured rate.
	if limiter, ok := rl.limiters[domain]; ok && state.OriginalRPS > 0 {
		factor := 1.0 - 0.25*float64(state.ConsecutiveErrors)
		if factor < MinRPSMultiplier {
			factor = MinRPSMultiplier
		}
		limiter.SetLimit(rate.Limit(state.OriginalRPS * factor))
	}

	return state.CurrentBackoff
}

// RecordSuccess winds backoff down after a successful request and restores
// the configured rate once the host has recovered.
func (rl *RateLimiter) RecordSuccess(urlStr string) {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		return
	}

	domain := extractDomain(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoffState[domain]
	if !ok {
		return
	}
	state.ConsecutiveErrors--
	if state.ConsecutiveErrors > 0 && time.Since(state.LastError) < BackoffCooldownPeriod {
		return
	}
	if limiter, ok := rl.limiters[domain]; ok && state.OriginalRPS > 0 {
		limiter.SetLimit(rate.Limit(state.OriginalRPS))
	}
	delete(rl.backoffState, domain)
}

// GetBackoffState returns a copy of the backoff state for the URL's host, or nil.
func (rl *RateLimiter) GetBackoffState(urlStr string) *BackoffState {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoffState[extractDomain(urlStr)]
	if !ok {
		return nil
	}
	cp := *state
	return &cp
}

// WaitForBackoff waits for the current backoff period to expire.
// Returns immediately if the host is not backed off.
func (rl *RateLimiter) WaitForBackoff(ctx context.Context, urlStr string) error {
	state := rl.GetBackoffState(urlStr)
	if state == nil {
		return nil
	}
	remaining := time.Until(state.LastError.Add(state.CurrentBackoff))
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// extractDomain extracts the host (without port) from a URL string.
func extractDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
