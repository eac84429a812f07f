// Package youtube reads channel uploads and their comment threads from the
// YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	ythttp "ytorbit/http"
	"ytorbit/internal/fault"
	"ytorbit/internal/retry"
)

// PageSize is the number of items requested per page, the API maximum.
const PageSize = 50

// ErrChannelNotFound is returned when a channel lookup matches nothing.
var ErrChannelNotFound = fmt.Errorf("youtube: channel %w", fault.ErrNotFound)

// Config configures a Service.
type Config struct {
	// APIKey is the YouTube Data API key. Required.
	APIKey string
	// HTTP, if set, carries rate limiting, circuit breaking and request
	// observation for every API call.
	HTTP *ythttp.Client
	// Retry controls retries of individual API calls. Nil uses retry.DefaultConfig.
	Retry *retry.Config
	// Logger receives progress lines. Zero value logs nothing.
	Logger zerolog.Logger
	// Endpoint overrides the API base URL, e.g. for tests.
	Endpoint string
	// Options are appended to the client options passed to youtube.NewService.
	Options []option.ClientOption
}

// Service reads channel uploads and comments.
type Service struct {
	api   *youtube.Service
	retry retry.Config
	log   zerolog.Logger
}

// NewService creates a Service backed by the official API client.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fault.InvalidInput("youtube: api key required")
	}

	var base http.RoundTripper = http.DefaultTransport
	if cfg.HTTP != nil {
		base = cfg.HTTP.Transport()
	}
	// option.WithAPIKey is ignored once a custom client is supplied, so the key
	// travels on the transport instead.
	hc := &http.Client{Transport: &keyTransport{key: cfg.APIKey, base: base}}

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, cfg.Options...)

	api, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	rc := retry.DefaultConfig()
	if cfg.Retry != nil {
		rc = *cfg.Retry
	}

	return &Service{api: api, retry: rc, log: cfg.Logger}, nil
}

type keyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	q := req.URL.Query()
	q.Set("key", t.key)
	req.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(req)
}

// call runs fn under the service's retry policy.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, s.retry, apiErrorClassifier, fn)
}

// apiErrorClassifier reports whether an API error is worth retrying:
// rate limits, 5xx and network failures are; quota exhaustion, other 4xx,
// circuit-open and context errors are not.
func apiErrorClassifier(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	if errors.Is(err, ythttp.ErrCircuitOpen) || errors.Is(err, fault.ErrUpstream) {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "quotaExceeded", "dailyLimitExceeded":
				return false
			case "rateLimitExceeded", "userRateLimitExceeded":
				return true
			}
		}
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}

	return true
}

// upstream wraps a failed API call. Context errors pass through unchanged.
func upstream(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("youtube: %s: %w", op, err)
	}
	ue := &fault.UpstreamError{Service: "youtube", Op: op, Err: err}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		ue.StatusCode = gerr.Code
		ue.Body = gerr.Message
		if ue.Body == "" {
			ue.Body = strings.TrimSpace(gerr.Body)
		}
	}
	return ue
}
