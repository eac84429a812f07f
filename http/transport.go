package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Transport returns a RoundTripper that applies the client's rate limiter,
// circuit breaker and observer to requests issued by another HTTP client,
// such as the generated Google API client. It does not retry; callers that
// want retries wrap their calls in retry.Do.
func (c *Client) Transport() http.RoundTripper {
	return &roundTripper{client: c}
}

type roundTripper struct {
	client *Client
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	c := rt.client
	urlStr := req.URL.String()
	domain := extractDomain(urlStr)

	if err := c.circuitBreaker.Allow(domain); err != nil {
		return nil, fmt.Errorf("%s: %w", domain, err)
	}
	if err := c.rateLimiter.WaitForBackoff(req.Context(), urlStr); err != nil {
		return nil, err
	}
	if err := c.rateLimiter.Wait(req.Context(), urlStr); err != nil {
		return nil, err
	}

	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	start := time.Now()
	resp, err := c.base.Transport.RoundTrip(req)
	if err != nil {
		c.observe(domain, 0, start)
		c.circuitBreaker.RecordFailure(domain, err)
		return nil, err
	}
	c.observe(domain, resp.StatusCode, start)

	switch {
	case IsRateLimitStatus(resp.StatusCode):
		retryAfter := parseRetryAfter(resp.Header)
		c.rateLimiter.RecordRateLimitError(urlStr, retryAfter)
		c.circuitBreaker.RecordFailure(domain, &RateLimitError{StatusCode: resp.StatusCode, RetryAfter: retryAfter})
	case IsServerError(resp.StatusCode):
		c.circuitBreaker.RecordFailure(domain, &HTTPError{StatusCode: resp.StatusCode})
	default:
		c.rateLimiter.RecordSuccess(urlStr)
		c.circuitBreaker.RecordSuccess(domain)
	}

	return resp, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
