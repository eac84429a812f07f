package orbit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	ythttp "ytorbit/http"
	"ytorbit/internal/fault"
)

// DefaultBaseURL is the Orbit REST API root.
const DefaultBaseURL = "https://app.orbit.love/api/v1"

// Config configures a Client.
type Config struct {
	WorkspaceID string
	APIKey      string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// HTTP defaults to a client built from ythttp.DefaultConfig with
	// IsTransientError as its circuit breaker classifier.
	HTTP   *ythttp.Client
	Logger zerolog.Logger
}

// Client posts activities to one Orbit workspace.
type Client struct {
	http        *ythttp.Client
	endpoint    string
	host        string
	workspaceID string
	headers     map[string]string
	log         zerolog.Logger
}

// NewClient creates a Client for the configured workspace.
func NewClient(cfg Config) (*Client, error) {
	if cfg.WorkspaceID == "" {
		return nil, fault.InvalidInput("orbit: workspace id required")
	}
	if cfg.APIKey == "" {
		return nil, fault.InvalidInput("orbit: api key required")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	endpoint := fmt.Sprintf("%s/%s/activities", base, cfg.WorkspaceID)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fault.InvalidInput("orbit: bad base url: %v", err)
	}
	hc := cfg.HTTP
	if hc == nil {
		hcfg := ythttp.DefaultConfig()
		hcfg.CircuitBreaker.IsTransientError = IsTransientError
		hc = ythttp.New(hcfg)
	}

	return &Client{
		http:        hc,
		endpoint:    endpoint,
		host:        strings.ToLower(u.Hostname()),
		workspaceID: cfg.WorkspaceID,
		headers: map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
			"Content-Type":  "application/json",
			"Accept":        "application/json",
		},
		log: cfg.Logger,
	}, nil
}

// WorkspaceID returns the workspace activities are posted to.
func (c *Client) WorkspaceID() string {
	return c.workspaceID
}

// AddActivity posts one record. A failure is always a *SubmitError.
//
// Once started, the request runs to completion even if ctx is canceled, so
// a batch never stops without knowing the outcome of its last item.
func (c *Client) AddActivity(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return &SubmitError{Kind: KindStructured, Key: rec.Activity.Key, Detail: "encode activity: " + err.Error(), Err: err}
	}

	resp, err := c.http.Do(context.WithoutCancel(ctx), http.MethodPost, c.endpoint, body, c.headers)
	if err != nil {
		return classify(rec.Activity.Key, err)
	}
	c.log.Debug().
		Str("key", rec.Activity.Key).
		Int("status", resp.StatusCode).
		Msg("activity added")
	return nil
}

// Stats summarises a batch submission.
type Stats struct {
	Added      int         `json:"added"`
	Duplicates int         `json:"duplicates"`
	Errors     []ItemError `json:"errors"`
	// Partial is set when the batch stopped before its last record.
	Partial bool `json:"partial,omitempty"`
}

// Summary reports the outcome in one line for workspace ws.
func (s *Stats) Summary(ws string) string {
	msg := fmt.Sprintf("Added %d activities to the %s Orbit workspace.", s.Added, ws)
	if s.Duplicates > 0 {
		msg += fmt.Sprintf(" Your activity list had %d duplicates which were not imported", s.Duplicates)
	}
	if n := len(s.Errors); n > 0 {
		msg += fmt.Sprintf(" %d activities were rejected.", n)
	}
	return msg
}

// ItemError is a rejected activity recorded in Stats.
type ItemError struct {
	Key        string `json:"key"`
	StatusCode int    `json:"status"`
	Detail     string `json:"detail"`
}

// AddActivities posts records one at a time, in order. Duplicates are
// counted and other rejections recorded in Stats.Errors; both let the batch
// continue. A transport failure, or ctx ending between records, stops the
// batch and returns the stats gathered so far marked Partial along with
// the error. An empty batch makes no requests.
func (c *Client) AddActivities(ctx context.Context, records []Record) (*Stats, error) {
	stats := &Stats{Errors: []ItemError{}}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			stats.Partial = true
			return stats, fmt.Errorf("orbit: stopped after %d of %d activities: %w", i, len(records), err)
		}

		err := c.AddActivity(ctx, rec)
		if err == nil {
			stats.Added++
			continue
		}

		var subErr *SubmitError
		if !errors.As(err, &subErr) {
			stats.Partial = true
			return stats, err
		}
		switch subErr.Kind {
		case KindDuplicate:
			stats.Duplicates++
			c.log.Debug().Str("key", subErr.Key).Msg("activity already in workspace")
		case KindStructured:
			stats.Errors = append(stats.Errors, ItemError{
				Key:        subErr.Key,
				StatusCode: subErr.StatusCode,
				Detail:     subErr.Detail,
			})
			c.log.Warn().
				Str("key", subErr.Key).
				Int("status", subErr.StatusCode).
				Str("detail", subErr.Detail).
				Msg("activity rejected")
		default:
			stats.Partial = true
			c.log.Error().
				Err(err).
				Int("submitted", i).
				Int("total", len(records)).
				Stringer("circuit", c.http.CircuitState(c.host)).
				Msg("submission aborted")
			return stats, err
		}
	}

	return stats, nil
}
