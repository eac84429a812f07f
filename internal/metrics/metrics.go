// Package metrics records run metrics and pushes them to a Prometheus
// Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Submission outcomes.
const (
	OutcomeAdded     = "added"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// Recorder is what the client reports to. It satisfies ythttp.Observer.
type Recorder interface {
	ObserveRequest(host string, status int, elapsed time.Duration)
	AddCommentsFetched(n int)
	AddCommentsRetained(n int)
	AddSubmissions(outcome string, n int)
	Push(ctx context.Context) error
}

// Config selects the Pushgateway. An empty PushURL yields a no-op Recorder.
type Config struct {
	PushURL string
	Job     string
}

// Metrics is a Recorder backed by a private registry.
type Metrics struct {
	registry         *prometheus.Registry
	pusher           *push.Pusher
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	commentsFetched  prometheus.Counter
	commentsRetained prometheus.Counter
	submissions      *prometheus.CounterVec
}

// New returns a Recorder for cfg.
func New(cfg Config) Recorder {
	if cfg.PushURL == "" {
		return noopMetrics{}
	}
	return NewMetrics(cfg)
}

// NewMetrics registers the run's collectors on a fresh registry.
func NewMetrics(cfg Config) *Metrics {
	job := cfg.Job
	if job == "" {
		job = "ytorbit"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ytorbit_http_requests_total",
			Help: "Total number of outbound HTTP requests",
		}, []string{"host", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ytorbit_http_request_duration_seconds",
			Help:    "Outbound HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),

		commentsFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "ytorbit_comments_fetched_total",
			Help: "Total number of comments read from YouTube",
		}),

		commentsRetained: factory.NewCounter(prometheus.CounterOpts{
			Name: "ytorbit_comments_retained_total",
			Help: "Total number of comments inside the recency window",
		}),

		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ytorbit_submissions_total",
			Help: "Total number of activity submissions by outcome",
		}, []string{"outcome"}),
	}
	if cfg.PushURL != "" {
		m.pusher = push.New(cfg.PushURL, job).Gatherer(reg)
	}
	return m
}

// Registry exposes the collectors, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(host string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(host, statusBucket(status)).Inc()
	m.requestDuration.WithLabelValues(host).Observe(elapsed.Seconds())
}

func (m *Metrics) AddCommentsFetched(n int) {
	m.commentsFetched.Add(float64(n))
}

func (m *Metrics) AddCommentsRetained(n int) {
	m.commentsRetained.Add(float64(n))
}

func (m *Metrics) AddSubmissions(outcome string, n int) {
	if n <= 0 {
		return
	}
	m.submissions.WithLabelValues(outcome).Add(float64(n))
}

// Push sends every collector to the Pushgateway, replacing the job's
// previous group.
func (m *Metrics) Push(ctx context.Context) error {
	if m.pusher == nil {
		return nil
	}
	if err := m.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

func statusBucket(code int) string {
	switch {
	case code == 0:
		return "none"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, int, time.Duration) {}
func (noopMetrics) AddCommentsFetched(int)                    {}
func (noopMetrics) AddCommentsRetained(int)                   {}
func (noopMetrics) AddSubmissions(string, int)                {}
func (noopMetrics) Push(context.Context) error                { return nil }
