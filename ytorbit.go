package ytorbit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"ytorbit/config"
	ythttp "ytorbit/http"
	"ytorbit/internal/fault"
	"ytorbit/internal/metrics"
	"ytorbit/orbit"
	"ytorbit/youtube"
)

// pushTimeout bounds the metrics push at the end of a run.
const pushTimeout = 10 * time.Second

// MetricsRecorder receives run metrics. See WithMetrics.
type MetricsRecorder = metrics.Recorder

// Client runs the YouTube to Orbit comment pipeline.
type Client struct {
	cfg     *config.Config
	http    *ythttp.Client
	youtube *youtube.Service
	orbit   *orbit.Client
	metrics metrics.Recorder
	log     zerolog.Logger
	now     func() time.Time
}

type options struct {
	logger     zerolog.Logger
	metrics    metrics.Recorder
	youtubeOpt []option.ClientOption
	now        func() time.Time
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the logger. The default logs nothing.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics replaces the recorder built from cfg.Metrics.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithYouTubeOptions passes extra options to the YouTube API client.
func WithYouTubeOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.youtubeOpt = append(o.youtubeOpt, opts...) }
}

// WithClock sets the time source used by the recency window.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds a Client from cfg. The Orbit and YouTube credentials must be
// set; the channel id may instead be passed per call.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fault.InvalidInput("config required")
	}
	if err := cfg.ValidateCredentials(false); err != nil {
		return nil, err
	}
	if err := cfg.ValidateSettings(); err != nil {
		return nil, err
	}

	o := options{logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(metrics.Config{PushURL: cfg.Metrics.PushURL, Job: cfg.Metrics.Job})
	}

	hcfg := cfg.HTTPConfig()
	hcfg.Observer = o.metrics
	// YouTube failures reach the breaker without a body, so this only
	// changes how Orbit replies are counted.
	hcfg.CircuitBreaker.IsTransientError = orbit.IsTransientError
	hc := ythttp.New(hcfg)

	rp := cfg.RetryPolicy()
	yt, err := youtube.NewService(ctx, youtube.Config{
		APIKey:   cfg.YouTube.APIKey,
		HTTP:     hc,
		Retry:    &rp,
		Logger:   o.logger,
		Endpoint: cfg.YouTube.Endpoint,
		Options:  o.youtubeOpt,
	})
	if err != nil {
		hc.Close()
		return nil, err
	}

	oc, err := orbit.NewClient(orbit.Config{
		WorkspaceID: cfg.Orbit.WorkspaceID,
		APIKey:      cfg.Orbit.APIKey,
		BaseURL:     cfg.Orbit.BaseURL,
		HTTP:        hc,
		Logger:      o.logger,
	})
	if err != nil {
		hc.Close()
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		http:    hc,
		youtube: yt,
		orbit:   oc,
		metrics: o.metrics,
		log:     o.logger,
		now:     o.now,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// WorkspaceID returns the Orbit workspace activities are added to.
func (c *Client) WorkspaceID() string {
	return c.orbit.WorkspaceID()
}

func (c *Client) channel(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if c.cfg.YouTube.ChannelID != "" {
		return c.cfg.YouTube.ChannelID, nil
	}
	return "", &config.MissingCredentialError{Name: "YouTube channel id", Env: config.EnvYouTubeChannelID}
}

// GetChannelComments returns every comment on the channel's uploads, each
// stamped with its video title, logging progress per video.
func (c *Client) GetChannelComments(ctx context.Context, channelID string) ([]youtube.Comment, error) {
	id, err := c.channel(channelID)
	if err != nil {
		return nil, err
	}
	comments, err := c.youtube.ChannelComments(ctx, id, youtube.ChannelOptions{
		Log:      true,
		AddTitle: true,
		Workers:  c.cfg.Workers,
	})
	if err != nil {
		return nil, err
	}
	c.metrics.AddCommentsFetched(len(comments))
	return comments, nil
}

// GetOptions selects the comments GetComments returns.
type GetOptions struct {
	// ChannelID defaults to the configured channel.
	ChannelID string
	// Hours is the recency window. Required.
	Hours int
}

// GetComments returns the channel's comments published within the last
// opts.Hours hours.
func (c *Client) GetComments(ctx context.Context, opts GetOptions) ([]youtube.Comment, error) {
	recent, _, err := c.getComments(ctx, opts)
	return recent, err
}

func (c *Client) getComments(ctx context.Context, opts GetOptions) (recent []youtube.Comment, fetched int, err error) {
	if opts.Hours == 0 {
		return nil, 0, fault.InvalidInput("hours required")
	}
	if opts.Hours < 0 {
		return nil, 0, fault.InvalidInput("hours must be positive, got %d", opts.Hours)
	}
	if _, err := c.channel(opts.ChannelID); err != nil {
		return nil, 0, err
	}

	all, err := c.GetChannelComments(ctx, opts.ChannelID)
	if err != nil {
		return nil, 0, err
	}
	recent, err = youtube.FilterRecent(all, opts.Hours, c.now())
	if err != nil {
		return nil, len(all), err
	}
	c.metrics.AddCommentsRetained(len(recent))
	return recent, len(all), nil
}

// PrepareComments maps comments to Orbit activity records.
func (c *Client) PrepareComments(comments []youtube.Comment) []orbit.Record {
	return orbit.Prepare(comments)
}

// AddActivities submits records to Orbit. See orbit.Client.AddActivities.
func (c *Client) AddActivities(ctx context.Context, records []orbit.Record) (*orbit.Stats, error) {
	stats, err := c.orbit.AddActivities(ctx, records)
	if stats != nil {
		c.metrics.AddSubmissions(metrics.OutcomeAdded, stats.Added)
		c.metrics.AddSubmissions(metrics.OutcomeDuplicate, stats.Duplicates)
		failed := len(stats.Errors)
		var subErr *orbit.SubmitError
		if errors.As(err, &subErr) {
			failed++
		}
		c.metrics.AddSubmissions(metrics.OutcomeError, failed)
	}
	return stats, err
}

// RunOptions configures Run.
type RunOptions struct {
	// ChannelID defaults to the configured channel.
	ChannelID string
	// Hours defaults to the configured window.
	Hours int
	// DryRun fetches and maps comments without submitting them.
	DryRun bool
}

// Result summarises one run.
type Result struct {
	RunID      string       `json:"runId"`
	ChannelID  string       `json:"channelId"`
	Hours      int          `json:"hours"`
	DryRun     bool         `json:"dryRun,omitempty"`
	Fetched    int          `json:"fetched"`
	Retained   int          `json:"retained"`
	Stats      *orbit.Stats `json:"stats"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

// Run fetches the channel's recent comments and adds them to Orbit as
// activities, within the configured timeout. On failure the returned
// Result holds whatever was gathered before the error.
func (c *Client) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	hours := opts.Hours
	if hours == 0 {
		hours = c.cfg.Hours
	}
	channelID, err := c.channel(opts.ChannelID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     uuid.NewString(),
		ChannelID: channelID,
		Hours:     hours,
		DryRun:    opts.DryRun,
		StartedAt: c.now(),
	}
	log := c.log.With().Str("run_id", res.RunID).Str("channel_id", channelID).Logger()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	defer c.finish(ctx, res, log)

	log.Info().Int("hours", hours).Bool("dry_run", opts.DryRun).Msg("run started")

	recent, fetched, err := c.getComments(ctx, GetOptions{ChannelID: channelID, Hours: hours})
	res.Fetched = fetched
	if err != nil {
		log.Error().Err(err).Msg("fetch comments failed")
		return res, err
	}
	res.Retained = len(recent)
	log.Info().Int("fetched", fetched).Int("count", len(recent)).Msg("fetched comments from timeframe")

	records := c.PrepareComments(recent)
	if opts.DryRun {
		res.Stats = &orbit.Stats{Errors: []orbit.ItemError{}}
		return res, nil
	}

	stats, err := c.AddActivities(ctx, records)
	res.Stats = stats
	if err != nil {
		log.Error().Err(err).Msg("add activities failed")
		return res, err
	}
	return res, nil
}

func (c *Client) finish(ctx context.Context, res *Result, log zerolog.Logger) {
	res.FinishedAt = c.now()

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := c.metrics.Push(pushCtx); err != nil {
		log.Warn().Err(err).Msg("metrics push failed")
	}

	ev := log.Info().
		Int("fetched", res.Fetched).
		Int("retained", res.Retained).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt))
	if res.Stats != nil {
		ev = ev.Int("added", res.Stats.Added).
			Int("duplicates", res.Stats.Duplicates).
			Int("errors", len(res.Stats.Errors))
	}
	ev.Msg("run finished")
}
