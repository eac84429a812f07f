// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"

	ythttp "ytorbit/http"
	"ytorbit/internal/fault"
	"ytorbit/internal/retry"
)

// Environment variables holding the four credentials.
const (
	EnvOrbitWorkspaceID = "ORBIT_WORKSPACE_ID"
	EnvOrbitAPIKey      = "ORBIT_API_KEY"
	EnvYouTubeAPIKey    = "YOUTUBE_API_KEY"
	EnvYouTubeChannelID = "YOUTUBE_CHANNEL_ID"
)

// Config holds all application configuration for a comment sync run.
type Config struct {
	Orbit   OrbitConfig   `mapstructure:"orbit"`
	YouTube YouTubeConfig `mapstructure:"youtube"`

	// Hours is the default recency window.
	Hours int `mapstructure:"hours" validate:"required|min:1"`
	// Timeout bounds a whole run.
	Timeout time.Duration `mapstructure:"timeout" validate:"required|min:1"`
	// Workers bounds how many videos are read concurrently.
	Workers int `mapstructure:"workers" validate:"required|min:1|max:16"`

	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

// OrbitConfig configures the Orbit API client.
type OrbitConfig struct {
	WorkspaceID string `mapstructure:"workspace_id"`
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url" validate:"required"`
	// RPS limits requests per second to Orbit. 0 means unlimited.
	RPS float64 `mapstructure:"rps"`
}

// YouTubeConfig configures the YouTube Data API client.
type YouTubeConfig struct {
	APIKey    string `mapstructure:"api_key"`
	ChannelID string `mapstructure:"channel_id"`
	// Endpoint overrides the API base URL.
	Endpoint string `mapstructure:"endpoint"`
	// RPS limits requests per second to the API. 0 means unlimited.
	RPS float64 `mapstructure:"rps"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error"`
	Format string `mapstructure:"format" validate:"required|in:console,json"`
}

// MetricsConfig configures the Pushgateway the run's metrics are pushed to.
type MetricsConfig struct {
	// PushURL disables metrics when empty.
	PushURL string `mapstructure:"push_url"`
	Job     string `mapstructure:"job" validate:"required"`
}

// RetryConfig configures retries of individual requests.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" validate:"min:0|max:10"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"required|min:1"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"required|min:1"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

// DefaultConfig returns configuration with safe defaults and no credentials.
func DefaultConfig() *Config {
	return &Config{
		Orbit: OrbitConfig{
			BaseURL: "https://app.orbit.love/api/v1",
			RPS:     2,
		},
		YouTube: YouTubeConfig{RPS: 5},
		Hours:   24,
		Timeout: 10 * time.Minute,
		Workers: 1,
		Log:     LogConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Job: "ytorbit"},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2.0,
		},
	}
}

// bindings maps config keys to the environment variables that set them.
var bindings = map[string]string{
	"orbit.workspace_id":    EnvOrbitWorkspaceID,
	"orbit.api_key":         EnvOrbitAPIKey,
	"youtube.api_key":       EnvYouTubeAPIKey,
	"youtube.channel_id":    EnvYouTubeChannelID,
	"orbit.base_url":        "YTORBIT_ORBIT_BASE_URL",
	"orbit.rps":             "YTORBIT_ORBIT_RPS",
	"youtube.endpoint":      "YTORBIT_YOUTUBE_ENDPOINT",
	"youtube.rps":           "YTORBIT_YOUTUBE_RPS",
	"hours":                 "YTORBIT_HOURS",
	"timeout":               "YTORBIT_TIMEOUT",
	"workers":               "YTORBIT_WORKERS",
	"log.level":             "YTORBIT_LOG_LEVEL",
	"log.format":            "YTORBIT_LOG_FORMAT",
	"metrics.push_url":      "YTORBIT_METRICS_PUSH_URL",
	"metrics.job":           "YTORBIT_METRICS_JOB",
	"retry.max_retries":     "YTORBIT_MAX_RETRIES",
	"retry.initial_backoff": "YTORBIT_INITIAL_BACKOFF",
	"retry.max_backoff":     "YTORBIT_MAX_BACKOFF",
	"retry.multiplier":      "YTORBIT_BACKOFF_MULTIPLIER",
}

// Load reads configuration. Priority: env vars > config file > defaults.
//
// With an empty path, ytorbit.yaml is looked up in the current directory and
// in $HOME/.config/ytorbit, and a missing file is not an error. An explicit
// path must exist. Settings are validated; credentials are not, so callers
// can report missing ones themselves with ValidateCredentials.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ytorbit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ytorbit"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	if err := cfg.ValidateSettings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("orbit.base_url", d.Orbit.BaseURL)
	v.SetDefault("orbit.rps", d.Orbit.RPS)
	v.SetDefault("youtube.rps", d.YouTube.RPS)
	v.SetDefault("hours", d.Hours)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.job", d.Metrics.Job)
	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.initial_backoff", d.Retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", d.Retry.MaxBackoff)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
}

// MissingCredentialError names a credential that was not supplied.
type MissingCredentialError struct {
	Name string
	Env  string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing %s: set %s", e.Name, e.Env)
}

// Unwrap makes the error match fault.ErrInvalidInput.
func (e *MissingCredentialError) Unwrap() error {
	return fault.ErrInvalidInput
}

// Validate checks credentials (channel id included) and settings.
func (c *Config) Validate() error {
	if err := c.ValidateCredentials(true); err != nil {
		return err
	}
	return c.ValidateSettings()
}

// ValidateCredentials reports the first missing credential, in the order
// workspace id, Orbit API key, YouTube API key, channel id.
func (c *Config) ValidateCredentials(requireChannel bool) error {
	checks := []struct {
		value string
		name  string
		env   string
	}{
		{c.Orbit.WorkspaceID, "Orbit workspace id", EnvOrbitWorkspaceID},
		{c.Orbit.APIKey, "Orbit API key", EnvOrbitAPIKey},
		{c.YouTube.APIKey, "YouTube API key", EnvYouTubeAPIKey},
	}
	if requireChannel {
		checks = append(checks, struct {
			value string
			name  string
			env   string
		}{c.YouTube.ChannelID, "YouTube channel id", EnvYouTubeChannelID})
	}

	for _, chk := range checks {
		if chk.value == "" {
			return &MissingCredentialError{Name: chk.name, Env: chk.env}
		}
	}
	return nil
}

// ValidateSettings checks every non-credential setting.
func (c *Config) ValidateSettings() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fault.InvalidInput("config: %s", v.Errors.One())
	}

	if c.Orbit.RPS < 0 || c.YouTube.RPS < 0 {
		return fault.InvalidInput("config: rps must be non-negative")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fault.InvalidInput("config: retry.max_backoff must be at least retry.initial_backoff")
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier <= 1 {
		return fault.InvalidInput("config: retry.multiplier must be greater than 1")
	}
	if u, err := url.Parse(c.Orbit.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fault.InvalidInput("config: orbit.base_url %q is not an absolute URL", c.Orbit.BaseURL)
	}
	return nil
}

// RetryPolicy returns the retry settings as a retry.Config.
func (c *Config) RetryPolicy() retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxRetries = c.Retry.MaxRetries
	rc.InitialBackoff = c.Retry.InitialBackoff
	rc.MaxBackoff = c.Retry.MaxBackoff
	if c.Retry.Multiplier > 1 {
		rc.Multiplier = c.Retry.Multiplier
	}
	return rc
}

// HTTPConfig returns the shared HTTP client settings: the retry policy plus
// per-host rates for Orbit and the YouTube API.
func (c *Config) HTTPConfig() *ythttp.Config {
	hc := ythttp.DefaultConfig()
	hc.Retry = c.RetryPolicy()
	hc.RateLimiter.HostRates[ythttp.OrbitHost] = c.Orbit.RPS
	hc.RateLimiter.HostRates[ythttp.YouTubeDataAPIHost] = c.YouTube.RPS
	hc.RateLimiter.HostRates[ythttp.LegacyGoogleAPIsHost] = c.YouTube.RPS
	if u, err := url.Parse(c.Orbit.BaseURL); err == nil && u.Hostname() != "" {
		hc.RateLimiter.HostRates[u.Hostname()] = c.Orbit.RPS
	}
	return hc
}
