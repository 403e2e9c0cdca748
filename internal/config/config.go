// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/schemas"
)

// Defaults applied by MergeWithDefaults when neither file nor flags set a value.
const (
	DefaultAPIBaseURL         = "http://localhost:3000/api"
	DefaultLocationCode       = 2840
	DefaultLanguageCode       = "en"
	DefaultPollIntervalMs     = 2000
	DefaultMaxPollAttempts    = 900
	DefaultMaxPollMinutes     = 30
	DefaultPageSize           = 50
	DefaultRequestsPerSecond  = 10
	DefaultRequestTimeoutSecs = 30
	DefaultRefetchConcurrency = 8
	DefaultLogLevel           = "info"
)

// Environment variables consulted when the config file leaves a field empty.
const (
	EnvAPIBaseURL  = "BULK_ANALYSIS_API_URL"
	EnvUserID      = "BULK_ANALYSIS_USER_ID"
	EnvAPIToken    = "BULK_ANALYSIS_API_TOKEN"
	EnvDatabaseURL = "DATABASE_URL"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Backend
	APIBaseURL string `json:"api_base_url,omitempty"` // Base URL of the bulk-analysis API (…/api)
	APIToken   string `json:"api_token,omitempty"`    // Static bearer token; minted from JWT_SECRET when empty

	// Scope
	ProjectID string `json:"project_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	UserID    string `json:"user_id,omitempty"` // Recorded on individual status updates

	// Qualification
	LocationCode int    `json:"location_code,omitempty"` // DataForSEO location (2840 = United States)
	LanguageCode string `json:"language_code,omitempty"`

	// Polling
	PollIntervalMs  int `json:"poll_interval_ms,omitempty"`
	MaxPollAttempts int `json:"max_poll_attempts,omitempty"`
	MaxPollMinutes  int `json:"max_poll_minutes,omitempty"`

	// Client behaviour
	PageSize              int     `json:"page_size,omitempty"`
	RequestsPerSecond     float64 `json:"requests_per_second,omitempty"`
	RequestTimeoutSeconds int     `json:"request_timeout_seconds,omitempty"`
	RefetchConcurrency    int     `json:"refetch_concurrency,omitempty"`

	LogLevel    string `json:"log_level,omitempty"`
	Verbose     bool   `json:"verbose,omitempty"`      // Print detailed debug information
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL for the job journal
}

// LoadConfig loads configuration from a JSON file.
// The file is checked against the embedded config schema before decoding.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := schemas.ValidateConfig(data); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyEnv fills empty fields from the environment.
func (c *Config) ApplyEnv() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = os.Getenv(EnvAPIBaseURL)
	}
	if c.UserID == "" {
		c.UserID = os.Getenv(EnvUserID)
	}
	if c.APIToken == "" {
		c.APIToken = os.Getenv(EnvAPIToken)
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv(EnvDatabaseURL)
	}
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.APIBaseURL != "" {
		u, err := url.Parse(c.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config error: 'api_base_url' must be an absolute http(s) URL, got %q", c.APIBaseURL)
		}
	}

	if c.PollIntervalMs < 0 {
		return fmt.Errorf("config error: 'poll_interval_ms' must be non-negative")
	}
	if c.MaxPollAttempts < 0 {
		return fmt.Errorf("config error: 'max_poll_attempts' must be non-negative")
	}
	if c.MaxPollMinutes < 0 {
		return fmt.Errorf("config error: 'max_poll_minutes' must be non-negative")
	}
	if c.PageSize < 0 {
		return fmt.Errorf("config error: 'page_size' must be non-negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("config error: 'requests_per_second' must be non-negative")
	}
	if c.RefetchConcurrency < 0 {
		return fmt.Errorf("config error: 'refetch_concurrency' must be non-negative")
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config error: unknown 'log_level' %q", c.LogLevel)
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults,
// then from the package defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	result.APIBaseURL = firstString(result.APIBaseURL, defaults.APIBaseURL, DefaultAPIBaseURL)
	result.APIToken = firstString(result.APIToken, defaults.APIToken)
	result.ProjectID = firstString(result.ProjectID, defaults.ProjectID)
	result.ClientID = firstString(result.ClientID, defaults.ClientID)
	result.UserID = firstString(result.UserID, defaults.UserID)
	result.LanguageCode = firstString(result.LanguageCode, defaults.LanguageCode, DefaultLanguageCode)
	result.LogLevel = firstString(result.LogLevel, defaults.LogLevel, DefaultLogLevel)
	result.DatabaseURL = firstString(result.DatabaseURL, defaults.DatabaseURL)

	// Int fields: use default if zero
	result.LocationCode = firstInt(result.LocationCode, defaults.LocationCode, DefaultLocationCode)
	result.PollIntervalMs = firstInt(result.PollIntervalMs, defaults.PollIntervalMs, DefaultPollIntervalMs)
	result.MaxPollAttempts = firstInt(result.MaxPollAttempts, defaults.MaxPollAttempts, DefaultMaxPollAttempts)
	result.MaxPollMinutes = firstInt(result.MaxPollMinutes, defaults.MaxPollMinutes, DefaultMaxPollMinutes)
	result.PageSize = firstInt(result.PageSize, defaults.PageSize, DefaultPageSize)
	result.RequestTimeoutSeconds = firstInt(result.RequestTimeoutSeconds, defaults.RequestTimeoutSeconds, DefaultRequestTimeoutSecs)
	result.RefetchConcurrency = firstInt(result.RefetchConcurrency, defaults.RefetchConcurrency, DefaultRefetchConcurrency)

	if result.RequestsPerSecond == 0 {
		if defaults.RequestsPerSecond > 0 {
			result.RequestsPerSecond = defaults.RequestsPerSecond
		} else {
			result.RequestsPerSecond = DefaultRequestsPerSecond
		}
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// PollInterval returns the job polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// MaxPollDuration returns the wall-clock bound on a single job's polling.
func (c *Config) MaxPollDuration() time.Duration {
	return time.Duration(c.MaxPollMinutes) * time.Minute
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
