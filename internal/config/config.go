// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/lead-harvester/internal/ratelimit"
	"github.com/jonathan/lead-harvester/internal/types"
)

// Config represents the crawl configuration that can be loaded from a JSON
// file. All fields are optional; missing values use defaults or must be
// provided via CLI flags. Durations are expressed in seconds to keep the
// file format plain.
type Config struct {
	// Scheduler
	MaxConcurrentJobs int     `json:"max_concurrent_jobs,omitempty" validate:"gte=0,lte=64"`
	JobTimeoutSeconds float64 `json:"job_timeout_seconds,omitempty" validate:"gte=0"`

	// Rate limiting
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" validate:"gte=0"`
	RequestsPerMinute int     `json:"requests_per_minute,omitempty" validate:"gte=0"`
	RequestsPerHour   int     `json:"requests_per_hour,omitempty" validate:"gte=0"`
	BurstSize         int     `json:"burst_size,omitempty" validate:"gte=0"`
	BackoffFactor     float64 `json:"backoff_factor,omitempty" validate:"eq=0|gte=1"`
	MaxBackoffSeconds float64 `json:"max_backoff_seconds,omitempty" validate:"gte=0"`
	Adaptive          bool    `json:"adaptive,omitempty"`

	// Scrape defaults applied to jobs that do not carry their own config
	MaxPages              int     `json:"max_pages,omitempty" validate:"gte=0,lte=100"`
	DelaySeconds          float64 `json:"delay_seconds,omitempty" validate:"gte=0"`
	RequestTimeoutSeconds float64 `json:"request_timeout_seconds,omitempty" validate:"gte=0"`
	MaxRetries            int     `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
	UseProxy              bool    `json:"use_proxy,omitempty"`
	IgnoreRobotsTxt       bool    `json:"ignore_robots_txt,omitempty"`
	UserAgent             string  `json:"user_agent,omitempty"`

	// Proxies
	ProxyFile string `json:"proxy_file,omitempty"`

	// Network scraper session; usually supplied via environment rather
	// than checked into a config file.
	SessionCookie string `json:"session_cookie,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

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

	return &cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.ProxyFile != "" {
		if _, err := os.Stat(c.ProxyFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: proxy file not found: %s", c.ProxyFile)
		}
	}
	if c.UseProxy && c.ProxyFile == "" {
		return fmt.Errorf("config error: 'use_proxy' requires 'proxy_file'")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled
// from defaults. This is used to apply config file values as defaults for
// CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.MaxConcurrentJobs == 0 {
		result.MaxConcurrentJobs = defaults.MaxConcurrentJobs
	}
	if result.JobTimeoutSeconds == 0 {
		result.JobTimeoutSeconds = defaults.JobTimeoutSeconds
	}
	if result.RequestsPerSecond == 0 {
		result.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if result.RequestsPerMinute == 0 {
		result.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if result.RequestsPerHour == 0 {
		result.RequestsPerHour = defaults.RequestsPerHour
	}
	if result.BurstSize == 0 {
		result.BurstSize = defaults.BurstSize
	}
	if result.BackoffFactor == 0 {
		result.BackoffFactor = defaults.BackoffFactor
	}
	if result.MaxBackoffSeconds == 0 {
		result.MaxBackoffSeconds = defaults.MaxBackoffSeconds
	}
	if result.MaxPages == 0 {
		result.MaxPages = defaults.MaxPages
	}
	if result.DelaySeconds == 0 {
		result.DelaySeconds = defaults.DelaySeconds
	}
	if result.RequestTimeoutSeconds == 0 {
		result.RequestTimeoutSeconds = defaults.RequestTimeoutSeconds
	}
	if result.MaxRetries == 0 {
		result.MaxRetries = defaults.MaxRetries
	}
	if result.UserAgent == "" {
		result.UserAgent = defaults.UserAgent
	}
	if result.ProxyFile == "" {
		result.ProxyFile = defaults.ProxyFile
	}
	if result.SessionCookie == "" {
		result.SessionCookie = defaults.SessionCookie
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// ApplyEnv overlays environment variables onto the config. Call after
// godotenv has loaded any .env file. Environment values win over file
// values so secrets never need to live in the config file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LEAD_HARVESTER_SESSION_COOKIE"); v != "" {
		c.SessionCookie = v
	}
	if v := os.Getenv("LEAD_HARVESTER_PROXY_FILE"); v != "" {
		c.ProxyFile = v
	}
	if v := os.Getenv("LEAD_HARVESTER_USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("LEAD_HARVESTER_VERBOSE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.Verbose = parsed
		}
	}
}

// RateLimiterConfig converts the flat file fields into the limiter's
// configuration, falling back to limiter defaults for unset values.
func (c *Config) RateLimiterConfig() *ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if c.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = c.RequestsPerSecond
	}
	if c.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = c.RequestsPerMinute
	}
	if c.RequestsPerHour > 0 {
		cfg.RequestsPerHour = c.RequestsPerHour
	}
	if c.BurstSize > 0 {
		cfg.BurstSize = c.BurstSize
	}
	if c.BackoffFactor > 0 {
		cfg.BackoffFactor = c.BackoffFactor
	}
	if c.MaxBackoffSeconds > 0 {
		cfg.MaxBackoff = seconds(c.MaxBackoffSeconds)
	}
	return cfg
}

// ScrapeDefaults converts the flat file fields into the per-job scrape
// configuration handed to jobs created without one.
func (c *Config) ScrapeDefaults() types.ScrapeConfig {
	cfg := types.DefaultScrapeConfig()
	if c.MaxPages > 0 {
		cfg.MaxPages = c.MaxPages
	}
	if c.DelaySeconds > 0 {
		cfg.DelayBetweenRequests = seconds(c.DelaySeconds)
	}
	if c.RequestTimeoutSeconds > 0 {
		cfg.RequestTimeout = seconds(c.RequestTimeoutSeconds)
	}
	if c.MaxRetries > 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	cfg.UseProxy = c.UseProxy
	cfg.RespectRobotsTxt = !c.IgnoreRobotsTxt
	cfg.SessionCookie = c.SessionCookie
	return cfg
}

// JobTimeout returns the configured per-job timeout, zero meaning none.
func (c *Config) JobTimeout() time.Duration {
	return seconds(c.JobTimeoutSeconds)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
