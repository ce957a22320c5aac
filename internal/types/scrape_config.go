package types

import "time"

// DefaultUserAgent is sent when a config does not override it.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// ScrapeConfig is an immutable configuration snapshot attached to a job at
// creation. It is never mutated after the job starts.
type ScrapeConfig struct {
	MaxPages             int               `json:"max_pages" validate:"gt=0,lte=100"`
	DelayBetweenRequests time.Duration     `json:"delay_between_requests" validate:"gte=0,lte=60000000000"`
	RequestTimeout       time.Duration     `json:"request_timeout" validate:"gt=0,lte=300000000000"`
	MaxRetries           int               `json:"max_retries" validate:"gte=0,lte=10"`
	UseProxy             bool              `json:"use_proxy"`
	RespectRobotsTxt     bool              `json:"respect_robots_txt"`
	UserAgent            string            `json:"user_agent"`
	Headers              map[string]string `json:"headers,omitempty"`
	// SessionCookie carries an authenticated session for the
	// professional-network scraper; people search is unavailable without it.
	SessionCookie string `json:"session_cookie,omitempty"`
}

// DefaultScrapeConfig returns the configuration used when a job supplies none.
func DefaultScrapeConfig() ScrapeConfig {
	return ScrapeConfig{
		MaxPages:             5,
		DelayBetweenRequests: time.Second,
		RequestTimeout:       30 * time.Second,
		MaxRetries:           3,
		UseProxy:             false,
		RespectRobotsTxt:     true,
		UserAgent:            DefaultUserAgent,
	}
}
