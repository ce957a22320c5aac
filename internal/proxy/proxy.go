// Package proxy manages a pool of egress proxies with per-domain affinity,
// health checking, and outcome-driven status tracking.
package proxy

import (
	"fmt"
	"net/url"
	"time"
)

// Protocol is the proxy wire protocol.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS5 Protocol = "socks5"
)

// Status is a proxy's health state.
type Status string

const (
	StatusInactive    Status = "inactive"
	StatusActive      Status = "active"
	StatusError       Status = "error"
	StatusBlocked     Status = "blocked"
	StatusRateLimited Status = "rate_limited"
	StatusTesting     Status = "testing"
)

const (
	// errorThreshold consecutive failures move an active proxy to error.
	errorThreshold = 3
	// blockedThreshold consecutive failures move a proxy to blocked.
	blockedThreshold = 5
)

// Config describes one proxy server.
type Config struct {
	Host                  string        `json:"host" validate:"required"`
	Port                  int           `json:"port" validate:"gt=0,lte=65535"`
	Protocol              Protocol      `json:"protocol"`
	Username              string        `json:"username,omitempty"`
	Password              string        `json:"password,omitempty"`
	MaxConcurrentRequests int           `json:"max_concurrent_requests"`
	Timeout               time.Duration `json:"timeout"`
}

// Stats accumulates per-proxy request outcomes.
type Stats struct {
	TotalRequests       int           `json:"total_requests"`
	SuccessfulRequests  int           `json:"successful_requests"`
	FailedRequests      int           `json:"failed_requests"`
	BlockedRequests     int           `json:"blocked_requests"`
	RateLimitedRequests int           `json:"rate_limited_requests"`
	TotalLatency        time.Duration `json:"total_latency"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastUsed            time.Time     `json:"last_used"`
	LastSuccess         time.Time     `json:"last_success"`
	LastFailure         time.Time     `json:"last_failure"`
}

// SuccessRate returns the percentage of successful requests.
func (s *Stats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
}

// AverageLatency returns the mean latency of successful requests.
func (s *Stats) AverageLatency() time.Duration {
	if s.SuccessfulRequests == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.SuccessfulRequests)
}

// Proxy is one egress identity. Its mutable fields are owned by the Pool
// and must only be touched while holding the pool's mutex.
type Proxy struct {
	Config
	Status          Status
	Stats           Stats
	ActiveRequests  int
	LastHealthCheck time.Time
}

// newProxy creates an untested proxy from its configuration.
func newProxy(cfg Config) *Proxy {
	if cfg.Protocol == "" {
		cfg.Protocol = ProtocolHTTP
	}
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Proxy{Config: cfg, Status: StatusInactive}
}

// Key identifies the proxy within the pool.
func (p *Proxy) Key() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// URL builds the proxy URL including credentials when present.
func (p *Proxy) URL() *url.URL {
	u := &url.URL{
		Scheme: string(p.Protocol),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// eligible reports whether the proxy may receive new work.
func (p *Proxy) eligible() bool {
	return p.Status == StatusActive && p.ActiveRequests < p.MaxConcurrentRequests
}

// recordFailure applies the consecutive-failure state machine.
func (p *Proxy) recordFailure(now time.Time) {
	p.Stats.FailedRequests++
	p.Stats.LastFailure = now
	p.Stats.ConsecutiveFailures++

	if p.Stats.ConsecutiveFailures >= blockedThreshold {
		p.Status = StatusBlocked
	} else if p.Stats.ConsecutiveFailures >= errorThreshold {
		p.Status = StatusError
	}
}

// needsHealthCheck reports whether the proxy is due for a connectivity
// re-test. Error and blocked proxies are always due.
func (p *Proxy) needsHealthCheck(interval time.Duration, now time.Time) bool {
	if p.Status == StatusError || p.Status == StatusBlocked {
		return true
	}
	return now.Sub(p.LastHealthCheck) > interval
}
