// Package ratelimit provides per-domain admission control for outbound
// crawl requests using a token bucket with sliding-window caps and
// exponential backoff.
package ratelimit

import (
	"math"
	"net/url"
	"strings"
	"sync"
	"time"
)

// GlobalDomain is the bucket key shared by every request regardless of target.
const GlobalDomain = "global"

// Config holds rate limiting configuration.
type Config struct {
	RequestsPerSecond float64       `json:"requests_per_second" validate:"gt=0"`
	RequestsPerMinute int           `json:"requests_per_minute" validate:"gt=0"`
	RequestsPerHour   int           `json:"requests_per_hour" validate:"gt=0"`
	BurstSize         int           `json:"burst_size" validate:"gt=0"`
	BackoffFactor     float64       `json:"backoff_factor" validate:"gte=1"`
	MaxBackoff        time.Duration `json:"max_backoff" validate:"gt=0"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// DefaultConfig returns the limits used when no configuration is supplied.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond: 1.0,
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		BurstSize:         5,
		BackoffFactor:     2.0,
		MaxBackoff:        5 * time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// Stats describes the current rate limiting state for one domain.
type Stats struct {
	Domain              string        `json:"domain"`
	TokensAvailable     float64       `json:"tokens_available"`
	RequestsLastMinute  int           `json:"requests_last_minute"`
	RequestsLastHour    int           `json:"requests_last_hour"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalRequests       int           `json:"total_requests"`
	TotalDelays         int           `json:"total_delays"`
	AverageDelay        time.Duration `json:"average_delay"`
	BackoffRemaining    time.Duration `json:"backoff_remaining"`
}

// bucket tracks one domain's admission state. All access is serialized by
// the owning Limiter's mutex.
type bucket struct {
	domain     string
	rate       float64 // tokens per second, mutable by the adaptive layer
	tokens     float64
	lastRefill time.Time

	// Sliding-window deques. Entries older than their window are pruned
	// before every read, so the slices only ever hold in-window timestamps.
	minute []time.Time
	hour   []time.Time

	consecutiveFailures int
	lastFailure         time.Time
	lastAccess          time.Time

	totalRequests  int
	totalDelays    int
	totalDelayTime time.Duration
}

// Limiter manages per-domain buckets plus a shared global bucket. Every
// Acquire consults both and returns the larger delay.
type Limiter struct {
	mu      sync.Mutex
	config  *Config
	domains map[string]*bucket
	global  *bucket

	now func() time.Time // injectable for tests

	cleanupTicker *time.Ticker
	cleanupStop   chan struct{}
}

// NewLimiter creates a limiter with the given configuration, or defaults
// when config is nil.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}
	l := &Limiter{
		config:  config,
		domains: make(map[string]*bucket),
		now:     time.Now,
	}
	l.global = l.newBucket(GlobalDomain)

	if config.CleanupInterval > 0 {
		l.cleanupTicker = time.NewTicker(config.CleanupInterval)
		l.cleanupStop = make(chan struct{})
		go l.cleanupLoop()
	}
	return l
}

func (l *Limiter) newBucket(domain string) *bucket {
	return &bucket{
		domain:     domain,
		rate:       l.config.RequestsPerSecond,
		tokens:     float64(l.config.BurstSize),
		lastRefill: l.now(),
	}
}

// Domain extracts the bucket key for a raw URL or bare host. The key is the
// lowercased host without port.
func Domain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(raw)
	}
	return strings.ToLower(u.Hostname())
}

// Acquire asks permission to make one request against domain. It returns
// the delay the caller must wait before issuing the request; zero means the
// request is admitted now and a token has been consumed. After waiting a
// non-zero delay the caller must call Acquire again, since concurrent
// callers may have consumed the freed capacity in the meantime.
func (l *Limiter) Acquire(domain string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(domain)
	now := l.now()
	domainDelay := b.acquire(now, l.config)
	globalDelay := l.global.acquire(now, l.config)

	if globalDelay > domainDelay {
		return globalDelay
	}
	return domainDelay
}

// RecordFailure notes a failed request against domain, extending its
// exponential backoff window.
func (l *Limiter) RecordFailure(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketFor(domain)
	b.consecutiveFailures++
	b.lastFailure = l.now()
}

// RecordSuccess notes a successful request against domain, ending any
// backoff immediately.
func (l *Limiter) RecordSuccess(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketFor(domain)
	b.consecutiveFailures = 0
	b.lastFailure = time.Time{}
}

// Reset restores a domain's bucket to its initial state.
func (l *Limiter) Reset(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.domains[domain] = l.newBucket(domain)
}

// Stats returns the current admission state for domain.
func (l *Limiter) Stats(domain string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(domain)
	now := l.now()
	b.refill(now, l.config)
	b.prune(now)

	s := Stats{
		Domain:              b.domain,
		TokensAvailable:     b.tokens,
		RequestsLastMinute:  len(b.minute),
		RequestsLastHour:    len(b.hour),
		ConsecutiveFailures: b.consecutiveFailures,
		TotalRequests:       b.totalRequests,
		TotalDelays:         b.totalDelays,
		BackoffRemaining:    b.backoffRemaining(now, l.config),
	}
	if b.totalDelays > 0 {
		s.AverageDelay = b.totalDelayTime / time.Duration(b.totalDelays)
	}
	return s
}

// Stop stops the background cleanup goroutine.
func (l *Limiter) Stop() {
	if l.cleanupTicker != nil {
		l.cleanupTicker.Stop()
	}
	if l.cleanupStop != nil {
		close(l.cleanupStop)
	}
}

func (l *Limiter) bucketFor(domain string) *bucket {
	if domain == GlobalDomain {
		return l.global
	}
	b, ok := l.domains[domain]
	if !ok {
		b = l.newBucket(domain)
		l.domains[domain] = b
	}
	b.lastAccess = l.now()
	return b
}

func (l *Limiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.removeIdleBuckets()
		case <-l.cleanupStop:
			return
		}
	}
}

// removeIdleBuckets drops domain buckets not touched for over an hour.
func (l *Limiter) removeIdleBuckets() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-time.Hour)
	for domain, b := range l.domains {
		if b.lastAccess.Before(cutoff) {
			delete(l.domains, domain)
		}
	}
}

// acquire implements one admission attempt. The caller holds the limiter
// mutex. A backoff window dominates every other limit and consumes nothing.
func (b *bucket) acquire(now time.Time, cfg *Config) time.Duration {
	if d := b.backoffRemaining(now, cfg); d > 0 {
		return d
	}

	b.refill(now, cfg)
	b.prune(now)

	if delay := b.requiredDelay(now, cfg); delay > 0 {
		b.totalDelays++
		b.totalDelayTime += delay
		return delay
	}

	b.tokens--
	b.minute = append(b.minute, now)
	b.hour = append(b.hour, now)
	b.totalRequests++
	return 0
}

// refill adds tokens for the elapsed wall-clock time, never exceeding the
// burst capacity. Rate changes from the adaptive layer alter refill speed
// but not capacity.
func (b *bucket) refill(now time.Time, cfg *Config) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
	}
	if b.tokens > float64(cfg.BurstSize) {
		b.tokens = float64(cfg.BurstSize)
	}
	b.lastRefill = now
}

func (b *bucket) prune(now time.Time) {
	minuteCutoff := now.Add(-time.Minute)
	for len(b.minute) > 0 && b.minute[0].Before(minuteCutoff) {
		b.minute = b.minute[1:]
	}
	hourCutoff := now.Add(-time.Hour)
	for len(b.hour) > 0 && b.hour[0].Before(hourCutoff) {
		b.hour = b.hour[1:]
	}
}

// requiredDelay returns the largest wait imposed by the token bucket and
// the two sliding windows; zero when a request can proceed now.
func (b *bucket) requiredDelay(now time.Time, cfg *Config) time.Duration {
	var delay time.Duration

	if b.tokens < 1 {
		needed := 1 - b.tokens
		d := time.Duration(needed / b.rate * float64(time.Second))
		if d > delay {
			delay = d
		}
	}

	if len(b.minute) >= cfg.RequestsPerMinute {
		d := time.Minute - now.Sub(b.minute[0])
		if d > delay {
			delay = d
		}
	}

	if len(b.hour) >= cfg.RequestsPerHour {
		d := time.Hour - now.Sub(b.hour[0])
		if d > delay {
			delay = d
		}
	}

	return delay
}

func (b *bucket) backoffRemaining(now time.Time, cfg *Config) time.Duration {
	if b.consecutiveFailures == 0 {
		return 0
	}
	seconds := math.Pow(cfg.BackoffFactor, float64(b.consecutiveFailures))
	window := time.Duration(seconds * float64(time.Second))
	if window > cfg.MaxBackoff {
		window = cfg.MaxBackoff
	}
	remaining := window - now.Sub(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}
