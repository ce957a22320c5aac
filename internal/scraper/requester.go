package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/lead-harvester/internal/fetch"
	"github.com/jonathan/lead-harvester/internal/proxy"
	"github.com/jonathan/lead-harvester/internal/ratelimit"
	"github.com/jonathan/lead-harvester/internal/types"
)

// challengeMarkers are substrings that identify a bot-challenge page served
// with a success status.
var challengeMarkers = []string{
	"unusual traffic",
	"are you a robot",
	"g-recaptcha",
	"cf-challenge",
	"checking your browser",
}

// requester is the shared request helper embedded in every scraper variant.
// It gates each request on the rate limiter, routes through the proxy pool
// when configured, retries transient failures with linear backoff, and maps
// 429/403/challenge responses onto the error taxonomy.
type requester struct {
	deps Deps
}

// get fetches one URL under admission control.
func (r *requester) get(ctx context.Context, rawURL string, cfg types.ScrapeConfig) (*fetch.Result, error) {
	domain := ratelimit.Domain(rawURL)

	if err := r.waitAdmission(ctx, domain); err != nil {
		return nil, err
	}

	var px *proxy.Proxy
	if cfg.UseProxy && r.deps.Pool != nil {
		px = r.deps.Pool.AssignForDomain(domain)
		if px == nil && r.deps.Verbose {
			log.Printf("[FETCH] no eligible proxy for %s, falling back to direct connection", domain)
		}
	}

	opts := &fetch.Options{
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
		Headers:   cfg.Headers,
	}
	if opts.Timeout <= 0 {
		opts.Timeout = fetch.DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = fetch.DefaultUserAgent
	}
	if px != nil {
		opts.Proxy = px.URL()
	}

	result, err := r.fetchWithRetries(ctx, rawURL, cfg, opts)

	r.recordOutcome(px, domain, result, err)
	return result, err
}

// waitAdmission sleeps out whatever delay the limiter imposes, re-acquiring
// until a token is granted. Concurrent callers may consume freed capacity
// between rounds, so one wait is never assumed final.
func (r *requester) waitAdmission(ctx context.Context, domain string) error {
	if r.deps.Limiter == nil {
		return nil
	}
	for {
		delay := r.deps.Limiter.Acquire(domain)
		if delay <= 0 {
			return nil
		}
		if r.deps.Verbose {
			log.Printf("[RATELIMIT] waiting %v before hitting %s", delay, domain)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fetchWithRetries retries transient failures up to cfg.MaxRetries with
// linear backoff. Rate-limit and blocked responses are surfaced immediately.
func (r *requester) fetchWithRetries(ctx context.Context, rawURL string, cfg types.ScrapeConfig, opts *fetch.Options) (*fetch.Result, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fetch.URL(ctx, rawURL, opts)
		if err == nil {
			if looksLikeChallenge(result.HTML) {
				return nil, &BlockedError{URL: rawURL, Message: "bot challenge page detected"}
			}
			return result, nil
		}

		var fe *fetch.Error
		if errors.As(err, &fe) {
			switch {
			case fe.StatusCode == http.StatusTooManyRequests:
				return nil, &RateLimitError{URL: rawURL, Message: "target returned 429", Cause: err}
			case fe.StatusCode == http.StatusForbidden:
				return nil, &BlockedError{URL: rawURL, Message: "target returned 403", Cause: err}
			}
		}
		if ctx.Err() != nil {
			return nil, &ScrapingError{URL: rawURL, Message: "request cancelled", Cause: ctx.Err()}
		}

		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}

		wait := time.Duration(attempt+1) * cfg.DelayBetweenRequests
		if r.deps.Verbose {
			log.Printf("[FETCH] request failed (attempt %d), retrying in %v: %v", attempt+1, wait, err)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, &ScrapingError{URL: rawURL, Message: "request cancelled", Cause: ctx.Err()}
		}
	}

	return nil, &ScrapingError{
		URL:     rawURL,
		Message: fmt.Sprintf("request failed after %d retries", cfg.MaxRetries),
		Cause:   lastErr,
	}
}

// recordOutcome feeds the request result back into the limiter's backoff
// state and the proxy's health stats.
func (r *requester) recordOutcome(px *proxy.Proxy, domain string, result *fetch.Result, err error) {
	success := err == nil

	if r.deps.Limiter != nil {
		if rec, ok := r.deps.Limiter.(OutcomeRecorder); ok {
			rec.RecordOutcome(domain, success)
		} else if success {
			r.deps.Limiter.RecordSuccess(domain)
		} else {
			r.deps.Limiter.RecordFailure(domain)
		}
	}

	if px == nil || r.deps.Pool == nil {
		return
	}

	var (
		blocked     bool
		rateLimited bool
		latency     time.Duration
	)
	if success {
		latency = result.Elapsed
	} else {
		var be *BlockedError
		var rle *RateLimitError
		blocked = errors.As(err, &be)
		rateLimited = errors.As(err, &rle)
	}
	r.deps.Pool.RecordOutcome(px, domain, success, latency, blocked, rateLimited)
}

// wait enforces the configured inter-request delay floor within a job.
func (r *requester) wait(ctx context.Context, cfg types.ScrapeConfig) error {
	if cfg.DelayBetweenRequests <= 0 {
		return nil
	}
	select {
	case <-time.After(cfg.DelayBetweenRequests):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func looksLikeChallenge(html string) bool {
	if len(html) > 4096 {
		html = html[:4096]
	}
	lower := strings.ToLower(html)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
