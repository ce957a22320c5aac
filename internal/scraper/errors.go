// Package scraper provides the scraping capability interface, its concrete
// source variants, and the shared request plumbing they use.
package scraper

import "fmt"

// ValidationError reports a query a scraper cannot work with.
type ValidationError struct {
	Query   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Message)
}

// RateLimitError reports a 429-class response from a target. It is never
// retried locally; the scheduler records the job as rate limited.
type RateLimitError struct {
	URL     string
	Message string
	Cause   error
}

func (e *RateLimitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rate limited at %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("rate limited at %s: %s", e.URL, e.Message)
}

func (e *RateLimitError) Unwrap() error {
	return e.Cause
}

// BlockedError reports a 403 or bot-challenge response from a target. It is
// never retried locally; the scheduler records the job as blocked.
type BlockedError struct {
	URL     string
	Message string
	Cause   error
}

func (e *BlockedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("blocked at %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("blocked at %s: %s", e.URL, e.Message)
}

func (e *BlockedError) Unwrap() error {
	return e.Cause
}

// ScrapingError is a generic scraping failure: network errors, timeouts, or
// parse failures that exhausted their retries.
type ScrapingError struct {
	URL     string
	Message string
	Cause   error
}

func (e *ScrapingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scraping error at %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("scraping error at %s: %s", e.URL, e.Message)
}

func (e *ScrapingError) Unwrap() error {
	return e.Cause
}
