package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/jonathan/lead-harvester/internal/proxy"
	"github.com/jonathan/lead-harvester/internal/types"
)

// ProgressFunc receives progress updates (0-100) with a short status
// message while a scrape runs.
type ProgressFunc func(percent float64, message string)

// Scraper is the capability every source variant implements. Before each
// outbound request a scraper consults the rate limiter and, when
// configured, the proxy pool; 429-class responses surface as
// *RateLimitError and 403/challenge-class responses as *BlockedError so
// the scheduler can classify the job's terminal status.
type Scraper interface {
	Source() types.Source
	ValidateQuery(query string) error
	Scrape(ctx context.Context, query string, cfg types.ScrapeConfig, progress ProgressFunc) (*types.Result, error)
}

// Limiter is the admission-control surface scrapers depend on.
type Limiter interface {
	Acquire(domain string) time.Duration
	RecordSuccess(domain string)
	RecordFailure(domain string)
}

// OutcomeRecorder is implemented by the adaptive limiter; when available it
// is preferred over plain success/failure recording.
type OutcomeRecorder interface {
	RecordOutcome(domain string, success bool)
}

// Pool is the egress-identity surface scrapers depend on.
type Pool interface {
	AssignForDomain(domain string) *proxy.Proxy
	RecordOutcome(px *proxy.Proxy, domain string, success bool, latency time.Duration, blocked, rateLimited bool)
}

// Deps bundles the shared collaborators handed to every scraper variant.
type Deps struct {
	Limiter Limiter
	Pool    Pool
	Verbose bool
}

// failResult records err on the partially built result, stamps its terminal
// status from the error type, and hands both back. Pages scraped before the
// failure stay on the result instead of being discarded.
func failResult(result *types.Result, start time.Time, err error) (*types.Result, error) {
	result.AddError(err.Error())
	result.ExecutionTime = time.Since(start)

	var rle *RateLimitError
	var be *BlockedError
	switch {
	case errors.As(err, &rle):
		result.Status = types.StatusRateLimited
	case errors.As(err, &be):
		result.Status = types.StatusBlocked
	default:
		result.Status = types.StatusFailed
	}
	return result, err
}
