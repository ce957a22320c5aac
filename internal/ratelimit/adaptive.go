package ratelimit

const (
	// outcomeWindow is how many recent outcomes are tracked per domain.
	outcomeWindow = 100
	// cleanStreak is how many consecutive successes earn a rate increase.
	cleanStreak = 10

	maxAdaptiveRate = 5.0
	minAdaptiveRate = 0.1
)

// AdaptiveLimiter layers outcome-driven rate adjustment on top of a
// Limiter. Domains that keep responding cleanly are crawled faster over
// time; a single failure halves the rate immediately.
type AdaptiveLimiter struct {
	*Limiter
	outcomes map[string][]bool // true = success, newest last
}

// NewAdaptive creates an adaptive limiter with the given configuration, or
// defaults when config is nil.
func NewAdaptive(config *Config) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		Limiter:  NewLimiter(config),
		outcomes: make(map[string][]bool),
	}
}

// RecordOutcome records the result of one request and adjusts the domain's
// refill rate: ten consecutive successes raise it by 10% (capped), any
// failure halves it (floored). It subsumes RecordSuccess/RecordFailure.
func (a *AdaptiveLimiter) RecordOutcome(domain string, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	window := append(a.outcomes[domain], success)
	if len(window) > outcomeWindow {
		window = window[len(window)-outcomeWindow:]
	}
	a.outcomes[domain] = window

	b := a.bucketFor(domain)
	if success {
		b.consecutiveFailures = 0
		if tailSuccesses(window) >= cleanStreak {
			b.rate = min(b.rate*1.1, maxAdaptiveRate)
		}
		return
	}

	b.consecutiveFailures++
	b.lastFailure = a.now()
	b.rate = max(b.rate*0.5, minAdaptiveRate)
}

// Rate returns the current refill rate for a domain.
func (a *AdaptiveLimiter) Rate(domain string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bucketFor(domain).rate
}

func tailSuccesses(window []bool) int {
	n := 0
	for i := len(window) - 1; i >= 0; i-- {
		if !window[i] {
			break
		}
		n++
	}
	return n
}
