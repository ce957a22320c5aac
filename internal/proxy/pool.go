package proxy

import (
	"context"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTestURL is the endpoint used for proxy connectivity tests.
const DefaultTestURL = "http://httpbin.org/ip"

// DefaultHealthCheckInterval is how long a passing proxy stays trusted
// before it is re-tested.
const DefaultHealthCheckInterval = 5 * time.Minute

// PoolConfig configures a Pool.
type PoolConfig struct {
	Proxies             []Config      `json:"proxies"`
	TestURL             string        `json:"test_url"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	Verbose             bool          `json:"verbose"`
}

// PoolStats is a point-in-time summary of the pool.
type PoolStats struct {
	TotalProxies       int     `json:"total_proxies"`
	ActiveProxies      int     `json:"active_proxies"`
	BlockedDomains     int     `json:"blocked_domains"`
	AverageSuccessRate float64 `json:"average_success_rate"`
}

// Pool owns a set of proxies, a domain affinity map, and a blocked-domain
// set. All state is guarded by a single mutex; proxies are only mutated
// through the pool.
type Pool struct {
	mu             sync.Mutex
	proxies        []*Proxy
	affinity       map[string]*Proxy
	blockedDomains map[string]bool
	rotationIndex  int

	testURL             string
	healthCheckInterval time.Duration
	verbose             bool

	now    func() time.Time
	probe  func(ctx context.Context, p *Proxy) bool // injectable for tests
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPool creates a pool from the given configuration. Proxies start
// inactive; call Initialize to test them.
func NewPool(cfg *PoolConfig) *Pool {
	if cfg == nil {
		cfg = &PoolConfig{}
	}
	p := &Pool{
		affinity:            make(map[string]*Proxy),
		blockedDomains:      make(map[string]bool),
		testURL:             cfg.TestURL,
		healthCheckInterval: cfg.HealthCheckInterval,
		verbose:             cfg.Verbose,
		now:                 time.Now,
	}
	if p.testURL == "" {
		p.testURL = DefaultTestURL
	}
	if p.healthCheckInterval <= 0 {
		p.healthCheckInterval = DefaultHealthCheckInterval
	}
	p.probe = p.httpProbe
	for _, c := range cfg.Proxies {
		p.proxies = append(p.proxies, newProxy(c))
	}
	return p
}

// Add registers a new proxy in the pool.
func (p *Pool) Add(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proxies = append(p.proxies, newProxy(cfg))
}

// Remove drops a proxy and any affinity entries pointing at it.
func (p *Pool) Remove(host string, port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, px := range p.proxies {
		if px.Host == host && px.Port == port {
			p.proxies = append(p.proxies[:i], p.proxies[i+1:]...)
			for domain, mapped := range p.affinity {
				if mapped == px {
					delete(p.affinity, domain)
				}
			}
			return true
		}
	}
	return false
}

// Initialize tests every proxy in parallel and reports how many came up.
func (p *Pool) Initialize(ctx context.Context) int {
	p.mu.Lock()
	proxies := make([]*Proxy, len(p.proxies))
	copy(proxies, p.proxies)
	p.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, px := range proxies {
		px := px
		g.Go(func() error {
			p.TestConnection(ctx, px)
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	active := 0
	for _, px := range p.proxies {
		if px.Status == StatusActive {
			active++
		}
	}
	if p.verbose {
		log.Printf("[PROXY] initialized %d/%d proxies", active, len(p.proxies))
	}
	return active
}

// AssignForDomain returns the proxy to use for a target domain, or nil when
// none is eligible. The sticky assignment is reused while it stays healthy;
// otherwise the eligible proxy with the best success rate (latency as
// tiebreak) becomes the new sticky assignment. The returned proxy has its
// active-request count incremented; RecordOutcome releases it.
func (p *Pool) AssignForDomain(domain string) *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.blockedDomains[domain] {
		return nil
	}

	if px, ok := p.affinity[domain]; ok {
		if px.eligible() {
			px.ActiveRequests++
			return px
		}
		delete(p.affinity, domain)
	}

	candidates := p.eligibleLocked()
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].Stats.SuccessRate(), candidates[j].Stats.SuccessRate()
		if ri != rj {
			return ri > rj
		}
		return candidates[i].Stats.AverageLatency() < candidates[j].Stats.AverageLatency()
	})

	best := candidates[0]
	p.affinity[domain] = best
	best.ActiveRequests++
	return best
}

// NextRoundRobin returns the next eligible proxy in rotation order, or nil.
func (p *Pool) NextRoundRobin() *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := p.eligibleLocked()
	if len(candidates) == 0 {
		return nil
	}
	px := candidates[p.rotationIndex%len(candidates)]
	p.rotationIndex++
	px.ActiveRequests++
	return px
}

// RecordOutcome records the result of one request made through a proxy and
// releases the active-request slot taken at assignment. A blocked outcome
// also marks the target domain blocked pool-wide and evicts its affinity.
func (p *Pool) RecordOutcome(px *Proxy, domain string, success bool, latency time.Duration, blocked, rateLimited bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if px.ActiveRequests > 0 {
		px.ActiveRequests--
	}

	now := p.now()
	px.Stats.TotalRequests++
	px.Stats.LastUsed = now

	switch {
	case success:
		px.Stats.SuccessfulRequests++
		px.Stats.TotalLatency += latency
		px.Stats.LastSuccess = now
		px.Stats.ConsecutiveFailures = 0
		// A success recovers an errored proxy, but not a blocked one: the
		// target may still be watching that identity, so blocked proxies
		// must pass a fresh health check first.
		if px.Status == StatusError {
			px.Status = StatusActive
		}
	case blocked:
		px.Stats.BlockedRequests++
		px.Stats.LastFailure = now
		px.Status = StatusBlocked
		p.blockedDomains[domain] = true
		if p.affinity[domain] == px {
			delete(p.affinity, domain)
		}
		if p.verbose {
			log.Printf("[PROXY] %s blocked on %s, domain quarantined", px.Key(), domain)
		}
	case rateLimited:
		px.Stats.RateLimitedRequests++
		px.Stats.LastFailure = now
		px.Status = StatusRateLimited
	default:
		px.recordFailure(now)
	}
}

// TestConnection probes the proxy against the pool's test endpoint. A pass
// restores the proxy to active regardless of its previous state.
func (p *Pool) TestConnection(ctx context.Context, px *Proxy) bool {
	p.mu.Lock()
	px.Status = StatusTesting
	p.mu.Unlock()

	start := p.now()
	ok := p.probe(ctx, px)

	p.mu.Lock()
	defer p.mu.Unlock()

	px.Stats.TotalRequests++
	px.Stats.LastUsed = p.now()
	px.LastHealthCheck = p.now()
	if ok {
		px.Status = StatusActive
		px.Stats.SuccessfulRequests++
		px.Stats.TotalLatency += p.now().Sub(start)
		px.Stats.LastSuccess = p.now()
		px.Stats.ConsecutiveFailures = 0
	} else {
		px.Status = StatusInactive
		px.recordFailure(p.now())
	}
	return ok
}

// HealthCheckDue returns the proxies due for a connectivity re-test.
func (p *Pool) HealthCheckDue() []*Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var due []*Proxy
	for _, px := range p.proxies {
		if px.needsHealthCheck(p.healthCheckInterval, now) {
			due = append(due, px)
		}
	}
	return due
}

// RunHealthChecks re-tests every due proxy in parallel.
func (p *Pool) RunHealthChecks(ctx context.Context) {
	due := p.HealthCheckDue()
	if len(due) == 0 {
		return
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, px := range due {
		px := px
		g.Go(func() error {
			p.TestConnection(ctx, px)
			return nil
		})
	}
	_ = g.Wait()
}

// Start launches the background health-check loop. Stop ends it.
func (p *Pool) Start(ctx context.Context) {
	p.stopCh = make(chan struct{})
	ticker := time.NewTicker(p.healthCheckInterval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.RunHealthChecks(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the health-check loop and waits for it to exit.
func (p *Pool) Stop() {
	if p.stopCh != nil {
		close(p.stopCh)
		p.wg.Wait()
	}
}

// ClearBlockedDomains forgets every quarantined domain and all sticky
// assignments.
func (p *Pool) ClearBlockedDomains() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockedDomains = make(map[string]bool)
	p.affinity = make(map[string]*Proxy)
}

// Stats summarizes the pool.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PoolStats{
		TotalProxies:   len(p.proxies),
		BlockedDomains: len(p.blockedDomains),
	}
	var rateSum float64
	for _, px := range p.proxies {
		if px.Status == StatusActive {
			s.ActiveProxies++
			rateSum += px.Stats.SuccessRate()
		}
	}
	if s.ActiveProxies > 0 {
		s.AverageSuccessRate = rateSum / float64(s.ActiveProxies)
	}
	return s
}

func (p *Pool) eligibleLocked() []*Proxy {
	var out []*Proxy
	for _, px := range p.proxies {
		if px.eligible() {
			out = append(out, px)
		}
	}
	return out
}

// httpProbe fetches the test URL through the proxy.
func (p *Pool) httpProbe(ctx context.Context, px *Proxy) bool {
	client := &http.Client{
		Timeout: px.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(px.URL()),
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.testURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
