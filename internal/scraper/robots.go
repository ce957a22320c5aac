package scraper

import (
	"bufio"
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/jonathan/lead-harvester/internal/fetch"
)

// robotsGate caches per-host robots.txt rules and answers whether a URL may
// be crawled. Any failure to fetch or parse the file defaults to allow, so
// an unreachable robots.txt never stalls a crawl.
type robotsGate struct {
	mu    sync.Mutex
	rules map[string]*robotsRules
}

type robotsRules struct {
	disallow []string
	allow    []string
}

func newRobotsGate() *robotsGate {
	return &robotsGate{rules: make(map[string]*robotsRules)}
}

// canFetch reports whether robots.txt permits fetching rawURL. Rules are
// fetched once per host and cached for the gate's lifetime.
func (g *robotsGate) canFetch(ctx context.Context, rawURL string, opts *fetch.Options) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}

	g.mu.Lock()
	rules, ok := g.rules[parsed.Host]
	g.mu.Unlock()

	if !ok {
		rules = g.load(ctx, parsed, opts)
		g.mu.Lock()
		g.rules[parsed.Host] = rules
		g.mu.Unlock()
	}

	return rules.allows(parsed.Path)
}

func (g *robotsGate) load(ctx context.Context, pageURL *url.URL, opts *fetch.Options) *robotsRules {
	robotsURL := pageURL.Scheme + "://" + pageURL.Host + "/robots.txt"
	result, err := fetch.URL(ctx, robotsURL, opts)
	if err != nil {
		return &robotsRules{}
	}
	return parseRobots(result.HTML)
}

// parseRobots extracts the Allow/Disallow rules that apply to the wildcard
// user agent. Only the * group is honored; crawl-delay and sitemap
// directives are ignored.
func parseRobots(body string) *robotsRules {
	rules := &robotsRules{}
	applies := false

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			applies = value == "*"
		case "disallow":
			if applies && value != "" {
				rules.disallow = append(rules.disallow, value)
			}
		case "allow":
			if applies && value != "" {
				rules.allow = append(rules.allow, value)
			}
		}
	}
	return rules
}

// allows applies longest-prefix-match semantics: the most specific matching
// rule wins, with allow beating disallow on equal length.
func (r *robotsRules) allows(path string) bool {
	if path == "" {
		path = "/"
	}

	longestAllow, longestDisallow := -1, -1
	for _, prefix := range r.allow {
		if strings.HasPrefix(path, prefix) && len(prefix) > longestAllow {
			longestAllow = len(prefix)
		}
	}
	for _, prefix := range r.disallow {
		if strings.HasPrefix(path, prefix) && len(prefix) > longestDisallow {
			longestDisallow = len(prefix)
		}
	}
	return longestAllow >= longestDisallow
}
