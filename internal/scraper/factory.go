package scraper

import (
	"fmt"
	"strings"

	"github.com/jonathan/lead-harvester/internal/types"
)

// searchEngineDomains identify queries that point at a search engine or a
// business-listing surface it hosts.
var searchEngineDomains = []string{
	"google.com",
	"maps.google.com",
	"business.google.com",
}

// businessKeywords bias ambiguous free-text queries toward the search
// variant, which handles general business discovery best.
var businessKeywords = []string{
	"company",
	"business",
	"corporation",
	"inc",
	"llc",
	"ltd",
	"restaurant",
	"store",
	"shop",
	"service",
	"agency",
}

// Factory creates scraper variants sharing one set of collaborators.
type Factory struct {
	deps     Deps
	builders map[types.SourceHint]func(Deps) Scraper
}

// NewFactory creates a factory with the three built-in variants registered.
func NewFactory(deps Deps) *Factory {
	return &Factory{
		deps: deps,
		builders: map[types.SourceHint]func(Deps) Scraper{
			types.HintSearch:  func(d Deps) Scraper { return NewSearchScraper(d) },
			types.HintNetwork: func(d Deps) Scraper { return NewNetworkScraper(d) },
			types.HintWebsite: func(d Deps) Scraper { return NewWebsiteScraper(d) },
		},
	}
}

// Register adds or replaces a variant under the given hint.
func (f *Factory) Register(hint types.SourceHint, build func(Deps) Scraper) {
	f.builders[hint] = build
}

// Create returns a scraper for the given hint. HintAuto picks a variant
// from the query shape.
func (f *Factory) Create(hint types.SourceHint, query string) (Scraper, error) {
	if hint == "" || hint == types.HintAuto {
		hint = AutoSelect(query)
	}
	build, ok := f.builders[hint]
	if !ok {
		return nil, fmt.Errorf("unsupported scraper type: %s", hint)
	}
	return build(f.deps), nil
}

// Supported returns the hints the factory can build, excluding auto.
func (f *Factory) Supported() []types.SourceHint {
	hints := make([]types.SourceHint, 0, len(f.builders))
	for hint := range f.builders {
		hints = append(hints, hint)
	}
	return hints
}

// AutoSelect picks the variant best suited to a query. Professional-network
// URLs go to the network scraper, search-engine URLs and free-text business
// queries to the search scraper, and anything shaped like a URL or bare
// domain to the website scraper.
func AutoSelect(query string) types.SourceHint {
	q := strings.ToLower(strings.TrimSpace(query))

	if strings.Contains(q, "linkedin.com") {
		return types.HintNetwork
	}

	for _, domain := range searchEngineDomains {
		if strings.Contains(q, domain) {
			return types.HintSearch
		}
	}

	if strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://") || strings.Contains(query, ".") {
		return types.HintWebsite
	}

	for _, keyword := range businessKeywords {
		if strings.Contains(q, keyword) {
			return types.HintSearch
		}
	}

	return types.HintSearch
}
