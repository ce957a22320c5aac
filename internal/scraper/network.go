package scraper

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/lead-harvester/internal/fetch"
	"github.com/jonathan/lead-harvester/internal/types"
)

const (
	networkBaseURL = "https://www.linkedin.com"
	// maxNetworkQueryLen is the longest query the network's search surface
	// accepts.
	maxNetworkQueryLen = 100
)

// NetworkScraper mines a professional network for company and people
// listings. People search requires an authenticated session cookie; without
// one the scrape degrades to company results plus a warning. Search pages
// are JavaScript-rendered, so short plain-HTTP responses are retried
// through the headless browser.
type NetworkScraper struct {
	requester
	baseURL string
}

// NewNetworkScraper creates a professional-network scraper.
func NewNetworkScraper(deps Deps) *NetworkScraper {
	return &NetworkScraper{
		requester: requester{deps: deps},
		baseURL:   networkBaseURL,
	}
}

func (s *NetworkScraper) Source() types.Source {
	return types.SourceNetwork
}

// ValidateQuery enforces the network's search limits.
func (s *NetworkScraper) ValidateQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < 2 {
		return &ValidationError{Query: query, Message: "query must be at least 2 characters"}
	}
	if len(query) > maxNetworkQueryLen {
		return &ValidationError{Query: query, Message: fmt.Sprintf("query exceeds %d characters", maxNetworkQueryLen)}
	}
	return nil
}

// Scrape runs a company search, then a people search when an authenticated
// session is configured.
func (s *NetworkScraper) Scrape(ctx context.Context, query string, cfg types.ScrapeConfig, progress ProgressFunc) (*types.Result, error) {
	start := time.Now()
	result := types.NewResult(s.Source())

	if err := s.ValidateQuery(query); err != nil {
		return nil, err
	}
	cfg = withSessionCookie(cfg)

	report(progress, 10, "searching companies")
	if err := s.searchCompanies(ctx, query, cfg, result); err != nil {
		return failResult(result, start, err)
	}

	if cfg.SessionCookie == "" {
		result.AddWarning("people search skipped - requires an authenticated session")
	} else {
		report(progress, 60, "searching people")
		if err := s.wait(ctx, cfg); err != nil {
			return failResult(result, start, &ScrapingError{URL: s.baseURL, Message: "crawl cancelled", Cause: err})
		}
		if err := s.searchPeople(ctx, query, cfg, result); err != nil {
			return failResult(result, start, err)
		}
	}

	report(progress, 100, "done")
	result.Status = types.StatusCompleted
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func (s *NetworkScraper) searchCompanies(ctx context.Context, query string, cfg types.ScrapeConfig, result *types.Result) error {
	searchURL := s.searchURL("companies", query)
	doc, err := s.fetchSearchPage(ctx, searchURL, cfg, result)
	if err != nil || doc == nil {
		return err
	}

	count := 0
	s.listingBlocks(doc).EachWithBreak(func(i int, block *goquery.Selection) bool {
		if i >= cfg.MaxPages*resultsPerPage {
			return false
		}
		if company, ok := s.companyFromBlock(block); ok {
			result.AddCompany(company)
			count++
		}
		return true
	})
	if count == 0 {
		result.AddWarning("no company results found")
	}
	return nil
}

func (s *NetworkScraper) searchPeople(ctx context.Context, query string, cfg types.ScrapeConfig, result *types.Result) error {
	searchURL := s.searchURL("people", query)
	doc, err := s.fetchSearchPage(ctx, searchURL, cfg, result)
	if err != nil || doc == nil {
		return err
	}

	count := 0
	s.listingBlocks(doc).EachWithBreak(func(i int, block *goquery.Selection) bool {
		if i >= cfg.MaxPages*resultsPerPage {
			return false
		}
		if contact, ok := s.contactFromBlock(block); ok {
			result.AddContact(contact)
			count++
		}
		return true
	})
	if count == 0 {
		result.AddWarning("no people results found")
	}
	return nil
}

// fetchSearchPage fetches one search page, falling back to the headless
// browser when the plain response looks JavaScript-rendered. A nil document
// with a nil error means the page produced a warning instead of listings.
func (s *NetworkScraper) fetchSearchPage(ctx context.Context, searchURL string, cfg types.ScrapeConfig, result *types.Result) (*goquery.Document, error) {
	fetched, err := s.get(ctx, searchURL, cfg)
	if err != nil {
		return nil, err
	}
	html := fetched.HTML

	if isAuthWall(html) {
		result.AddWarning("search requires an authenticated session")
		return nil, nil
	}

	text, textErr := fetch.ExtractMainText(html, fetch.DefaultTextSelectors())
	if textErr == nil && fetch.ShouldUseBrowser(text) {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = fetch.DefaultTimeout
		}
		rendered, renderErr := fetch.Render(ctx, searchURL, timeout, s.deps.Verbose)
		if renderErr != nil {
			if s.deps.Verbose {
				log.Printf("[SCRAPER] browser render failed for %s, using plain response: %v", searchURL, renderErr)
			}
		} else {
			html = rendered
		}
		if looksLikeChallenge(html) {
			return nil, &BlockedError{URL: searchURL, Message: "security challenge detected"}
		}
		if isAuthWall(html) {
			result.AddWarning("search requires an authenticated session")
			return nil, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ScrapingError{URL: searchURL, Message: "failed to parse search page", Cause: err}
	}
	result.MarkScraped(searchURL)
	return doc, nil
}

func (s *NetworkScraper) searchURL(kind, query string) string {
	values := url.Values{}
	values.Set("keywords", strings.TrimSpace(query))
	return fmt.Sprintf("%s/search/results/%s/?%s", s.baseURL, kind, values.Encode())
}

// listingBlocks selects search-result entries, tolerating both the legacy
// and current result markup.
func (s *NetworkScraper) listingBlocks(doc *goquery.Document) *goquery.Selection {
	blocks := doc.Find(".search-result__wrapper")
	if blocks.Length() == 0 {
		blocks = doc.Find(".entity-result")
	}
	return blocks
}

func (s *NetworkScraper) companyFromBlock(block *goquery.Selection) (types.Company, bool) {
	name := firstText(block, ".search-result__title", ".entity-result__title-text", "h3")
	if name == "" {
		return types.Company{}, false
	}
	company := types.Company{
		Name:     name,
		Industry: firstText(block, ".search-result__subtitle", ".entity-result__primary-subtitle"),
		Source:   s.Source(),
	}
	if href, ok := block.Find("a[href]").First().Attr("href"); ok {
		company.Website = absoluteURL(s.baseURL, href)
	}
	return company, true
}

func (s *NetworkScraper) contactFromBlock(block *goquery.Selection) (types.Contact, bool) {
	name := firstText(block, ".search-result__title", ".entity-result__title-text", "h3")
	if name == "" {
		return types.Contact{}, false
	}
	contact := types.Contact{
		FullName: name,
		JobTitle: firstText(block, ".search-result__subtitle", ".entity-result__primary-subtitle"),
		Source:   s.Source(),
	}
	parts := strings.Fields(name)
	contact.FirstName = parts[0]
	if len(parts) > 1 {
		contact.LastName = strings.Join(parts[1:], " ")
	}
	return contact, true
}

// withSessionCookie copies the session cookie into the request headers so
// the shared fetch path sends it.
func withSessionCookie(cfg types.ScrapeConfig) types.ScrapeConfig {
	if cfg.SessionCookie == "" {
		return cfg
	}
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	headers["Cookie"] = cfg.SessionCookie
	cfg.Headers = headers
	return cfg
}

func isAuthWall(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "authwall") || strings.Contains(lower, "sign in to continue")
}

// firstText returns the first non-empty trimmed text among the selectors.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(s.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func absoluteURL(base, href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(parsed).String()
}
