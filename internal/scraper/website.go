package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/lead-harvester/internal/fetch"
	"github.com/jonathan/lead-harvester/internal/types"
)

// maxRelevantLinks caps how many candidate contact/about pages are
// discovered from the seed page before the MaxPages budget is applied.
const maxRelevantLinks = 10

// WebsiteScraper crawls one company website: the seed page plus pages whose
// links suggest contact or team content, extracting person records and
// synthesizing a company record from what it finds.
type WebsiteScraper struct {
	requester
	robots *robotsGate

	// pageInfo accumulates company fields mined across pages during one
	// Scrape call. Instances are created per job and are not safe for
	// concurrent Scrape calls.
	pageInfo map[string]string
}

// NewWebsiteScraper creates a website scraper with a fresh robots.txt cache.
func NewWebsiteScraper(deps Deps) *WebsiteScraper {
	return &WebsiteScraper{
		requester: requester{deps: deps},
		robots:    newRobotsGate(),
	}
}

func (s *WebsiteScraper) Source() types.Source {
	return types.SourceWebsite
}

// ValidateQuery accepts an absolute http(s) URL or a bare domain.
func (s *WebsiteScraper) ValidateQuery(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return &ValidationError{Query: query, Message: "query is empty"}
	}
	if strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://") {
		parsed, err := url.Parse(query)
		if err != nil || parsed.Host == "" {
			return &ValidationError{Query: query, Message: "not a valid URL"}
		}
		return nil
	}
	if !domainPattern.MatchString(query) {
		return &ValidationError{Query: query, Message: "not a valid URL or domain"}
	}
	return nil
}

// Scrape crawls the site identified by query. Individual page failures are
// recorded as warnings and the crawl continues; rate-limit and blocked
// responses abort with a typed error for the scheduler to classify.
func (s *WebsiteScraper) Scrape(ctx context.Context, query string, cfg types.ScrapeConfig, progress ProgressFunc) (*types.Result, error) {
	start := time.Now()
	result := types.NewResult(s.Source())

	if err := s.ValidateQuery(query); err != nil {
		return nil, err
	}
	baseURL := normalizeURL(query)

	if cfg.RespectRobotsTxt && !s.robots.canFetch(ctx, baseURL, s.fetchOptions(cfg)) {
		return failResult(result, start, &ScrapingError{URL: baseURL, Message: "robots.txt disallows crawling"})
	}

	report(progress, 5, "fetching "+baseURL)

	// The seed page both yields records and seeds link discovery.
	seedDoc, err := s.scrapePage(ctx, baseURL, cfg, result)
	if err != nil {
		return failResult(result, start, err)
	}

	pages := []string{}
	if seedDoc != nil {
		pages = relevantLinks(seedDoc, baseURL, maxRelevantLinks)
	}
	if len(pages) > cfg.MaxPages {
		pages = pages[:cfg.MaxPages]
	}

	for i, pageURL := range pages {
		if result.ScrapedURLs[pageURL] {
			continue
		}
		report(progress, 10+80*float64(i)/float64(len(pages)), "fetching "+pageURL)

		if err := s.wait(ctx, cfg); err != nil {
			return failResult(result, start, &ScrapingError{URL: pageURL, Message: "crawl cancelled", Cause: err})
		}
		if _, err := s.scrapePage(ctx, pageURL, cfg, result); err != nil {
			return failResult(result, start, err)
		}
	}

	if company, ok := s.synthesizeCompany(baseURL, result); ok {
		result.AddCompany(company)
	}

	report(progress, 100, "done")
	result.Status = types.StatusCompleted
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// scrapePage fetches and mines one page. Transport failures that are not
// rate-limit or blocked class degrade to a warning and a nil document.
func (s *WebsiteScraper) scrapePage(ctx context.Context, pageURL string, cfg types.ScrapeConfig, result *types.Result) (*goquery.Document, error) {
	if s.deps.Verbose {
		log.Printf("[SCRAPER] scraping page: %s", pageURL)
	}

	fetched, err := s.get(ctx, pageURL, cfg)
	if err != nil {
		var rle *RateLimitError
		var be *BlockedError
		if errors.As(err, &rle) || errors.As(err, &be) {
			return nil, err
		}
		result.AddWarning(fmt.Sprintf("failed to scrape page %s: %v", pageURL, err))
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fetched.HTML))
	if err != nil {
		result.AddWarning(fmt.Sprintf("failed to parse page %s: %v", pageURL, err))
		return nil, nil
	}

	result.MarkScraped(pageURL)

	for _, contact := range extractContacts(doc, s.Source()) {
		result.AddContact(contact)
	}

	s.minePageInfo(doc, result)
	return doc, nil
}

// minePageInfo accumulates company fields across pages, first value wins.
func (s *WebsiteScraper) minePageInfo(doc *goquery.Document, result *types.Result) {
	if s.pageInfo == nil {
		s.pageInfo = make(map[string]string)
	}
	set := func(key, value string) {
		if value != "" && s.pageInfo[key] == "" {
			s.pageInfo[key] = value
		}
	}
	set("name", extractCompanyName(doc))
	set("title", extractTitle(doc))
	set("description", extractBusinessDescription(doc))
	if s.pageInfo["description"] == "" {
		set("description", extractDescription(doc))
	}
	if m := addressPattern.FindString(doc.Text()); m != "" {
		set("address", strings.TrimSpace(m))
	}
	for platform, link := range extractSocialLinks(doc) {
		set("social:"+platform, link)
	}
}

// synthesizeCompany builds the site's company record from mined page data,
// falling back to a domain-derived name.
func (s *WebsiteScraper) synthesizeCompany(baseURL string, result *types.Result) (types.Company, bool) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return types.Company{}, false
	}
	domain := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")

	name := s.pageInfo["name"]
	if name == "" {
		name = s.pageInfo["title"]
	}
	if name == "" && domain != "" {
		name = titleCase(strings.SplitN(domain, ".", 2)[0])
	}
	if name == "" {
		return types.Company{}, false
	}

	company := types.Company{
		Name:        name,
		Domain:      domain,
		Website:     baseURL,
		Description: s.pageInfo["description"],
		Address:     s.pageInfo["address"],
		Phone:       primaryPhone(result),
		Source:      s.Source(),
	}
	for key, value := range s.pageInfo {
		if platform, ok := strings.CutPrefix(key, "social:"); ok {
			if company.SocialMedia == nil {
				company.SocialMedia = make(map[string]string)
			}
			company.SocialMedia[platform] = value
		}
	}
	return company, true
}

func primaryPhone(result *types.Result) string {
	for _, contact := range result.Contacts {
		if contact.Phone != "" {
			return contact.Phone
		}
	}
	return ""
}

// fetchOptions builds the options used for out-of-band fetches like
// robots.txt, which bypass the retry path.
func (s *WebsiteScraper) fetchOptions(cfg types.ScrapeConfig) *fetch.Options {
	opts := fetch.DefaultOptions()
	if cfg.RequestTimeout > 0 {
		opts.Timeout = cfg.RequestTimeout
	}
	if cfg.UserAgent != "" {
		opts.UserAgent = cfg.UserAgent
	}
	return opts
}

// normalizeURL prepends https:// to bare domains.
func normalizeURL(query string) string {
	query = strings.TrimSpace(query)
	if !strings.HasPrefix(query, "http://") && !strings.HasPrefix(query, "https://") {
		return "https://" + query
	}
	return query
}

func report(progress ProgressFunc, percent float64, message string) {
	if progress != nil {
		progress(percent, message)
	}
}
