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

	"github.com/jonathan/lead-harvester/internal/types"
)

const (
	searchBaseURL = "https://www.google.com/search"
	// resultsPerPage is the listing count one results page carries.
	resultsPerPage = 10
)

// prohibitedTerms are query words the search variant refuses to crawl for.
var prohibitedTerms = []string{"illegal", "adult", "gambling"}

// SearchScraper mines search-engine results pages for business listings.
// Each listing block yields a company record built from its title, link,
// and snippet text.
type SearchScraper struct {
	requester
	baseURL string
}

// NewSearchScraper creates a search-engine scraper.
func NewSearchScraper(deps Deps) *SearchScraper {
	return &SearchScraper{
		requester: requester{deps: deps},
		baseURL:   searchBaseURL,
	}
}

func (s *SearchScraper) Source() types.Source {
	return types.SourceSearchEngine
}

// ValidateQuery rejects queries that are too short or contain prohibited
// terms.
func (s *SearchScraper) ValidateQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < 2 {
		return &ValidationError{Query: query, Message: "query must be at least 2 characters"}
	}
	lower := strings.ToLower(trimmed)
	for _, term := range prohibitedTerms {
		if strings.Contains(lower, term) {
			return &ValidationError{Query: query, Message: fmt.Sprintf("query contains prohibited term %q", term)}
		}
	}
	return nil
}

// Scrape walks up to MaxPages result pages for the query. Pagination stops
// early when a page yields no listings.
func (s *SearchScraper) Scrape(ctx context.Context, query string, cfg types.ScrapeConfig, progress ProgressFunc) (*types.Result, error) {
	start := time.Now()
	result := types.NewResult(s.Source())

	if err := s.ValidateQuery(query); err != nil {
		return nil, err
	}

	seenDomains := make(map[string]bool)
	for page := 0; page < cfg.MaxPages; page++ {
		pageURL := s.resultsURL(query, page)
		report(progress, 100*float64(page)/float64(cfg.MaxPages), fmt.Sprintf("results page %d", page+1))

		if page > 0 {
			if err := s.wait(ctx, cfg); err != nil {
				return failResult(result, start, &ScrapingError{URL: pageURL, Message: "crawl cancelled", Cause: err})
			}
		}

		count, err := s.scrapeResultsPage(ctx, pageURL, cfg, result, seenDomains)
		if err != nil {
			var rle *RateLimitError
			var be *BlockedError
			if errors.As(err, &rle) || errors.As(err, &be) {
				return failResult(result, start, err)
			}
			result.AddWarning(fmt.Sprintf("failed to scrape results page %d: %v", page+1, err))
			continue
		}
		if count == 0 {
			if s.deps.Verbose {
				log.Printf("[SCRAPER] no listings on page %d, stopping pagination", page+1)
			}
			break
		}
	}

	report(progress, 100, "done")
	result.Status = types.StatusCompleted
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// resultsURL builds the results-page URL. The query is wrapped in quotes
// and extended with contact keywords so snippets surface phone numbers and
// emails.
func (s *SearchScraper) resultsURL(query string, page int) string {
	q := fmt.Sprintf("%q contact phone email", strings.TrimSpace(query))
	values := url.Values{}
	values.Set("q", q)
	if page > 0 {
		values.Set("start", fmt.Sprintf("%d", page*resultsPerPage))
	}
	return s.baseURL + "?" + values.Encode()
}

// scrapeResultsPage fetches one results page and converts its listing
// blocks into company records, deduplicated by domain.
func (s *SearchScraper) scrapeResultsPage(ctx context.Context, pageURL string, cfg types.ScrapeConfig, result *types.Result, seenDomains map[string]bool) (int, error) {
	fetched, err := s.get(ctx, pageURL, cfg)
	if err != nil {
		return 0, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fetched.HTML))
	if err != nil {
		return 0, &ScrapingError{URL: pageURL, Message: "failed to parse results page", Cause: err}
	}

	result.MarkScraped(pageURL)

	count := 0
	doc.Find("div.g").EachWithBreak(func(i int, block *goquery.Selection) bool {
		if i >= 2*resultsPerPage {
			return false
		}
		company, ok := s.companyFromListing(block)
		if !ok {
			return true
		}
		count++
		if company.Domain != "" && seenDomains[company.Domain] {
			return true
		}
		if company.Domain != "" {
			seenDomains[company.Domain] = true
		}
		result.AddCompany(company)
		return true
	})
	return count, nil
}

// companyFromListing extracts a company from one result block: h3 title,
// enclosing link href, and snippet text mined for phone and email.
func (s *SearchScraper) companyFromListing(block *goquery.Selection) (types.Company, bool) {
	title := strings.TrimSpace(block.Find("h3").First().Text())
	href, _ := block.Find("a[href]").First().Attr("href")
	if title == "" || href == "" {
		return types.Company{}, false
	}

	company := types.Company{
		Name:    title,
		Website: href,
		Domain:  domainOf(href),
		Source:  s.Source(),
	}

	snippet := strings.TrimSpace(block.Find(".VwiC3b").First().Text())
	if snippet == "" {
		// Snippet markup varies; fall back to the block text minus the title.
		snippet = strings.TrimSpace(strings.Replace(block.Text(), title, "", 1))
	}
	if snippet != "" {
		company.Description = snippet
		if m := phonePattern.FindStringSubmatch(snippet); m != nil {
			company.Phone = m[1] + m[2] + m[3]
		}
		if email := emailPattern.FindString(snippet); email != "" {
			company.Email = email
		}
	}
	return company, true
}

// domainOf extracts the lowercased host without the www prefix.
func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
}
