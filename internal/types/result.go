package types

import "time"

// Result is the output of one scraper invocation.
//
// A result may report StatusCompleted with a non-empty Errors list: page
// and record level failures are collected rather than aborting the run, so
// partial output from a mostly-successful crawl is preserved.
type Result struct {
	Source        Source          `json:"source"`
	Status        JobStatus       `json:"status"`
	Companies     []Company       `json:"companies"`
	Contacts      []Contact       `json:"contacts"`
	ScrapedURLs   map[string]bool `json:"scraped_urls"`
	PagesScraped  int             `json:"pages_scraped"`
	TotalRecords  int             `json:"total_records"`
	ExecutionTime time.Duration   `json:"execution_time"`
	Errors        []string        `json:"errors,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewResult creates an empty result for the given source.
func NewResult(source Source) *Result {
	return &Result{
		Source:      source,
		Status:      StatusRunning,
		ScrapedURLs: make(map[string]bool),
		Timestamp:   time.Now().UTC(),
	}
}

// AddCompany appends a company record and bumps the record counter.
func (r *Result) AddCompany(c Company) {
	r.Companies = append(r.Companies, c)
	r.TotalRecords++
}

// AddContact appends a contact record and bumps the record counter.
func (r *Result) AddContact(c Contact) {
	r.Contacts = append(r.Contacts, c)
	r.TotalRecords++
}

// AddError records a non-fatal error message.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddWarning records a warning message.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// MarkScraped records a visited URL and bumps the page counter.
func (r *Result) MarkScraped(url string) {
	if !r.ScrapedURLs[url] {
		r.ScrapedURLs[url] = true
		r.PagesScraped++
	}
}
