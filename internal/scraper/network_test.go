package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/lead-harvester/internal/types"
)

// padding keeps fixture pages above the rendered-content threshold so the
// scraper does not reach for the headless browser.
var padding = "<p>" + strings.Repeat("professional network search results listing page content ", 12) + "</p>"

var companyResultsPage = `
<html><body>
	<div class="entity-result">
		<a href="/company/acme-widgets"><span class="entity-result__title-text">Acme Widgets</span></a>
		<div class="entity-result__primary-subtitle">Industrial Automation</div>
	</div>
	<div class="entity-result">
		<a href="/company/betta-burgers"><span class="entity-result__title-text">Betta Burgers</span></a>
		<div class="entity-result__primary-subtitle">Restaurants</div>
	</div>
	` + padding + `
</body></html>`

var peopleResultsPage = `
<html><body>
	<div class="entity-result">
		<a href="/in/janedoe"><span class="entity-result__title-text">Jane Doe</span></a>
		<div class="entity-result__primary-subtitle">Founder at Acme Widgets</div>
	</div>
	` + padding + `
</body></html>`

func networkConfig() types.ScrapeConfig {
	cfg := types.DefaultScrapeConfig()
	cfg.DelayBetweenRequests = time.Millisecond
	cfg.MaxRetries = 0
	return cfg
}

func newNetworkServer(t *testing.T) (*NetworkScraper, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search/results/companies/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(companyResultsPage))
	})
	mux.HandleFunc("/search/results/people/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(peopleResultsPage))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	s := NewNetworkScraper(Deps{})
	s.baseURL = server.URL
	return s, server
}

func TestNetworkScraper_ValidateQuery(t *testing.T) {
	s := NewNetworkScraper(Deps{})

	assert.NoError(t, s.ValidateQuery("software engineers"))

	var ve *ValidationError
	assert.ErrorAs(t, s.ValidateQuery("x"), &ve)
	assert.ErrorAs(t, s.ValidateQuery(strings.Repeat("a", 101)), &ve)
}

func TestNetworkScraper_CompanySearchWithoutSession(t *testing.T) {
	s, _ := newNetworkServer(t)

	result, err := s.Scrape(context.Background(), "widget makers", networkConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Equal(t, types.SourceNetwork, result.Source)

	require.Len(t, result.Companies, 2)
	assert.Equal(t, "Acme Widgets", result.Companies[0].Name)
	assert.Equal(t, "Industrial Automation", result.Companies[0].Industry)
	assert.Contains(t, result.Companies[0].Website, "/company/acme-widgets")

	// No session cookie: people search is skipped with a warning.
	assert.Empty(t, result.Contacts)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "people search skipped")
}

func TestNetworkScraper_PeopleSearchWithSession(t *testing.T) {
	s, _ := newNetworkServer(t)

	cfg := networkConfig()
	cfg.SessionCookie = "li_at=fixture-session"

	result, err := s.Scrape(context.Background(), "widget makers", cfg, nil)
	require.NoError(t, err)

	require.Len(t, result.Contacts, 1)
	assert.Equal(t, "Jane Doe", result.Contacts[0].FullName)
	assert.Equal(t, "Jane", result.Contacts[0].FirstName)
	assert.Equal(t, "Doe", result.Contacts[0].LastName)
	assert.Equal(t, "Founder at Acme Widgets", result.Contacts[0].JobTitle)

	for _, warning := range result.Warnings {
		assert.NotContains(t, warning, "people search skipped")
	}
}

func TestNetworkScraper_AuthWallIsWarning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="authwall">Sign in to continue</div>` + padding + `</body></html>`))
	}))
	defer server.Close()

	s := NewNetworkScraper(Deps{})
	s.baseURL = server.URL

	result, err := s.Scrape(context.Background(), "widget makers", networkConfig(), nil)
	require.NoError(t, err)

	assert.Empty(t, result.Companies)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "authenticated session")
}

func TestNetworkScraper_ChallengePageBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>We detected unusual traffic from your network" + padding + "</body></html>"))
	}))
	defer server.Close()

	s := NewNetworkScraper(Deps{})
	s.baseURL = server.URL

	_, err := s.Scrape(context.Background(), "widget makers", networkConfig(), nil)

	var be *BlockedError
	require.ErrorAs(t, err, &be)
}
