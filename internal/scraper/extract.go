package scraper

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/lead-harvester/internal/types"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\b(?:\+?1[-.]?)?\(?([0-9]{3})\)?[-.]?([0-9]{3})[-.]?([0-9]{4})\b`)
	// addressPattern matches US-style street addresses ending in a state
	// abbreviation and ZIP code.
	addressPattern = regexp.MustCompile(`(?i)\d+\s+[A-Za-z0-9\s,.-]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Way|Court|Ct)\s*,?\s*[A-Za-z\s]+,?\s*[A-Z]{2}\s*\d{5}`)
	socialPattern  = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(facebook|twitter|linkedin|instagram|youtube)\.com/[A-Za-z0-9._-]+`)
	domainPattern  = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

	titleSuffixPattern = regexp.MustCompile(`\s*[-|].*$`)
)

// relevantLinkKeywords mark links worth following from a company homepage.
var relevantLinkKeywords = []string{
	"contact",
	"about",
	"team",
	"staff",
	"people",
	"leadership",
	"management",
	"directory",
	"employees",
	"our-team",
	"meet-team",
}

// contactSectionSelectors find page regions that typically hold one
// person's details.
var contactSectionSelectors = []string{
	".contact",
	".team-member",
	".staff",
	".employee",
	".person",
	".bio",
	".profile",
	`[class*="contact"]`,
	`[class*="team"]`,
	`[class*="staff"]`,
}

// personalEmailDomains are consumer providers excluded from business
// contact synthesis.
var personalEmailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"aol.com":     true,
	"icloud.com":  true,
	"live.com":    true,
	"msn.com":     true,
}

// jobTitleKeywords identify lines that look like a job title.
var jobTitleKeywords = []string{
	"ceo", "president", "director", "manager", "coordinator",
	"specialist", "analyst", "engineer", "developer", "designer",
	"consultant", "advisor", "founder", "owner", "partner",
}

// extractTitle returns the page title, falling back to the first h1.
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// extractDescription returns the meta description, falling back to the
// first paragraph.
func extractDescription(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		if desc := strings.TrimSpace(content); desc != "" {
			return desc
		}
	}
	p := strings.TrimSpace(doc.Find("p").First().Text())
	if len(p) > 200 {
		return p[:200] + "..."
	}
	return p
}

// extractCompanyName pulls a company name from the usual page slots,
// stripping tagline suffixes like " - Home" or " | Official Site".
func extractCompanyName(doc *goquery.Document) string {
	candidates := []string{"title", "h1", ".company-name", `[class*="company"]`, ".logo"}
	for _, selector := range candidates {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" && len(text) < 100 {
			return strings.TrimSpace(titleSuffixPattern.ReplaceAllString(text, ""))
		}
	}
	return ""
}

// extractSocialLinks collects recognized social media profile URLs.
func extractSocialLinks(doc *goquery.Document) map[string]string {
	links := make(map[string]string)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m := socialPattern.FindStringSubmatch(href); m != nil {
			links[strings.ToLower(m[1])] = href
		}
	})
	if len(links) == 0 {
		return nil
	}
	return links
}

// extractBusinessDescription looks for an about-style blurb of plausible
// length.
func extractBusinessDescription(doc *goquery.Document) string {
	selectors := []string{
		".about", ".description", ".overview", ".company-info",
		`[class*="about"]`, `[class*="description"]`,
	}
	for _, selector := range selectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if len(text) > 50 && len(text) < 500 {
			return text
		}
	}
	return ""
}

// extractContacts pulls person records from contact-style sections, falling
// back to bare business emails found anywhere on the page.
func extractContacts(doc *goquery.Document, source types.Source) []types.Contact {
	var contacts []types.Contact
	seen := make(map[string]bool)

	sections := doc.Find(strings.Join(contactSectionSelectors, ", "))
	sections.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 20 {
			return false
		}
		if contact, ok := contactFromSection(s, source); ok {
			key := contact.Email + "|" + contact.FullName
			if !seen[key] {
				seen[key] = true
				contacts = append(contacts, contact)
			}
		}
		return true
	})

	if len(contacts) > 0 {
		return contacts
	}

	// No structured sections: synthesize records from business emails.
	emails := emailPattern.FindAllString(doc.Text(), -1)
	for _, email := range emails {
		if len(contacts) >= 5 {
			break
		}
		if !isBusinessEmail(email) || seen[email] {
			continue
		}
		seen[email] = true
		contacts = append(contacts, types.Contact{Email: email, Source: source})
	}
	return contacts
}

// contactFromSection builds a contact from one page section. A section
// yields a record only when it contains at least an email, phone, or name.
func contactFromSection(s *goquery.Selection, source types.Source) (types.Contact, bool) {
	text := s.Text()
	contact := types.Contact{Source: source}

	if email := emailPattern.FindString(text); email != "" {
		contact.Email = email
	}
	if m := phonePattern.FindStringSubmatch(text); m != nil {
		contact.Phone = m[1] + m[2] + m[3]
	}
	if name := extractPersonName(s); name != "" {
		contact.FullName = name
		parts := strings.Fields(name)
		contact.FirstName = parts[0]
		if len(parts) > 1 {
			contact.LastName = strings.Join(parts[1:], " ")
		}
	}
	if title := extractJobTitle(text); title != "" {
		contact.JobTitle = title
	}

	ok := contact.Email != "" || contact.Phone != "" || contact.FullName != ""
	return contact, ok
}

// extractPersonName finds a plausible person name inside a contact section.
func extractPersonName(s *goquery.Selection) string {
	selectors := []string{
		"h1", "h2", "h3", "h4",
		".name", ".person-name", `[class*="name"]`, "strong", "b",
	}
	for _, selector := range selectors {
		text := strings.TrimSpace(s.Find(selector).First().Text())
		if looksLikeName(text) {
			return text
		}
	}
	return ""
}

func looksLikeName(text string) bool {
	words := strings.Fields(text)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, r := range strings.ReplaceAll(text, " ", "") {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// extractJobTitle scans section lines for one containing a job keyword.
func extractJobTitle(text string) string {
	for _, line := range strings.Split(strings.ToLower(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) >= 100 {
			continue
		}
		for _, keyword := range jobTitleKeywords {
			if strings.Contains(line, keyword) {
				return titleCase(line)
			}
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		r := []rune(word)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// relevantLinks returns same-domain links whose href or anchor text
// suggests a contact or team page, capped at limit.
func relevantLinks(doc *goquery.Document, baseURL string, limit int) []string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if href == "" {
			return true
		}
		hrefLower := strings.ToLower(href)
		text := strings.ToLower(strings.TrimSpace(s.Text()))

		relevant := false
		for _, keyword := range relevantLinkKeywords {
			if strings.Contains(hrefLower, keyword) || strings.Contains(text, keyword) {
				relevant = true
				break
			}
		}
		if !relevant {
			return true
		}

		linkURL, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(linkURL)
		if !strings.EqualFold(abs.Host, base.Host) {
			return true
		}
		abs.Fragment = ""
		full := strings.TrimSuffix(abs.String(), "/")
		if !seen[full] && full != strings.TrimSuffix(baseURL, "/") {
			seen[full] = true
			links = append(links, full)
		}
		return len(links) < limit
	})
	return links
}

func isBusinessEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return !personalEmailDomains[strings.ToLower(email[at+1:])]
}
