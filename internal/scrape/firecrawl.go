package scrape

import (
	"context"
	"strings"

	"github.com/sells-group/venue-enricher/pkg/firecrawl"
)

// FirecrawlAdapter wraps a Firecrawl client as a Scraper for single-page scrapes.
type FirecrawlAdapter struct {
	client firecrawl.Client
}

// NewFirecrawlAdapter creates a FirecrawlAdapter from a Firecrawl client.
func NewFirecrawlAdapter(client firecrawl.Client) *FirecrawlAdapter {
	return &FirecrawlAdapter{client: client}
}

// Name implements Scraper.
func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports returns true; Firecrawl can attempt any URL as a fallback.
func (f *FirecrawlAdapter) Supports(_ string) bool { return true }

// Scrape fetches a single URL via Firecrawl's scrape API. Raw HTML, when
// returned, is parsed like a direct fetch so JSON-LD and iframe targets
// survive; the markdown is preferred as page text.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     targetURL,
		Formats: firecrawl.DefaultFormats,
	})
	if err != nil {
		return nil, err
	}

	d := resp.Data
	pageURL := d.Metadata.PageURL()
	if pageURL == "" {
		pageURL = targetURL
	}

	var page Page
	if strings.TrimSpace(d.RawHTML) != "" {
		page = ParseHTML(pageURL, []byte(d.RawHTML))
	} else {
		page = Page{URL: pageURL, Links: MarkdownLinks(d.Markdown)}
	}
	if md := strings.TrimSpace(d.Markdown); md != "" {
		page.Text = md
	}
	if d.Metadata.Title != "" {
		page.Title = d.Metadata.Title
	}
	page.StatusCode = d.Metadata.StatusCode

	seen := make(map[string]bool, len(page.Links))
	for _, l := range page.Links {
		seen[l] = true
	}
	for _, l := range d.Links {
		if !seen[l] && strings.HasPrefix(l, "http") {
			seen[l] = true
			page.Links = append(page.Links, l)
		}
	}
	return &Result{Page: page, Source: "firecrawl"}, nil
}
