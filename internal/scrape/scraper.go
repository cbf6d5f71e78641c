package scrape

import "context"

// Page is one fetched web page with the signals enrichers read from it.
type Page struct {
	URL        string
	Title      string
	Text       string
	Links      []string // absolute hrefs plus iframe, script and form targets
	JSONLD     []string // raw application/ld+json blocks
	StatusCode int
}

// Result holds a scraped page with its source.
type Result struct {
	Page   Page
	Source string // e.g. "local_http", "jina"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
