package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const maxPageBytes = 2 << 20

// LocalScraper fetches HTML via net/http, detects blocks, and parses the
// page with x/net/html. Free, no API calls. Falls through to Jina when blocked.
type LocalScraper struct {
	client    *http.Client
	limiters  *HostLimiters
	userAgent string
}

// LocalOption configures a LocalScraper.
type LocalOption func(*LocalScraper)

// WithLocalHTTPClient replaces the default HTTP client.
func WithLocalHTTPClient(hc *http.Client) LocalOption {
	return func(l *LocalScraper) { l.client = hc }
}

// WithHostRate sets the per-host request rate.
func WithHostRate(rps float64) LocalOption {
	return func(l *LocalScraper) { l.limiters = NewHostLimiters(rps, 1) }
}

// NewLocalScraper creates a LocalScraper with sensible defaults.
func NewLocalScraper(opts ...LocalOption) *LocalScraper {
	l := &LocalScraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 8 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 8 * time.Second,
			},
		},
		limiters:  NewHostLimiters(2, 1),
		userAgent: "Mozilla/5.0 (compatible; VenueEnricher/1.0)",
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL, detects blocks, and extracts the page signals.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	lim, host := l.limiters.For(targetURL)
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "local_http: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en,es,fr,de,nl;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit(host)
		return nil, eris.Errorf("local_http: rate limited by %s", host)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "html") {
		return nil, eris.Errorf("local_http: not html (%s)", ct)
	}
	if len(body) < 100 {
		return nil, eris.New("local_http: empty page")
	}
	lim.OnSuccess()

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	page := ParseHTML(finalURL, body)
	page.StatusCode = resp.StatusCode
	return &Result{Page: page, Source: "local_http"}, nil
}
