// Package ticketmaster is a client for the Ticketmaster Discovery API.
package ticketmaster

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/venue-enricher/internal/resilience"
)

const defaultBaseURL = "https://app.ticketmaster.com/discovery/v2"

// Client searches Ticketmaster venues.
type Client interface {
	SearchVenues(ctx context.Context, q VenueQuery) ([]Venue, error)
}

// VenueQuery filters a venue search.
type VenueQuery struct {
	Keyword     string
	CountryCode string
	Size        int
}

// Venue is one Discovery API venue.
type Venue struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	URL      string   `json:"url"`
	City     Named    `json:"city"`
	Country  Country  `json:"country"`
	Capacity Capacity `json:"capacity"`
}

// Named is a {"name": ...} object.
type Named struct {
	Name string `json:"name"`
}

// Country carries the ISO code and name.
type Country struct {
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
}

// Capacity accepts either a JSON number or a numeric string.
type Capacity int64

// UnmarshalJSON implements json.Unmarshaler.
func (c *Capacity) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*c = 0
		return nil
	}
	*c = Capacity(n)
	return nil
}

type venuesResponse struct {
	Embedded struct {
		Venues []Venue `json:"venues"`
	} `json:"_embedded"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second. The Discovery API allows
// 5 rps per key.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Discovery API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(5, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchVenues(ctx context.Context, q VenueQuery) ([]Venue, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ticketmaster: rate limit wait")
	}

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("keyword", q.Keyword)
	if q.CountryCode != "" {
		params.Set("countryCode", q.CountryCode)
	}
	size := q.Size
	if size <= 0 {
		size = 5
	}
	params.Set("size", strconv.Itoa(size))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/venues.json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "ticketmaster: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ticketmaster: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ticketmaster: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTP("ticketmaster", resp,
			eris.Errorf("ticketmaster: unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var out venuesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "ticketmaster: unmarshal response")
	}
	return out.Embedded.Venues, nil
}
