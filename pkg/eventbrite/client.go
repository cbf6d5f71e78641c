// Package eventbrite is a client for the Eventbrite v3 venue search.
package eventbrite

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

const defaultBaseURL = "https://www.eventbriteapi.com/v3"

// Client searches Eventbrite venues.
type Client interface {
	SearchVenues(ctx context.Context, query string) ([]Venue, error)
}

// Venue is an Eventbrite venue.
type Venue struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Capacity    Count   `json:"capacity"`
	ResourceURI string  `json:"resource_uri"`
	Address     Address `json:"address"`
}

// Address is the subset of the venue address used for matching.
type Address struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Count decodes a number that Eventbrite may send as a string.
type Count int64

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(b []byte) error {
	*c = 0
	b = bytes.Trim(b, `"`)
	if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		*c = Count(n)
	}
	return nil
}

type searchResponse struct {
	Venues []Venue `json:"venues"`
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

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Eventbrite client using a private OAuth token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchVenues(ctx context.Context, query string) ([]Venue, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "eventbrite: rate limit wait")
		}
	}

	u := c.baseURL + "/venues/search/?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "eventbrite: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "eventbrite: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "eventbrite: read response")
	}
	// The venue search endpoint is not available to every token; treat a
	// missing endpoint as no match.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTP("eventbrite", resp,
			eris.Errorf("eventbrite: unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "eventbrite: unmarshal response")
	}
	return out.Venues, nil
}
