// Package wikidata queries the Wikidata SPARQL endpoint for venue facts.
package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/venue-enricher/internal/resilience"
)

const (
	defaultEndpoint  = "https://query.wikidata.org/sparql"
	defaultUserAgent = "venue-enricher/1.0 (https://github.com/sells-group/venue-enricher)"
)

// Client looks up entities by label.
type Client interface {
	LookupVenue(ctx context.Context, label string) (*Facts, error)
}

// Facts holds the properties read for a venue entity. Zero means absent.
type Facts struct {
	Item     string  `json:"item"`
	Capacity int64   `json:"capacity,omitempty"` // P1083
	Revenue  float64 `json:"revenue,omitempty"`  // P2139
}

// Option configures the client.
type Option func(*httpClient)

// WithEndpoint overrides the SPARQL endpoint.
func WithEndpoint(u string) Option {
	return func(c *httpClient) {
		c.endpoint = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLanguages sets the label languages tried, in order.
func WithLanguages(langs ...string) Option {
	return func(c *httpClient) {
		if len(langs) > 0 {
			c.langs = langs
		}
	}
}

// WithUserAgent sets the User-Agent the endpoint requires.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

type httpClient struct {
	endpoint  string
	userAgent string
	langs     []string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a Wikidata client. Requests are limited to 2 per second.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		endpoint:  defaultEndpoint,
		userAgent: defaultUserAgent,
		langs:     []string{"en", "es", "fr"},
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(2, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BuildQuery renders the SPARQL query for label.
func BuildQuery(label string, langs []string) string {
	lit := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", " ").Replace(strings.TrimSpace(label))
	values := make([]string, 0, len(langs))
	for _, l := range langs {
		values = append(values, fmt.Sprintf(`"%s"@%s`, lit, l))
	}
	return fmt.Sprintf(`SELECT ?item ?capacity ?revenue WHERE {
  VALUES ?label { %s }
  ?item rdfs:label ?label .
  OPTIONAL { ?item wdt:P1083 ?capacity . }
  OPTIONAL { ?item wdt:P2139 ?revenue . }
} LIMIT 5`, strings.Join(values, " "))
}

type binding struct {
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]binding `json:"bindings"`
	} `json:"results"`
}

func (c *httpClient) LookupVenue(ctx context.Context, label string) (*Facts, error) {
	if strings.TrimSpace(label) == "" {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "wikidata: rate limit wait")
	}

	u := c.endpoint + "?" + url.Values{"query": {BuildQuery(label, c.langs)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: create request")
	}
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTP("wikidata", resp,
			eris.Errorf("wikidata: unexpected status %d", resp.StatusCode))
	}

	var out sparqlResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "wikidata: unmarshal response")
	}

	// Prefer the first binding that carries a value.
	for _, b := range out.Results.Bindings {
		f := Facts{Item: b["item"].Value}
		if v, ok := b["capacity"]; ok {
			if n, err := strconv.ParseFloat(v.Value, 64); err == nil {
				f.Capacity = int64(n)
			}
		}
		if v, ok := b["revenue"]; ok {
			if n, err := strconv.ParseFloat(v.Value, 64); err == nil {
				f.Revenue = n
			}
		}
		if f.Capacity > 0 || f.Revenue > 0 {
			return &f, nil
		}
	}
	return nil, nil
}
