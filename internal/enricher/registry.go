package enricher

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/resilience"
)

// Source tags written to the <field>_source columns.
const (
	SourceTicketmaster = "ticketmaster_api"
	SourceEventbrite   = "eventbrite_api"
	SourceWebsite      = "website"
	SourceWikidata     = "wikidata"
	SourcePlaces       = "google_places"
	SourceWebSearch    = "web_search"
	SourcePerplexity   = "perplexity"
	SourceLLM          = "llm"
	SourceRevenue      = "llm_revenue"
)

// DefaultOrder lists enricher names, highest priority first.
var DefaultOrder = []string{
	"ticketmaster",
	"eventbrite",
	"website",
	"wikidata",
	"places",
	"vendor_search",
	"perplexity",
	"llm",
	"revenue",
}

// Sources maps enricher names to the source tag on their results.
var Sources = map[string]string{
	"ticketmaster":  SourceTicketmaster,
	"eventbrite":    SourceEventbrite,
	"website":       SourceWebsite,
	"wikidata":      SourceWikidata,
	"places":        SourcePlaces,
	"vendor_search": SourceWebSearch,
	"perplexity":    SourcePerplexity,
	"llm":           SourceLLM,
	"revenue":       SourceRevenue,
}

// Policy bounds every call to one enricher.
type Policy struct {
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
}

// DefaultPolicy is 20s per call with the default retry and breaker.
func DefaultPolicy() Policy {
	return Policy{
		Timeout: 20 * time.Second,
		Retry:   resilience.DefaultRetryConfig(),
		Breaker: resilience.FromCircuitConfig(3, 300),
	}
}

// Entry is a registered enricher with its call policy.
type Entry struct {
	Enricher
	Policy Policy
}

// Call runs one attempt sequence: a fresh timeout for the whole call and
// retries on transient errors.
func (e *Entry) Call(ctx context.Context, in *Input) (*model.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Policy.Timeout)
	defer cancel()

	retry := e.Policy.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(e.Name(), "enrich")
	}
	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.Result, error) {
		return e.Enrich(ctx, in)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "enricher: %s", e.Name())
	}
	if res == nil {
		res = model.NewResult(Sources[e.Name()])
	}
	return res, nil
}

// Registry manages the enrichers built for this process.
type Registry struct {
	mu        sync.RWMutex
	enrichers map[string]*Entry
	order     []string
}

// NewRegistry creates an empty registry. order sets priority; enrichers
// not named in it run after the named ones, in registration order.
func NewRegistry(order ...string) *Registry {
	if len(order) == 0 {
		order = DefaultOrder
	}
	return &Registry{
		enrichers: make(map[string]*Entry),
		order:     append([]string(nil), order...),
	}
}

// Register adds an enricher. A zero policy timeout takes the default.
func (r *Registry) Register(e Enricher, p Policy) {
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy().Timeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enrichers[e.Name()]; !ok {
		known := false
		for _, n := range r.order {
			if n == e.Name() {
				known = true
				break
			}
		}
		if !known {
			r.order = append(r.order, e.Name())
		}
	}
	r.enrichers[e.Name()] = &Entry{Enricher: e, Policy: p}
}

// Get returns an entry by name, or nil if not found.
func (r *Registry) Get(name string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enrichers[name]
}

// Entries returns registered enrichers in priority order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.enrichers))
	for _, name := range r.order {
		if e, ok := r.enrichers[name]; ok {
			out = append(out, e)
		}
	}
	return out
}

// List returns all registered enricher names in priority order.
func (r *Registry) List() []string {
	entries := r.Entries()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
