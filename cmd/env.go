package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enricher/internal/batch"
	"github.com/sells-group/venue-enricher/internal/config"
	"github.com/sells-group/venue-enricher/internal/enricher"
	"github.com/sells-group/venue-enricher/internal/llm"
	"github.com/sells-group/venue-enricher/internal/metrics"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/resilience"
	"github.com/sells-group/venue-enricher/internal/scrape"
	"github.com/sells-group/venue-enricher/internal/store"
	"github.com/sells-group/venue-enricher/internal/waterfall"
	anthropicpkg "github.com/sells-group/venue-enricher/pkg/anthropic"
	"github.com/sells-group/venue-enricher/pkg/eventbrite"
	"github.com/sells-group/venue-enricher/pkg/firecrawl"
	"github.com/sells-group/venue-enricher/pkg/gemini"
	"github.com/sells-group/venue-enricher/pkg/google"
	"github.com/sells-group/venue-enricher/pkg/jina"
	"github.com/sells-group/venue-enricher/pkg/perplexity"
	"github.com/sells-group/venue-enricher/pkg/ticketmaster"
	"github.com/sells-group/venue-enricher/pkg/wikidata"
)

// appEnv holds the store, the enrichers and the runner needed by the
// serve and run commands.
type appEnv struct {
	Store    store.Store
	Registry *enricher.Registry
	Merger   *waterfall.Merger
	Runner   *batch.Runner
	Metrics  *metrics.Manager
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// storeOpener is swapped in tests.
var storeOpener = store.Open

// initStore validates the warehouse settings and connects.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	st, err := storeOpener(ctx, c.StoreConfig())
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	info := st.Info()
	zap.L().Info("store opened",
		zap.String("driver", info.Driver),
		zap.String("table", info.Table),
		zap.String("location", info.Location),
	)
	return st, nil
}

// initEnv opens the store and builds every enabled enricher. Callers should
// defer env.Close().
func initEnv(ctx context.Context, c *config.Config) (*appEnv, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}

	reg, err := buildRegistry(ctx, c)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	merger, err := buildMerger(c)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	m := metrics.NewManager()
	runner := batch.New(st, reg, merger,
		batch.NewPacer(c.Batch.RowDelayMinMs, c.Batch.RowDelayMaxMs),
		batch.Config{
			StopOnQuota:    c.Batch.StopOnQuota,
			TouchUnmatched: c.Batch.TouchUnmatched,
			WriteRetry:     resilience.FromRetryConfig(c.Batch.WriteAttempts, 0, 0),
		},
		batch.WithMetrics(m),
	)

	zap.L().Info("enrichers ready", zap.Strings("enrichers", reg.List()))
	return &appEnv{Store: st, Registry: reg, Merger: merger, Runner: runner, Metrics: m}, nil
}

func policy(ec config.EnricherConfig) enricher.Policy {
	return enricher.Policy{
		Timeout: ec.Timeout(),
		Retry:   ec.RetryPolicy(),
		Breaker: ec.BreakerPolicy(),
	}
}

// buildRegistry registers each enabled enricher whose credentials are
// present. Missing keys disable an enricher with a log line, never an error.
func buildRegistry(ctx context.Context, c *config.Config) (*enricher.Registry, error) {
	reg := enricher.NewRegistry()
	skip := func(name, reason string) {
		zap.L().Info("enricher disabled", zap.String("enricher", name), zap.String("reason", reason))
	}

	jinaOpts := []jina.Option{}
	if c.Jina.BaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithBaseURL(c.Jina.BaseURL))
	}
	if c.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(c.Jina.Key, jinaOpts...)

	if c.Ticketmaster.Enabled {
		if c.Ticketmaster.Key == "" {
			skip("ticketmaster", "TICKETMASTER_KEY not set")
		} else {
			var opts []ticketmaster.Option
			if c.Ticketmaster.BaseURL != "" {
				opts = append(opts, ticketmaster.WithBaseURL(c.Ticketmaster.BaseURL))
			}
			if c.Ticketmaster.RateLimit > 0 {
				opts = append(opts, ticketmaster.WithRateLimit(c.Ticketmaster.RateLimit))
			}
			reg.Register(enricher.NewTicketmaster(ticketmaster.NewClient(c.Ticketmaster.Key, opts...), c.Ticketmaster.MinSimilarity),
				policy(c.Ticketmaster.EnricherConfig))
		}
	}

	if c.Eventbrite.Enabled {
		if c.Eventbrite.Token == "" {
			skip("eventbrite", "EVENTBRITE_TOKEN not set")
		} else {
			var opts []eventbrite.Option
			if c.Eventbrite.BaseURL != "" {
				opts = append(opts, eventbrite.WithBaseURL(c.Eventbrite.BaseURL))
			}
			if c.Eventbrite.RateLimit > 0 {
				opts = append(opts, eventbrite.WithRateLimit(c.Eventbrite.RateLimit))
			}
			reg.Register(enricher.NewEventbrite(eventbrite.NewClient(c.Eventbrite.Token, opts...), c.Eventbrite.MinSimilarity),
				policy(c.Eventbrite.EnricherConfig))
		}
	}

	if c.Website.Enabled {
		scrapers := []scrape.Scraper{
			scrape.NewLocalScraper(scrape.WithHostRate(c.Website.HostRPS)),
			scrape.NewJinaAdapter(jinaClient),
		}
		if c.Firecrawl.Key != "" {
			opts := []firecrawl.Option{}
			if c.Firecrawl.BaseURL != "" {
				opts = append(opts, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
			}
			if c.Firecrawl.RateLimit > 0 {
				opts = append(opts, firecrawl.WithRateLimit(c.Firecrawl.RateLimit))
			}
			scrapers = append(scrapers, scrape.NewFirecrawlAdapter(firecrawl.NewClient(c.Firecrawl.Key, opts...)))
		}
		chain := scrape.NewChain(scrapers...)
		reg.Register(enricher.NewWebsite(chain, c.Website.MaxPages, c.Website.Paths...), policy(c.Website.EnricherConfig))
	}

	if c.Wikidata.Enabled {
		opts := []wikidata.Option{}
		if c.Wikidata.BaseURL != "" {
			opts = append(opts, wikidata.WithEndpoint(c.Wikidata.BaseURL))
		}
		if c.Wikidata.UserAgent != "" {
			opts = append(opts, wikidata.WithUserAgent(c.Wikidata.UserAgent))
		}
		if len(c.Wikidata.Languages) > 0 {
			opts = append(opts, wikidata.WithLanguages(c.Wikidata.Languages...))
		}
		reg.Register(enricher.NewWikidata(wikidata.NewClient(opts...)), policy(c.Wikidata.EnricherConfig))
	}

	if c.Places.Enabled {
		if c.Places.Key == "" {
			skip("places", "GOOGLE_PLACES_KEY not set")
		} else {
			var opts []google.Option
			if c.Places.BaseURL != "" {
				opts = append(opts, google.WithBaseURL(c.Places.BaseURL))
			}
			if c.Places.Language != "" {
				opts = append(opts, google.WithLanguage(c.Places.Language))
			}
			if c.Places.RateLimit > 0 {
				opts = append(opts, google.WithRateLimit(c.Places.RateLimit))
			}
			reg.Register(enricher.NewPlaces(google.NewClient(c.Places.Key, opts...), c.Places.MinSimilarity),
				policy(c.Places.EnricherConfig))
		}
	}

	if c.VendorSearch.Enabled {
		if c.Jina.Key == "" {
			skip("vendor_search", "JINA_API_KEY not set")
		} else {
			reg.Register(enricher.NewVendorSearch(jinaClient), policy(c.VendorSearch))
		}
	}

	if c.Perplexity.Enabled {
		if c.Perplexity.Key == "" {
			skip("perplexity", "PERPLEXITY_API_KEY not set")
		} else {
			opts := []perplexity.Option{}
			if c.Perplexity.BaseURL != "" {
				opts = append(opts, perplexity.WithBaseURL(c.Perplexity.BaseURL))
			}
			if c.Perplexity.Model != "" {
				opts = append(opts, perplexity.WithModel(c.Perplexity.Model))
			}
			if c.Perplexity.RateLimit > 0 {
				opts = append(opts, perplexity.WithRateLimit(c.Perplexity.RateLimit))
			}
			reg.Register(enricher.NewPerplexity(perplexity.NewClient(c.Perplexity.Key, opts...), c.Calculator()),
				policy(c.Perplexity.EnricherConfig))
		}
	}

	if c.LLM.Enabled || c.Revenue.Enabled {
		router, err := buildRouter(ctx, c)
		if err != nil {
			return nil, err
		}
		switch {
		case router.Len() == 0:
			skip("llm", "no model has credentials")
			skip("revenue", "no model has credentials")
		default:
			if c.LLM.Enabled {
				reg.Register(enricher.NewLLM(router), policy(c.LLM.EnricherConfig))
			}
			if c.Revenue.Enabled {
				reg.Register(enricher.NewRevenue(router), policy(c.Revenue))
			}
		}
	}

	return reg, nil
}

// modelTarget is one "provider:model" entry of llm.models.
type modelTarget struct {
	Provider string
	Model    string
}

// parseModels reads "provider:model" entries. A bare model name is
// taken as an Anthropic model.
func parseModels(entries []string) ([]modelTarget, error) {
	var out []modelTarget
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		provider, name, ok := strings.Cut(e, ":")
		if !ok {
			provider, name = "anthropic", e
		}
		provider = strings.ToLower(strings.TrimSpace(provider))
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, eris.Errorf("llm: empty model in %q", e)
		}
		switch provider {
		case "anthropic", "gemini":
		default:
			return nil, eris.Errorf("llm: unknown provider %q in %q", provider, e)
		}
		out = append(out, modelTarget{Provider: provider, Model: name})
	}
	return out, nil
}

// buildRouter wires the configured models behind one router. Models whose
// provider has no key are left out.
func buildRouter(ctx context.Context, c *config.Config) (*llm.Router, error) {
	models, err := parseModels(c.LLM.Models)
	if err != nil {
		return nil, err
	}

	calc := llm.WithCalculator(c.Calculator())
	var anthropicC, geminiC llm.Completer
	if c.LLM.AnthropicKey != "" {
		var opts []anthropicpkg.Option
		if c.LLM.AnthropicURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.LLM.AnthropicURL))
		}
		anthropicC = llm.NewAnthropicCompleter(anthropicpkg.NewClient(c.LLM.AnthropicKey, opts...), calc)
	}
	if c.LLM.GeminiKey != "" {
		var opts []gemini.Option
		if c.LLM.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(c.LLM.BaseURL))
		}
		gc, err := gemini.NewClient(ctx, c.LLM.GeminiKey, opts...)
		if err != nil {
			return nil, eris.Wrap(err, "llm: gemini client")
		}
		geminiC = llm.NewGeminiCompleter(gc, calc)
	}

	var targets []llm.Target
	for _, m := range models {
		var comp llm.Completer
		switch m.Provider {
		case "anthropic":
			comp = anthropicC
		case "gemini":
			comp = geminiC
		}
		if comp == nil {
			continue
		}
		targets = append(targets, llm.Target{Completer: comp, Model: m.Model})
	}
	return llm.NewRouter(targets, time.Duration(c.LLM.CooldownSecs)*time.Second), nil
}

// buildMerger loads the optional waterfall file and applies the priority
// and confidence overrides from the merge section.
func buildMerger(c *config.Config) (*waterfall.Merger, error) {
	wf := waterfall.Default()
	if c.Merge.WaterfallFile != "" {
		loaded, err := waterfall.LoadConfig(c.Merge.WaterfallFile)
		if err != nil {
			return nil, err
		}
		wf = loaded
	}
	if len(c.Merge.Priority) > 0 {
		wf.Priority = append([]string(nil), c.Merge.Priority...)
	}
	for key, v := range c.Merge.MinConfidence {
		f, ok := model.ParseField(key)
		if !ok {
			return nil, eris.Errorf("merge: unknown field %q", key)
		}
		wf.SetThreshold(f, v)
	}
	return waterfall.NewMerger(wf, waterfall.WithAliases(enricher.Sources)), nil
}
