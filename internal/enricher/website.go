package enricher

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/resilience"
	"github.com/sells-group/venue-enricher/internal/scrape"
	"github.com/sells-group/venue-enricher/internal/vendor"
)

// CandidatePaths are the pages tried on a venue site, in order.
var CandidatePaths = []string{
	"/", "/events", "/event", "/tickets", "/billetterie", "/programmation", "/programme",
	"/agenda", "/whats-on", "/calendar", "/cartelera", "/veranstaltungen", "/termine",
	"/bilhetes", "/ingressos", "/evenement", "/evenements",
}

// Confidence for website signals.
const (
	confPriceJSONLD = 0.8
	confPriceText   = 0.6
	confCapacity    = 0.7
)

// PageFetcher fetches one URL. *scrape.Chain satisfies it.
type PageFetcher interface {
	Scrape(ctx context.Context, targetURL string) (*scrape.Result, error)
}

// Website reads vendor links, prices and capacity from the venue's site.
type Website struct {
	fetcher  PageFetcher
	paths    []string
	maxPages int
}

// NewWebsite builds the enricher. maxPages bounds how many successful pages
// are read per venue; <= 0 means 3.
func NewWebsite(fetcher PageFetcher, maxPages int, paths ...string) *Website {
	if maxPages <= 0 {
		maxPages = 3
	}
	if len(paths) == 0 {
		paths = CandidatePaths
	}
	return &Website{fetcher: fetcher, paths: paths, maxPages: maxPages}
}

func (w *Website) Name() string { return "website" }

func (w *Website) Fields() []model.Field {
	return []model.Field{model.FieldAvgTicketPrice, model.FieldCapacity, model.FieldTicketVendor}
}

func (w *Website) Enrich(ctx context.Context, in *Input) (*model.Result, error) {
	res, err := w.enrich(ctx, in)
	if err != nil {
		return noMatch(SourceWebsite, err)
	}
	return res, nil
}

func (w *Website) enrich(ctx context.Context, in *Input) (*model.Result, error) {
	base, err := siteURL(in.Venue.Website)
	if err != nil {
		return nil, ErrNoMatch
	}

	res := model.NewResult(SourceWebsite)
	var (
		links   []string
		texts   []string
		read    int
		lastErr error
	)
	for _, p := range w.paths {
		if read >= w.maxPages || (read > 0 && !w.stillMissing(in, res, links)) {
			break
		}
		target := base.ResolveReference(&url.URL{Path: p}).String()
		page, err := w.fetcher.Scrape(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		read++
		res.Evidence = appendUnique(res.Evidence, page.Page.URL)
		links = append(links, page.Page.Links...)
		texts = append(texts, page.Page.Text)
		w.read(res, page.Page)
	}

	if read == 0 {
		if resilience.IsQuota(lastErr) {
			return nil, lastErr
		}
		zap.L().Debug("website: no page fetched",
			zap.String("venue", in.Venue.Key),
			zap.Error(lastErr),
		)
		res.Notes = append(res.Notes, "website: no page fetched")
		return res, nil
	}

	if m, ok := vendor.Detect(links); ok {
		res.Put(model.FieldTicketVendor, m.Vendor, m.Confidence(), strings.Join(m.Hits, " "))
		res.Evidence = appendUnique(res.Evidence, m.Hits...)
	}
	res.WebText = clip(strings.Join(texts, "\n"), maxWebText)
	return res, nil
}

// read takes price and capacity from one page when not already known.
func (w *Website) read(res *model.Result, page scrape.Page) {
	if _, ok := res.Values[model.FieldAvgTicketPrice]; !ok {
		if avg, method, ok := scrape.AveragePrice(page); ok {
			conf := confPriceText
			if method == "jsonld" {
				conf = confPriceJSONLD
			}
			res.Put(model.FieldAvgTicketPrice, avg, conf, method+" "+page.URL)
		}
	}
	if _, ok := res.Values[model.FieldCapacity]; !ok {
		if c, ok := scrape.Capacity(page.Text); ok {
			res.Put(model.FieldCapacity, c, confCapacity, page.URL)
		}
	}
}

// stillMissing reports whether another page could add a field. Vendor is
// decided from all links at the end, so it counts as missing until the
// links of the pages read so far name one.
func (w *Website) stillMissing(in *Input, res *model.Result, links []string) bool {
	for _, f := range w.Fields() {
		if !in.Needs(f) {
			continue
		}
		if f == model.FieldTicketVendor {
			if _, ok := vendor.Detect(links); ok {
				continue
			}
			return true
		}
		if _, ok := res.Values[f]; !ok {
			return true
		}
	}
	return false
}

// siteURL turns a stored website or bare domain into a base URL.
func siteURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.New("website: empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("website: invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("website: unsupported scheme %q", u.Scheme)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}
