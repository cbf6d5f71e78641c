package enricher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/resilience"
	"github.com/sells-group/venue-enricher/internal/vendor"
	"github.com/sells-group/venue-enricher/pkg/jina"
)

// Searcher runs a web search. jina.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error)
}

// VendorSearch looks for the venue on each vendor's own domain. Every hit
// adds vendor.SearchHitScore to that vendor.
type VendorSearch struct {
	search  Searcher
	vendors []vendor.Vendor
	count   int
}

// NewVendorSearch builds the enricher over the vendors that have a domain.
func NewVendorSearch(search Searcher) *VendorSearch {
	var vs []vendor.Vendor
	for _, v := range vendor.Table {
		if v.Domain != "" && !vendor.IsAggregator(v.Domain) {
			vs = append(vs, v)
		}
	}
	return &VendorSearch{search: search, vendors: vs, count: 6}
}

func (s *VendorSearch) Name() string { return "vendor_search" }

func (s *VendorSearch) Fields() []model.Field {
	return []model.Field{model.FieldTicketVendor}
}

func (s *VendorSearch) Enrich(ctx context.Context, in *Input) (*model.Result, error) {
	query := strings.TrimSpace(in.Venue.Name + " " + in.Venue.City)

	var (
		urls   []string
		failed int
	)
	for _, v := range s.vendors {
		resp, err := s.search.Search(ctx, query, jina.WithSiteFilter(v.Domain), jina.WithCount(s.count))
		if err != nil {
			if resilience.IsQuota(err) || ctx.Err() != nil {
				return nil, eris.Wrap(err, "vendor_search: search")
			}
			failed++
			zap.L().Debug("vendor_search: query failed",
				zap.String("vendor", v.Name),
				zap.Error(err),
			)
			continue
		}
		urls = append(urls, resp.URLs()...)
	}
	if failed == len(s.vendors) && failed > 0 {
		return nil, resilience.NewTransientError(eris.New("vendor_search: every query failed"), 0)
	}

	res := model.NewResult(SourceWebSearch)
	if m, ok := vendor.Score(urls, vendor.SearchHitScore); ok {
		res.Put(model.FieldTicketVendor, m.Vendor, m.Confidence(), strings.Join(m.Hits, " "))
		res.Evidence = appendUnique(res.Evidence, m.Hits...)
	}
	return res, nil
}
