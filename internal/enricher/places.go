package enricher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/match"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/pkg/google"
)

// Places turns the Google Places price level into a rough ticket price.
type Places struct {
	client        google.Client
	minSimilarity float64
}

// NewPlaces builds the enricher. minSimilarity <= 0 takes the default.
func NewPlaces(client google.Client, minSimilarity float64) *Places {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &Places{client: client, minSimilarity: minSimilarity}
}

func (p *Places) Name() string { return "places" }

func (p *Places) Fields() []model.Field {
	return []model.Field{model.FieldAvgTicketPrice}
}

func (p *Places) Enrich(ctx context.Context, in *Input) (*model.Result, error) {
	v := in.Venue
	query := strings.TrimSpace(v.Name + " " + v.Location())
	resp, err := p.client.TextSearch(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "places: text search")
	}

	res := model.NewResult(SourcePlaces)
	place, ok := p.pick(v, resp)
	if !ok {
		return res, nil
	}
	tier, ok := place.PriceTier()
	if !ok {
		return res, nil
	}
	res.Put(model.FieldAvgTicketPrice, float64(tier*20+10), 0.5, "priceLevel="+place.PriceLevel)
	if place.WebsiteURI != "" {
		res.Evidence = appendUnique(res.Evidence, place.WebsiteURI)
	}
	return res, nil
}

// pick prefers a place on the row's own website, then the best name match.
func (p *Places) pick(v *model.Venue, resp *google.TextSearchResponse) (google.Place, bool) {
	if resp == nil {
		return google.Place{}, false
	}
	if v.Website != "" {
		for _, pl := range resp.Places {
			if pl.WebsiteURI != "" && match.SameSite(pl.WebsiteURI, v.Website) {
				return pl, true
			}
		}
	}
	var best google.Place
	score := 0.0
	for _, pl := range resp.Places {
		if s := match.Similarity(v.Name, pl.DisplayName.Text); s > score {
			best, score = pl, s
		}
	}
	return best, score >= p.minSimilarity
}
