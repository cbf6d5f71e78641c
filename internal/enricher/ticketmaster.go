package enricher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/match"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/pkg/ticketmaster"
)

// DefaultMinSimilarity is the fuzzy name score needed to accept a provider
// venue as the same place.
const DefaultMinSimilarity = 0.72

// Ticketmaster looks the venue up in the Discovery API.
type Ticketmaster struct {
	client        ticketmaster.Client
	minSimilarity float64
}

// NewTicketmaster builds the enricher. minSimilarity <= 0 takes the default.
func NewTicketmaster(client ticketmaster.Client, minSimilarity float64) *Ticketmaster {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &Ticketmaster{client: client, minSimilarity: minSimilarity}
}

func (t *Ticketmaster) Name() string { return "ticketmaster" }

func (t *Ticketmaster) Fields() []model.Field {
	return []model.Field{model.FieldCapacity, model.FieldTicketVendor}
}

func (t *Ticketmaster) Enrich(ctx context.Context, in *Input) (*model.Result, error) {
	v := in.Venue
	venues, err := t.client.SearchVenues(ctx, ticketmaster.VenueQuery{
		Keyword:     v.Name,
		CountryCode: countryCode(v.Country),
		Size:        10,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ticketmaster: search venues")
	}

	best, score := -1, 0.0
	for i, c := range venues {
		s := similarity(v, c.Name, c.City.Name)
		if s > score {
			best, score = i, s
		}
	}
	res := model.NewResult(SourceTicketmaster)
	if best < 0 || score < t.minSimilarity {
		return res, nil
	}

	hit := venues[best]
	res.Put(model.FieldCapacity, int64(hit.Capacity), 0.9, hit.URL)
	res.Put(model.FieldTicketVendor, "Ticketmaster", 0.9, hit.URL)
	res.Evidence = appendUnique(res.Evidence, hit.URL)
	return res, nil
}

// similarity scores a provider venue against the row, with a small bonus
// when the city agrees.
func similarity(v *model.Venue, name, city string) float64 {
	s := match.Similarity(v.Name, name)
	if city != "" && v.City != "" && match.Fold(city) == match.Fold(v.City) {
		s += 0.05
	}
	if s > 1 {
		s = 1
	}
	return s
}

// countryCode passes through ISO-3166 alpha-2 codes and drops anything else.
func countryCode(country string) string {
	c := strings.TrimSpace(country)
	if len(c) != 2 {
		return ""
	}
	return strings.ToUpper(c)
}
