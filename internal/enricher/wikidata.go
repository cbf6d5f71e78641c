package enricher

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/pkg/wikidata"
)

// Wikidata reads capacity (P1083) and revenue (P2139) for an exact label.
type Wikidata struct {
	client wikidata.Client
}

// NewWikidata builds the enricher.
func NewWikidata(client wikidata.Client) *Wikidata {
	return &Wikidata{client: client}
}

func (w *Wikidata) Name() string { return "wikidata" }

func (w *Wikidata) Fields() []model.Field {
	return []model.Field{model.FieldCapacity, model.FieldAnnualRevenue}
}

func (w *Wikidata) Enrich(ctx context.Context, in *Input) (*model.Result, error) {
	facts, err := w.client.LookupVenue(ctx, in.Venue.Name)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: lookup venue")
	}
	res := model.NewResult(SourceWikidata)
	if facts == nil {
		return res, nil
	}
	if facts.Capacity > 0 {
		res.Put(model.FieldCapacity, facts.Capacity, 0.85, facts.Item)
	}
	if facts.Revenue > 0 {
		res.Put(model.FieldAnnualRevenue, facts.Revenue, 0.8, facts.Item)
	}
	if !res.Empty() {
		res.Evidence = appendUnique(res.Evidence, facts.Item)
	}
	return res, nil
}
