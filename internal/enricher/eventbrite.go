package enricher

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/pkg/eventbrite"
)

// Eventbrite searches Eventbrite venues by name.
type Eventbrite struct {
	client        eventbrite.Client
	minSimilarity float64
}

// NewEventbrite builds the enricher. minSimilarity <= 0 takes the default.
func NewEventbrite(client eventbrite.Client, minSimilarity float64) *Eventbrite {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &Eventbrite{client: client, minSimilarity: minSimilarity}
}

func (e *Eventbrite) Name() string { return "eventbrite" }

func (e *Eventbrite) Fields() []model.Field {
	return []model.Field{model.FieldCapacity, model.FieldTicketVendor}
}

func (e *Eventbrite) Enrich(ctx context.Context, in *Input) (*model.Result, error) {
	v := in.Venue
	venues, err := e.client.SearchVenues(ctx, v.Name)
	if err != nil {
		return nil, eris.Wrap(err, "eventbrite: search venues")
	}

	res := model.NewResult(SourceEventbrite)
	var hit *eventbrite.Venue
	score := 0.0
	for i := range venues {
		if s := similarity(v, venues[i].Name, venues[i].Address.City); s > score {
			hit, score = &venues[i], s
		}
	}
	if hit == nil || score < e.minSimilarity {
		return res, nil
	}

	res.Put(model.FieldCapacity, int64(hit.Capacity), 0.85, hit.ResourceURI)
	res.Put(model.FieldTicketVendor, "Eventbrite", 0.85, hit.ResourceURI)
	res.Evidence = appendUnique(res.Evidence, hit.ResourceURI)
	return res, nil
}
