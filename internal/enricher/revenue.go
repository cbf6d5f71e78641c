package enricher

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/llm"
	"github.com/sells-group/venue-enricher/internal/model"
)

const revenueSystem = `You are a careful revenue estimator for cultural venues and events.
Goal: estimate ANNUAL gross ticket revenue (GTV) in USD for the provided entity.
Use any provided hints (capacity, average ticket price, annual revenue, notes).
If info is missing, make a conservative estimate based on typical venues of that size and location.

Rules:
- Return ONLY a minified JSON object with keys: revenue_usd (number), confidence ("low"|"medium"|"high"), assumptions (string <= 400 chars).
- Do not include markdown or extra text.
- Use USD.`

// maxAssumptions bounds the assumptions text copied into notes.
const maxAssumptions = 400

// Revenue estimates gross ticket value with a language model.
type Revenue struct {
	client Completer
}

// NewRevenue builds the GTV estimator.
func NewRevenue(client Completer) *Revenue {
	return &Revenue{client: client}
}

func (r *Revenue) Name() string { return "revenue" }

func (r *Revenue) Fields() []model.Field {
	return []model.Field{model.FieldTicketingRevenue}
}

func (r *Revenue) Enrich(ctx context.Context, in *Input) (*model.Result, error) {
	temp := 0.2
	resp, err := r.client.Complete(ctx, llm.Request{
		System:      revenueSystem,
		Prompt:      "Entity:\n" + venueContext(in) + "\nReturn only JSON with: revenue_usd, confidence, assumptions.",
		MaxTokens:   350,
		Temperature: &temp,
		JSON:        true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "revenue: estimate")
	}

	res := model.NewResult(SourceRevenue)
	res.Usage = &resp.Usage
	obj, ok := llm.ParseObject(resp.Text)
	if !ok {
		raw := clip(strings.TrimSpace(resp.Text), 250)
		res.Notes = append(res.Notes, "GTV parse_error; raw="+raw)
		return res, nil
	}

	label, _ := obj["confidence"].(string)
	label = strings.ToLower(strings.TrimSpace(label))
	assumptions, _ := obj["assumptions"].(string)
	assumptions = clip(strings.TrimSpace(assumptions), maxAssumptions)

	if !putParsed(res, model.FieldTicketingRevenue, obj["revenue_usd"], labelConfidence(label, confidenceLabels["low"]), assumptions) {
		res.Notes = append(res.Notes, "GTV: no estimate")
		return res, nil
	}
	val := res.Values[model.FieldTicketingRevenue].V
	res.Notes = append(res.Notes, fmt.Sprintf("GTV revenue_usd=%v confidence=%s assumptions=%s", val, label, assumptions))
	return res, nil
}
