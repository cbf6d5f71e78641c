package enricher

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/cost"
	"github.com/sells-group/venue-enricher/internal/llm"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/pkg/perplexity"
)

const perplexitySystem = `You research cultural venues using web sources.
Return ONLY a JSON object: {"annual_revenue": number|null, "capacity": integer|null, "confidence": "low"|"medium"|"high"}.
annual_revenue is the organisation's total yearly revenue in USD. capacity is seated or standing capacity.
Use null when no source supports a value.`

// Perplexity asks a search-grounded model for revenue and capacity.
type Perplexity struct {
	client perplexity.Client
	calc   *cost.Calculator
}

// NewPerplexity builds the enricher. A nil calc uses the default rates.
func NewPerplexity(client perplexity.Client, calc *cost.Calculator) *Perplexity {
	if calc == nil {
		calc = cost.Default()
	}
	return &Perplexity{client: client, calc: calc}
}

func (p *Perplexity) Name() string { return "perplexity" }

func (p *Perplexity) Fields() []model.Field {
	return []model.Field{model.FieldAnnualRevenue, model.FieldCapacity}
}

func (p *Perplexity) Enrich(ctx context.Context, in *Input) (*model.Result, error) {
	zero := 0.0
	maxTokens := 200
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexitySystem},
			{Role: "user", Content: "Venue:\n" + venueContext(in)},
		},
		Temperature: &zero,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, eris.Wrap(err, "perplexity: chat completion")
	}

	res := model.NewResult(SourcePerplexity)
	res.Usage = &model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CostUSD:      p.calc.Perplexity(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}
	obj, ok := llm.ParseObject(resp.Text())
	if !ok {
		res.Notes = append(res.Notes, "perplexity: parse miss")
		return res, nil
	}

	conf := labelConfidence(obj["confidence"], 0.6)
	evidence := ""
	if len(resp.Citations) > 0 {
		evidence = resp.Citations[0]
	}
	for _, f := range p.Fields() {
		if in.Needs(f) {
			putParsed(res, f, obj[string(f)], conf, evidence)
		}
	}
	if !res.Empty() {
		res.Evidence = appendUnique(res.Evidence, resp.Citations...)
	}
	return res, nil
}
