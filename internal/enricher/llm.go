package enricher

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/llm"
	"github.com/sells-group/venue-enricher/internal/model"
)

// Completer sends one prompt. *llm.Router satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

const extractSystem = `You enrich cultural venues. Use ONLY the provided website text and evidence. If unsure, return null.
Return STRICT JSON with exactly these keys:
{"avg_ticket_price": number|null, "capacity": integer|null, "ticket_vendor": string|null,
 "annual_revenue": number|null, "ticketing_revenue": number|null, "confidence": "low"|"medium"|"high"}
Rules:
- ticket_vendor is the platform that processes checkout, not a resale aggregator.
- Keep numbers as plain numbers, no currency symbols.
- No markdown.`

// LLM asks a language model to fill every missing field from the context
// gathered by earlier enrichers.
type LLM struct {
	client  Completer
	maxText int
}

// NewLLM builds the extraction enricher.
func NewLLM(client Completer) *LLM {
	return &LLM{client: client, maxText: 3500}
}

func (l *LLM) Name() string { return "llm" }

func (l *LLM) Fields() []model.Field { return model.TargetFields }

func (l *LLM) Enrich(ctx context.Context, in *Input) (*model.Result, error) {
	missing := in.Missing()
	zero := 0.0
	resp, err := l.client.Complete(ctx, llm.Request{
		System:      extractSystem,
		Prompt:      l.prompt(in, missing),
		MaxTokens:   300,
		Temperature: &zero,
		JSON:        true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: extract")
	}

	res := model.NewResult(SourceLLM)
	res.Usage = &resp.Usage
	obj, ok := llm.ParseObject(resp.Text)
	if !ok {
		res.Notes = append(res.Notes, "llm: parse miss")
		return res, nil
	}
	conf := labelConfidence(obj["confidence"], confidenceLabels["medium"])
	for _, f := range missing {
		putParsed(res, f, obj[string(f)], conf, "llm:"+resp.Model)
	}
	return res, nil
}

func (l *LLM) prompt(in *Input, missing []model.Field) string {
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = string(f)
	}
	text := clip(in.WebText, l.maxText)
	return fmt.Sprintf("Venue:\n%sMissing: %s\nTEXT:\n%s\nEvidence: %s\n",
		venueContext(in), strings.Join(names, ", "), text, evidenceJSON(in.Evidence, 10))
}
