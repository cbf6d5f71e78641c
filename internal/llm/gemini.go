package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/venue-enricher/internal/cost"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/pkg/gemini"
)

// GeminiCompleter adapts pkg/gemini to Completer.
type GeminiCompleter struct {
	client gemini.Client
	calc   *cost.Calculator
}

// NewGeminiCompleter wraps client.
func NewGeminiCompleter(client gemini.Client, opts ...CompleterOption) *GeminiCompleter {
	return &GeminiCompleter{client: client, calc: newAdapterOpts(opts).calc}
}

// Provider implements Completer.
func (g *GeminiCompleter) Provider() string { return "gemini" }

// Complete implements Completer.
func (g *GeminiCompleter) Complete(ctx context.Context, modelName string, req Request) (*Response, error) {
	greq := gemini.GenerateRequest{
		Model:     modelName,
		System:    req.System,
		Prompt:    req.Prompt,
		MaxTokens: int32(req.MaxTokens),
		JSON:      req.JSON,
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		greq.Temperature = &t
	}
	resp, err := g.client.Generate(ctx, greq)
	if err != nil {
		return nil, err
	}

	usd := g.calc.Tokens(resp.Model, resp.InputTokens, resp.OutputTokens, 0, 0)
	zap.L().Info("cost attribution",
		zap.String("model", resp.Model),
		zap.String("phase", "llm"),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.Float64("estimated_cost_usd", usd),
	)
	return &Response{
		Text:  resp.Text,
		Model: resp.Model,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.InputTokens),
			OutputTokens: int(resp.OutputTokens),
			CostUSD:      usd,
		},
	}, nil
}
