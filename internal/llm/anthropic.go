package llm

import (
	"context"

	"github.com/sells-group/venue-enricher/internal/cost"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/pkg/anthropic"
)

// CompleterOption configures a provider adapter.
type CompleterOption func(*adapterOpts)

type adapterOpts struct {
	calc *cost.Calculator
}

// WithCalculator prices calls with calc instead of the default rates.
func WithCalculator(calc *cost.Calculator) CompleterOption {
	return func(o *adapterOpts) { o.calc = calc }
}

func newAdapterOpts(opts []CompleterOption) adapterOpts {
	o := adapterOpts{calc: cost.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// AnthropicCompleter adapts pkg/anthropic to Completer.
type AnthropicCompleter struct {
	client anthropic.Client
	calc   *cost.Calculator
}

// NewAnthropicCompleter wraps client.
func NewAnthropicCompleter(client anthropic.Client, opts ...CompleterOption) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, calc: newAdapterOpts(opts).calc}
}

// Provider implements Completer.
func (a *AnthropicCompleter) Provider() string { return "anthropic" }

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, modelName string, req Request) (*Response, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 512
	}
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       modelName,
		MaxTokens:   maxTokens,
		System:      anthropic.CachedSystem(req.System),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(modelName, "llm")
	u := resp.Usage
	return &Response{
		Text:  resp.Text(),
		Model: modelName,
		Usage: model.TokenUsage{
			InputTokens:  int(u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens),
			OutputTokens: int(u.OutputTokens),
			CostUSD:      a.calc.Tokens(modelName, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens),
		},
	}, nil
}
