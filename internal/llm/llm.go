// Package llm routes prompts to Anthropic or Gemini models with quota-aware
// fallback between models.
package llm

import (
	"context"

	"github.com/sells-group/venue-enricher/internal/model"
)

// Request is a single-turn prompt.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
	// JSON hints that the answer must be a JSON object.
	JSON bool
}

// Response is a completion with accounting.
type Response struct {
	Text  string
	Model string
	Usage model.TokenUsage
}

// Completer sends a request to one provider.
type Completer interface {
	Provider() string
	Complete(ctx context.Context, modelName string, req Request) (*Response, error)
}
