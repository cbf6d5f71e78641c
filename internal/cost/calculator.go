// Package cost prices model and search calls in USD.
package cost

import "strings"

// Rates holds per-model and per-provider pricing.
type Rates struct {
	Models     map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerMTok  float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Merge returns r with every model and non-zero rate in over applied.
func (r Rates) Merge(over Rates) Rates {
	out := Rates{Models: make(map[string]ModelRate, len(r.Models)+len(over.Models)), Perplexity: r.Perplexity}
	for k, v := range r.Models {
		out.Models[k] = v
	}
	for k, v := range over.Models {
		out.Models[strings.ToLower(k)] = v
	}
	if over.Perplexity.PerMTok > 0 {
		out.Perplexity.PerMTok = over.Perplexity.PerMTok
	}
	if over.Perplexity.PerQuery > 0 {
		out.Perplexity.PerQuery = over.Perplexity.PerQuery
	}
	return out
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Default returns a Calculator over DefaultRates.
func Default() *Calculator {
	return NewCalculator(DefaultRates())
}

// rate finds the pricing for model. Dated model ids fall back to the
// longest configured prefix, so "claude-haiku-4-5" prices a dated release.
func (c *Calculator) rate(model string) (ModelRate, bool) {
	model = strings.ToLower(model)
	if r, ok := c.rates.Models[model]; ok {
		return r, true
	}
	best, found := "", false
	var out ModelRate
	for k, r := range c.rates.Models {
		if strings.HasPrefix(model, k) && len(k) > len(best) {
			best, out, found = k, r, true
		}
	}
	return out, found
}

// Tokens computes the cost of one model call, or 0 for an unknown model.
func (c *Calculator) Tokens(model string, input, output, cacheWrite, cacheRead int64) float64 {
	if c == nil {
		return 0
	}
	r, ok := c.rate(model)
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * r.Input
	outCost := (float64(output) / 1e6) * r.Output
	cwCost := (float64(cacheWrite) / 1e6) * r.Input * r.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * r.Input * r.CacheReadMul
	return inCost + outCost + cwCost + crCost
}

// Perplexity computes the cost of one search-grounded completion.
func (c *Calculator) Perplexity(promptTokens, completionTokens int) float64 {
	if c == nil {
		return 0
	}
	p := c.rates.Perplexity
	return p.PerQuery + float64(promptTokens+completionTokens)/1e6*p.PerMTok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	claude := func(in, out float64) ModelRate {
		return ModelRate{Input: in, Output: out, CacheWriteMul: 1.25, CacheReadMul: 0.1}
	}
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5":      claude(1.00, 5.00),
			"claude-sonnet-4-5":     claude(3.00, 15.00),
			"claude-opus-4":         claude(15.00, 75.00),
			"gemini-2.5-flash":      {Input: 0.30, Output: 2.50},
			"gemini-2.5-flash-lite": {Input: 0.10, Output: 0.40},
			"gemini-2.5-pro":        {Input: 1.25, Output: 10.00},
		},
		Perplexity: PerplexityRate{PerMTok: 1.0, PerQuery: 0.005},
	}
}
