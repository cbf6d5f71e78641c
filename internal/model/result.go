package model

// Value is one candidate value from an enricher.
type Value struct {
	V          any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// Result is one enricher's output for one row. An empty Result means the
// enricher found nothing.
type Result struct {
	Source   string          `json:"source"`
	Values   map[Field]Value `json:"values,omitempty"`
	WebText  string          `json:"-"`
	Evidence []string        `json:"evidence,omitempty"`
	Notes    []string        `json:"notes,omitempty"`
	Usage    *TokenUsage     `json:"usage,omitempty"`
}

// NewResult returns an empty result tagged with source.
func NewResult(source string) *Result {
	return &Result{Source: source, Values: make(map[Field]Value)}
}

// Put normalizes and records a candidate. Invalid values are dropped and
// Put reports false.
func (r *Result) Put(f Field, v any, confidence float64, evidence string) bool {
	n, ok := NormalizeValue(f, v)
	if !ok {
		return false
	}
	if r.Values == nil {
		r.Values = make(map[Field]Value)
	}
	r.Values[f] = Value{V: n, Confidence: confidence, Evidence: evidence}
	return true
}

// Empty reports whether the result offers no values.
func (r *Result) Empty() bool {
	return r == nil || len(r.Values) == 0
}

// TokenUsage tracks LLM token consumption.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(o *TokenUsage) {
	if o == nil {
		return
	}
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CostUSD += o.CostUSD
}
