package model

import "time"

// StopReason explains why a batch ended.
type StopReason string

const (
	ReasonCompleted    StopReason = "completed"
	ReasonQuotaStopped StopReason = "quota_stopped"
	ReasonError        StopReason = "error"
)

// Outcome is the per-row result of a batch.
type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomePlanned Outcome = "planned"
)

// Patch is the write planned for one row.
type Patch struct {
	Key       string           `json:"key"`
	Values    map[Field]any    `json:"values,omitempty"`
	Sources   map[Field]string `json:"sources,omitempty"`
	Status    Status           `json:"status"`
	Segment   string           `json:"segment,omitempty"`
	Notes     []string         `json:"notes,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Empty reports whether the patch changes no target fields.
func (p *Patch) Empty() bool {
	return p == nil || len(p.Values) == 0
}

// RowOutcome summarises what happened to one row.
type RowOutcome struct {
	Key     string       `json:"key"`
	Name    string       `json:"name,omitempty"`
	Outcome Outcome      `json:"outcome"`
	Status  Status       `json:"status,omitempty"`
	Fields  []Field      `json:"fields,omitempty"`
	Patch   *Patch       `json:"patch,omitempty"`
	Notes   []string     `json:"notes,omitempty"`
	Error   string       `json:"error,omitempty"`
	Merge   []Resolution `json:"merge,omitempty"`
}

// BatchReport is returned by every batch invocation, including failed ones.
type BatchReport struct {
	RunID    string        `json:"run_id"`
	Limit    int           `json:"limit"`
	Dry      bool          `json:"dry"`
	Pending  *int64        `json:"pending,omitempty"`
	Examined int           `json:"examined"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Reason   StopReason    `json:"reason"`
	Message  string        `json:"message,omitempty"`
	LastKey  string        `json:"last_key,omitempty"`
	// Tripped lists enrichers whose circuit breaker was open at the end.
	Tripped  []string      `json:"tripped,omitempty"`
	Rows     []RowOutcome  `json:"rows"`
	Usage    TokenUsage    `json:"usage"`
	Duration time.Duration `json:"-"`
	Elapsed  string        `json:"elapsed"`
}

// Record appends a row outcome and bumps the matching counter.
func (b *BatchReport) Record(o RowOutcome) {
	b.Rows = append(b.Rows, o)
	b.LastKey = o.Key
	switch o.Outcome {
	case OutcomeUpdated:
		b.Updated++
	case OutcomeFailed:
		b.Failed++
	default:
		b.Skipped++
	}
}

// Finish stamps the stop reason and elapsed time.
func (b *BatchReport) Finish(reason StopReason, msg string, elapsed time.Duration) {
	b.Reason = reason
	b.Message = msg
	b.Duration = elapsed
	b.Elapsed = elapsed.Round(time.Millisecond).String()
}

// Coverage summarises how much of the table is enriched.
type Coverage struct {
	Table    string           `json:"table"`
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	ByField  map[Field]int64  `json:"by_field"`
	Pending  int64            `json:"pending"`
}
