package model

// Attempt records one candidate value offered by a source for a field.
type Attempt struct {
	Source     string  `json:"source"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
	Accepted   bool    `json:"accepted"`
	Reason     string  `json:"reason,omitempty"`
}

// Resolution tracks how one field of one row was decided during a merge.
type Resolution struct {
	Field        Field     `json:"field"`
	WinnerSource string    `json:"winner_source,omitempty"`
	WinnerValue  any       `json:"winner_value,omitempty"`
	Confidence   float64   `json:"confidence"`
	Threshold    float64   `json:"threshold"`
	ThresholdMet bool      `json:"threshold_met"`
	Existing     bool      `json:"existing,omitempty"`
	Attempts     []Attempt `json:"attempts,omitempty"`
}

// Resolved reports whether the merge produced a new value for the field.
func (r *Resolution) Resolved() bool {
	return r != nil && !r.Existing && r.WinnerSource != ""
}
