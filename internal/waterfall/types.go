package waterfall

import "github.com/sells-group/venue-enricher/internal/model"

// candidate is one source's offer for a field, ranked for evaluation.
type candidate struct {
	source string
	value  model.Value
	rank   int
}

// Merged is the outcome of running the waterfall for one venue.
type Merged struct {
	// Values holds only fields that changed; existing row values are never
	// repeated here.
	Values         map[model.Field]any    `json:"values"`
	Sources        map[model.Field]string `json:"sources"`
	Resolutions    []model.Resolution     `json:"resolutions"`
	FieldsResolved int                    `json:"fields_resolved"`
	FieldsTotal    int                    `json:"fields_total"`
}

// Changed reports whether any field was filled.
func (m *Merged) Changed() bool {
	return m != nil && len(m.Values) > 0
}

// Fields lists the changed fields in target order.
func (m *Merged) Fields() []model.Field {
	var out []model.Field
	for _, f := range model.TargetFields {
		if _, ok := m.Values[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
