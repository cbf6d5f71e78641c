// Package waterfall merges candidate field values from many enrichers into
// one row using per-field source chains and confidence thresholds.
package waterfall

import (
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/venue-enricher/internal/model"
)

// Merger resolves each target field to at most one winning candidate.
type Merger struct {
	cfg     *Config
	aliases map[string]string
	global  map[string]int
	chains  map[model.Field]map[string]int
}

// Option configures a Merger.
type Option func(*Merger)

// WithAliases lets priority lists name enrichers instead of source tags.
// Keys are enricher names, values the tags their results carry.
func WithAliases(aliases map[string]string) Option {
	return func(m *Merger) {
		for k, v := range aliases {
			m.aliases[k] = v
		}
	}
}

// NewMerger builds a merger. A nil cfg uses Default.
func NewMerger(cfg *Config, opts ...Option) *Merger {
	if cfg == nil {
		cfg = Default()
	}
	m := &Merger{
		cfg:     cfg,
		aliases: make(map[string]string),
		chains:  make(map[model.Field]map[string]int),
	}
	for _, o := range opts {
		o(m)
	}

	m.global = m.ranks(cfg.Priority)
	for key, fc := range cfg.Fields {
		f, ok := model.ParseField(key)
		if !ok || len(fc.Sources) == 0 {
			continue
		}
		names := make([]string, 0, len(fc.Sources))
		for _, s := range fc.Sources {
			names = append(names, s.Name)
		}
		m.chains[f] = m.ranks(names)
	}
	return m
}

func (m *Merger) ranks(names []string) map[string]int {
	out := make(map[string]int, len(names))
	for i, n := range names {
		if tag, ok := m.aliases[n]; ok {
			n = tag
		}
		if _, dup := out[n]; !dup {
			out[n] = i
		}
	}
	return out
}

// Threshold returns the minimum confidence for a field.
func (m *Merger) Threshold(f model.Field) float64 {
	return m.cfg.GetFieldConfig(string(f)).ConfidenceThreshold
}

// rank orders sources: the field chain first, then the global list, then
// unknown sources. Unknown sources all share the last rank and fall back to
// name order.
func (m *Merger) rank(f model.Field, source string) int {
	chain := m.chains[f]
	if r, ok := chain[source]; ok {
		return r
	}
	if r, ok := m.global[source]; ok {
		return len(chain) + r
	}
	return len(chain) + len(m.global)
}

// Merge picks a winner for every missing field of v from results. The
// order of results does not affect the outcome. v is not modified.
func (m *Merger) Merge(v *model.Venue, results []*model.Result) *Merged {
	out := &Merged{
		Values:  make(map[model.Field]any),
		Sources: make(map[model.Field]string),
	}

	for _, f := range model.TargetFields {
		cands := m.candidates(f, results)
		res := model.Resolution{Field: f, Threshold: m.Threshold(f)}
		out.FieldsTotal++

		if v.Has(f) {
			res.Existing = true
			res.ThresholdMet = true
			res.WinnerValue = v.Value(f)
			for _, c := range cands {
				res.Attempts = append(res.Attempts, attempt(c, false, "already populated"))
			}
			if len(cands) > 0 {
				out.Resolutions = append(out.Resolutions, res)
			}
			continue
		}

		for _, c := range cands {
			switch {
			case res.WinnerSource != "":
				res.Attempts = append(res.Attempts, attempt(c, false, "lower priority"))
			case c.value.Confidence < res.Threshold:
				res.Attempts = append(res.Attempts, attempt(c, false, "below threshold"))
			default:
				val, ok := model.NormalizeValue(f, c.value.V)
				if !ok {
					res.Attempts = append(res.Attempts, attempt(c, false, "invalid value"))
					continue
				}
				res.WinnerSource = c.source
				res.WinnerValue = val
				res.Confidence = c.value.Confidence
				res.ThresholdMet = true
				res.Attempts = append(res.Attempts, attempt(c, true, ""))
				out.Values[f] = val
				out.Sources[f] = c.source
				out.FieldsResolved++
			}
		}
		if len(cands) > 0 {
			out.Resolutions = append(out.Resolutions, res)
		}
	}
	return out
}

func (m *Merger) candidates(f model.Field, results []*model.Result) []candidate {
	var out []candidate
	for _, r := range results {
		if r == nil {
			continue
		}
		val, ok := r.Values[f]
		if !ok {
			continue
		}
		out = append(out, candidate{source: r.Source, value: val, rank: m.rank(f, r.Source)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.source != b.source {
			return a.source < b.source
		}
		if a.value.Confidence != b.value.Confidence {
			return a.value.Confidence > b.value.Confidence
		}
		return fmt.Sprint(a.value.V) < fmt.Sprint(b.value.V)
	})
	return out
}

func attempt(c candidate, accepted bool, reason string) model.Attempt {
	return model.Attempt{
		Source:     c.source,
		Value:      c.value.V,
		Confidence: c.value.Confidence,
		Evidence:   c.value.Evidence,
		Accepted:   accepted,
		Reason:     reason,
	}
}

// Patch turns a merge into the write for v. Status is DONE when every
// target field is filled after the merge, PARTIAL otherwise. The segment is
// set whenever ticketing revenue is known.
func (m *Merged) Patch(v *model.Venue, notes []string, now time.Time) *model.Patch {
	after := v.Clone()
	for f, val := range m.Values {
		after.Set(f, val)
	}

	p := &model.Patch{
		Key:       v.Key,
		Values:    make(map[model.Field]any, len(m.Values)),
		Sources:   make(map[model.Field]string, len(m.Sources)),
		Status:    model.StatusPartial,
		Notes:     notes,
		UpdatedAt: now.UTC(),
	}
	for f, val := range m.Values {
		p.Values[f] = val
		p.Sources[f] = m.Sources[f]
	}
	if after.Complete() {
		p.Status = model.StatusDone
	}
	if after.TicketingRevenue != nil {
		p.Segment = model.SizeSegment(*after.TicketingRevenue)
	}
	return p
}
