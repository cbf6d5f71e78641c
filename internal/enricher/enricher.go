// Package enricher defines the strategies that look up target fields for a
// venue: provider APIs, the venue website, web search and language models.
package enricher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/model"
)

// ErrNoMatch is used inside strategies to short-circuit a lookup. It never
// reaches the runner: Enrich turns it into an empty result.
var ErrNoMatch = eris.New("enricher: no match")

// maxWebText caps the website text handed to later enrichers.
const maxWebText = 8000

// Enricher looks up some target fields for one venue.
type Enricher interface {
	// Name is the configuration key, e.g. "ticketmaster".
	Name() string
	// Fields lists the target fields the enricher can produce.
	Fields() []model.Field
	// Enrich returns candidate values. No match is an empty result and a
	// nil error.
	Enrich(ctx context.Context, in *Input) (*model.Result, error)
}

// Input is what an enricher sees: the row plus everything found so far by
// higher-priority enrichers during this row.
type Input struct {
	Venue    *model.Venue
	Found    map[model.Field]model.Value
	WebText  string
	Evidence []string
}

// NewInput starts an input for v.
func NewInput(v *model.Venue) *Input {
	return &Input{Venue: v, Found: make(map[model.Field]model.Value)}
}

// Missing returns target fields that are neither in the row nor found yet.
func (in *Input) Missing() []model.Field {
	var out []model.Field
	for _, f := range in.Venue.Missing() {
		if _, ok := in.Found[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Needs reports whether f is still missing.
func (in *Input) Needs(f model.Field) bool {
	if in.Venue.Has(f) {
		return false
	}
	_, ok := in.Found[f]
	return !ok
}

// Known returns the row's values overlaid with values found so far.
func (in *Input) Known() map[model.Field]any {
	out := in.Venue.Known()
	for f, v := range in.Found {
		if _, ok := out[f]; !ok {
			out[f] = v.V
		}
	}
	return out
}

// Absorb folds r into the input. A value only counts as found when its
// confidence reaches min for the field; weaker values stay candidates for
// the merger but do not stop later enrichers from trying.
func (in *Input) Absorb(r *model.Result, min func(model.Field) float64) {
	if r == nil {
		return
	}
	for f, v := range r.Values {
		if _, ok := in.Found[f]; ok || in.Venue.Has(f) {
			continue
		}
		if min != nil && v.Confidence < min(f) {
			continue
		}
		in.Found[f] = v
	}
	if r.WebText != "" {
		in.WebText = clip(strings.TrimSpace(in.WebText+"\n"+r.WebText), maxWebText)
	}
	in.Evidence = appendUnique(in.Evidence, r.Evidence...)
}

// Wants reports whether e can still contribute a missing field.
func Wants(e Enricher, in *Input) bool {
	for _, f := range e.Fields() {
		if in.Needs(f) {
			return true
		}
	}
	return false
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	// Avoid cutting a UTF-8 sequence.
	for len(s) > 0 && s[len(s)-1]&0xC0 == 0x80 {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] >= 0xC0 {
		s = s[:len(s)-1]
	}
	return s
}

func appendUnique(dst []string, src ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		dst = append(dst, s)
	}
	return dst
}

func noMatch(source string, err error) (*model.Result, error) {
	if eris.Is(err, ErrNoMatch) {
		return model.NewResult(source), nil
	}
	return nil, err
}
