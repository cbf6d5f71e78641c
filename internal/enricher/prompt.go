package enricher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/venue-enricher/internal/model"
)

// Confidence labels some prompts return.
var confidenceLabels = map[string]float64{
	"low":    0.5,
	"medium": 0.75,
	"high":   0.9,
}

// labelConfidence maps "low|medium|high" (or a number in 0..1) to a score,
// falling back to def.
func labelConfidence(v any, def float64) float64 {
	switch x := v.(type) {
	case string:
		if c, ok := confidenceLabels[strings.ToLower(strings.TrimSpace(x))]; ok {
			return c
		}
	case float64:
		if x > 0 && x <= 1 {
			return x
		}
	}
	return def
}

// putParsed records a value decoded from a model answer. Unknown or
// malformed values are skipped silently.
func putParsed(res *model.Result, f model.Field, v any, conf float64, evidence string) bool {
	if v == nil {
		return false
	}
	return res.Put(f, v, conf, evidence)
}

// venueContext renders the row and what is known so far for a prompt.
func venueContext(in *Input) string {
	v := in.Venue
	var b strings.Builder
	fmt.Fprintf(&b, "- name: %s\n", v.Name)
	if v.Website != "" {
		fmt.Fprintf(&b, "- website: %s\n", v.Website)
	}
	if loc := v.Location(); loc != "" {
		fmt.Fprintf(&b, "- location: %s\n", loc)
	}
	if v.Category != "" {
		fmt.Fprintf(&b, "- category: %s\n", v.Category)
	}
	known := in.Known()
	for _, f := range model.TargetFields {
		if val, ok := known[f]; ok {
			fmt.Fprintf(&b, "- %s: %v\n", f, val)
		}
	}
	return b.String()
}

func evidenceJSON(ev []string, n int) string {
	if len(ev) > n {
		ev = ev[:n]
	}
	if ev == nil {
		ev = []string{}
	}
	b, _ := json.Marshal(ev)
	return string(b)
}
