package model

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/venue-enricher/internal/vendor"
)

// Field identifies one enrichment target column.
type Field string

const (
	FieldAvgTicketPrice   Field = "avg_ticket_price"
	FieldCapacity         Field = "capacity"
	FieldTicketVendor     Field = "ticket_vendor"
	FieldAnnualRevenue    Field = "annual_revenue"
	FieldTicketingRevenue Field = "ticketing_revenue"
)

// TargetFields is the fixed, ordered set of fields the runner tries to fill.
var TargetFields = []Field{
	FieldAvgTicketPrice,
	FieldCapacity,
	FieldTicketVendor,
	FieldAnnualRevenue,
	FieldTicketingRevenue,
}

// Kind describes how a field is stored.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindText
)

// Capacity bounds outside of which a parsed value is treated as noise.
const (
	MinCapacity = 20
	MaxCapacity = 100000
)

// Kind returns the storage kind of the field.
func (f Field) Kind() Kind {
	switch f {
	case FieldCapacity:
		return KindInt
	case FieldTicketVendor:
		return KindText
	default:
		return KindFloat
	}
}

// Valid reports whether f is one of the target fields.
func (f Field) Valid() bool {
	for _, t := range TargetFields {
		if t == f {
			return true
		}
	}
	return false
}

// ParseField converts a string to a Field, reporting whether it is known.
func ParseField(s string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	return f, f.Valid()
}

var emptyText = map[string]bool{
	"":        true,
	"null":    true,
	"none":    true,
	"unknown": true,
	"n/a":     true,
	"na":      true,
	"-":       true,
}

// NormalizeValue coerces v into the field's storage type and validates it.
// It returns false when the value is missing, malformed or out of range.
func NormalizeValue(f Field, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch f.Kind() {
	case KindText:
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		s = strings.TrimSpace(s)
		if emptyText[strings.ToLower(s)] {
			return nil, false
		}
		if f == FieldTicketVendor {
			// Aliases map onto the table spelling; resale portals are dropped.
			if s = vendor.Canonical(s); s == "" {
				return nil, false
			}
		}
		return s, true
	case KindInt:
		n, ok := toNumber(v)
		if !ok {
			return nil, false
		}
		c := int64(math.Round(n))
		if c < MinCapacity || c > MaxCapacity {
			return nil, false
		}
		return c, true
	default:
		n, ok := toNumber(v)
		if !ok || n <= 0 {
			return nil, false
		}
		return math.Round(n*100) / 100, true
	}
}

func toNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case int32:
		n = float64(x)
	case string:
		p, ok := ParseAmount(x)
		if !ok {
			return 0, false
		}
		n = p
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

var amountRe = regexp.MustCompile(`\d[\d.,]*`)

// ParseAmount extracts a number from text such as "EUR 15.00", "12,50 €",
// "CHF 25.-" or "1.200.000". Comma is treated as the decimal separator when
// it is the only separator and is followed by one or two digits. Negative
// amounts ("-5000", "€-12", "-€12") are rejected.
func ParseAmount(s string) (float64, bool) {
	loc := amountRe.FindStringIndex(s)
	if loc == nil {
		return 0, false
	}
	// A minus touching the digits, or only a currency sign away, negates.
	// "Capacity - 2,000" keeps its dash as punctuation.
	before := strings.TrimRight(s[:loc[0]], "€$£")
	if strings.HasSuffix(before, "-") || strings.HasSuffix(before, "−") {
		return 0, false
	}
	m := s[loc[0]:loc[1]]
	m = strings.TrimRight(m, ".,")
	commas := strings.Count(m, ",")
	dots := strings.Count(m, ".")

	switch {
	case commas == 1 && dots == 0:
		if i := strings.Index(m, ","); len(m)-i-1 <= 2 {
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.Replace(m, ",", "", 1)
		}
	case commas > 0 && dots > 0:
		// The last separator is the decimal one.
		if strings.LastIndex(m, ",") > strings.LastIndex(m, ".") {
			m = strings.ReplaceAll(m, ".", "")
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
	case commas > 1:
		m = strings.ReplaceAll(m, ",", "")
	case dots > 1:
		m = strings.ReplaceAll(m, ".", "")
	case dots == 1:
		// "1.200" is a thousands group, "12.50" a decimal.
		if i := strings.Index(m, "."); len(m)-i-1 == 3 && i <= 3 && i > 0 && m[0] != '0' {
			m = strings.Replace(m, ".", "", 1)
		}
	}

	n, err := strconv.ParseFloat(m, 64)
	if err != nil || n <= 0 || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
