package scrape

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/venue-enricher/internal/model"
)

// maxTextPrices caps how many currency mentions are averaged.
const maxTextPrices = 50

var eventTypes = map[string]bool{
	"Event":           true,
	"TheaterEvent":    true,
	"MusicEvent":      true,
	"Festival":        true,
	"ExhibitionEvent": true,
	"ComedyEvent":     true,
	"DanceEvent":      true,
	"ScreeningEvent":  true,
}

var priceRe = regexp.MustCompile(`(?i)(?:(?:R\$|A\$|AU\$|NZ\$|CA\$|C\$|€|£|\$|\bEUR|\bGBP|\bUSD|\bBRL|\bCHF|\bPLN|\bkr|\bDKK|\bNOK|\bSEK)\s*\d+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?\s*(?:€|£|EUR\b|CHF\b))`)

// seatNum accepts plain counts and thousands-grouped ones like 1.200.
const seatNum = `(\d{1,3}(?:[.,]\d{3})+|\d{2,6})`

var capacityRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bseating\s*capacity\s*[:\-]?\s*` + seatNum + `\b`),
	regexp.MustCompile(`(?i)\bcapacity\s*(?:of)?\s*[:\-]?\s*` + seatNum + `\b`),
	regexp.MustCompile(`(?i)\bcapacit[eé]\s*(?:de)?\s*[:\-]?\s*` + seatNum + `\b`),
	regexp.MustCompile(`(?i)\bcapacidad\s*(?:de|para)?\s*[:\-]?\s*` + seatNum + `\b`),
	regexp.MustCompile(`(?i)\baforo\s*(?:de)?\s*[:\-]?\s*` + seatNum + `\b`),
	regexp.MustCompile(`(?i)\bkapazit[aä]t\s*[:\-]?\s*` + seatNum + `\b`),
	regexp.MustCompile(`(?i)\b` + seatNum + `\s*(?:seats|places|sitzpl[aä]tze|sitze|plazas|butacas|posti)\b`),
}

// AveragePrice averages the ticket prices on a page. JSON-LD event offers
// win over currency mentions in the text; method names which one was used.
func AveragePrice(p Page) (avg float64, method string, ok bool) {
	method = "jsonld"
	vals := OfferPrices(p.JSONLD)
	if len(vals) == 0 {
		method = "text"
		vals = TextPrices(p.Text)
	}
	if len(vals) == 0 {
		return 0, "", false
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return math.Round(sum/float64(len(vals))*100) / 100, method, true
}

// TextPrices returns the amounts of currency mentions in text.
func TextPrices(text string) []float64 {
	var out []float64
	for _, m := range priceRe.FindAllString(text, -1) {
		if v, ok := model.ParseAmount(m); ok {
			out = append(out, math.Round(v*100)/100)
		}
		if len(out) == maxTextPrices {
			break
		}
	}
	return out
}

// OfferPrices returns the offer prices of every event object in the given
// JSON-LD blocks, including those nested under @graph.
func OfferPrices(blocks []string) []float64 {
	var out []float64
	for _, block := range blocks {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &data); err != nil {
			continue
		}
		for _, obj := range objects(data) {
			if !isEvent(obj["@type"]) {
				continue
			}
			for _, offer := range asList(obj["offers"]) {
				o, ok := offer.(map[string]any)
				if !ok {
					continue
				}
				if v, ok := amount(o["price"]); ok {
					out = append(out, v)
					continue
				}
				low, lok := amount(o["lowPrice"])
				high, hok := amount(o["highPrice"])
				switch {
				case lok && hok:
					out = append(out, (low+high)/2)
				case lok:
					out = append(out, low)
				case hok:
					out = append(out, high)
				}
			}
		}
	}
	return out
}

func objects(data any) []map[string]any {
	var out []map[string]any
	for _, item := range asList(data) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, obj)
		if graph, ok := obj["@graph"]; ok {
			out = append(out, objects(graph)...)
		}
	}
	return out
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func isEvent(t any) bool {
	for _, v := range asList(t) {
		if s, ok := v.(string); ok && eventTypes[s] {
			return true
		}
	}
	return false
}

func amount(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, t > 0
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, f > 0
		}
		return model.ParseAmount(t)
	}
	return 0, false
}

// Capacity finds a seat count in the text. Values outside the accepted
// capacity range are ignored.
func Capacity(text string) (int64, bool) {
	t := strings.Join(strings.Fields(text), " ")
	for _, re := range capacityRes {
		for _, m := range re.FindAllStringSubmatch(t, -1) {
			n, err := strconv.ParseInt(strings.NewReplacer(".", "", ",", "").Replace(m[1]), 10, 64)
			if err == nil && n >= model.MinCapacity && n <= model.MaxCapacity {
				return n, true
			}
		}
	}
	return 0, false
}
