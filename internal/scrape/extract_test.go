package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOfferPrices(t *testing.T) {
	t.Parallel()
	blocks := []string{
		`{"@type":"MusicEvent","offers":[{"price":20},{"price":"30,00"}]}`,
		`[{"@type":["Event","Thing"],"offers":{"@type":"AggregateOffer","lowPrice":"10","highPrice":"50"}}]`,
		`{"@graph":[{"@type":"TheaterEvent","offers":{"price":"15.50"}},{"@type":"Organization","offers":{"price":999}}]}`,
		`{"@type":"Place","offers":{"price":5}}`,
		`not json`,
		`{"@type":"Event","offers":{"price":0}}`,
	}
	assert.Equal(t, []float64{20, 30, 30, 15.5}, OfferPrices(blocks))
}

func TestTextPrices(t *testing.T) {
	t.Parallel()
	text := "Entradas: 12,50 € anticipada, EUR 15 en taquilla. VIP £40. Año 2024, aforo 300."
	assert.Equal(t, []float64{12.5, 15, 40}, TextPrices(text))
}

func TestAveragePrice(t *testing.T) {
	t.Parallel()

	avg, method, ok := AveragePrice(Page{
		JSONLD: []string{`{"@type":"Event","offers":[{"price":10},{"price":25}]}`},
		Text:   "Tickets $100",
	})
	assert.True(t, ok)
	assert.Equal(t, "jsonld", method)
	assert.InDelta(t, 17.5, avg, 0.001)

	avg, method, ok = AveragePrice(Page{Text: "Tickets from $10 to $15.25"})
	assert.True(t, ok)
	assert.Equal(t, "text", method)
	assert.InDelta(t, 12.63, avg, 0.001)

	_, _, ok = AveragePrice(Page{Text: "Free entry"})
	assert.False(t, ok)
}

func TestCapacity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		want int64
		ok   bool
	}{
		{"The hall has a seating capacity: 1,200", 1200, true},
		{"Aforo: 350, ampliable", 350, true},
		{"Seating capacity 1200 people", 1200, true},
		{"Aforo: 350 personas", 350, true},
		{"Capacité de 800 places", 800, true},
		{"Capacidad para 2500", 2500, true},
		{"Kapazität: 900", 900, true},
		{"Sala con 180 butacas", 180, true},
		{"capacity 10", 0, false},
		{"capacity: 15 and later 400 seats", 400, true},
		{"no numbers here", 0, false},
	}
	for _, tt := range tests {
		got, ok := Capacity(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}
