package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldKind(t *testing.T) {
	t.Parallel()
	assert.Equal(t, KindInt, FieldCapacity.Kind())
	assert.Equal(t, KindText, FieldTicketVendor.Kind())
	assert.Equal(t, KindFloat, FieldAvgTicketPrice.Kind())
	assert.Equal(t, KindFloat, FieldTicketingRevenue.Kind())
}

func TestParseField(t *testing.T) {
	t.Parallel()
	f, ok := ParseField(" Capacity ")
	assert.True(t, ok)
	assert.Equal(t, FieldCapacity, f)

	_, ok = ParseField("employees")
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"EUR 15.00", 15, true},
		{"12,50 €", 12.5, true},
		{"CHF 25.-", 25, true},
		{"$1,200", 1200, true},
		{"1.200.000", 1200000, true},
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"£ 9.5", 9.5, true},
		{"1.500", 1500, true},
		{"-5000", 0, false},
		{"€-12", 0, false},
		{"-€12", 0, false},
		{"EUR −15", 0, false},
		{"Capacity - 2,000", 2000, true},
		{"15-25 EUR", 15, true},
		{"free", 0, false},
		{"0", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	t.Parallel()

	t.Run("price from string", func(t *testing.T) {
		t.Parallel()
		v, ok := NormalizeValue(FieldAvgTicketPrice, "EUR 15")
		assert.True(t, ok)
		assert.Equal(t, 15.0, v)
	})

	t.Run("price must be positive", func(t *testing.T) {
		t.Parallel()
		_, ok := NormalizeValue(FieldAvgTicketPrice, -3.0)
		assert.False(t, ok)
		_, ok = NormalizeValue(FieldAvgTicketPrice, 0)
		assert.False(t, ok)
	})

	t.Run("capacity range", func(t *testing.T) {
		t.Parallel()
		v, ok := NormalizeValue(FieldCapacity, 1500.4)
		assert.True(t, ok)
		assert.Equal(t, int64(1500), v)

		_, ok = NormalizeValue(FieldCapacity, 19)
		assert.False(t, ok)
		_, ok = NormalizeValue(FieldCapacity, 100001)
		assert.False(t, ok)
		v, ok = NormalizeValue(FieldCapacity, "2.500")
		assert.True(t, ok)
		assert.Equal(t, int64(2500), v)
	})

	t.Run("text placeholders rejected", func(t *testing.T) {
		t.Parallel()
		for _, s := range []string{"", "  ", "null", "Unknown", "N/A"} {
			_, ok := NormalizeValue(FieldTicketVendor, s)
			assert.False(t, ok, s)
		}
		v, ok := NormalizeValue(FieldTicketVendor, "  Fever ")
		assert.True(t, ok)
		assert.Equal(t, "Fever", v)
	})

	t.Run("vendor canonicalised", func(t *testing.T) {
		t.Parallel()
		v, ok := NormalizeValue(FieldTicketVendor, "ticket master")
		assert.True(t, ok)
		assert.Equal(t, "Ticketmaster", v)
		v, ok = NormalizeValue(FieldTicketVendor, "dice.fm")
		assert.True(t, ok)
		assert.Equal(t, "DICE", v)
		_, ok = NormalizeValue(FieldTicketVendor, "Viagogo")
		assert.False(t, ok, "resale portals are not a venue's vendor")
		v, ok = NormalizeValue(FieldTicketVendor, "Local Box Office")
		assert.True(t, ok)
		assert.Equal(t, "Local Box Office", v)
	})

	t.Run("negative numbers rejected", func(t *testing.T) {
		t.Parallel()
		_, ok := NormalizeValue(FieldAnnualRevenue, "-5000")
		assert.False(t, ok)
		_, ok = NormalizeValue(FieldAnnualRevenue, -5000.0)
		assert.False(t, ok)
	})

	t.Run("wrong type", func(t *testing.T) {
		t.Parallel()
		_, ok := NormalizeValue(FieldTicketVendor, 12)
		assert.False(t, ok)
		_, ok = NormalizeValue(FieldCapacity, true)
		assert.False(t, ok)
		_, ok = NormalizeValue(FieldCapacity, nil)
		assert.False(t, ok)
	})
}
