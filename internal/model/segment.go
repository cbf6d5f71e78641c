package model

// Size segments by annual ticketing revenue (GTV) in USD.
const (
	SegmentDiamond = "Diamond"
	SegmentGold    = "Gold"
	SegmentSilver  = "Silver"
	SegmentBronze  = "Bronze"
)

// SizeSegment buckets a venue by its gross ticket value.
func SizeSegment(gtv float64) string {
	switch {
	case gtv >= 20_000_000:
		return SegmentDiamond
	case gtv >= 4_000_000:
		return SegmentGold
	case gtv >= 2_000_000:
		return SegmentSilver
	default:
		return SegmentBronze
	}
}
