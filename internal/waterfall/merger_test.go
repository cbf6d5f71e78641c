package waterfall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/model"
)

func result(source string, vals map[model.Field]model.Value) *model.Result {
	return &model.Result{Source: source, Values: vals}
}

func TestMerge_PriorityWins(t *testing.T) {
	t.Parallel()
	m := NewMerger(nil)
	v := &model.Venue{Key: "Sala Equis", Name: "Sala Equis"}

	llm := result("llm", map[model.Field]model.Value{
		model.FieldCapacity: {V: int64(500), Confidence: 0.5},
	})
	tm := result("ticketmaster_api", map[model.Field]model.Value{
		model.FieldCapacity: {V: int64(320), Confidence: 0.9},
	})

	got := m.Merge(v, []*model.Result{llm, tm})
	assert.Equal(t, int64(320), got.Values[model.FieldCapacity])
	assert.Equal(t, "ticketmaster_api", got.Sources[model.FieldCapacity])

	require.Len(t, got.Resolutions, 1)
	res := got.Resolutions[0]
	assert.True(t, res.Resolved())
	require.Len(t, res.Attempts, 2)
	assert.True(t, res.Attempts[0].Accepted)
	assert.Equal(t, "lower priority", res.Attempts[1].Reason)
}

func TestMerge_Deterministic(t *testing.T) {
	t.Parallel()
	m := NewMerger(nil)
	v := &model.Venue{Key: "k"}
	results := []*model.Result{
		result("zeta_source", map[model.Field]model.Value{model.FieldAnnualRevenue: {V: 9.0, Confidence: 1}}),
		result("alpha_source", map[model.Field]model.Value{model.FieldAnnualRevenue: {V: 7.0, Confidence: 1}}),
		result("website", map[model.Field]model.Value{model.FieldAvgTicketPrice: {V: 25.0, Confidence: 0.8}}),
		result("llm", map[model.Field]model.Value{model.FieldAvgTicketPrice: {V: 30.0, Confidence: 0.6}}),
	}
	reversed := []*model.Result{results[3], results[2], results[1], results[0]}

	a := m.Merge(v, results)
	b := m.Merge(v, reversed)
	assert.Equal(t, a.Values, b.Values)
	assert.Equal(t, a.Sources, b.Sources)

	// Unknown sources rank after known ones, by name.
	assert.Equal(t, "alpha_source", a.Sources[model.FieldAnnualRevenue])
	assert.Equal(t, "website", a.Sources[model.FieldAvgTicketPrice])
}

func TestMerge_VendorThreshold(t *testing.T) {
	t.Parallel()
	m := NewMerger(nil)
	v := &model.Venue{Key: "k"}

	weak := result("web_search", map[model.Field]model.Value{
		model.FieldTicketVendor: {V: "DICE", Confidence: 0.6},
	})
	got := m.Merge(v, []*model.Result{weak})
	assert.False(t, got.Changed())
	require.Len(t, got.Resolutions, 1)
	assert.False(t, got.Resolutions[0].ThresholdMet)
	assert.Equal(t, "below threshold", got.Resolutions[0].Attempts[0].Reason)

	strong := result("llm", map[model.Field]model.Value{
		model.FieldTicketVendor: {V: "Shotgun", Confidence: 0.8},
	})
	got = m.Merge(v, []*model.Result{weak, strong})
	assert.Equal(t, "Shotgun", got.Values[model.FieldTicketVendor])
	assert.Equal(t, "llm", got.Sources[model.FieldTicketVendor])
}

func TestMerge_NeverOverwritesExisting(t *testing.T) {
	t.Parallel()
	m := NewMerger(nil)
	capa := int64(800)
	v := &model.Venue{Key: "k", Capacity: &capa}

	got := m.Merge(v, []*model.Result{
		result("ticketmaster_api", map[model.Field]model.Value{model.FieldCapacity: {V: int64(900), Confidence: 1}}),
	})
	assert.NotContains(t, got.Values, model.FieldCapacity)
	require.Len(t, got.Resolutions, 1)
	assert.True(t, got.Resolutions[0].Existing)
	assert.False(t, got.Resolutions[0].Resolved())
	assert.Equal(t, int64(800), got.Resolutions[0].WinnerValue)
}

func TestMerge_FieldChainOverridesGlobal(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Fields["capacity"] = FieldConfig{Sources: []SourceConfig{{Name: "wikidata"}}}
	m := NewMerger(cfg)

	got := m.Merge(&model.Venue{Key: "k"}, []*model.Result{
		result("ticketmaster_api", map[model.Field]model.Value{model.FieldCapacity: {V: int64(900), Confidence: 1}}),
		result("wikidata", map[model.Field]model.Value{model.FieldCapacity: {V: int64(1200), Confidence: 1}}),
	})
	assert.Equal(t, "wikidata", got.Sources[model.FieldCapacity])
	assert.Equal(t, int64(1200), got.Values[model.FieldCapacity])
}

func TestMerge_AliasesResolveEnricherNames(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Priority = []string{"places", "website"}
	m := NewMerger(cfg, WithAliases(map[string]string{"places": "google_places"}))

	got := m.Merge(&model.Venue{Key: "k"}, []*model.Result{
		result("website", map[model.Field]model.Value{model.FieldAvgTicketPrice: {V: 18.0, Confidence: 0.8}}),
		result("google_places", map[model.Field]model.Value{model.FieldAvgTicketPrice: {V: 50.0, Confidence: 0.4}}),
	})
	assert.Equal(t, "google_places", got.Sources[model.FieldAvgTicketPrice])
}

func TestMerge_InvalidValueFallsThrough(t *testing.T) {
	t.Parallel()
	m := NewMerger(nil)
	got := m.Merge(&model.Venue{Key: "k"}, []*model.Result{
		result("ticketmaster_api", map[model.Field]model.Value{model.FieldCapacity: {V: int64(3), Confidence: 1}}),
		result("llm", map[model.Field]model.Value{model.FieldCapacity: {V: int64(450), Confidence: 0.5}}),
	})
	assert.Equal(t, "llm", got.Sources[model.FieldCapacity])
	assert.Equal(t, "invalid value", got.Resolutions[0].Attempts[0].Reason)
}

func TestMerged_Patch(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	price, capa, rev := 30.0, int64(400), 1_000_000.0
	vendorName := "DICE"
	v := &model.Venue{
		Key: "k", AvgTicketPrice: &price, Capacity: &capa,
		TicketVendor: &vendorName, AnnualRevenue: &rev,
	}

	m := NewMerger(nil)
	merged := m.Merge(v, []*model.Result{
		result("llm_revenue", map[model.Field]model.Value{model.FieldTicketingRevenue: {V: 4_500_000.0, Confidence: 0.5}}),
	})
	p := merged.Patch(v, []string{"revenue note"}, now)
	assert.Equal(t, model.StatusDone, p.Status)
	assert.Equal(t, model.SegmentGold, p.Segment)
	assert.Equal(t, "llm_revenue", p.Sources[model.FieldTicketingRevenue])
	assert.Equal(t, []string{"revenue note"}, p.Notes)
	assert.Equal(t, now, p.UpdatedAt)

	partial := m.Merge(&model.Venue{Key: "x"}, nil).Patch(&model.Venue{Key: "x"}, nil, now)
	assert.Equal(t, model.StatusPartial, partial.Status)
	assert.True(t, partial.Empty())
	assert.Empty(t, partial.Segment)
}

func TestMerged_Fields(t *testing.T) {
	t.Parallel()
	m := &Merged{Values: map[model.Field]any{
		model.FieldTicketingRevenue: 1.0,
		model.FieldAvgTicketPrice:   2.0,
	}}
	assert.Equal(t, []model.Field{model.FieldAvgTicketPrice, model.FieldTicketingRevenue}, m.Fields())
}
