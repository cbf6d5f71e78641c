package enricher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/cost"
	"github.com/sells-group/venue-enricher/internal/llm"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/resilience"
	"github.com/sells-group/venue-enricher/pkg/perplexity"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if r, ok := args.Get(0).(*llm.Response); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func answer(text string) *llm.Response {
	return &llm.Response{Text: text, Model: "claude-haiku", Usage: model.TokenUsage{InputTokens: 100, OutputTokens: 20, CostUSD: 0.001}}
}

func TestLLM_FillsMissingFields(t *testing.T) {
	t.Parallel()
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.JSON && r.Temperature != nil && *r.Temperature == 0
	})).Return(answer("```json\n{\"avg_ticket_price\": \"25,50\", \"capacity\": 800, \"ticket_vendor\": \"see tickets\", \"annual_revenue\": null, \"ticketing_revenue\": \"unknown\", \"confidence\": \"high\"}\n```"), nil)

	price := 30.0
	in := NewInput(&model.Venue{Key: "k", Name: "Olympia", AvgTicketPrice: &price})
	in.WebText = "Olympia concert hall"

	res, err := NewLLM(c).Enrich(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, res.Source)
	assert.NotContains(t, res.Values, model.FieldAvgTicketPrice, "already populated fields are not asked for")
	assert.Equal(t, int64(800), res.Values[model.FieldCapacity].V)
	assert.Equal(t, "See Tickets", res.Values[model.FieldTicketVendor].V)
	assert.Equal(t, 0.9, res.Values[model.FieldCapacity].Confidence)
	assert.NotContains(t, res.Values, model.FieldAnnualRevenue)
	assert.NotContains(t, res.Values, model.FieldTicketingRevenue)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 100, res.Usage.InputTokens)
	c.AssertExpectations(t)
}

func TestLLM_PromptCarriesContext(t *testing.T) {
	t.Parallel()
	in := NewInput(&model.Venue{Key: "k", Name: "Olympia", City: "Paris"})
	in.WebText = "Salle mythique"
	in.Evidence = []string{"https://dice.fm/olympia"}
	p := NewLLM(nil).prompt(in, in.Missing())
	assert.Contains(t, p, "- name: Olympia")
	assert.Contains(t, p, "- location: Paris")
	assert.Contains(t, p, "Salle mythique")
	assert.Contains(t, p, `["https://dice.fm/olympia"]`)
	assert.Contains(t, p, "Missing: avg_ticket_price, capacity")
}

func TestLLM_ParseMissIsEmpty(t *testing.T) {
	t.Parallel()
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(answer("I could not find anything."), nil)
	res, err := NewLLM(c).Enrich(context.Background(), venue("Olympia", "", ""))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, []string{"llm: parse miss"}, res.Notes)
}

func TestLLM_QuotaPassesThrough(t *testing.T) {
	t.Parallel()
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(nil, resilience.NewQuotaError("anthropic", 0, errors.New("429")))
	_, err := NewLLM(c).Enrich(context.Background(), venue("Olympia", "", ""))
	require.Error(t, err)
	assert.True(t, resilience.IsQuota(err))
}

func TestRevenue_EstimateAndNotes(t *testing.T) {
	t.Parallel()
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(
		answer(`{"revenue_usd": 2500000, "confidence": "medium", "assumptions": "800 seats, 150 shows, 21 USD"}`), nil)

	capa := int64(800)
	res, err := NewRevenue(c).Enrich(context.Background(), NewInput(&model.Venue{Key: "k", Name: "Olympia", Capacity: &capa}))
	require.NoError(t, err)
	assert.Equal(t, SourceRevenue, res.Source)
	assert.Equal(t, 2_500_000.0, res.Values[model.FieldTicketingRevenue].V)
	assert.Equal(t, 0.75, res.Values[model.FieldTicketingRevenue].Confidence)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "GTV revenue_usd=2.5e+06 confidence=medium")

	req := c.Calls[0].Arguments.Get(1).(llm.Request)
	assert.Contains(t, req.Prompt, "- capacity: 800")
}

func TestRevenue_ParseError(t *testing.T) {
	t.Parallel()
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(answer("not json"), nil)
	res, err := NewRevenue(c).Enrich(context.Background(), venue("Olympia", "", ""))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, []string{"GTV parse_error; raw=not json"}, res.Notes)
}

func TestRevenue_NullEstimate(t *testing.T) {
	t.Parallel()
	c := new(mockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(answer(`{"revenue_usd": null, "confidence": "low"}`), nil)
	res, err := NewRevenue(c).Enrich(context.Background(), venue("Olympia", "", ""))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, []string{"GTV: no estimate"}, res.Notes)
}

type fakePerplexity struct {
	resp *perplexity.ChatCompletionResponse
	err  error
	req  perplexity.ChatCompletionRequest
}

func (f *fakePerplexity) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestPerplexity(t *testing.T) {
	t.Parallel()
	f := &fakePerplexity{resp: &perplexity.ChatCompletionResponse{
		Choices:   []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: `{"annual_revenue": 12000000, "capacity": "2,000", "confidence": "high"}`}}},
		Citations: []string{"https://en.wikipedia.org/wiki/Olympia", "https://olympiahall.com"},
		Usage:     perplexity.Usage{PromptTokens: 500, CompletionTokens: 500},
	}}
	res, err := NewPerplexity(f, nil).Enrich(context.Background(), venue("Olympia", "Paris", "FR"))
	require.NoError(t, err)
	assert.Equal(t, 12_000_000.0, res.Values[model.FieldAnnualRevenue].V)
	assert.Equal(t, int64(2000), res.Values[model.FieldCapacity].V)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Olympia", res.Values[model.FieldCapacity].Evidence)
	assert.Len(t, res.Evidence, 2)
	// Default rates: per-query fee plus 1000 tokens at $1/MTok.
	assert.InDelta(t, 0.006, res.Usage.CostUSD, 1e-9)
	assert.Equal(t, "system", f.req.Messages[0].Role)

	calc := cost.NewCalculator(cost.Rates{Perplexity: cost.PerplexityRate{PerMTok: 5}})
	res, err = NewPerplexity(f, calc).Enrich(context.Background(), venue("Olympia", "Paris", "FR"))
	require.NoError(t, err)
	assert.InDelta(t, 0.005, res.Usage.CostUSD, 1e-9)
}

func TestPerplexity_ParseMiss(t *testing.T) {
	t.Parallel()
	f := &fakePerplexity{resp: &perplexity.ChatCompletionResponse{}}
	res, err := NewPerplexity(f, nil).Enrich(context.Background(), venue("Olympia", "", ""))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, []string{"perplexity: parse miss"}, res.Notes)
}

func TestLabelConfidence(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.9, labelConfidence("HIGH", 0.1))
	assert.Equal(t, 0.4, labelConfidence(0.4, 0.1))
	assert.Equal(t, 0.1, labelConfidence(7.0, 0.1))
	assert.Equal(t, 0.1, labelConfidence(nil, 0.1))
}
