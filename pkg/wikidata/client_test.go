package wikidata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/resilience"
)

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(` Teatro "Real" `, []string{"en", "es"})
	assert.Contains(t, q, `"Teatro \"Real\""@en "Teatro \"Real\""@es`)
	assert.Contains(t, q, "wdt:P1083")
	assert.Contains(t, q, "wdt:P2139")
}

func TestLookupVenue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/sparql-results+json", r.Header.Get("Accept"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Contains(t, r.URL.Query().Get("query"), `"Royal Albert Hall"@en`)
		_, _ = w.Write([]byte(`{"results":{"bindings":[
			{"item":{"value":"http://www.wikidata.org/entity/Q1"}},
			{"item":{"value":"http://www.wikidata.org/entity/Q194209"},"capacity":{"value":"5272"},"revenue":{"value":"3.1E7"}}
		]}}`))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL), WithUserAgent("test-agent"), WithLanguages("en"))
	f, err := c.LookupVenue(context.Background(), "Royal Albert Hall")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "http://www.wikidata.org/entity/Q194209", f.Item)
	assert.Equal(t, int64(5272), f.Capacity)
	assert.InDelta(t, 31e6, f.Revenue, 1)
}

func TestLookupVenue_NoFacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"bindings":[{"item":{"value":"Q2"}}]}}`))
	}))
	defer srv.Close()

	f, err := NewClient(WithEndpoint(srv.URL)).LookupVenue(context.Background(), "Nowhere")
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = NewClient(WithEndpoint(srv.URL)).LookupVenue(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestLookupVenue_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(WithEndpoint(srv.URL)).LookupVenue(context.Background(), "X")
	assert.True(t, resilience.IsQuota(err))
}
