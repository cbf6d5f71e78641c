package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/resilience"
)

func TestRead_Success(t *testing.T) {
	t.Parallel()

	want := ReadResponse{
		Code: 200,
		Data: ReadData{
			Title:   "Sala Apolo",
			URL:     "https://sala-apolo.com",
			Content: "# Sala Apolo\n\nAforo: 1.600 personas",
			Usage:   ReadUsage{Tokens: 310},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://sala-apolo.com", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	got, err := NewClient("test-key", WithBaseURL(srv.URL)).Read(context.Background(), "https://sala-apolo.com")
	require.NoError(t, err)
	assert.Equal(t, want.Data.Content, got.Data.Content)
	assert.Equal(t, 310, got.Data.Usage.Tokens)
}

func TestRead_NoKeyNoAuthHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"code":200,"data":{"content":"hi"}}`))
	}))
	defer srv.Close()

	got, err := NewClient("", WithBaseURL(srv.URL)).Read(context.Background(), "https://x.org")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Data.Content)
}

func TestRead_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		quota     bool
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true, false},
		{"server error", http.StatusInternalServerError, false, true},
		{"not found", http.StatusNotFound, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`oops`))
			}))
			defer srv.Close()

			_, err := NewClient("k", WithBaseURL(srv.URL)).Read(context.Background(), "https://x.org")
			require.Error(t, err)
			assert.Equal(t, tt.quota, resilience.IsQuota(err))
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestRead_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Read(context.Background(), "https://x.org")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestSearch_WithSiteFilter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Sala Apolo", r.URL.Path)
		assert.Equal(t, "dice.fm", r.URL.Query().Get("site"))
		assert.Equal(t, "6", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`{"code":200,"data":[{"title":"Apolo","url":"https://dice.fm/venue/sala-apolo"},{"title":"x"}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "Sala Apolo",
		WithSiteFilter("dice.fm"), WithCount(6))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://dice.fm/venue/sala-apolo"}, resp.URLs())
}

func TestSearch_NoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	resp, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, resp.URLs())
}

func TestSearch_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient("k", WithSearchBaseURL("http://127.0.0.1:1"), WithRateLimit(1)).Search(ctx, "x")
	require.Error(t, err)
}

func TestSearchResponseURLsNil(t *testing.T) {
	t.Parallel()
	var r *SearchResponse
	assert.Nil(t, r.URLs())
}
