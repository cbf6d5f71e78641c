package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/resilience"
)

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.5-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"revenue_usd\": 2500000}"}]}}],
			"usageMetadata":{"promptTokenCount":40,"candidatesTokenCount":9}}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), GenerateRequest{System: "estimate", Prompt: "Sala Apolo", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"revenue_usd": 2500000}`, resp.Text)
	assert.Equal(t, int64(40), resp.InputTokens)
	assert.Equal(t, int64(9), resp.OutputTokens)
	assert.Equal(t, defaultModel, resp.Model)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg       string
		quota     bool
		transient bool
	}{
		{"Error 429, Message: quota, Status: RESOURCE_EXHAUSTED", true, false},
		{"Error 503, Message: overloaded, Status: UNAVAILABLE", false, true},
		{"Error 400, Message: bad, Status: INVALID_ARGUMENT", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := Classify(errors.New(tt.msg))
			assert.Equal(t, tt.quota, resilience.IsQuota(err))
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
	assert.NoError(t, Classify(nil))
}
