package eventbrite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-enricher/internal/resilience"
)

func TestSearchVenues(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLen   int
		wantErr   bool
		transient bool
	}{
		{
			name:    "found",
			status:  http.StatusOK,
			body:    `{"venues":[{"id":"1","name":"The Jazz Cafe","capacity":"440","resource_uri":"https://www.eventbriteapi.com/v3/venues/1/","address":{"city":"London","country":"GB"}}]}`,
			wantLen: 1,
		},
		{name: "empty", status: http.StatusOK, body: `{"venues":[]}`},
		{name: "endpoint missing", status: http.StatusNotFound, body: `{"error":"NOT_FOUND"}`},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`, wantErr: true},
		{name: "bad gateway", status: http.StatusBadGateway, body: ``, wantErr: true, transient: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/venues/search/", r.URL.Path)
				assert.Equal(t, "Jazz Cafe", r.URL.Query().Get("q"))
				assert.Equal(t, "Bearer eb-token", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			venues, err := NewClient("eb-token", WithBaseURL(srv.URL)).SearchVenues(context.Background(), "Jazz Cafe")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.transient, resilience.IsTransient(err))
				return
			}
			require.NoError(t, err)
			require.Len(t, venues, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, Count(440), venues[0].Capacity)
				assert.Equal(t, "London", venues[0].Address.City)
			}
		})
	}
}
