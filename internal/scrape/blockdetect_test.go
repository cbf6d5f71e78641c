package scrape

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	big := "<html><body>" + strings.Repeat("<p>Programme and tickets for the season.</p>", 600)

	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare 403 ray", 403, http.Header{"Cf-Ray": {"abc123"}}, "", BlockCloudflare},
		{"cloudflare 503 server", 503, http.Header{"Server": {"Cloudflare"}}, "", BlockCloudflare},
		{"datadome 403", 403, http.Header{"X-Datadome": {"protected"}}, "", BlockBotWall},
		{"rate limited", 429, http.Header{}, "", BlockBotWall},
		{"cloudflare challenge body", 200, http.Header{}, "<title>Just a moment...</title> checking your browser", BlockCloudflare},
		{"captcha page", 200, http.Header{}, "<html><body>Please complete the reCAPTCHA to continue</body></html>", BlockCaptcha},
		{"queue-it waiting room", 200, http.Header{}, `<script src="https://static.queue-it.net/script/queueclient.js"></script>`, BlockQueue},
		{"spanish waiting room", 200, http.Header{}, "<h1>Estás en la cola</h1>", BlockQueue},
		{"js shell", 200, http.Header{}, "<html><noscript>Enable JavaScript to continue</noscript></html>", BlockJSShell},
		{"meta refresh", 200, http.Header{}, `<meta http-equiv="refresh" content="0;url=/home">`, BlockJSShell},
		{"clean page", 200, http.Header{}, "<html><body>Teatro Real. Temporada 2025. Entradas desde 15 EUR.</body></html>", BlockNone},
		{"large page with form captcha", 200, http.Header{}, big + `<script src="https://www.google.com/recaptcha/api.js"></script></body></html>`, BlockNone},
		{"large page linking queue-it", 200, http.Header{}, big + `<a href="https://queue-it.com">on-sale info</a></body></html>`, BlockNone},
		{"plain 403", 403, http.Header{}, "<html><body>Teatro Real</body></html>", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: tt.header}
			blocked, bt := DetectBlock(resp, []byte(tt.body))
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, bt)
		})
	}
}

func TestDetectBlock_NilResponse(t *testing.T) {
	blocked, bt := DetectBlock(nil, nil)
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, bt)
}
