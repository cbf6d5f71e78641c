package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes why a fetched page is not the venue's real content.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockQueue      BlockType = "queue"
	BlockBotWall    BlockType = "bot_wall"
	BlockJSShell    BlockType = "js_shell"
)

const (
	// challengePageBytes bounds the size of a page treated as a challenge.
	// Full venue pages often embed a contact-form recaptcha.
	challengePageBytes = 16 << 10
	shellPageBytes     = 2000
)

// bodyMarkers are checked in order against the lowercased body. small
// markers only count on challenge-sized pages.
var bodyMarkers = []struct {
	needle string
	kind   BlockType
	small  bool
}{
	{"checking your browser", BlockCloudflare, false},
	{"cf-browser-verification", BlockCloudflare, false},
	{"cf-chl-", BlockCloudflare, false},
	// Ticket shops park visitors in a waiting room during on-sales.
	{"queue-it", BlockQueue, true},
	{"you are now in line", BlockQueue, true},
	{"estás en la cola", BlockQueue, true},
	{"captcha-delivery.com", BlockBotWall, true},
	{"access denied", BlockBotWall, true},
	{"captcha", BlockCaptcha, true},
}

// DetectBlock reports whether resp/body is an anti-bot or waiting-room page
// rather than the venue site itself.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusServiceUnavailable:
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
		if resp.Header.Get("x-datadome") != "" {
			return true, BlockBotWall
		}
	case http.StatusTooManyRequests:
		return true, BlockBotWall
	}

	lower := strings.ToLower(string(body))
	small := len(body) < challengePageBytes
	for _, m := range bodyMarkers {
		if m.small && !small {
			continue
		}
		if strings.Contains(lower, m.needle) {
			return true, m.kind
		}
	}
	if strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	if len(body) < shellPageBytes {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}
	return false, BlockNone
}
