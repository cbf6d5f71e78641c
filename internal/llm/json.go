package llm

import (
	"encoding/json"
	"strings"
)

// CleanJSON strips markdown fences and trims text to its outermost object.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// ParseObject decodes the first JSON object in text. It reports false for
// anything that does not decode into an object.
func ParseObject(text string) (map[string]any, bool) {
	cleaned := CleanJSON(text)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, false
	}
	return out, true
}
