package anthropic

// CachedSystem builds a single system block with a cache breakpoint. The
// extraction instructions are identical across rows, so every call after
// the first reads them from the prompt cache.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: "5m"},
	}}
}
