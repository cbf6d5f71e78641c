// Package match compares venue names and websites across sources.
package match

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Articles and connectors that carry no identity in venue names.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "at": true,
	"la": true, "le": true, "les": true, "el": true, "los": true, "las": true,
	"de": true, "del": true, "des": true, "du": true, "di": true, "da": true,
	"der": true, "die": true, "das": true, "y": true, "et": true, "e": true,
}

// Fold lowercases s, strips accents and turns punctuation into spaces.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the folded words of s without stopwords.
func Tokens(s string) []string {
	words := strings.Fields(Fold(s))
	out := words[:0]
	for _, w := range words {
		if !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

// Similarity scores two names in [0,1]. It is the Jaccard index of their
// token sets, raised to 0.9 when one name's tokens are all contained in the
// other's.
func Similarity(a, b string) float64 {
	ta, tb := set(Tokens(a)), set(Tokens(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for w := range ta {
		if tb[w] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	score := float64(inter) / float64(union)

	if score < 0.9 && (inter == len(ta) || inter == len(tb)) {
		score = 0.9
	}
	return score
}

func set(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Domain returns the lowercase host of rawURL without "www.". Bare hosts
// such as "example.com/path" are accepted.
func Domain(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// SameSite reports whether two URLs point at the same domain.
func SameSite(a, b string) bool {
	da, db := Domain(a), Domain(b)
	return da != "" && da == db
}
