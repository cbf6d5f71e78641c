package scrape

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipText lists elements whose text never reaches Page.Text.
var skipText = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Head:     true,
}

// blockElements break lines in the extracted text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

// ParseHTML extracts title, visible text, outbound targets and JSON-LD
// blocks from an HTML document. Relative targets resolve against pageURL.
func ParseHTML(pageURL string, body []byte) Page {
	page := Page{URL: pageURL}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return page
	}
	base, _ := url.Parse(pageURL)

	var text strings.Builder
	seen := make(map[string]bool)
	addLink := func(raw string) {
		if link := resolve(base, raw); link != "" && !seen[link] {
			seen[link] = true
			page.Links = append(page.Links, link)
		}
	}

	var walk func(n *html.Node, hidden bool)
	walk = func(n *html.Node, hidden bool) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Title:
				if page.Title == "" && n.FirstChild != nil {
					page.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.A, atom.Link:
				addLink(attr(n, "href"))
			case atom.Iframe:
				addLink(attr(n, "src"))
			case atom.Form:
				addLink(attr(n, "action"))
			case atom.Script:
				if src := attr(n, "src"); src != "" {
					addLink(src)
				}
				if strings.EqualFold(strings.TrimSpace(attr(n, "type")), "application/ld+json") && n.FirstChild != nil {
					page.JSONLD = append(page.JSONLD, n.FirstChild.Data)
				}
			}
			if blockElements[n.DataAtom] {
				text.WriteByte('\n')
			}
			hidden = hidden || skipText[n.DataAtom]
		case html.TextNode:
			if !hidden {
				text.WriteString(n.Data)
				text.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, hidden)
		}
	}
	walk(doc, false)

	page.Text = collapse(text.String())
	return page
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// resolve turns a raw target into an absolute http(s) URL, or "".
func resolve(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// collapse squashes runs of spaces and drops blank lines.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

var markdownLinkRe = regexp.MustCompile(`https?://[^\s)\]"'<>]+`)

// MarkdownLinks returns the distinct absolute URLs found in markdown text.
func MarkdownLinks(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range markdownLinkRe.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:")
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
