package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Document is the readable part of a page.
type Document struct {
	Title string
	Text  string
}

// skippedTags never contribute readable text.
var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true, "footer": true,
	"header": true, "aside": true, "iframe": true, "form": true, "svg": true,
	"button": true, "template": true, "dialog": true,
}

// noiseTokens are matched against class, id and role tokens.
var noiseTokens = map[string]bool{
	"ad": true, "ads": true, "advert": true, "advertisement": true, "banner": true,
	"breadcrumb": true, "breadcrumbs": true, "comment": true, "comments": true,
	"consent": true, "cookie": true, "cookies": true, "gdpr": true, "menu": true,
	"modal": true, "navbar": true, "newsletter": true, "overlay": true, "popup": true,
	"promo": true, "related": true, "share": true, "sharing": true, "sidebar": true,
	"social": true, "sponsor": true, "sponsored": true, "subscribe": true,
	"toolbar": true, "navigation": true, "complementary": true, "dialog": true,
}

// blockTags are the elements whose text counts towards a container's score.
var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "pre": true, "blockquote": true, "table": true, "dl": true,
}

// FromHTML extracts readable text from HTML. Script, navigation and ad-like
// subtrees are dropped, then the container whose direct block children carry
// the most text is taken as the content root, falling back to <main>,
// <article> and <body>.
func FromHTML(input []byte) Document {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return Document{}
	}
	title := strings.TrimSpace(collapseSpaces(findTitle(node)))

	content := largestBlock(node)
	if content == nil {
		content = findFirst(node, "main")
	}
	if content == nil {
		content = findFirst(node, "article")
	}
	if content == nil {
		content = findFirst(node, "body")
	}
	var b strings.Builder
	if content != nil {
		collectText(&b, content, false)
	}
	return Document{Title: title, Text: normalizeWhitespace(b.String())}
}

func largestBlock(root *html.Node) *html.Node {
	var best *html.Node
	bestScore := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isNoise(n) {
			return
		}
		if n.Type == html.ElementNode {
			score := 0
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && blockTags[strings.ToLower(c.Data)] && !isNoise(c) {
					score += textLen(c)
				}
			}
			if score > bestScore {
				best, bestScore = n, score
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return best
}

func textLen(n *html.Node) int {
	total := 0
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.ElementNode && isNoise(cur) {
			return
		}
		if cur.Type == html.TextNode {
			total += len(strings.TrimSpace(cur.Data))
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return total
}

func findTitle(n *html.Node) string {
	head := findFirst(n, "head")
	if head == nil {
		return ""
	}
	t := findFirst(head, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findFirst(c, tag); res != nil {
			return res
		}
	}
	return nil
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		if isNoise(n) {
			return
		}
		switch strings.ToLower(n.Data) {
		case "pre", "code":
			inPre = true
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "blockquote", "tr":
			b.WriteString("\n")
		case "td", "th":
			b.WriteString(" ")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
			b.WriteString("\n\n")
		case "li", "tr":
			b.WriteString("\n")
		case "pre", "code":
			b.WriteString("\n")
		}
	}
}

// isNoise reports whether an element is boilerplate, either by tag name or
// by a denylisted token in its class, id or role.
func isNoise(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if skippedTags[strings.ToLower(n.Data)] {
		return true
	}
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "id", "class", "role":
		case "aria-hidden":
			if attr.Val == "true" {
				return true
			}
			continue
		default:
			continue
		}
		for _, tok := range attrTokens(attr.Val) {
			if noiseTokens[tok] {
				return true
			}
		}
	}
	return false
}

// attrTokens splits "site-header cookie_bar" into site, header, cookie, bar.
func attrTokens(v string) []string {
	return strings.FieldsFunc(strings.ToLower(v), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t' || r == '\n'
	})
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
