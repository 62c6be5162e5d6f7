package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/serpgate/internal/budget"
	"github.com/hyperifyio/serpgate/internal/model"
)

const (
	snippetMaxChars  = 300
	overviewMinChars = 100
)

var overviewMarker = regexp.MustCompile(`(?i)(AI Overview|Generative AI|Summarized by AI)`)

// adHosts mark sponsored links on result pages.
var adHosts = []string{"googleadservices.com", "doubleclick.net", "google.com/aclk", "bing.com/aclick"}

// SERP holds what a rendered search results page yields.
type SERP struct {
	Overview string
	Results  []model.OrganicResult
}

// ParseSERP reads a search engine results page. Organic results are anchors
// wrapping an <h3>; the snippet is the surrounding result block's text minus
// the title and URL.
func ParseSERP(input []byte) (SERP, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return SERP{}, err
	}
	doc.Find("script, style, nav, footer, header, noscript").Remove()

	var out SERP
	out.Overview = findOverview(doc)

	seen := make(map[string]bool)
	doc.Find("h3").Each(func(_ int, h3 *goquery.Selection) {
		a := h3.Closest("a")
		if a.Length() == 0 {
			return
		}
		href, _ := a.Attr("href")
		link := unwrapRedirect(href)
		if link == "" || strings.HasPrefix(link, "/") || seen[link] || isAdLink(link) {
			return
		}
		title := collapseSpaces(h3.Text())
		if title == "" {
			return
		}
		seen[link] = true

		snippet := ""
		if block := resultBlock(a, title); block != nil {
			text := collapseSpaces(block.Text())
			text = strings.Replace(text, title, "", 1)
			text = strings.Replace(text, link, "", 1)
			snippet = collapseSpaces(text)
		}
		out.Results = append(out.Results, model.OrganicResult{
			URL:     link,
			Title:   title,
			Snippet: budget.Truncate(CleanText(snippet), snippetMaxChars, "..."),
		})
	})
	return out, nil
}

// resultBlock climbs at most three levels from the anchor looking for a div
// that carries more than the title.
func resultBlock(a *goquery.Selection, title string) *goquery.Selection {
	cur := a.Parent()
	for i := 0; i < 3 && cur.Length() > 0; i++ {
		if goquery.NodeName(cur) == "div" && len(collapseSpaces(cur.Text())) > len(title)+20 {
			return cur
		}
		parent := cur.Parent()
		if parent.Length() == 0 || goquery.NodeName(parent) == "body" {
			break
		}
		cur = parent
	}
	if cur.Length() == 0 {
		return nil
	}
	return cur
}

// findOverview returns the innermost block that is long enough, carries an
// AI summary marker and holds no organic result anchors.
func findOverview(doc *goquery.Document) string {
	qualifies := func(s *goquery.Selection) bool {
		text := collapseSpaces(s.Text())
		return len(text) >= overviewMinChars && overviewMarker.MatchString(text) && s.Find("a h3").Length() == 0
	}
	var found string
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !qualifies(s) {
			return true
		}
		inner := false
		s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if qualifies(c) {
				inner = true
				return false
			}
			return true
		})
		if inner {
			return true
		}
		text := collapseSpaces(s.Text())
		if loc := overviewMarker.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimLeft(text[loc[1]:], " :-")
		}
		found = CleanText(text)
		return false
	})
	return found
}

// unwrapRedirect resolves Google's /url?q=<target> wrapper.
func unwrapRedirect(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/url?") {
		u, err := url.Parse(href)
		if err != nil {
			return ""
		}
		if q := u.Query().Get("q"); q != "" {
			return q
		}
		return u.Query().Get("url")
	}
	return href
}

func isAdLink(link string) bool {
	l := strings.ToLower(link)
	for _, h := range adHosts {
		if strings.Contains(l, h) {
			return true
		}
	}
	return false
}
