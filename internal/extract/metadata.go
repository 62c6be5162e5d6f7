package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
)

// Meta holds page metadata used for result titles and snippets.
type Meta struct {
	Title       string
	Description string
	URL         string
	SiteName    string
}

// Metadata reads OpenGraph tags and fills gaps from <title>, the meta
// description, the first heading and the first paragraph, in that order.
func Metadata(input []byte) Meta {
	var m Meta
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(input)); err == nil {
		m = Meta{Title: og.Title, Description: og.Description, URL: og.URL, SiteName: og.SiteName}
	}
	if m.Title != "" && m.Description != "" {
		return tidyMeta(m)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return tidyMeta(m)
	}
	if m.Title == "" {
		m.Title = metaTitle(doc)
	}
	if m.Description == "" {
		m.Description = metaDescription(doc)
	}
	return tidyMeta(m)
}

func metaTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("h2").First().Text())
}

func metaDescription(doc *goquery.Document) string {
	for _, sel := range []string{"meta[name='description']", "meta[name='twitter:description']"} {
		if desc, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(desc) != "" {
			return strings.TrimSpace(desc)
		}
	}
	var first string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := strings.TrimSpace(s.Text()); len(t) >= 40 {
			first = t
			return false
		}
		return true
	})
	return first
}

func tidyMeta(m Meta) Meta {
	m.Title = collapseSpaces(m.Title)
	m.Description = collapseSpaces(m.Description)
	m.URL = strings.TrimSpace(m.URL)
	m.SiteName = collapseSpaces(m.SiteName)
	return m
}
