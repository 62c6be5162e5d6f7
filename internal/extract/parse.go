package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperifyio/serpgate/internal/budget"
	"github.com/hyperifyio/serpgate/internal/model"
)

// ErrParse marks payloads that yielded nothing usable.
var ErrParse = errors.New("parse failure")

// DefaultMaxContentChars caps cleaned page content.
const DefaultMaxContentChars = 10000

// Parsed is the parser outcome. Err is set, wrapping ErrParse, when the
// payload was empty or malformed; Results is then empty.
type Parsed struct {
	Overview string
	Results  []model.OrganicResult
	Err      error
}

// Parser maps raw provider payloads to organic results. It never panics and
// never returns an error directly.
type Parser struct {
	Extractor       Extractor
	MaxContentChars int
}

func (p *Parser) maxContentChars() int {
	if p.MaxContentChars > 0 {
		return p.MaxContentChars
	}
	return DefaultMaxContentChars
}

func (p *Parser) extractor() Extractor {
	if p.Extractor != nil {
		return p.Extractor
	}
	return HeuristicExtractor{}
}

// Parse reads payload according to source. pageURL is the page a scrape was
// made for; it fills results whose payload does not carry a URL.
func (p *Parser) Parse(payload []byte, source model.SourceType, pageURL string) (out Parsed) {
	defer func() {
		if r := recover(); r != nil {
			out = Parsed{Err: fmt.Errorf("%w: %s: %v", ErrParse, source, r)}
		}
	}()
	if len(bytes.TrimSpace(payload)) == 0 {
		return Parsed{Err: fmt.Errorf("%w: %s: empty payload", ErrParse, source)}
	}

	var serp SERP
	var err error
	switch source {
	case model.SourceHTMLSearch:
		serp, err = ParseSERP(payload)
	case model.SourceHTMLPage:
		serp, err = p.parsePage(payload, pageURL)
	case model.SourceTavilySearch:
		serp, err = p.parseTavilySearch(payload)
	case model.SourceTavilyExtract:
		serp, err = p.parseTavilyExtract(payload, pageURL)
	case model.SourceBrave:
		serp, err = p.parseBrave(payload)
	case model.SourceSearxNG:
		serp, err = p.parseSearxNG(payload)
	case model.SourceResults:
		serp, err = p.parseResultsFile(payload)
	default:
		err = fmt.Errorf("unknown source type %q", source)
	}
	if err != nil {
		return Parsed{Err: fmt.Errorf("%w: %s: %v", ErrParse, source, err)}
	}
	return Parsed{Overview: serp.Overview, Results: keepValid(serp.Results)}
}

func (p *Parser) parsePage(payload []byte, pageURL string) (SERP, error) {
	doc := p.extractor().Extract(payload)
	meta := Metadata(payload)
	content := budget.Truncate(CleanBlock(doc.Text), p.maxContentChars(), "")
	if content == "" && meta.Description == "" {
		return SERP{}, errors.New("no readable content")
	}
	title := meta.Title
	if title == "" {
		title = doc.Title
	}
	if title == "" {
		title = "Scraped Page"
	}
	snippet := meta.Description
	if snippet == "" {
		snippet = firstParagraph(content)
	}
	link := pageURL
	if link == "" {
		link = meta.URL
	}
	return SERP{Results: []model.OrganicResult{{
		URL:            link,
		Title:          title,
		Snippet:        budget.Truncate(CleanText(snippet), snippetMaxChars, "..."),
		CleanedContent: content,
	}}}, nil
}

func firstParagraph(text string) string {
	for _, para := range strings.Split(text, "\n") {
		if para = strings.TrimSpace(para); len(para) >= 40 {
			return para
		}
	}
	return ""
}

// keepValid drops entries without a URL and fills missing titles.
func keepValid(in []model.OrganicResult) []model.OrganicResult {
	out := make([]model.OrganicResult, 0, len(in))
	for _, r := range in {
		if r.URL == "" {
			continue
		}
		if r.Title == "" {
			r.Title = r.URL
		}
		if r.CleanedContent == "" {
			r.CleanedContent = r.Snippet
		}
		out = append(out, r)
	}
	return out
}
