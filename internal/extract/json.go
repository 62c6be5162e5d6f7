package extract

import (
	"encoding/json"
	"strings"

	"github.com/hyperifyio/serpgate/internal/budget"
	"github.com/hyperifyio/serpgate/internal/model"
)

type tavilySearchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent string  `json:"raw_content"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

type tavilyExtractResponse struct {
	Results []struct {
		URL        string `json:"url"`
		RawContent string `json:"raw_content"`
		Content    string `json:"content"`
	} `json:"results"`
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title         string   `json:"title"`
			URL           string   `json:"url"`
			Description   string   `json:"description"`
			ExtraSnippets []string `json:"extra_snippets"`
		} `json:"results"`
	} `json:"web"`
}

type searxResponse struct {
	Answers []json.RawMessage `json:"answers"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

type fileResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content"`
}

func (p *Parser) parseTavilySearch(payload []byte) (SERP, error) {
	var r tavilySearchResponse
	if err := json.Unmarshal(payload, &r); err != nil {
		return SERP{}, err
	}
	out := SERP{Overview: CleanText(r.Answer)}
	for _, it := range r.Results {
		body := it.RawContent
		if body == "" {
			body = it.Content
		}
		out.Results = append(out.Results, p.jsonResult(it.URL, it.Title, it.Content, body))
	}
	return out, nil
}

func (p *Parser) parseTavilyExtract(payload []byte, pageURL string) (SERP, error) {
	var r tavilyExtractResponse
	if err := json.Unmarshal(payload, &r); err != nil {
		return SERP{}, err
	}
	var out SERP
	for _, it := range r.Results {
		link := it.URL
		if link == "" {
			link = pageURL
		}
		body := it.RawContent
		if body == "" {
			body = it.Content
		}
		res := p.jsonResult(link, "", body, body)
		if res.Title == "" {
			res.Title = "Extracted Content"
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

func (p *Parser) parseBrave(payload []byte) (SERP, error) {
	var r braveResponse
	if err := json.Unmarshal(payload, &r); err != nil {
		return SERP{}, err
	}
	var out SERP
	for _, it := range r.Web.Results {
		body := strings.Join(append([]string{it.Description}, it.ExtraSnippets...), "\n\n")
		out.Results = append(out.Results, p.jsonResult(it.URL, stripTags(it.Title), stripTags(it.Description), stripTags(body)))
	}
	return out, nil
}

func (p *Parser) parseSearxNG(payload []byte) (SERP, error) {
	var r searxResponse
	if err := json.Unmarshal(payload, &r); err != nil {
		return SERP{}, err
	}
	var out SERP
	for _, raw := range r.Answers {
		// answers are plain strings on older instances and objects on newer ones
		var s string
		if json.Unmarshal(raw, &s) != nil {
			var obj struct {
				Answer string `json:"answer"`
			}
			_ = json.Unmarshal(raw, &obj)
			s = obj.Answer
		}
		if s = CleanText(s); s != "" {
			out.Overview = s
			break
		}
	}
	for _, it := range r.Results {
		out.Results = append(out.Results, p.jsonResult(it.URL, it.Title, it.Content, it.Content))
	}
	return out, nil
}

func (p *Parser) parseResultsFile(payload []byte) (SERP, error) {
	var r []fileResult
	if err := json.Unmarshal(payload, &r); err != nil {
		return SERP{}, err
	}
	var out SERP
	for _, it := range r {
		body := it.Content
		if body == "" {
			body = it.Snippet
		}
		out.Results = append(out.Results, p.jsonResult(it.URL, it.Title, it.Snippet, body))
	}
	return out, nil
}

func (p *Parser) jsonResult(link, title, snippet, body string) model.OrganicResult {
	return model.OrganicResult{
		URL:            strings.TrimSpace(link),
		Title:          collapseSpaces(title),
		Snippet:        budget.Truncate(CleanText(snippet), snippetMaxChars, "..."),
		CleanedContent: budget.Truncate(CleanBlock(body), p.maxContentChars(), ""),
	}
}

// stripTags drops the <strong> highlighting some APIs put into text fields.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}
