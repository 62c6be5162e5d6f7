package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperifyio/serpgate/internal/budget"
	"github.com/hyperifyio/serpgate/internal/credibility"
	"github.com/hyperifyio/serpgate/internal/model"
)

// DefaultMaxContentChars is the per-result content budget in the rendered
// output.
const DefaultMaxContentChars = 1500

// NoResults is the body rendered for an empty result set.
const NoResults = "No results found."

var tierLabels = map[int]string{
	credibility.TierAuthoritative: "Tier 1 · authoritative",
	credibility.TierEstablished:   "Tier 2 · established",
	credibility.TierCommunity:     "Tier 3 · community",
	credibility.TierUnknown:       "Tier 4 · unverified",
}

// Output is the rendered form of a result set.
type Output struct {
	Text           string
	TokenEstimate  int
	OrganicResults []model.OrganicResult
}

// Formatter renders scored results for LLM consumption.
type Formatter struct {
	// MaxContentChars truncates each result's content. Zero means
	// DefaultMaxContentChars; negative disables truncation.
	MaxContentChars int
}

func (f *Formatter) maxContentChars() int {
	switch {
	case f == nil || f.MaxContentChars == 0:
		return DefaultMaxContentChars
	case f.MaxContentChars < 0:
		return 0
	}
	return f.MaxContentChars
}

// Format renders results in input order. Markdown and vector output render
// Markdown; json renders an indented JSON document. An empty result set
// always renders the Markdown "no results" body with a zero token estimate.
func (f *Formatter) Format(query, overview string, results []model.OrganicResult, of model.OutputFormat) Output {
	if len(results) == 0 {
		return Output{
			Text:           fmt.Sprintf("# Search Results for: %s\n\n%s\n", query, NoResults),
			OrganicResults: []model.OrganicResult{},
		}
	}
	var text string
	if of == model.FormatJSON {
		text = f.renderJSON(query, overview, results)
	} else {
		text = f.renderMarkdown(query, overview, results)
	}
	return Output{
		Text:           text,
		TokenEstimate:  budget.EstimateTokens(text),
		OrganicResults: results,
	}
}

func (f *Formatter) renderMarkdown(query, overview string, results []model.OrganicResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Search Results for: %s\n\n", query)
	if overview != "" {
		b.WriteString("## AI Overview\n\n")
		for _, line := range strings.Split(overview, "\n") {
			fmt.Fprintf(&b, "> %s\n", line)
		}
		b.WriteString("\n---\n\n")
	}
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, title)
		fmt.Fprintf(&b, "**Source:** [%s](%s)  \n", sourceLabel(r.URL), r.URL)
		fmt.Fprintf(&b, "**Credibility:** %s\n\n", Badge(r.CredibilityTier))
		if content := f.truncate(r); content != "" {
			b.WriteString(content)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

type jsonDoc struct {
	Query      string       `json:"query"`
	AIOverview string       `json:"ai_overview,omitempty"`
	Results    []jsonResult `json:"results"`
}

type jsonResult struct {
	Rank            int    `json:"rank"`
	Title           string `json:"title"`
	URL             string `json:"url"`
	Snippet         string `json:"snippet,omitempty"`
	Content         string `json:"content,omitempty"`
	CredibilityTier int    `json:"credibility_tier"`
}

func (f *Formatter) renderJSON(query, overview string, results []model.OrganicResult) string {
	doc := jsonDoc{Query: query, AIOverview: overview, Results: make([]jsonResult, 0, len(results))}
	for i, r := range results {
		doc.Results = append(doc.Results, jsonResult{
			Rank:            i + 1,
			Title:           r.Title,
			URL:             r.URL,
			Snippet:         r.Snippet,
			Content:         f.truncate(r),
			CredibilityTier: r.CredibilityTier,
		})
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	return string(b)
}

func (f *Formatter) truncate(r model.OrganicResult) string {
	content := r.CleanedContent
	if content == "" {
		content = r.Snippet
	}
	return budget.Truncate(content, f.maxContentChars(), "...")
}

// Badge renders a credibility tier for display.
func Badge(tier int) string {
	if l, ok := tierLabels[tier]; ok {
		return l
	}
	return tierLabels[credibility.TierUnknown]
}

func sourceLabel(rawURL string) string {
	if h := credibility.Host(rawURL); h != "" {
		return strings.TrimPrefix(h, "www.")
	}
	return rawURL
}
