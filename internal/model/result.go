package model

import "time"

// SourceType tells the parser how to read a raw payload.
type SourceType string

const (
	SourceHTMLSearch    SourceType = "html.serp"
	SourceHTMLPage      SourceType = "html.page"
	SourceTavilySearch  SourceType = "tavily.search"
	SourceTavilyExtract SourceType = "tavily.extract"
	SourceBrave         SourceType = "brave"
	SourceSearxNG       SourceType = "searxng"
	SourceResults       SourceType = "results"
)

// IsHTML reports whether payloads of this type are HTML documents.
func (s SourceType) IsHTML() bool {
	return s == SourceHTMLSearch || s == SourceHTMLPage
}

// RawFetchResult is the outcome of one successful provider attempt.
type RawFetchResult struct {
	Provider string
	Source   SourceType
	// SourceURL is the page or search URL the payload was fetched for.
	SourceURL string
	Payload   []byte
	Status    int
	Latency   time.Duration
}

// OrganicResult is one cleaned search hit or scraped page.
type OrganicResult struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Snippet         string    `json:"snippet"`
	CleanedContent  string    `json:"cleaned_content"`
	CredibilityTier int       `json:"credibility_tier"`
	Embedding       []float32 `json:"embedding,omitempty"`
	EmbeddingFailed bool      `json:"embedding_failed,omitempty"`
}

// Result is the terminal value of a completed task and the cache payload.
type Result struct {
	Query           string          `json:"query"`
	AIOverview      string          `json:"ai_overview,omitempty"`
	OrganicResults  []OrganicResult `json:"organic_results"`
	FormattedOutput string          `json:"formatted_output"`
	TokenEstimate   int             `json:"token_estimate"`
	Cached          bool            `json:"cached"`
	Provider        string          `json:"provider,omitempty"`
	// Judge scores are in [0, 1] and present only when a judge ran.
	RelevanceScore       *float64 `json:"relevance_score,omitempty"`
	RelevanceReasoning   string   `json:"relevance_reasoning,omitempty"`
	CredibilityScore     *float64 `json:"credibility_score,omitempty"`
	CredibilityReasoning string   `json:"credibility_reasoning,omitempty"`
}
