// Package judge asks a chat model how relevant a result set is to its query
// and how credible its sources are.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/serpgate/internal/budget"
	"github.com/hyperifyio/serpgate/internal/llm"
	"github.com/hyperifyio/serpgate/internal/model"
)

const (
	defaultMaxTokens  = 1000
	defaultRetries    = 2
	defaultRetryDelay = 5 * time.Second
	snippetChars      = 300
)

// Verdict is one judgement. Score is clamped to [0, 1].
type Verdict struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Scores holds both judgements for a result set.
type Scores struct {
	Relevance   Verdict
	Credibility Verdict
}

// Judge scores result sets with a chat model. A failed call yields a zero
// score whose reasoning names the failure; Evaluate itself never fails.
type Judge struct {
	Client llm.ChatClient
	Model  string
	// MaxTokens caps each completion. Zero means 1000.
	MaxTokens int
	// Retries is how often a 429 is retried. Zero means 2.
	Retries int
	// RetryDelay grows linearly per retry. Zero means 5s.
	RetryDelay time.Duration
	// OnUsage, when set, receives the tokens each completion consumed.
	OnUsage func(model, context string, tokens int)
}

// Evaluate runs the relevance and credibility judgements concurrently.
func (j *Judge) Evaluate(ctx context.Context, query string, results []model.OrganicResult) Scores {
	var s Scores
	var g errgroup.Group
	g.Go(func() error {
		s.Relevance = j.ask(ctx, "relevance", relevanceSystem, relevancePrompt(query, results))
		return nil
	})
	g.Go(func() error {
		s.Credibility = j.ask(ctx, "credibility", credibilitySystem, credibilityPrompt(query, results))
		return nil
	})
	_ = g.Wait()
	log.Debug().Str("query", query).Float64("relevance", s.Relevance.Score).Float64("credibility", s.Credibility.Score).Msg("judged results")
	return s
}

func (j *Judge) ask(ctx context.Context, kind, system, user string) Verdict {
	if j.Client == nil || strings.TrimSpace(j.Model) == "" {
		return Verdict{Reasoning: "judge not configured"}
	}
	maxTokens := j.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	retries := j.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	delay := j.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	req := openai.ChatCompletionRequest{
		Model: j.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		MaxTokens:      maxTokens,
		Temperature:    0,
		N:              1,
	}

	for attempt := 0; ; attempt++ {
		resp, err := j.Client.CreateChatCompletion(ctx, req)
		if err == nil {
			if j.OnUsage != nil {
				j.OnUsage(j.Model, "judge_"+kind, resp.Usage.TotalTokens)
			}
			if len(resp.Choices) == 0 {
				return Verdict{Reasoning: "empty judge response"}
			}
			v, perr := parseVerdict(resp.Choices[0].Message.Content)
			if perr != nil {
				log.Warn().Err(perr).Str("judge", kind).Msg("judge response unusable")
				return Verdict{Reasoning: "unparseable judge response"}
			}
			return v
		}
		if !rateLimited(err) || attempt >= retries {
			log.Warn().Err(err).Str("judge", kind).Int("attempt", attempt+1).Msg("judge request failed")
			return Verdict{Reasoning: "judge request failed"}
		}
		wait := delay * time.Duration(attempt+1)
		log.Warn().Str("judge", kind).Dur("wait", wait).Msg("judge rate limited")
		select {
		case <-ctx.Done():
			return Verdict{Reasoning: "judge request failed"}
		case <-time.After(wait):
		}
	}
}

func rateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// parseVerdict reads {"score": <number>, "reasoning": <string>}, tolerating
// a Markdown code fence around it.
func parseVerdict(content string) (Verdict, error) {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if k := strings.Index(s, "```"); k >= 0 {
			s = s[:k]
		}
		s = strings.TrimSpace(s)
	}
	var raw struct {
		Score     *float64 `json:"score"`
		Reasoning string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if raw.Score == nil {
		return Verdict{}, errors.New("verdict has no score")
	}
	v := Verdict{Score: min(max(*raw.Score, 0), 1), Reasoning: strings.TrimSpace(raw.Reasoning)}
	if v.Reasoning == "" {
		v.Reasoning = "No reasoning provided."
	}
	return v, nil
}

const relevanceSystem = "You rate how relevant search results are to a query. Respond with strict JSON only."

const credibilitySystem = "You judge the trustworthiness of web sources. Respond with strict JSON only."

func snippet(r model.OrganicResult) string {
	s := r.Snippet
	if strings.TrimSpace(s) == "" {
		s = r.CleanedContent
	}
	return budget.Truncate(strings.TrimSpace(s), snippetChars, "...")
}

func relevancePrompt(query string, results []model.OrganicResult) string {
	snippets := make([]string, len(results))
	for i, r := range results {
		snippets[i] = snippet(r)
	}
	b, _ := json.MarshalIndent(snippets, "", "  ")
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %q\n\nResults:\n%s\n\n", query, b)
	sb.WriteString("Rate how relevant these results are to the query, from 0.0 (irrelevant) to 1.0 (highly relevant), ")
	sb.WriteString("and give one sentence of reasoning.\n")
	sb.WriteString(`Output JSON: {"score": <number>, "reasoning": "<string>"}`)
	return sb.String()
}

func credibilityPrompt(query string, results []model.OrganicResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %q\n\nSources:\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "Source %d:\nURL: %s\nSnippet: %s\n\n", i+1, r.URL, snippet(r))
	}
	sb.WriteString("Judge the credibility of these sources from their domains and content, from 0.0 (low trust) ")
	sb.WriteString("to 1.0 (high trust, such as academic or government sources), and give one sentence of reasoning.\n")
	sb.WriteString(`Output JSON: {"score": <number>, "reasoning": "<string>"}`)
	return sb.String()
}
