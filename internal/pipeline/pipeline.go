// Package pipeline runs one request through fetch, parse, enrich, dedupe,
// score, select, format and embed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpgate/internal/budget"
	"github.com/hyperifyio/serpgate/internal/credibility"
	"github.com/hyperifyio/serpgate/internal/dedupe"
	"github.com/hyperifyio/serpgate/internal/embed"
	"github.com/hyperifyio/serpgate/internal/extract"
	"github.com/hyperifyio/serpgate/internal/format"
	"github.com/hyperifyio/serpgate/internal/judge"
	"github.com/hyperifyio/serpgate/internal/model"
	selecter "github.com/hyperifyio/serpgate/internal/select"
)

// Fetcher returns the raw payload for a request, trying providers as it sees
// fit.
type Fetcher interface {
	Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error)
}

// Embedder turns texts into vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]embed.Vector, error)
}

// Judge rates a result set. Failures are folded into the scores.
type Judge interface {
	Evaluate(ctx context.Context, query string, results []model.OrganicResult) judge.Scores
}

// TokenObserver counts tokens by model and context.
type TokenObserver interface {
	ObserveTokens(model, purpose string, n int)
}

// Recorder persists completed results. Failures are logged only.
type Recorder interface {
	Record(ctx context.Context, query string, results []model.OrganicResult) error
}

// Pipeline holds the stages. Fetcher is required; nil stages fall back to
// their defaults, and a nil Enricher, Embedder, Judge or Recorder skips that
// stage.
type Pipeline struct {
	Fetcher   Fetcher
	Parser    *extract.Parser
	Enricher  *Enricher
	Dedupe    *dedupe.Deduplicator
	Scorer    *credibility.Scorer
	Select    selecter.Options
	Formatter *format.Formatter
	Embedder  Embedder
	// EmbeddingModel labels embedding token usage.
	EmbeddingModel string
	Judge          Judge
	Tokens         TokenObserver
	Audit          Recorder
	// AuditTimeout bounds the audit write. Zero means 5s.
	AuditTimeout time.Duration
}

// Run executes every stage in order. The returned error wraps
// scrape.ErrAllProvidersExhausted, extract.ErrParse or
// embed.ErrModelUnavailable depending on the failing stage.
func (p *Pipeline) Run(ctx context.Context, req model.SearchRequest) (model.Result, error) {
	if p.Fetcher == nil {
		return model.Result{}, errors.New("pipeline has no fetcher")
	}
	raw, err := p.Fetcher.Fetch(ctx, req)
	if err != nil {
		return model.Result{}, err
	}

	parser := p.Parser
	if parser == nil {
		parser = &extract.Parser{}
	}
	parsed := parser.Parse(raw.Payload, raw.Source, raw.SourceURL)
	if parsed.Err != nil {
		log.Warn().Err(parsed.Err).Str("provider", raw.Provider).Str("stage", "parse").Msg("payload unusable")
		// the provider payload is the only source a request has
		return model.Result{}, parsed.Err
	}
	results := parsed.Results

	if p.Enricher != nil && req.Mode == model.ModeSearch {
		results = p.Enricher.Enrich(ctx, results)
	}

	dd := p.Dedupe
	if dd == nil {
		dd = &dedupe.Deduplicator{}
	}
	results = dd.Dedupe(results)

	scorer := p.Scorer
	if scorer == nil {
		scorer = credibility.NewScorer(nil)
	}
	for i := range results {
		results[i].CredibilityTier = scorer.ScoreURL(results[i].URL)
	}

	opts := p.Select
	if opts.MaxTotal <= 0 || opts.MaxTotal > req.Limit {
		opts.MaxTotal = req.Limit
	}
	results = selecter.Select(results, opts)

	out := p.Formatter.Format(req.Query, parsed.Overview, results, req.OutputFormat)
	results = out.OrganicResults
	p.observeTokens("estimate", "formatted_output", out.TokenEstimate)

	if req.WantsVectors() {
		if err := p.attachEmbeddings(ctx, results); err != nil {
			return model.Result{}, err
		}
	}

	res := model.Result{
		Query:           req.Query,
		AIOverview:      parsed.Overview,
		OrganicResults:  results,
		FormattedOutput: out.Text,
		TokenEstimate:   out.TokenEstimate,
		Provider:        raw.Provider,
	}
	if p.Judge != nil && len(results) > 0 {
		s := p.Judge.Evaluate(ctx, req.Query, results)
		res.RelevanceScore, res.RelevanceReasoning = &s.Relevance.Score, s.Relevance.Reasoning
		res.CredibilityScore, res.CredibilityReasoning = &s.Credibility.Score, s.Credibility.Reasoning
	}
	p.audit(ctx, res)
	return res, nil
}

func (p *Pipeline) attachEmbeddings(ctx context.Context, results []model.OrganicResult) error {
	if p.Embedder == nil {
		return fmt.Errorf("%w: no embedder configured", embed.ErrModelUnavailable)
	}
	texts := make([]string, len(results))
	tokens := 0
	for i, r := range results {
		texts[i] = r.CleanedContent
		tokens += budget.EstimateTokens(r.CleanedContent)
	}
	p.observeTokens(p.EmbeddingModel, "embedding_input", tokens)
	vecs, err := p.Embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(results) {
		return fmt.Errorf("embed: got %d vectors for %d results", len(vecs), len(results))
	}
	for i := range results {
		results[i].Embedding = vecs[i].Values
		results[i].EmbeddingFailed = vecs[i].Failed
	}
	return nil
}

func (p *Pipeline) observeTokens(model, purpose string, n int) {
	if p.Tokens != nil {
		p.Tokens.ObserveTokens(model, purpose, n)
	}
}

func (p *Pipeline) audit(ctx context.Context, res model.Result) {
	if p.Audit == nil || len(res.OrganicResults) == 0 {
		return
	}
	timeout := p.AuditTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := p.Audit.Record(actx, res.Query, res.OrganicResults); err != nil {
		log.Warn().Err(err).Str("stage", "audit").Msg("audit write failed")
	}
}
