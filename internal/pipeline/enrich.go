package pipeline

import (
	"context"
	"net/url"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/serpgate/internal/extract"
	"github.com/hyperifyio/serpgate/internal/fetch"
	"github.com/hyperifyio/serpgate/internal/model"
)

// MaxEnrichPages caps how many result pages are fetched per request.
const MaxEnrichPages = 10

// PageFilter decides whether a result page may be fetched.
type PageFilter interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Enricher fetches the top result pages and replaces thin search snippets
// with the page's readable text.
type Enricher struct {
	Client *fetch.Client
	Parser *extract.Parser
	// Pages is how many leading results are fetched. Zero disables
	// enrichment.
	Pages int
	// Concurrency bounds in-flight page fetches. Zero means 4.
	Concurrency int
	// Robots, when set, skips pages robots.txt disallows.
	Robots PageFilter
	// AllowPrivateHosts permits result URLs on loopback and private
	// addresses. Off by default whether or not Robots is set.
	AllowPrivateHosts bool
}

// Enrich returns results with CleanedContent replaced where the fetched page
// text is longer. Per-page failures are logged and leave that result as is.
func (e *Enricher) Enrich(ctx context.Context, results []model.OrganicResult) []model.OrganicResult {
	n := min(e.Pages, MaxEnrichPages, len(results))
	if n <= 0 || e.Client == nil {
		return results
	}
	out := make([]model.OrganicResult, len(results))
	copy(out, results)

	limit := e.Concurrency
	if limit <= 0 {
		limit = 4
	}
	parser := e.Parser
	if parser == nil {
		parser = &extract.Parser{}
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			u := out[i].URL
			if !e.AllowPrivateHosts && privateURL(u) {
				log.Debug().Str("url", u).Str("stage", "enrich").Msg("private host skipped")
				return nil
			}
			if e.Robots != nil && !e.Robots.Allowed(ctx, u) {
				log.Debug().Str("url", u).Str("stage", "enrich").Msg("disallowed by robots.txt")
				return nil
			}
			resp, err := e.Client.Get(ctx, u)
			if err != nil {
				log.Debug().Err(err).Str("url", u).Str("stage", "enrich").Msg("page fetch failed")
				return nil
			}
			parsed := parser.Parse(resp.Body, model.SourceHTMLPage, u)
			if parsed.Err != nil || len(parsed.Results) == 0 {
				log.Debug().Err(parsed.Err).Str("url", u).Str("stage", "enrich").Msg("page unusable")
				return nil
			}
			page := parsed.Results[0].CleanedContent
			if utf8.RuneCountInString(page) > utf8.RuneCountInString(out[i].CleanedContent) {
				out[i].CleanedContent = page
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func privateURL(rawURL string) bool {
	pu, err := url.Parse(rawURL)
	return err != nil || fetch.IsPrivateHost(pu.Hostname())
}
