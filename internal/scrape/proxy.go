package scrape

import (
	"context"
	"net/url"
	"strconv"

	"github.com/hyperifyio/serpgate/internal/fetch"
	"github.com/hyperifyio/serpgate/internal/model"
)

const (
	scrapingBeeBaseURL = "https://app.scrapingbee.com/api/v1/"
	zenRowsBaseURL     = "https://api.zenrows.com/v1/"
)

// ScrapingBee fetches the target page through the ScrapingBee proxy API.
type ScrapingBee struct {
	BaseURL      string
	APIKey       string
	Client       *fetch.Client
	RenderJS     bool
	PremiumProxy bool
}

func (s *ScrapingBee) Name() string { return "scrapingbee" }

func (s *ScrapingBee) Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	if s.APIKey == "" {
		return model.RawFetchResult{}, errMissingKey
	}
	q := url.Values{}
	q.Set("api_key", s.APIKey)
	q.Set("url", TargetURL(req))
	q.Set("render_js", strconv.FormatBool(s.RenderJS))
	q.Set("premium_proxy", strconv.FormatBool(s.PremiumProxy))
	q.Set("country_code", req.Region)
	return proxyGet(ctx, s.Client, s.Name(), baseOr(s.BaseURL, scrapingBeeBaseURL)+"?"+q.Encode(), req)
}

// ZenRows fetches the target page through the ZenRows proxy API.
type ZenRows struct {
	BaseURL      string
	APIKey       string
	Client       *fetch.Client
	RenderJS     bool
	PremiumProxy bool
	Antibot      bool
}

func (z *ZenRows) Name() string { return "zenrows" }

func (z *ZenRows) Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	if z.APIKey == "" {
		return model.RawFetchResult{}, errMissingKey
	}
	q := url.Values{}
	q.Set("apikey", z.APIKey)
	q.Set("url", TargetURL(req))
	q.Set("js_render", strconv.FormatBool(z.RenderJS))
	q.Set("premium_proxy", strconv.FormatBool(z.PremiumProxy))
	q.Set("antibot", strconv.FormatBool(z.Antibot))
	return proxyGet(ctx, z.Client, z.Name(), baseOr(z.BaseURL, zenRowsBaseURL)+"?"+q.Encode(), req)
}

func baseOr(base, fallback string) string {
	if base == "" {
		return fallback
	}
	return base
}

// proxyGet fetches through a scraping API. The API key lives in the query
// string, so the page cache is never used here.
func proxyGet(ctx context.Context, c *fetch.Client, name, apiURL string, req model.SearchRequest) (model.RawFetchResult, error) {
	if c == nil {
		c = &fetch.Client{MaxAttempts: 1, AnyContentType: true}
	}
	resp, err := c.Get(ctx, apiURL)
	return model.RawFetchResult{
		Provider:  name,
		Source:    htmlSource(req.Mode),
		SourceURL: TargetURL(req),
		Payload:   resp.Body,
		Status:    resp.Status,
	}, err
}
