package scrape

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hyperifyio/serpgate/internal/model"
)

const braveBaseURL = "https://api.search.brave.com/res/v1"

// braveMaxCount is the largest page the web search endpoint returns.
const braveMaxCount = 20

// Brave implements search against the Brave Search API.
type Brave struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	UserAgents []string
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Supports(mode model.Mode) bool { return mode == model.ModeSearch }

func (b *Brave) Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	if b.APIKey == "" {
		return model.RawFetchResult{}, errMissingKey
	}
	count := min(req.Limit, braveMaxCount)
	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("count", strconv.Itoa(count))
	q.Set("country", req.Region)
	q.Set("search_lang", req.Language)
	q.Set("extra_snippets", "true")
	endpointURL := endpoint(b.BaseURL, braveBaseURL, "/web/search") + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
	if err != nil {
		return model.RawFetchResult{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", b.APIKey)
	payload, status, err := doRequest(b.HTTPClient, httpReq, b.UserAgents)
	return model.RawFetchResult{Provider: b.Name(), Source: model.SourceBrave, SourceURL: endpointURL, Payload: payload, Status: status}, err
}
