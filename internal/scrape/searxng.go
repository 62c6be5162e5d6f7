package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperifyio/serpgate/internal/model"
)

// SearxNG implements search against a SearxNG instance's /search endpoint.
type SearxNG struct {
	BaseURL    string
	APIKey     string // optional
	HTTPClient *http.Client
	UserAgents []string
}

func (s *SearxNG) Name() string { return "searxng" }

func (s *SearxNG) Supports(mode model.Mode) bool { return mode == model.ModeSearch }

func (s *SearxNG) Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	if s.BaseURL == "" {
		return model.RawFetchResult{}, fmt.Errorf("missing searxng base url")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return model.RawFetchResult{}, err
	}
	if !strings.HasSuffix(u.Path, "/search") {
		u.Path = strings.TrimRight(u.Path, "/") + "/search"
	}
	q := u.Query()
	q.Set("q", req.Query)
	q.Set("format", "json")
	q.Set("language", req.Language)
	q.Set("safesearch", "1")
	q.Set("categories", "general")
	q.Set("count", strconv.Itoa(req.Limit))
	if s.APIKey != "" {
		q.Set("apikey", s.APIKey)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.RawFetchResult{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	payload, status, err := doRequest(s.HTTPClient, httpReq, s.UserAgents)
	return model.RawFetchResult{Provider: s.Name(), Source: model.SourceSearxNG, SourceURL: u.String(), Payload: payload, Status: status}, err
}
