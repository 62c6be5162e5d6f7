package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hyperifyio/serpgate/internal/model"
)

const tavilyBaseURL = "https://api.tavily.com"

// Tavily serves search through /search and scraping through /extract.
type Tavily struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	UserAgents []string
	// SearchDepth is "basic" or "advanced". Empty means advanced.
	SearchDepth string
}

func (t *Tavily) Name() string { return "tavily" }

type tavilySearchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	IncludeImages bool   `json:"include_images"`
	MaxResults    int    `json:"max_results"`
}

type tavilyExtractRequest struct {
	APIKey string   `json:"api_key"`
	URLs   []string `json:"urls"`
}

func (t *Tavily) Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	if t.APIKey == "" {
		return model.RawFetchResult{}, errMissingKey
	}
	if req.Mode == model.ModeScrape {
		return t.extract(ctx, req)
	}
	depth := t.SearchDepth
	if depth == "" {
		depth = "advanced"
	}
	body := tavilySearchRequest{
		APIKey:        t.APIKey,
		Query:         req.Query,
		SearchDepth:   depth,
		IncludeAnswer: true,
		MaxResults:    req.Limit,
	}
	endpointURL := endpoint(t.BaseURL, tavilyBaseURL, "/search")
	payload, status, err := t.post(ctx, endpointURL, body)
	res := model.RawFetchResult{Provider: t.Name(), Source: model.SourceTavilySearch, SourceURL: endpointURL, Payload: payload, Status: status}
	return res, err
}

func (t *Tavily) extract(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	endpointURL := endpoint(t.BaseURL, tavilyBaseURL, "/extract")
	payload, status, err := t.post(ctx, endpointURL, tavilyExtractRequest{APIKey: t.APIKey, URLs: []string{req.Query}})
	res := model.RawFetchResult{Provider: t.Name(), Source: model.SourceTavilyExtract, SourceURL: req.Query, Payload: payload, Status: status}
	if err != nil {
		return res, err
	}
	var extracted struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(payload, &extracted); err != nil {
		return res, fmt.Errorf("decode extract: %w", err)
	}
	if len(extracted.Results) == 0 {
		return res, errors.New("extract returned no results")
	}
	return res, nil
}

func (t *Tavily) post(ctx context.Context, endpointURL string, body any) ([]byte, int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.APIKey)
	return doRequest(t.HTTPClient, httpReq, t.UserAgents)
}
