package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/serpgate/internal/fetch"
	"github.com/hyperifyio/serpgate/internal/model"
)

// Provider fetches a raw payload for a request. Providers are tried in the
// order they are configured.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error)
}

// ModeSupporter is implemented by providers that only serve some modes.
// Providers without it are assumed to serve every mode.
type ModeSupporter interface {
	Supports(mode model.Mode) bool
}

func supports(p Provider, mode model.Mode) bool {
	if ms, ok := p.(ModeSupporter); ok {
		return ms.Supports(mode)
	}
	return true
}

const maxPayloadBytes = 8 << 20

// SearchURL is the results page the HTML providers fetch in search mode.
func SearchURL(req model.SearchRequest) string {
	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("gl", req.Region)
	q.Set("hl", req.Language)
	q.Set("num", strconv.Itoa(req.Limit))
	return "https://www.google.com/search?" + q.Encode()
}

// TargetURL is the page an HTML provider fetches for req.
func TargetURL(req model.SearchRequest) string {
	if req.Mode == model.ModeScrape {
		return req.Query
	}
	return SearchURL(req)
}

func htmlSource(mode model.Mode) model.SourceType {
	if mode == model.ModeScrape {
		return model.SourceHTMLPage
	}
	return model.SourceHTMLSearch
}

func httpClientOr(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// doRequest executes req with a random User-Agent and returns the body of a
// 2xx response. Non-2xx responses yield *fetch.StatusError.
func doRequest(hc *http.Client, req *http.Request, agents []string) ([]byte, int, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", fetch.RandomUserAgent(agents))
	}
	resp, err := httpClientOr(hc).Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &fetch.StatusError{Code: resp.StatusCode}
	}
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func endpoint(base, fallback, path string) string {
	b := strings.TrimRight(strings.TrimSpace(base), "/")
	if b == "" {
		b = fallback
	}
	return b + path
}

var errMissingKey = errors.New("missing api key")
