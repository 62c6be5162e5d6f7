package scrape

import (
	"bytes"
	"context"
	"errors"

	"github.com/hyperifyio/serpgate/internal/fetch"
	"github.com/hyperifyio/serpgate/internal/model"
)

// Direct fetches the target page itself with a rotated User-Agent.
type Direct struct {
	Client *fetch.Client
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	c := d.Client
	if c == nil {
		c = &fetch.Client{MaxAttempts: 1}
	}
	target := TargetURL(req)
	resp, err := c.Get(ctx, target)
	res := model.RawFetchResult{
		Provider:  d.Name(),
		Source:    htmlSource(req.Mode),
		SourceURL: target,
		Payload:   resp.Body,
		Status:    resp.Status,
	}
	if err != nil {
		return res, err
	}
	// unauthenticated requests are the first to be challenged
	if bytes.Contains(bytes.ToLower(resp.Body), []byte("captcha")) {
		return res, errors.New("captcha challenge")
	}
	return res, nil
}
