package scrape

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperifyio/serpgate/internal/model"
)

// blockMarkers appear on interstitial, captcha and consent pages served
// instead of real content.
var blockMarkers = [][]byte{
	[]byte("please click here if you are not redirected"),
	[]byte("having trouble accessing google search"),
	[]byte("detected unusual traffic"),
	[]byte("our systems have detected unusual traffic"),
	[]byte("g-recaptcha"),
	[]byte("captcha-form"),
	[]byte("cf-challenge"),
	[]byte("attention required! | cloudflare"),
}

var errEmptyPayload = errors.New("empty payload")

// resultsKey names the array a JSON source must carry. An error object
// returned with status 200 lacks it.
var resultsKey = map[model.SourceType]string{
	model.SourceTavilySearch:  "results",
	model.SourceTavilyExtract: "results",
	model.SourceSearxNG:       "results",
}

// ValidatePayload rejects responses that cannot be parsed: empty bodies,
// blocked HTML pages and undecodable JSON.
func ValidatePayload(res model.RawFetchResult) error {
	body := bytes.TrimSpace(res.Payload)
	if len(body) == 0 {
		return errEmptyPayload
	}
	if res.Source.IsHTML() {
		lower := bytes.ToLower(body)
		for _, m := range blockMarkers {
			if bytes.Contains(lower, m) {
				return fmt.Errorf("blocked page: %q", m)
			}
		}
		return nil
	}
	if !json.Valid(body) {
		return errors.New("malformed json payload")
	}
	key, ok := resultsKey[res.Source]
	if !ok {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("malformed json payload: %w", err)
	}
	if v := bytes.TrimSpace(fields[key]); len(v) == 0 || v[0] != '[' {
		return fmt.Errorf("malformed json payload: missing %q array", key)
	}
	return nil
}
