package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Mode selects between a web search and a single-page scrape.
type Mode string

const (
	ModeSearch Mode = "search"
	ModeScrape Mode = "scrape"
)

// OutputFormat selects the shape of a completed result.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
	FormatVector   OutputFormat = "vector"
)

const (
	DefaultRegion   = "us"
	DefaultLanguage = "en"
	DefaultLimit    = 10
	MaxLimit        = 50
)

// ErrValidation marks request validation failures.
var ErrValidation = errors.New("validation error")

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// SearchRequest is the client-facing request. It is treated as immutable once
// a task has been created for it.
type SearchRequest struct {
	Query        string       `json:"query"`
	Mode         Mode         `json:"mode"`
	Region       string       `json:"region"`
	Language     string       `json:"language"`
	Limit        int          `json:"limit"`
	OutputFormat OutputFormat `json:"output_format"`
}

// Normalize fills defaults and canonicalizes aliases. Zero Limit becomes
// DefaultLimit; out-of-range limits are left for Validate to reject.
func (r SearchRequest) Normalize() SearchRequest {
	r.Query = strings.TrimSpace(r.Query)
	r.Mode = Mode(strings.ToLower(strings.TrimSpace(string(r.Mode))))
	if r.Mode == "" {
		r.Mode = ModeSearch
	}
	r.Region = strings.ToLower(strings.TrimSpace(r.Region))
	if r.Region == "" {
		r.Region = DefaultRegion
	}
	r.Language = strings.TrimSpace(r.Language)
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
	f := strings.ToLower(strings.TrimSpace(string(r.OutputFormat)))
	switch f {
	case "":
		r.OutputFormat = FormatMarkdown
	case "vectors", "embedding", "embeddings":
		r.OutputFormat = FormatVector
	default:
		r.OutputFormat = OutputFormat(f)
	}
	return r
}

// Validate checks a normalized request.
func (r SearchRequest) Validate() error {
	if r.Query == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	switch r.Mode {
	case ModeSearch:
	case ModeScrape:
		u, err := url.Parse(r.Query)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "query", Reason: "scrape mode requires an absolute http(s) URL"}
		}
	default:
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", r.Mode)}
	}
	if r.Limit < 1 || r.Limit > MaxLimit {
		return &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}
	switch r.OutputFormat {
	case FormatMarkdown, FormatJSON, FormatVector:
	default:
		return &ValidationError{Field: "output_format", Reason: fmt.Sprintf("unknown format %q", r.OutputFormat)}
	}
	return nil
}

// WantsVectors reports whether embeddings must be attached to results.
func (r SearchRequest) WantsVectors() bool { return r.OutputFormat == FormatVector }
