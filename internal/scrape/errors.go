package scrape

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAllProvidersExhausted is matched by *ExhaustedError.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// ProviderError is one provider's failed attempt.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return e.Provider + ": " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// ExhaustedError reports that every eligible provider failed. Failures are
// in attempt order.
type ExhaustedError struct {
	Mode     string
	Failures []ProviderError
}

func (e *ExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s: no provider configured for mode %q", ErrAllProvidersExhausted, e.Mode)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return ErrAllProvidersExhausted.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() error { return ErrAllProvidersExhausted }

// Providers lists the attempted provider names in order.
func (e *ExhaustedError) Providers() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Provider)
	}
	return out
}
