package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpgate/internal/model"
)

const DefaultAttemptTimeout = 15 * time.Second

// Attempt outcomes reported to the Recorder.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusException = "exception"
)

// Recorder observes every provider attempt.
type Recorder interface {
	ObserveScrape(provider, status string, d time.Duration)
}

// BreakerOptions configures the per-provider circuit breaker. A zero
// Threshold disables breakers.
type BreakerOptions struct {
	// Threshold failures within Window attempts open the breaker.
	Threshold uint
	Window    uint
	// Delay is how long an open breaker rejects attempts before probing.
	Delay time.Duration
}

// Chain tries providers in order until one returns a valid payload.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	recorder  Recorder
	breakers  map[string]circuitbreaker.CircuitBreaker[any]
}

// NewChain builds a chain over providers. attemptTimeout bounds each attempt;
// zero means DefaultAttemptTimeout.
func NewChain(providers []Provider, attemptTimeout time.Duration, rec Recorder, bo BreakerOptions) *Chain {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	c := &Chain{providers: providers, timeout: attemptTimeout, recorder: rec}
	if bo.Threshold > 0 {
		if bo.Window < bo.Threshold {
			bo.Window = bo.Threshold
		}
		if bo.Delay <= 0 {
			bo.Delay = 30 * time.Second
		}
		c.breakers = make(map[string]circuitbreaker.CircuitBreaker[any], len(providers))
		for _, p := range providers {
			name := p.Name()
			c.breakers[name] = circuitbreaker.NewBuilder[any]().
				WithFailureThresholdRatio(bo.Threshold, bo.Window).
				WithDelay(bo.Delay).
				WithSuccessThreshold(1).
				OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
					log.Warn().Str("provider", name).
						Str("from", stateName(e.OldState)).
						Str("to", stateName(e.NewState)).
						Msg("provider circuit breaker state change")
				}).
				Build()
		}
	}
	return c
}

// Names lists the configured providers in order.
func (c *Chain) Names() []string {
	out := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p.Name())
	}
	return out
}

// Fetch returns the first valid payload. When every eligible provider fails
// the error is an *ExhaustedError naming each one. A cancelled ctx stops the
// chain with ctx.Err().
func (c *Chain) Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	exhausted := &ExhaustedError{Mode: string(req.Mode)}
	for _, p := range c.providers {
		if !supports(p, req.Mode) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return model.RawFetchResult{}, err
		}
		res, err := c.attempt(ctx, p, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return model.RawFetchResult{}, ctx.Err()
		}
		log.Warn().Err(err).Str("provider", p.Name()).Str("stage", "scrape").Msg("provider failed; trying next")
		exhausted.Failures = append(exhausted.Failures, ProviderError{Provider: p.Name(), Err: err})
	}
	return model.RawFetchResult{}, exhausted
}

func (c *Chain) attempt(ctx context.Context, p Provider, req model.SearchRequest) (model.RawFetchResult, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	run := func() (model.RawFetchResult, error) {
		res, err := p.Fetch(actx, req)
		if err != nil {
			return res, err
		}
		if err := ValidatePayload(res); err != nil {
			return res, &invalidPayloadError{err}
		}
		return res, nil
	}

	var res model.RawFetchResult
	var err error
	if cb, ok := c.breakers[p.Name()]; ok {
		_, err = failsafe.With(cb).Get(func() (any, error) {
			var ferr error
			res, ferr = run()
			return nil, ferr
		})
	} else {
		res, err = run()
	}
	elapsed := time.Since(start)

	switch {
	case err == nil:
		c.observe(p.Name(), StatusSuccess, elapsed)
		if res.Provider == "" {
			res.Provider = p.Name()
		}
		res.Latency = elapsed
		log.Debug().Str("provider", p.Name()).Dur("latency", elapsed).Int("bytes", len(res.Payload)).Msg("provider succeeded")
		return res, nil
	case errors.Is(err, circuitbreaker.ErrOpen):
		c.observe(p.Name(), StatusException, elapsed)
		return res, errors.New("circuit open")
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		c.observe(p.Name(), StatusException, elapsed)
		return res, fmt.Errorf("timeout after %s", c.timeout)
	default:
		var ipe *invalidPayloadError
		if errors.As(err, &ipe) || res.Status != 0 {
			c.observe(p.Name(), StatusError, elapsed)
		} else {
			c.observe(p.Name(), StatusException, elapsed)
		}
		return res, err
	}
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.ClosedState:
		return "closed"
	}
	return "unknown"
}

func (c *Chain) observe(provider, status string, d time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveScrape(provider, status, d)
	}
}

type invalidPayloadError struct{ err error }

func (e *invalidPayloadError) Error() string { return "invalid payload: " + e.err.Error() }
func (e *invalidPayloadError) Unwrap() error { return e.err }

// Router sends each request to the chain configured for its mode.
type Router struct {
	Search *Chain
	Scrape *Chain
}

func (r *Router) Fetch(ctx context.Context, req model.SearchRequest) (model.RawFetchResult, error) {
	c := r.Search
	if req.Mode == model.ModeScrape {
		c = r.Scrape
	}
	if c == nil {
		return model.RawFetchResult{}, &ExhaustedError{Mode: string(req.Mode)}
	}
	return c.Fetch(ctx, req)
}
