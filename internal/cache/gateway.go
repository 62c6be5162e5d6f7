package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpgate/internal/model"
)

const (
	DefaultTTL     = 6 * time.Hour
	defaultTimeout = 2 * time.Second
)

// Gateway reads and writes completed results by request fingerprint. A
// failing store never surfaces to callers: reads degrade to a miss and write
// failures are logged.
type Gateway struct {
	Store Store
	TTL   time.Duration
	// Timeout bounds every store call. Zero means two seconds.
	Timeout time.Duration
	// OnLookup, when set, observes every Get outcome.
	OnLookup func(hit bool)
}

func (g *Gateway) timeout() time.Duration {
	if g.Timeout > 0 {
		return g.Timeout
	}
	return defaultTimeout
}

// Get returns the cached result for fp with Cached set, or false on a miss.
func (g *Gateway) Get(ctx context.Context, fp string) (model.Result, bool) {
	res, ok := g.get(ctx, fp)
	if g.OnLookup != nil {
		g.OnLookup(ok)
	}
	return res, ok
}

func (g *Gateway) get(ctx context.Context, fp string) (model.Result, bool) {
	if g == nil || g.Store == nil {
		return model.Result{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()
	b, err := g.Store.Get(ctx, fp)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			log.Warn().Err(err).Str("fingerprint", fp).Msg("cache unavailable; treating as miss")
		}
		return model.Result{}, false
	}
	var res model.Result
	if err := json.Unmarshal(b, &res); err != nil {
		log.Warn().Err(err).Str("fingerprint", fp).Msg("cache entry unreadable; treating as miss")
		return model.Result{}, false
	}
	res.Cached = true
	return res, true
}

// Set writes res under fp. Errors are logged and swallowed.
func (g *Gateway) Set(ctx context.Context, fp string, res model.Result) {
	if g == nil || g.Store == nil {
		return
	}
	res.Cached = false
	b, err := json.Marshal(res)
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", fp).Msg("cache encode failed")
		return
	}
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()
	if err := g.Store.Set(ctx, fp, b, ttl); err != nil {
		log.Warn().Err(err).Str("fingerprint", fp).Msg("cache write failed")
	}
}
