// Package ratelimit implements per-client fixed-window request limits, in
// memory for a single instance or in Redis when several instances share a
// budget.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultWindow = time.Minute
	defaultTTL    = 10 * time.Minute
	keyPrefix     = "serpgate:v1:rl:"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the current window resets.
	RetryAfter time.Duration
}

func decide(limit, count int, reset time.Duration) Decision {
	return Decision{
		Allowed:    count <= limit,
		Limit:      limit,
		Remaining:  max(limit-count, 0),
		RetryAfter: reset,
	}
}

type bucket struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// Window is an in-process fixed-window limiter keyed by client.
type Window struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	ttl     time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

// NewWindow allows limit requests per key in every window. Non-positive
// values take the defaults of one request per minute.
func NewWindow(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Window{
		limit:   limit,
		window:  window,
		ttl:     max(window, defaultTTL),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (w *Window) Allow(_ context.Context, key string) (Decision, error) {
	if key == "" {
		key = "unknown"
	}
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	for k, b := range w.buckets {
		if now.Sub(b.lastSeen) > w.ttl {
			delete(w.buckets, k)
		}
	}

	b, ok := w.buckets[key]
	if !ok || now.Sub(b.windowStart) >= w.window {
		b = &bucket{windowStart: now}
		w.buckets[key] = b
	}
	b.lastSeen = now
	if b.count < w.limit {
		b.count++
		return decide(w.limit, b.count, b.windowStart.Add(w.window).Sub(now)), nil
	}
	return decide(w.limit, w.limit+1, b.windowStart.Add(w.window).Sub(now)), nil
}

// Redis is a fixed-window limiter whose counters live in Redis, so every
// instance behind a load balancer draws from the same budget.
type Redis struct {
	client goredis.UniversalClient
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedis(client goredis.UniversalClient, limit int, window time.Duration) *Redis {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{client: client, limit: limit, window: window, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		key = "unknown"
	}
	now := r.now()
	slot := now.UnixNano() / int64(r.window)
	reset := time.Unix(0, (slot+1)*int64(r.window)).Sub(now)

	k := fmt.Sprintf("%s%s:%d", keyPrefix, key, slot)
	var incr *goredis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, r.window)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true, Limit: r.limit, Remaining: r.limit}, fmt.Errorf("rate limit: %w", err)
	}
	return decide(r.limit, int(incr.Val()), reset), nil
}
