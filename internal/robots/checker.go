package robots

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpgate/internal/fetch"
)

// DefaultAgent is the token matched against User-agent groups.
const DefaultAgent = "serpgate"

// Checker answers whether a page may be fetched, caching robots.txt per
// origin. Revalidation of expired entries goes through the fetch client's
// page cache.
type Checker struct {
	// Client fetches robots.txt. It should accept any content type.
	Client *fetch.Client
	// Agent is matched against User-agent groups. Empty means DefaultAgent.
	Agent string
	// TTL is how long parsed rules are reused. Zero means 30 minutes.
	TTL time.Duration
	// AllowPrivateHosts permits loopback and private addresses.
	AllowPrivateHosts bool

	mu  sync.Mutex
	mem map[string]entry
	now func() time.Time
}

type entry struct {
	rules  Rules
	expiry time.Time
}

// Allowed reports whether rawURL may be fetched. A missing robots.txt (4xx)
// allows everything; a server error or timeout disallows until the next
// attempt.
func (c *Checker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if !c.AllowPrivateHosts && fetch.IsPrivateHost(u.Hostname()) {
		log.Debug().Str("url", rawURL).Msg("private host refused")
		return false
	}
	rules, err := c.rules(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		log.Debug().Err(err).Str("host", u.Host).Msg("robots.txt unavailable; skipping page")
		return false
	}
	agent := c.Agent
	if agent == "" {
		agent = DefaultAgent
	}
	return rules.Allowed(agent, u.RequestURI())
}

func (c *Checker) rules(ctx context.Context, origin string) (Rules, error) {
	c.mu.Lock()
	if c.now == nil {
		c.now = time.Now
	}
	if e, ok := c.mem[origin]; ok && c.now().Before(e.expiry) {
		c.mu.Unlock()
		return e.rules, nil
	}
	c.mu.Unlock()

	resp, err := c.Client.Get(ctx, origin+"/robots.txt")
	var rules Rules
	switch {
	case err == nil:
		rules = Parse(string(resp.Body))
	case isMissing(err):
		// no robots.txt
	default:
		return Rules{}, err
	}
	c.store(origin, rules)
	return rules, nil
}

func (c *Checker) store(origin string, rules Rules) {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		c.mem = make(map[string]entry)
	}
	c.mem[origin] = entry{rules: rules, expiry: c.now().Add(ttl)}
}

func isMissing(err error) bool {
	var se *fetch.StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != 429
}
