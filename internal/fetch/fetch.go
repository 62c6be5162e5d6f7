package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperifyio/serpgate/internal/cache"
)

// DefaultUserAgents are rotated per attempt when a Client has no pool of its own.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

const defaultMaxBodyBytes = 8 << 20

// ErrPrivateHost is returned when DenyPrivateHosts refuses a URL or redirect.
var ErrPrivateHost = errors.New("private host refused")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	if e.Code >= 500 {
		return fmt.Sprintf("server error: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// Client wraps http.Client and provides timeouts, User-Agent rotation and
// limited retry on transient errors.
type Client struct {
	HTTPClient *http.Client
	// UserAgents is the pool a User-Agent is drawn from on every attempt.
	// Empty means DefaultUserAgents.
	UserAgents []string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// Optional on-disk cache for page bodies and validators.
	Cache *cache.HTTPCache
	// If true, skip conditional headers but still save the latest response.
	BypassCache bool
	// AnyContentType disables the HTML content-type gate.
	AnyContentType bool
	// MaxBodyBytes caps how much of a body is read. Zero means 8 MiB.
	MaxBodyBytes int64

	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int
	// DenyPrivateHosts refuses loopback, private and link-local targets,
	// including redirects into them.
	DenyPrivateHosts bool

	limiter     chan struct{}
	limiterOnce sync.Once
}

// Response is the successful outcome of Get.
type Response struct {
	Body        []byte
	ContentType string
	Status      int
	UserAgent   string
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// clone to attach our redirect policy without mutating the caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

// UserAgent draws one User-Agent from the client's pool.
func (c *Client) UserAgent() string {
	return RandomUserAgent(c.UserAgents)
}

// RandomUserAgent draws one entry from pool, or from DefaultUserAgents when
// pool is empty.
func RandomUserAgent(pool []string) string {
	if len(pool) == 0 {
		pool = DefaultUserAgents
	}
	return pool[rand.IntN(len(pool))]
}

// Get issues a GET with context, a random User-Agent and bounded retry for
// transient errors.
func (c *Client) Get(ctx context.Context, rawURL string) (Response, error) {
	var etag, lastMod string
	if c.Cache != nil && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil && meta != nil {
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, newEtag, newLastMod, err := c.tryOnce(ctx, rawURL, etag, lastMod)
		if err == nil {
			if c.Cache != nil && resp.Status == http.StatusOK {
				_ = c.Cache.Save(ctx, rawURL, resp.ContentType, newEtag, newLastMod, resp.Body)
			}
			if resp.Status == http.StatusNotModified && c.Cache != nil {
				if cached, err := c.Cache.LoadBody(ctx, rawURL); err == nil {
					resp.Body = cached
					return resp, nil
				}
			}
			return resp, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return resp, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return Response{}, lastErr
}

func (c *Client) tryOnce(ctx context.Context, rawURL, etag, lastMod string) (Response, string, string, error) {
	c.acquire()
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, "", "", fmt.Errorf("new request: %w", err)
	}
	if !isHTTPScheme(req.URL) {
		return Response{}, "", "", fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	if c.DenyPrivateHosts && IsPrivateHost(req.URL.Hostname()) {
		return Response{}, "", "", fmt.Errorf("%w: %s", ErrPrivateHost, req.URL.Host)
	}
	ua := c.UserAgent()
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return Response{UserAgent: ua}, "", "", err
	}
	defer resp.Body.Close()

	out := Response{Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), UserAgent: ua}
	if resp.StatusCode == http.StatusNotModified {
		return out, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, "", "", &StatusError{Code: resp.StatusCode}
	}
	if !c.AnyContentType && !isAllowedHTMLContentType(out.ContentType) {
		return out, "", "", fmt.Errorf("unsupported content type: %s", out.ContentType)
	}
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return out, "", "", fmt.Errorf("read body: %w", err)
	}
	out.Body = b
	return out, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
}

// isTransient treats HTTP 5xx, 429 and deadline expiry as retryable.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return false
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		if c.DenyPrivateHosts && IsPrivateHost(req.URL.Hostname()) {
			return fmt.Errorf("redirect: %w: %s", ErrPrivateHost, req.URL.Host)
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// IsPrivateHost reports whether host names localhost or a loopback, private,
// link-local or unspecified address. Names are not resolved.
func IsPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
	}
	return false
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return ct == "" || strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
