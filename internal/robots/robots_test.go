package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/serpgate/internal/fetch"
)

func robotsServer(t *testing.T, status *atomic.Int32, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newChecker(srv *httptest.Server) *Checker {
	return &Checker{
		Client:            &fetch.Client{HTTPClient: srv.Client(), MaxAttempts: 1, AnyContentType: true},
		AllowPrivateHosts: true,
	}
}

func TestChecker_DisallowAndMemoryCache(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv, hits := robotsServer(t, &status, "User-agent: serpgate\nDisallow: /private\n\nUser-agent: *\nDisallow: /\n")
	c := newChecker(srv)
	ctx := context.Background()

	if c.Allowed(ctx, srv.URL+"/private/page") {
		t.Fatalf("expected /private to be disallowed")
	}
	if !c.Allowed(ctx, srv.URL+"/public?q=1") {
		t.Fatalf("expected /public to be allowed for the named group")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one robots.txt fetch, got %d", hits.Load())
	}

	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	_ = c.Allowed(ctx, srv.URL+"/public")
	if hits.Load() != 2 {
		t.Fatalf("expected refetch after expiry, got %d", hits.Load())
	}
}

func TestChecker_MissingRobotsAllows(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	srv, hits := robotsServer(t, &status, "")
	c := newChecker(srv)
	if !c.Allowed(context.Background(), srv.URL+"/anything") {
		t.Fatalf("missing robots.txt should allow")
	}
	_ = c.Allowed(context.Background(), srv.URL+"/other")
	if hits.Load() != 1 {
		t.Fatalf("404 should be cached, got %d fetches", hits.Load())
	}
}

func TestChecker_ServerErrorDisallowsUntilRecovered(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv, _ := robotsServer(t, &status, "User-agent: *\nAllow: /\n")
	c := newChecker(srv)
	if c.Allowed(context.Background(), srv.URL+"/page") {
		t.Fatalf("5xx should disallow")
	}
	status.Store(http.StatusOK)
	if !c.Allowed(context.Background(), srv.URL+"/page") {
		t.Fatalf("expected allow once robots.txt is served")
	}
}

func TestChecker_RefusesPrivateHosts(t *testing.T) {
	c := &Checker{Client: &fetch.Client{MaxAttempts: 1}}
	for _, u := range []string{"http://127.0.0.1/x", "http://localhost:8080/", "http://10.1.2.3/", "ftp://example.com/"} {
		if c.Allowed(context.Background(), u) {
			t.Fatalf("expected %s to be refused", u)
		}
	}
}

func TestRules_AgentPrecedenceAndLongestMatch(t *testing.T) {
	rules := Parse("User-agent: serpgate\nDisallow: /private\n\nUser-agent: *\nAllow: /\n")
	if rules.Allowed("serpgate", "/private/page") {
		t.Fatalf("named group should apply")
	}
	if !rules.Allowed("otheragent", "/private/page") {
		t.Fatalf("wildcard group should allow")
	}

	rules = Parse("User-agent: serpgate\nDisallow: /private\nAllow: /private/public # open\n")
	if !rules.Allowed("serpgate", "/private/public/info") {
		t.Fatalf("longer allow should win")
	}
	if rules.Allowed("serpgate", "/private/else") {
		t.Fatalf("expected disallow")
	}
}

func TestRules_WildcardsAndAnchors(t *testing.T) {
	rules := Parse("User-agent: *\nDisallow: /*.zip$\nAllow: /downloads/*.zip$\nDisallow: /*?session=\n")
	cases := map[string]bool{
		"/foo/file.zip":         false,
		"/foo/file.zip.html":    true,
		"/downloads/file.zip":   true,
		"/index.html?session=1": false,
		"/index.html":           true,
	}
	for path, want := range cases {
		if got := rules.Allowed("any", path); got != want {
			t.Fatalf("Allowed(%q) = %v, want %v", path, got, want)
		}
	}
}
