package scrape

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperifyio/serpgate/internal/model"
)

type stubProvider struct {
	name    string
	modes   []model.Mode
	payload string
	source  model.SourceType
	err     error
	block   bool

	mu    sync.Mutex
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Supports(mode model.Mode) bool {
	if len(s.modes) == 0 {
		return true
	}
	for _, m := range s.modes {
		if m == mode {
			return true
		}
	}
	return false
}

func (s *stubProvider) Fetch(ctx context.Context, _ model.SearchRequest) (model.RawFetchResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return model.RawFetchResult{}, ctx.Err()
	}
	if s.err != nil {
		return model.RawFetchResult{}, s.err
	}
	src := s.source
	if src == "" {
		src = model.SourceHTMLSearch
	}
	return model.RawFetchResult{Source: src, Payload: []byte(s.payload), Status: 200}, nil
}

func (s *stubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordedAttempt struct {
	provider, status string
}

type fakeRecorder struct {
	mu       sync.Mutex
	attempts []recordedAttempt
}

func (r *fakeRecorder) ObserveScrape(provider, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, recordedAttempt{provider, status})
}

func searchReq() model.SearchRequest {
	return model.SearchRequest{Query: "golang", Mode: model.ModeSearch}.Normalize()
}

func TestChain_FallsBackInOrder(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("boom")}
	b := &stubProvider{name: "b", payload: "<html><body>ok</body></html>"}
	c := &stubProvider{name: "c", payload: "<html>never</html>"}
	rec := &fakeRecorder{}
	chain := NewChain([]Provider{a, b, c}, time.Second, rec, BreakerOptions{})

	res, err := chain.Fetch(context.Background(), searchReq())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Provider != "b" {
		t.Fatalf("expected provider b, got %q", res.Provider)
	}
	if c.Calls() != 0 {
		t.Fatalf("provider c should not be called")
	}
	if len(rec.attempts) != 2 || rec.attempts[0] != (recordedAttempt{"a", StatusException}) || rec.attempts[1] != (recordedAttempt{"b", StatusSuccess}) {
		t.Fatalf("unexpected attempts: %+v", rec.attempts)
	}
}

func TestChain_AllFail(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("down")}
	b := &stubProvider{name: "b", payload: "   "}
	chain := NewChain([]Provider{a, b}, time.Second, nil, BreakerOptions{})

	_, err := chain.Fetch(context.Background(), searchReq())
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	var ee *ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExhaustedError")
	}
	if got := strings.Join(ee.Providers(), ","); got != "a,b" {
		t.Fatalf("providers = %q", got)
	}
	if !strings.Contains(err.Error(), "a: down") || !strings.Contains(err.Error(), "b: invalid payload") {
		t.Fatalf("error should name every provider: %v", err)
	}
}

func TestChain_SkipsUnsupportedModes(t *testing.T) {
	searchOnly := &stubProvider{name: "brave", modes: []model.Mode{model.ModeSearch}, payload: "{}", source: model.SourceBrave}
	chain := NewChain([]Provider{searchOnly}, time.Second, nil, BreakerOptions{})
	req := model.SearchRequest{Query: "https://example.com/", Mode: model.ModeScrape}.Normalize()

	_, err := chain.Fetch(context.Background(), req)
	var ee *ExhaustedError
	if !errors.As(err, &ee) || len(ee.Failures) != 0 {
		t.Fatalf("expected exhausted with no attempts, got %v", err)
	}
	if !strings.Contains(err.Error(), "no provider configured") {
		t.Fatalf("unexpected message: %v", err)
	}
	if searchOnly.Calls() != 0 {
		t.Fatalf("unsupported provider was called")
	}
}

func TestChain_AttemptTimeout(t *testing.T) {
	slow := &stubProvider{name: "slow", block: true}
	fast := &stubProvider{name: "fast", payload: "<html>ok</html>"}
	rec := &fakeRecorder{}
	chain := NewChain([]Provider{slow, fast}, 20*time.Millisecond, rec, BreakerOptions{})

	res, err := chain.Fetch(context.Background(), searchReq())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Provider != "fast" {
		t.Fatalf("expected fast, got %q", res.Provider)
	}
	if rec.attempts[0] != (recordedAttempt{"slow", StatusException}) {
		t.Fatalf("timeout should be recorded as exception: %+v", rec.attempts)
	}
}

func TestChain_CancelledContext(t *testing.T) {
	a := &stubProvider{name: "a", payload: "<html>ok</html>"}
	chain := NewChain([]Provider{a}, time.Second, nil, BreakerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := chain.Fetch(ctx, searchReq()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if a.Calls() != 0 {
		t.Fatalf("provider called after cancel")
	}
}

func TestChain_BreakerOpensAndSkips(t *testing.T) {
	flaky := &stubProvider{name: "flaky", err: errors.New("503")}
	backup := &stubProvider{name: "backup", payload: "<html>ok</html>"}
	rec := &fakeRecorder{}
	chain := NewChain([]Provider{flaky, backup}, time.Second, rec, BreakerOptions{Threshold: 1, Window: 1, Delay: time.Minute})

	for i := 0; i < 3; i++ {
		if _, err := chain.Fetch(context.Background(), searchReq()); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if flaky.Calls() != 1 {
		t.Fatalf("open breaker should stop calls, got %d", flaky.Calls())
	}
	if backup.Calls() != 3 {
		t.Fatalf("backup calls = %d", backup.Calls())
	}
}

func TestChain_BlockedPageFallsThrough(t *testing.T) {
	blocked := &stubProvider{name: "direct", payload: "<html>Our systems have detected unusual traffic</html>"}
	ok := &stubProvider{name: "tavily", payload: `{"results":[]}`, source: model.SourceTavilySearch}
	rec := &fakeRecorder{}
	chain := NewChain([]Provider{blocked, ok}, time.Second, rec, BreakerOptions{})

	res, err := chain.Fetch(context.Background(), searchReq())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Provider != "tavily" {
		t.Fatalf("expected tavily, got %q", res.Provider)
	}
	if rec.attempts[0].status != StatusError {
		t.Fatalf("blocked page should be recorded as error: %+v", rec.attempts)
	}
}

func TestChain_ErrorObjectFallsThrough(t *testing.T) {
	tavily := &stubProvider{name: "tavily", payload: `{"detail":"Unauthorized"}`, source: model.SourceTavilySearch}
	brave := &stubProvider{name: "brave", payload: `{"web":{"results":[]}}`, source: model.SourceBrave}
	rec := &fakeRecorder{}
	chain := NewChain([]Provider{tavily, brave}, time.Second, rec, BreakerOptions{})

	res, err := chain.Fetch(context.Background(), searchReq())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Provider != "brave" {
		t.Fatalf("expected brave, got %q", res.Provider)
	}
	if rec.attempts[0].status != StatusError {
		t.Fatalf("error object should be recorded as error: %+v", rec.attempts)
	}
}

func TestValidatePayload(t *testing.T) {
	cases := []struct {
		name string
		res  model.RawFetchResult
		ok   bool
	}{
		{"html", model.RawFetchResult{Source: model.SourceHTMLPage, Payload: []byte("<p>hi</p>")}, true},
		{"empty", model.RawFetchResult{Source: model.SourceHTMLPage, Payload: []byte("\n ")}, false},
		{"captcha", model.RawFetchResult{Source: model.SourceHTMLSearch, Payload: []byte(`<div class="g-recaptcha"></div>`)}, false},
		{"json", model.RawFetchResult{Source: model.SourceBrave, Payload: []byte(`{"web":{}}`)}, true},
		{"bad json", model.RawFetchResult{Source: model.SourceSearxNG, Payload: []byte(`{"results":`)}, false},
		{"tavily error object", model.RawFetchResult{Source: model.SourceTavilySearch, Payload: []byte(`{"detail":{"error":"quota exceeded"}}`)}, false},
		{"tavily null results", model.RawFetchResult{Source: model.SourceTavilySearch, Payload: []byte(`{"results":null}`)}, false},
		{"tavily empty results", model.RawFetchResult{Source: model.SourceTavilySearch, Payload: []byte(`{"results":[]}`)}, true},
		{"searxng array payload", model.RawFetchResult{Source: model.SourceSearxNG, Payload: []byte(`[]`)}, false},
	}
	for _, tc := range cases {
		err := ValidatePayload(tc.res)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: ok=%v err=%v", tc.name, tc.ok, err)
		}
	}
}
