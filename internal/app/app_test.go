package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperifyio/serpgate/internal/model"
	"github.com/hyperifyio/serpgate/internal/task"
)

func offlineConfig(t *testing.T) Config {
	t.Helper()
	entries := `[
	  {"title": "Go release notes", "url": "https://go.dev/doc/devel/release", "snippet": "Release history of the Go language."},
	  {"title": "Rust book", "url": "https://doc.rust-lang.org/book/", "snippet": "The Rust programming language."}
	]`
	path := filepath.Join(t.TempDir(), "results.json")
	if err := os.WriteFile(path, []byte(entries), 0o600); err != nil {
		t.Fatalf("write results: %v", err)
	}
	cfg := Defaults()
	cfg.Addr = "127.0.0.1:0"
	cfg.Workers = 1
	cfg.SearchFile = path
	cfg.SearchProviders = []string{"file"}
	return cfg
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := Defaults()
	cfg.SimilarityThreshold = 2
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNew_RejectsMalformedRedisURL(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.RedisURL = "not a url"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected redis url error")
	}
}

func TestApp_SearchRoundTrip(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("run: %v", err)
		}
	}()

	h := a.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}

	body, _ := json.Marshal(model.SearchRequest{Query: "go release"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status %d: %s", rec.Code, rec.Body.String())
	}
	var sub struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil || sub.TaskID == "" {
		t.Fatalf("submit body %s: %v", rec.Body.String(), err)
	}

	var got task.Task
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/"+sub.TaskID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("poll status %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("poll body: %v", err)
		}
		if got.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task still %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got.Status != task.StatusCompleted || got.Result == nil {
		t.Fatalf("unexpected task: %+v", got)
	}
	if len(got.Result.OrganicResults) != 1 || !strings.Contains(got.Result.FormattedOutput, "Go release notes") {
		t.Fatalf("unexpected result: %+v", got.Result)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "serpgate_scrape_requests_total") {
		t.Fatalf("metrics missing scrape counter")
	}
	if !strings.Contains(rec.Body.String(), `serpgate_token_usage_total{context="formatted_output",model="estimate"}`) {
		t.Fatalf("metrics missing token usage")
	}
}

func TestApp_RateLimitsSearch(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.RateLimit = 1
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	h := a.Handler()
	body := []byte(`{"query":"go release"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first submit status %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body)))
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second submit status %d headers %v", rec.Code, rec.Header())
	}
}
