package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hyperifyio/serpgate/internal/metrics"
	"github.com/hyperifyio/serpgate/internal/model"
	"github.com/hyperifyio/serpgate/internal/ratelimit"
	"github.com/hyperifyio/serpgate/internal/task"
)

type fakeDispatcher struct {
	submitted []model.SearchRequest
	submitErr error
	tasks     map[string]task.Task
}

func (f *fakeDispatcher) Submit(_ context.Context, req model.SearchRequest) (task.Task, error) {
	if f.submitErr != nil {
		return task.Task{}, f.submitErr
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return task.Task{}, err
	}
	f.submitted = append(f.submitted, req)
	return task.Task{ID: "t-1", Status: task.StatusPending}, nil
}

func (f *fakeDispatcher) Poll(id string) (task.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSearch_Accepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fd := &fakeDispatcher{}
	r := (&Server{Dispatcher: fd}).Router()

	w := do(t, r, http.MethodPost, "/search", `{"query":"golang generics","mode":"search","limit":5}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp submitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TaskID != "t-1" || resp.Status != task.StatusPending {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(fd.submitted) != 1 || fd.submitted[0].Limit != 5 {
		t.Fatalf("unexpected submission: %+v", fd.submitted)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestSearch_ValidationError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := (&Server{Dispatcher: &fakeDispatcher{}}).Router()

	w := do(t, r, http.MethodPost, "/search", `{"query":"x","limit":99}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var resp errorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Field != "limit" {
		t.Fatalf("expected field limit, got %+v", resp)
	}

	w = do(t, r, http.MethodPost, "/search", `{"query":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", w.Code)
	}
}

func TestSearch_ExplicitZeroLimitRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fd := &fakeDispatcher{}
	r := (&Server{Dispatcher: fd}).Router()

	for _, body := range []string{`{"query":"x","limit":0}`, `{"query":"x","limit":-3}`} {
		w := do(t, r, http.MethodPost, "/search", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", body, w.Code)
		}
		var resp errorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Field != "limit" {
			t.Fatalf("%s: expected field limit, got %+v", body, resp)
		}
	}
	if len(fd.submitted) != 0 {
		t.Fatalf("rejected requests reached the dispatcher: %+v", fd.submitted)
	}

	w := do(t, r, http.MethodPost, "/search", `{"query":"x"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("omitted limit status = %d", w.Code)
	}
	if len(fd.submitted) != 1 || fd.submitted[0].Limit != model.DefaultLimit {
		t.Fatalf("omitted limit should default: %+v", fd.submitted)
	}
}

func TestSearch_QueueFull(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := (&Server{Dispatcher: &fakeDispatcher{submitErr: task.ErrQueueFull}}).Router()
	w := do(t, r, http.MethodPost, "/search", `{"query":"x"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPoll(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fd := &fakeDispatcher{tasks: map[string]task.Task{
		"done": {ID: "done", Status: task.StatusCompleted, Result: &model.Result{Query: "q", OrganicResults: []model.OrganicResult{}, Cached: true}},
		"bad":  {ID: "bad", Status: task.StatusFailed, Error: "all providers exhausted"},
	}}
	r := (&Server{Dispatcher: fd}).Router()

	w := do(t, r, http.MethodGet, "/tasks/done", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "completed" || got["result"].(map[string]any)["cached"] != true {
		t.Fatalf("unexpected body: %v", got)
	}
	if _, ok := got["error"]; ok {
		t.Fatalf("completed task must not carry an error")
	}

	w = do(t, r, http.MethodGet, "/tasks/bad", "")
	if !strings.Contains(w.Body.String(), `"error":"all providers exhausted"`) || strings.Contains(w.Body.String(), `"result"`) {
		t.Fatalf("unexpected failed body: %s", w.Body.String())
	}

	if w := do(t, r, http.MethodGet, "/tasks/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	m.ObserveScrape("tavily", "success", 0)
	r := (&Server{Dispatcher: &fakeDispatcher{}, Metrics: m, Version: "test"}).Router()

	if w := do(t, r, http.MethodGet, "/health", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
	w := do(t, r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "serpgate_scrape_requests_total") {
		t.Fatalf("metrics: %d", w.Code)
	}
}

func TestSearch_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fd := &fakeDispatcher{}
	r := (&Server{Dispatcher: fd, Limiter: ratelimit.NewWindow(2, time.Minute)}).Router()

	for i := 0; i < 2; i++ {
		if w := do(t, r, http.MethodPost, "/search", `{"query":"x"}`); w.Code != http.StatusAccepted {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
	}
	w := do(t, r, http.MethodPost, "/search", `{"query":"x"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("missing rate limit headers: %v", w.Header())
	}
	if len(fd.submitted) != 2 {
		t.Fatalf("limited request reached the dispatcher")
	}
	if w := do(t, r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health should not be limited: %d", w.Code)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestSearch_LimiterErrorLetsRequestThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := (&Server{Dispatcher: &fakeDispatcher{}, Limiter: brokenLimiter{}}).Router()
	if w := do(t, r, http.MethodPost, "/search", `{"query":"x"}`); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
}
