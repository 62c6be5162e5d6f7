package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveScrape(t *testing.T) {
	c := New()
	c.ObserveScrape("tavily", "success", 120*time.Millisecond)
	c.ObserveScrape("tavily", "error", time.Second)
	c.ObserveScrape("tavily", "success", 80*time.Millisecond)

	if got := testutil.ToFloat64(c.ScrapeRequests.WithLabelValues("tavily", "success")); got != 2 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(c.ScrapeRequests.WithLabelValues("tavily", "error")); got != 1 {
		t.Fatalf("error count = %v", got)
	}
	if got := testutil.CollectAndCount(c.ScrapeDuration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveCacheLookup(true)
	if got := testutil.ToFloat64(b.CacheLookups.WithLabelValues("hit")); got != 0 {
		t.Fatalf("registries leaked: %v", got)
	}
}

func TestHandlerExposesScrapeMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New()
	r := gin.New()
	r.Use(c.Middleware())
	r.GET("/metrics", c.Handler())
	c.ObserveScrape("brave", "exception", time.Second)
	c.ObserveTask("completed")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`serpgate_scrape_requests_total{provider="brave",status="exception"} 1`,
		`serpgate_scrape_duration_seconds_count{provider="brave"} 1`,
		`serpgate_tasks_total{status="completed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
}

func TestObserveTokens(t *testing.T) {
	c := New()
	c.ObserveTokens("judge-small", "judge_relevance", 42)
	c.ObserveTokens("judge-small", "judge_relevance", 8)
	c.ObserveTokens("", "formatted_output", 10)
	c.ObserveTokens("judge-small", "judge_relevance", 0)

	if got := testutil.ToFloat64(c.TokenUsage.WithLabelValues("judge-small", "judge_relevance")); got != 50 {
		t.Fatalf("judge tokens = %v", got)
	}
	if got := testutil.ToFloat64(c.TokenUsage.WithLabelValues("unknown", "formatted_output")); got != 10 {
		t.Fatalf("unlabelled model tokens = %v", got)
	}
}
