// Package metrics exposes Prometheus collectors for the service on a
// dedicated registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "serpgate"

// Collector owns every metric the service reports.
type Collector struct {
	registry *prometheus.Registry

	ScrapeRequests *prometheus.CounterVec
	ScrapeDuration *prometheus.HistogramVec
	Tasks          *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
	TokenUsage     *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, so several collectors
// can coexist in one process.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.ScrapeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_requests_total",
			Help:      "Provider attempts by outcome",
		},
		[]string{"provider", "status"},
	)
	c.ScrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Provider attempt duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"provider"},
	)
	c.Tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks reaching a terminal state",
		},
		[]string{"status"},
	)
	c.CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome",
		},
		[]string{"result"},
	)
	c.QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		},
	)
	c.TokenUsage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_usage_total",
			Help:      "Estimated or reported token usage",
		},
		[]string{"model", "context"},
	)
	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	c.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	c.registry.MustRegister(
		c.ScrapeRequests,
		c.ScrapeDuration,
		c.Tasks,
		c.CacheLookups,
		c.QueueDepth,
		c.TokenUsage,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveScrape records one provider attempt.
func (c *Collector) ObserveScrape(provider, status string, d time.Duration) {
	c.ScrapeRequests.WithLabelValues(provider, status).Inc()
	c.ScrapeDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveTask counts a task that reached status.
func (c *Collector) ObserveTask(status string) {
	c.Tasks.WithLabelValues(status).Inc()
}

// ObserveCacheLookup counts one result cache lookup.
func (c *Collector) ObserveCacheLookup(hit bool) {
	if hit {
		c.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	c.CacheLookups.WithLabelValues("miss").Inc()
}

// SetQueueDepth reports the number of queued tasks.
func (c *Collector) SetQueueDepth(n int) {
	c.QueueDepth.Set(float64(n))
}

// ObserveTokens adds n tokens spent by model for purpose. Non-positive counts
// are ignored.
func (c *Collector) ObserveTokens(model, purpose string, n int) {
	if n <= 0 {
		return
	}
	if model == "" {
		model = "unknown"
	}
	c.TokenUsage.WithLabelValues(model, purpose).Add(float64(n))
}

// Middleware returns gin middleware that collects HTTP metrics.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := ctx.Request.Method
		c.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return func(ctx *gin.Context) {
		h.ServeHTTP(ctx.Writer, ctx.Request)
	}
}
