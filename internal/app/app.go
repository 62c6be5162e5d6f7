package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpgate/internal/api"
	"github.com/hyperifyio/serpgate/internal/audit"
	"github.com/hyperifyio/serpgate/internal/cache"
	"github.com/hyperifyio/serpgate/internal/credibility"
	"github.com/hyperifyio/serpgate/internal/dedupe"
	"github.com/hyperifyio/serpgate/internal/embed"
	"github.com/hyperifyio/serpgate/internal/extract"
	"github.com/hyperifyio/serpgate/internal/fetch"
	"github.com/hyperifyio/serpgate/internal/format"
	"github.com/hyperifyio/serpgate/internal/judge"
	"github.com/hyperifyio/serpgate/internal/llm"
	"github.com/hyperifyio/serpgate/internal/metrics"
	"github.com/hyperifyio/serpgate/internal/model"
	"github.com/hyperifyio/serpgate/internal/pipeline"
	"github.com/hyperifyio/serpgate/internal/ratelimit"
	"github.com/hyperifyio/serpgate/internal/robots"
	"github.com/hyperifyio/serpgate/internal/scrape"
	selecter "github.com/hyperifyio/serpgate/internal/select"
	"github.com/hyperifyio/serpgate/internal/task"
)

// App wires the pipeline, the dispatcher and the HTTP surface.
type App struct {
	cfg Config

	Metrics    *metrics.Collector
	Pipeline   *pipeline.Pipeline
	Cache      *cache.Gateway
	Dispatcher *task.Dispatcher

	server  *http.Server
	redis   goredis.UniversalClient
	closers []func() error
}

// New builds every component from cfg. Optional backends (Redis, Postgres,
// the embedding API) that cannot be reached are logged and degraded, except
// for a malformed connection string, which is an error.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, Metrics: metrics.New()}

	hc := newHighThroughputHTTPClient(cfg.SSLVerify)
	p, err := a.buildPipeline(ctx, hc)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Pipeline = p

	store, err := a.resultStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cache = &cache.Gateway{Store: store, TTL: cfg.CacheTTL, OnLookup: a.Metrics.ObserveCacheLookup}

	a.Dispatcher = task.NewDispatcher(task.NewStore(), a.Pipeline, a.Cache, task.Options{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		TaskTimeout: cfg.TaskTimeout,
		Retention:   cfg.TaskRetention,
		Observer:    a.Metrics,
	})

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &api.Server{Dispatcher: a.Dispatcher, Metrics: a.Metrics, Limiter: a.limiter(), Version: BuildVersion}
	a.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return a, nil
}

// NewPipeline builds only the processing pipeline, for one-shot tools. The
// returned close func releases any backend connections.
func NewPipeline(ctx context.Context, cfg Config) (*pipeline.Pipeline, func(), error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}
	a := &App{cfg: cfg, Metrics: metrics.New()}
	p, err := a.buildPipeline(ctx, newHighThroughputHTTPClient(cfg.SSLVerify))
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return p, a.Close, nil
}

func (a *App) buildPipeline(ctx context.Context, hc *http.Client) (*pipeline.Pipeline, error) {
	cfg := a.cfg

	var pageCache *cache.HTTPCache
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				return nil, fmt.Errorf("clear cache: %w", err)
			}
			log.Info().Str("dir", cfg.CacheDir).Msg("cache cleared")
		}
		pageCache = &cache.HTTPCache{Dir: filepath.Join(cfg.CacheDir, "http"), StrictPerms: cfg.CacheStrictPerms}
		if n, err := cache.PurgeHTTPCacheByAge(pageCache.Dir, cfg.PageCacheMaxAge); err == nil && n > 0 {
			log.Info().Int("removed", n).Msg("purged stale cached pages")
		}
	}
	fc := &fetch.Client{
		HTTPClient:        hc,
		MaxAttempts:       2,
		PerRequestTimeout: cfg.ProviderTimeout,
		Cache:             pageCache,
		MaxConcurrent:     16,
	}

	bo := scrape.BreakerOptions{Threshold: uint(cfg.BreakerThreshold), Window: uint(cfg.BreakerWindow), Delay: cfg.BreakerDelay}
	router := &scrape.Router{
		Search: scrape.NewChain(buildProviders(cfg, model.ModeSearch, hc, fc), cfg.ProviderTimeout, a.Metrics, bo),
		Scrape: scrape.NewChain(buildProviders(cfg, model.ModeScrape, hc, fc), cfg.ProviderTimeout, a.Metrics, bo),
	}
	log.Info().Strs("search", router.Search.Names()).Strs("scrape", router.Scrape.Names()).Msg("providers configured")

	parser := &extract.Parser{}
	p := &pipeline.Pipeline{
		Fetcher:   router,
		Parser:    parser,
		Dedupe:    &dedupe.Deduplicator{Threshold: cfg.SimilarityThreshold},
		Scorer:    credibility.NewScorer(nil),
		Select:    selecter.Options{PerDomain: cfg.PerDomainCap, RankByTier: cfg.RankByTier},
		Formatter: &format.Formatter{MaxContentChars: cfg.MaxContentChars},
	}
	if cfg.EnrichPages > 0 {
		e := &pipeline.Enricher{
			Client: &fetch.Client{
				HTTPClient:        hc,
				MaxAttempts:       2,
				PerRequestTimeout: cfg.ProviderTimeout,
				Cache:             pageCache,
				MaxConcurrent:     16,
				DenyPrivateHosts:  !cfg.AllowPrivateHosts,
			},
			Parser:            parser,
			Pages:             cfg.EnrichPages,
			AllowPrivateHosts: cfg.AllowPrivateHosts,
		}
		if cfg.RespectRobots {
			e.Robots = &robots.Checker{Client: &fetch.Client{
				HTTPClient:        hc,
				MaxAttempts:       1,
				PerRequestTimeout: 5 * time.Second,
				Cache:             pageCache,
				AnyContentType:    true,
			}, AllowPrivateHosts: cfg.AllowPrivateHosts}
		}
		p.Enricher = e
	}
	if cfg.EmbeddingModel != "" {
		client := llm.NewOpenAIProvider(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, hc)
		p.Embedder = &embed.Generator{Load: embed.OpenAILoader(client, cfg.EmbeddingModel, cfg.EmbeddingDimensions)}
		p.EmbeddingModel = cfg.EmbeddingModel
	}
	if cfg.JudgeModel != "" {
		p.Judge = &judge.Judge{
			Client:  llm.NewOpenAIProvider(cfg.JudgeBaseURL, cfg.JudgeAPIKey, hc),
			Model:   cfg.JudgeModel,
			OnUsage: a.Metrics.ObserveTokens,
		}
	}
	p.Tokens = a.Metrics
	if cfg.DatabaseURL != "" {
		db, err := audit.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("audit database unavailable; results will not be recorded")
		} else {
			a.closers = append(a.closers, db.Close)
			rec := audit.NewPostgresRecorder(db)
			if err := rec.EnsureSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("audit schema setup failed")
			}
			p.Audit = rec
		}
	}
	return p, nil
}

// limiter shares the result cache's Redis when there is one, so replicas
// draw from one budget.
func (a *App) limiter() api.Limiter {
	cfg := a.cfg
	if cfg.RateLimit <= 0 {
		return nil
	}
	log.Info().Int("requests", cfg.RateLimit).Dur("window", cfg.RateWindow).Bool("shared", a.redis != nil).Msg("rate limit enabled")
	if a.redis != nil {
		return ratelimit.NewRedis(a.redis, cfg.RateLimit, cfg.RateWindow)
	}
	return ratelimit.NewWindow(cfg.RateLimit, cfg.RateWindow)
}

func (a *App) resultStore(ctx context.Context) (cache.Store, error) {
	cfg := a.cfg
	switch {
	case cfg.RedisURL != "":
		client, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.redis = client
		store := cache.NewRedisStore(client)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := store.Ping(pctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable; cache lookups will miss until it recovers")
		}
		return store, nil
	case cfg.CacheDir != "":
		dir := filepath.Join(cfg.CacheDir, "results")
		if n, err := cache.PurgeExpiredResults(dir); err == nil && n > 0 {
			log.Info().Int("removed", n).Msg("purged expired cache entries")
		}
		return &cache.FileStore{Dir: dir, StrictPerms: cfg.CacheStrictPerms}, nil
	default:
		return cache.NewMemoryStore(), nil
	}
}

// Run serves HTTP and runs the workers until ctx is done, then shuts down
// gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workersDone := make(chan error, 1)
	go func() { workersDone <- a.Dispatcher.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.Addr).Str("version", BuildVersion).Msg("listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown: %w", err)
	}
	cancel()
	if err := <-workersDone; err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Debug().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
