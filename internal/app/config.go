package app

import "time"

// Config holds runtime configuration for the service.
type Config struct {
	// HTTP surface
	Addr string
	// RateLimit caps POST /search per client IP in every RateWindow. Zero
	// disables limiting. Counters live in Redis when RedisURL is set.
	RateLimit  int
	RateWindow time.Duration

	// Dispatcher
	Workers       int
	QueueSize     int
	TaskTimeout   time.Duration
	TaskRetention time.Duration

	// Result cache. RedisURL wins over CacheDir; with neither the cache is
	// held in memory.
	RedisURL         string
	CacheDir         string
	CacheTTL         time.Duration
	CacheStrictPerms bool
	// PageCacheMaxAge purges cached pages older than this at startup. Zero
	// keeps them.
	PageCacheMaxAge  time.Duration
	// CacheClear empties CacheDir at startup.
	CacheClear       bool

	// Providers, in the order they are tried. Empty means the default order.
	SearchProviders   []string
	ScrapeProviders   []string
	TavilyAPIKey      string
	BraveAPIKey       string
	SearxURL          string
	SearxKey          string
	ScrapingBeeAPIKey string
	ZenRowsAPIKey     string
	SearchFile        string
	ProviderTimeout   time.Duration
	BreakerThreshold  int
	BreakerWindow     int
	BreakerDelay      time.Duration
	SSLVerify         bool

	// Processing
	MaxContentChars     int
	SimilarityThreshold float64
	PerDomainCap        int
	RankByTier          bool
	EnrichPages         int
	RespectRobots       bool
	AllowPrivateHosts   bool

	// Embeddings
	EmbeddingBaseURL    string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingDimensions int

	// Relevance and credibility judge. Empty JudgeModel disables it.
	JudgeBaseURL string
	JudgeModel   string
	JudgeAPIKey  string

	// Audit
	DatabaseURL string

	// Logging
	Verbose bool
	LogJSON bool
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Addr:                ":8000",
		RateLimit:           60,
		RateWindow:          time.Minute,
		Workers:             4,
		QueueSize:           256,
		TaskTimeout:         60 * time.Second,
		TaskRetention:       time.Hour,
		CacheTTL:            6 * time.Hour,
		ProviderTimeout:     15 * time.Second,
		BreakerThreshold:    5,
		BreakerWindow:       10,
		BreakerDelay:        30 * time.Second,
		SSLVerify:           true,
		MaxContentChars:     1500,
		SimilarityThreshold: 0.85,
		PerDomainCap:        3,
		RankByTier:          true,
		RespectRobots:       true,
	}
}
