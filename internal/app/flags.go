package app

import (
	"flag"
	"time"
)

// FlagSet binds command-line flags to a Config. Only flags that were
// explicitly given are applied, so they override env and file values without
// their defaults clobbering them.
type FlagSet struct {
	fs   *flag.FlagSet
	vals Config

	searchProviders string
	scrapeProviders string

	apply map[string]func(dst *Config)
}

// NewFlagSet registers every configuration flag on fs.
func NewFlagSet(fs *flag.FlagSet) *FlagSet {
	f := &FlagSet{fs: fs, vals: Defaults(), apply: map[string]func(*Config){}}
	v := &f.vals

	f.str(&v.Addr, "addr", "HTTP listen address", func(d *Config) { d.Addr = v.Addr })
	f.num(&v.RateLimit, "rate.limit", "Searches allowed per client IP in each window (0 disables)", func(d *Config) { d.RateLimit = v.RateLimit })
	f.dur(&v.RateWindow, "rate.window", "Rate limit window", func(d *Config) { d.RateWindow = v.RateWindow })
	f.num(&v.Workers, "workers", "Number of pipeline workers", func(d *Config) { d.Workers = v.Workers })
	f.num(&v.QueueSize, "queue.size", "Maximum queued tasks before submissions are refused", func(d *Config) { d.QueueSize = v.QueueSize })
	f.dur(&v.TaskTimeout, "task.timeout", "Deadline for one task", func(d *Config) { d.TaskTimeout = v.TaskTimeout })
	f.dur(&v.TaskRetention, "task.retention", "How long finished tasks stay pollable", func(d *Config) { d.TaskRetention = v.TaskRetention })

	f.str(&v.RedisURL, "redis.url", "Redis URL for the result cache", func(d *Config) { d.RedisURL = v.RedisURL })
	f.str(&v.CacheDir, "cache.dir", "Directory for the on-disk result and page caches", func(d *Config) { d.CacheDir = v.CacheDir })
	f.dur(&v.CacheTTL, "cache.ttl", "Result cache TTL", func(d *Config) { d.CacheTTL = v.CacheTTL })
	f.dur(&v.PageCacheMaxAge, "cache.maxAge", "Purge cached pages older than this at startup (e.g. 168h); 0 disables", func(d *Config) { d.PageCacheMaxAge = v.PageCacheMaxAge })
	f.boolean(&v.CacheClear, "cache.clear", "Clear the cache directory before starting", func(d *Config) { d.CacheClear = v.CacheClear })
	f.boolean(&v.CacheStrictPerms, "cache.strictPerms", "Restrict cache permissions (0700 dirs, 0600 files)", func(d *Config) { d.CacheStrictPerms = v.CacheStrictPerms })

	fs.StringVar(&f.searchProviders, "search.providers", "", "Comma-separated search provider order")
	f.apply["search.providers"] = func(d *Config) { d.SearchProviders = SplitList(f.searchProviders) }
	fs.StringVar(&f.scrapeProviders, "scrape.providers", "", "Comma-separated scrape provider order")
	f.apply["scrape.providers"] = func(d *Config) { d.ScrapeProviders = SplitList(f.scrapeProviders) }
	f.str(&v.TavilyAPIKey, "tavily.key", "Tavily API key", func(d *Config) { d.TavilyAPIKey = v.TavilyAPIKey })
	f.str(&v.BraveAPIKey, "brave.key", "Brave Search API key", func(d *Config) { d.BraveAPIKey = v.BraveAPIKey })
	f.str(&v.SearxURL, "searx.url", "SearxNG base URL", func(d *Config) { d.SearxURL = v.SearxURL })
	f.str(&v.SearxKey, "searx.key", "SearxNG API key (optional)", func(d *Config) { d.SearxKey = v.SearxKey })
	f.str(&v.ScrapingBeeAPIKey, "scrapingbee.key", "ScrapingBee API key", func(d *Config) { d.ScrapingBeeAPIKey = v.ScrapingBeeAPIKey })
	f.str(&v.ZenRowsAPIKey, "zenrows.key", "ZenRows API key", func(d *Config) { d.ZenRowsAPIKey = v.ZenRowsAPIKey })
	f.str(&v.SearchFile, "search.file", "Path to JSON file for the offline file-based search provider", func(d *Config) { d.SearchFile = v.SearchFile })
	f.dur(&v.ProviderTimeout, "provider.timeout", "Timeout for one provider attempt", func(d *Config) { d.ProviderTimeout = v.ProviderTimeout })
	f.boolean(&v.SSLVerify, "ssl.verify", "Verify TLS certificates of providers", func(d *Config) { d.SSLVerify = v.SSLVerify })

	f.num(&v.MaxContentChars, "max.contentChars", "Per-result content budget in the formatted output", func(d *Config) { d.MaxContentChars = v.MaxContentChars })
	f.num(&v.PerDomainCap, "max.perDomain", "Maximum results per registrable domain (0 disables)", func(d *Config) { d.PerDomainCap = v.PerDomainCap })
	fs.Float64Var(&v.SimilarityThreshold, "similarity.threshold", v.SimilarityThreshold, "Cosine similarity above which results are duplicates")
	f.apply["similarity.threshold"] = func(d *Config) { d.SimilarityThreshold = v.SimilarityThreshold }
	f.num(&v.EnrichPages, "enrich.pages", "Fetch this many top result pages for full text (0 disables)", func(d *Config) { d.EnrichPages = v.EnrichPages })
	f.boolean(&v.RespectRobots, "robots.respect", "Skip enrichment of pages disallowed by robots.txt", func(d *Config) { d.RespectRobots = v.RespectRobots })
	f.boolean(&v.AllowPrivateHosts, "enrich.allowPrivate", "Allow enrichment fetches to loopback and private addresses", func(d *Config) { d.AllowPrivateHosts = v.AllowPrivateHosts })

	f.str(&v.EmbeddingBaseURL, "embedding.base", "OpenAI-compatible embeddings base URL", func(d *Config) { d.EmbeddingBaseURL = v.EmbeddingBaseURL })
	f.str(&v.EmbeddingModel, "embedding.model", "Embedding model name", func(d *Config) { d.EmbeddingModel = v.EmbeddingModel })
	f.str(&v.EmbeddingAPIKey, "embedding.key", "Embeddings API key", func(d *Config) { d.EmbeddingAPIKey = v.EmbeddingAPIKey })
	f.str(&v.JudgeBaseURL, "judge.base", "OpenAI-compatible chat base URL for the relevance judge", func(d *Config) { d.JudgeBaseURL = v.JudgeBaseURL })
	f.str(&v.JudgeModel, "judge.model", "Chat model that scores relevance and credibility (empty disables)", func(d *Config) { d.JudgeModel = v.JudgeModel })
	f.str(&v.JudgeAPIKey, "judge.key", "Judge API key", func(d *Config) { d.JudgeAPIKey = v.JudgeAPIKey })
	f.num(&v.EmbeddingDimensions, "embedding.dims", "Requested embedding dimensions (0 uses the model default)", func(d *Config) { d.EmbeddingDimensions = v.EmbeddingDimensions })

	f.str(&v.DatabaseURL, "db.url", "Postgres URL for the audit log (optional)", func(d *Config) { d.DatabaseURL = v.DatabaseURL })

	f.boolean(&v.Verbose, "v", "Verbose logging", func(d *Config) { d.Verbose = v.Verbose })
	f.boolean(&v.LogJSON, "log.json", "Log JSON lines instead of console output", func(d *Config) { d.LogJSON = v.LogJSON })
	return f
}

// Apply copies the flags set on the command line onto dst.
func (f *FlagSet) Apply(dst *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		if fn, ok := f.apply[fl.Name]; ok {
			fn(dst)
		}
	})
}

func (f *FlagSet) str(p *string, name, usage string, apply func(*Config)) {
	f.fs.StringVar(p, name, *p, usage)
	f.apply[name] = apply
}

func (f *FlagSet) num(p *int, name, usage string, apply func(*Config)) {
	f.fs.IntVar(p, name, *p, usage)
	f.apply[name] = apply
}

func (f *FlagSet) dur(p *time.Duration, name, usage string, apply func(*Config)) {
	f.fs.DurationVar(p, name, *p, usage)
	f.apply[name] = apply
}

func (f *FlagSet) boolean(p *bool, name, usage string, apply func(*Config)) {
	f.fs.BoolVar(p, name, *p, usage)
	f.apply[name] = apply
}

// Resolve builds the effective configuration: defaults, then the config
// file (when path is set), then environment, then explicit flags.
func Resolve(configPath string, flags *FlagSet) (Config, error) {
	cfg := Defaults()
	if configPath != "" {
		fc, err := LoadConfigFile(configPath)
		if err != nil {
			return cfg, err
		}
		ApplyFileConfig(&cfg, fc)
	}
	ApplyEnvOverrides(&cfg)
	if flags != nil {
		flags.Apply(&cfg)
	}
	return cfg, nil
}
