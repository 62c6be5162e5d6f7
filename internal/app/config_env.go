package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. Env takes precedence over a config file; flags are applied after.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	setString(&cfg.Addr, "ADDR")
	setInt(&cfg.RateLimit, "RATE_LIMIT")
	setDuration(&cfg.RateWindow, "RATE_WINDOW")
	setInt(&cfg.Workers, "WORKERS")
	setInt(&cfg.QueueSize, "QUEUE_SIZE")
	setDuration(&cfg.TaskTimeout, "TASK_TIMEOUT")
	setDuration(&cfg.TaskRetention, "TASK_RETENTION")

	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.CacheDir, "CACHE_DIR")
	setDuration(&cfg.CacheTTL, "CACHE_TTL")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setDuration(&cfg.PageCacheMaxAge, "CACHE_MAX_AGE")

	setList(&cfg.SearchProviders, "SEARCH_PROVIDERS")
	setList(&cfg.ScrapeProviders, "SCRAPE_PROVIDERS")
	setString(&cfg.TavilyAPIKey, "TAVILY_API_KEY")
	setString(&cfg.BraveAPIKey, "BRAVE_API_KEY")
	// Support both SEARX_URL and SEARXNG_URL; SEARX_URL wins
	setString(&cfg.SearxURL, "SEARXNG_URL")
	setString(&cfg.SearxURL, "SEARX_URL")
	setString(&cfg.SearxKey, "SEARXNG_KEY")
	setString(&cfg.SearxKey, "SEARX_KEY")
	setString(&cfg.ScrapingBeeAPIKey, "SCRAPINGBEE_API_KEY")
	setString(&cfg.ZenRowsAPIKey, "ZENROWS_API_KEY")
	setString(&cfg.SearchFile, "SEARCH_FILE")
	setDuration(&cfg.ProviderTimeout, "PROVIDER_TIMEOUT")
	setInt(&cfg.BreakerThreshold, "BREAKER_THRESHOLD")
	setInt(&cfg.BreakerWindow, "BREAKER_WINDOW")
	setDuration(&cfg.BreakerDelay, "BREAKER_DELAY")
	setBool(&cfg.SSLVerify, "SSL_VERIFY")

	setInt(&cfg.MaxContentChars, "MAX_CONTENT_CHARS")
	if s := strings.TrimSpace(os.Getenv("SIMILARITY_THRESHOLD")); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			cfg.SimilarityThreshold = f
		}
	}
	setInt(&cfg.PerDomainCap, "PER_DOMAIN_CAP")
	setBool(&cfg.RankByTier, "RANK_BY_TIER")
	setInt(&cfg.EnrichPages, "ENRICH_PAGES")
	setBool(&cfg.RespectRobots, "RESPECT_ROBOTS")
	setBool(&cfg.AllowPrivateHosts, "ALLOW_PRIVATE_HOSTS")

	setString(&cfg.EmbeddingBaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	setString(&cfg.JudgeBaseURL, "JUDGE_BASE_URL")
	setString(&cfg.JudgeModel, "JUDGE_MODEL")
	setString(&cfg.JudgeAPIKey, "JUDGE_API_KEY")
	setString(&cfg.EmbeddingAPIKey, "EMBEDDING_API_KEY")
	setInt(&cfg.EmbeddingDimensions, "EMBEDDING_DIMENSIONS")

	setString(&cfg.DatabaseURL, "DATABASE_URL")

	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.LogJSON, "LOG_JSON")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			*dst = d
		}
	}
}

// setBool overrides when env is present and truthy or falsey.
func setBool(dst *bool, key string) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func setList(dst *[]string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = SplitList(v)
	}
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.ToLower(strings.TrimSpace(p)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
