package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags and env.
type FileConfig struct {
	Addr string `yaml:"addr" json:"addr"`

	RateLimit struct {
		Requests int           `yaml:"requests" json:"requests"`
		Window   time.Duration `yaml:"window" json:"window"`
	} `yaml:"rateLimit" json:"rateLimit"`

	Tasks struct {
		Workers   int           `yaml:"workers" json:"workers"`
		QueueSize int           `yaml:"queueSize" json:"queueSize"`
		Timeout   time.Duration `yaml:"timeout" json:"timeout"`
		Retention time.Duration `yaml:"retention" json:"retention"`
	} `yaml:"tasks" json:"tasks"`

	Cache struct {
		RedisURL    string        `yaml:"redisURL" json:"redisURL"`
		Dir         string        `yaml:"dir" json:"dir"`
		TTL         time.Duration `yaml:"ttl" json:"ttl"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
	} `yaml:"cache" json:"cache"`

	Providers struct {
		Search  []string      `yaml:"search" json:"search"`
		Scrape  []string      `yaml:"scrape" json:"scrape"`
		Timeout time.Duration `yaml:"timeout" json:"timeout"`
		// SSLVerify is a pointer so an explicit false can be told from unset.
		SSLVerify *bool `yaml:"sslVerify" json:"sslVerify"`
		Breaker   struct {
			Threshold int           `yaml:"threshold" json:"threshold"`
			Window    int           `yaml:"window" json:"window"`
			Delay     time.Duration `yaml:"delay" json:"delay"`
		} `yaml:"breaker" json:"breaker"`
	} `yaml:"providers" json:"providers"`

	Tavily struct {
		Key string `yaml:"key" json:"key"`
	} `yaml:"tavily" json:"tavily"`

	Brave struct {
		Key string `yaml:"key" json:"key"`
	} `yaml:"brave" json:"brave"`

	Searx struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
	} `yaml:"searx" json:"searx"`

	ScrapingBee struct {
		Key string `yaml:"key" json:"key"`
	} `yaml:"scrapingbee" json:"scrapingbee"`

	ZenRows struct {
		Key string `yaml:"key" json:"key"`
	} `yaml:"zenrows" json:"zenrows"`

	Search struct {
		File string `yaml:"file" json:"file"`
	} `yaml:"search" json:"search"`

	Max struct {
		ContentChars int `yaml:"contentChars" json:"contentChars"`
		PerDomain    int `yaml:"perDomain" json:"perDomain"`
	} `yaml:"max" json:"max"`

	SimilarityThreshold float64 `yaml:"similarityThreshold" json:"similarityThreshold"`
	RankByTier          *bool   `yaml:"rankByTier" json:"rankByTier"`
	EnrichPages         int     `yaml:"enrichPages" json:"enrichPages"`
	RespectRobots       *bool   `yaml:"respectRobots" json:"respectRobots"`
	AllowPrivateHosts   *bool   `yaml:"allowPrivateHosts" json:"allowPrivateHosts"`

	Embedding struct {
		BaseURL    string `yaml:"base" json:"base"`
		Model      string `yaml:"model" json:"model"`
		APIKey     string `yaml:"key" json:"key"`
		Dimensions int    `yaml:"dimensions" json:"dimensions"`
	} `yaml:"embedding" json:"embedding"`

	Judge struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
		APIKey  string `yaml:"key" json:"key"`
	} `yaml:"judge" json:"judge"`

	Database struct {
		URL string `yaml:"url" json:"url"`
	} `yaml:"database" json:"database"`

	Verbose bool `yaml:"verbose" json:"verbose"`
	LogJSON bool `yaml:"logJSON" json:"logJSON"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value set in fc onto cfg. It runs before
// env and flags, so it only ever replaces defaults.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	str := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, v time.Duration) {
		if v != 0 {
			*dst = v
		}
	}
	list := func(dst *[]string, v []string) {
		if len(v) > 0 {
			*dst = SplitList(strings.Join(v, ","))
		}
	}

	str(&cfg.Addr, fc.Addr)
	num(&cfg.RateLimit, fc.RateLimit.Requests)
	dur(&cfg.RateWindow, fc.RateLimit.Window)
	num(&cfg.Workers, fc.Tasks.Workers)
	num(&cfg.QueueSize, fc.Tasks.QueueSize)
	dur(&cfg.TaskTimeout, fc.Tasks.Timeout)
	dur(&cfg.TaskRetention, fc.Tasks.Retention)

	str(&cfg.RedisURL, fc.Cache.RedisURL)
	str(&cfg.CacheDir, fc.Cache.Dir)
	dur(&cfg.CacheTTL, fc.Cache.TTL)
	dur(&cfg.PageCacheMaxAge, fc.Cache.MaxAge)
	if fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}

	list(&cfg.SearchProviders, fc.Providers.Search)
	list(&cfg.ScrapeProviders, fc.Providers.Scrape)
	dur(&cfg.ProviderTimeout, fc.Providers.Timeout)
	if fc.Providers.SSLVerify != nil {
		cfg.SSLVerify = *fc.Providers.SSLVerify
	}
	num(&cfg.BreakerThreshold, fc.Providers.Breaker.Threshold)
	num(&cfg.BreakerWindow, fc.Providers.Breaker.Window)
	dur(&cfg.BreakerDelay, fc.Providers.Breaker.Delay)
	str(&cfg.TavilyAPIKey, fc.Tavily.Key)
	str(&cfg.BraveAPIKey, fc.Brave.Key)
	str(&cfg.SearxURL, fc.Searx.URL)
	str(&cfg.SearxKey, fc.Searx.Key)
	str(&cfg.ScrapingBeeAPIKey, fc.ScrapingBee.Key)
	str(&cfg.ZenRowsAPIKey, fc.ZenRows.Key)
	str(&cfg.SearchFile, fc.Search.File)

	num(&cfg.MaxContentChars, fc.Max.ContentChars)
	num(&cfg.PerDomainCap, fc.Max.PerDomain)
	if fc.SimilarityThreshold != 0 {
		cfg.SimilarityThreshold = fc.SimilarityThreshold
	}
	if fc.RankByTier != nil {
		cfg.RankByTier = *fc.RankByTier
	}
	num(&cfg.EnrichPages, fc.EnrichPages)
	if fc.RespectRobots != nil {
		cfg.RespectRobots = *fc.RespectRobots
	}
	if fc.AllowPrivateHosts != nil {
		cfg.AllowPrivateHosts = *fc.AllowPrivateHosts
	}

	str(&cfg.EmbeddingBaseURL, fc.Embedding.BaseURL)
	str(&cfg.EmbeddingModel, fc.Embedding.Model)
	str(&cfg.EmbeddingAPIKey, fc.Embedding.APIKey)
	num(&cfg.EmbeddingDimensions, fc.Embedding.Dimensions)

	str(&cfg.JudgeBaseURL, fc.Judge.BaseURL)
	str(&cfg.JudgeModel, fc.Judge.Model)
	str(&cfg.JudgeAPIKey, fc.Judge.APIKey)

	str(&cfg.DatabaseURL, fc.Database.URL)

	if fc.Verbose {
		cfg.Verbose = true
	}
	if fc.LogJSON {
		cfg.LogJSON = true
	}
}

// ValidateConfig rejects settings the service cannot run with.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return errors.New("config: addr is required")
	}
	if cfg.RateLimit < 0 || cfg.Workers < 0 || cfg.QueueSize < 0 || cfg.MaxContentChars < 0 || cfg.PerDomainCap < 0 ||
		cfg.EnrichPages < 0 || cfg.EmbeddingDimensions < 0 || cfg.BreakerThreshold < 0 || cfg.BreakerWindow < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.EnrichPages > maxEnrichPages {
		return fmt.Errorf("config: enrich pages must be at most %d", maxEnrichPages)
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		return fmt.Errorf("config: similarity threshold %v must be in (0, 1]", cfg.SimilarityThreshold)
	}
	if cfg.RateWindow < 0 || cfg.CacheTTL < 0 || cfg.ProviderTimeout < 0 || cfg.TaskTimeout < 0 || cfg.PageCacheMaxAge < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	for _, name := range cfg.SearchProviders {
		if !isKnownProvider(name) {
			return fmt.Errorf("config: unknown search provider %q", name)
		}
	}
	for _, name := range cfg.ScrapeProviders {
		if !isKnownProvider(name) {
			return fmt.Errorf("config: unknown scrape provider %q", name)
		}
		if name == "brave" || name == "searxng" || name == "file" {
			return fmt.Errorf("config: provider %q cannot scrape pages", name)
		}
	}
	return nil
}
