package app

import (
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpgate/internal/fetch"
	"github.com/hyperifyio/serpgate/internal/model"
	"github.com/hyperifyio/serpgate/internal/pipeline"
	"github.com/hyperifyio/serpgate/internal/scrape"
)

const maxEnrichPages = pipeline.MaxEnrichPages

var (
	defaultSearchOrder = []string{"tavily", "brave", "searxng", "scrapingbee", "zenrows", "direct"}
	defaultScrapeOrder = []string{"tavily", "scrapingbee", "zenrows", "direct"}
	knownProviders     = []string{"tavily", "brave", "searxng", "scrapingbee", "zenrows", "direct", "file"}
)

func isKnownProvider(name string) bool {
	return slices.Contains(knownProviders, name)
}

// providerOrder returns the configured order for mode, or the default. An
// offline results file goes first when the search order is not configured.
func providerOrder(cfg Config, mode model.Mode) []string {
	if mode == model.ModeScrape {
		if len(cfg.ScrapeProviders) > 0 {
			return cfg.ScrapeProviders
		}
		return defaultScrapeOrder
	}
	if len(cfg.SearchProviders) > 0 {
		return cfg.SearchProviders
	}
	if cfg.SearchFile != "" {
		return append([]string{"file"}, defaultSearchOrder...)
	}
	return defaultSearchOrder
}

// buildProviders instantiates the providers for mode in order, skipping
// those without credentials.
func buildProviders(cfg Config, mode model.Mode, hc *http.Client, fc *fetch.Client) []scrape.Provider {
	// proxy APIs carry their key in the query string, so they never use the
	// on-disk page cache
	proxyClient := &fetch.Client{
		HTTPClient:        hc,
		MaxAttempts:       1,
		PerRequestTimeout: cfg.ProviderTimeout,
		AnyContentType:    true,
	}
	var out []scrape.Provider
	for _, name := range providerOrder(cfg, mode) {
		var p scrape.Provider
		switch name {
		case "tavily":
			if cfg.TavilyAPIKey != "" {
				p = &scrape.Tavily{APIKey: cfg.TavilyAPIKey, HTTPClient: hc}
			}
		case "brave":
			if cfg.BraveAPIKey != "" {
				p = &scrape.Brave{APIKey: cfg.BraveAPIKey, HTTPClient: hc}
			}
		case "searxng":
			if cfg.SearxURL != "" {
				p = &scrape.SearxNG{BaseURL: cfg.SearxURL, APIKey: cfg.SearxKey, HTTPClient: hc}
			}
		case "scrapingbee":
			if cfg.ScrapingBeeAPIKey != "" {
				p = &scrape.ScrapingBee{APIKey: cfg.ScrapingBeeAPIKey, Client: proxyClient, RenderJS: mode == model.ModeScrape}
			}
		case "zenrows":
			if cfg.ZenRowsAPIKey != "" {
				p = &scrape.ZenRows{APIKey: cfg.ZenRowsAPIKey, Client: proxyClient, RenderJS: mode == model.ModeScrape, Antibot: true}
			}
		case "direct":
			p = &scrape.Direct{Client: fc}
		case "file":
			if cfg.SearchFile != "" {
				p = &scrape.FileProvider{Path: cfg.SearchFile}
			}
		}
		if p == nil {
			log.Debug().Str("provider", name).Str("mode", string(mode)).Msg("provider not configured; skipped")
			continue
		}
		out = append(out, p)
	}
	return out
}
