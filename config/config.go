package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Browser BrowserConfig
	Scraper ScraperConfig
	Site    SiteConfig
	Cache   CacheConfig
	Log     LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 3000
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the per-request Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is passed to Chromium and to the http session's transport.
	Proxy string

	// Stealth injects go-rod/stealth before the first navigation.
	Stealth bool // default: true

	// MaxSessions bounds concurrently running sessions. 0 means unlimited.
	MaxSessions int // default: 4
}

// ScraperConfig controls the pagination loop.
type ScraperConfig struct {
	// RequestTimeout is the hard deadline for one whole scrape.
	RequestTimeout time.Duration // default: 5m

	// NavigationTimeout bounds the initial load and each next-page navigation.
	NavigationTimeout time.Duration // default: 30s

	// SettleTimeout bounds the wait for lazy-loaded cards after one scroll step.
	SettleTimeout time.Duration // default: 1.5s

	// SettleQuiet is how long the card count must stay unchanged before
	// a scroll step counts as settled. Must not exceed SettleTimeout.
	SettleQuiet time.Duration // default: 500ms

	// ScrollSteps is the number of scroll steps per results page.
	ScrollSteps int // default: 3

	// ScrollDistance is the pixel distance of one scroll step.
	ScrollDistance int // default: 500

	// MaxPages bounds the number of result pages visited per request.
	MaxPages int // default: 25

	// MaxResults truncates the result once reached. 0 means unlimited.
	MaxResults int // default: 0

	// PageInterval is the minimum gap between two page transitions. 0 disables pacing.
	PageInterval time.Duration // default: 0

	// FetchMode selects the session backend: "browser" or "http".
	FetchMode string // default: "browser"

	// BlockedResourceTypes lists resource types the browser never loads.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: true
}

// SiteConfig describes the listing site's URL and DOM structure.
type SiteConfig struct {
	// BaseURL is the site root; the location segment is appended to it.
	BaseURL string

	// ContainerID is the id of the scrollable results list.
	ContainerID string

	CardSelector     string
	PriceSelector    string
	AddressSelector  string
	NextPageSelector string
}

// CacheConfig controls the scrape result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int // default: 200
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Default selectors for the listing site's search results page.
const (
	DefaultBaseURL          = "https://www.zillow.com"
	DefaultContainerID      = "search-page-list-container"
	DefaultCardSelector     = ".StyledCard-c11n-8-84-3__sc-rmiu6p-0.jZuLiI.StyledPropertyCardBody-c11n-8-84-3__sc-1p5uux3-0.gHYrNO.PropertyCardWrapper__StyledPropertyCardBody-srp__sc-16e8gqd-4.gDHJqa"
	DefaultPriceSelector    = ".PropertyCardWrapper__StyledPriceLine-srp__sc-16e8gqd-1.iMKTKr"
	DefaultAddressSelector  = `[data-test="property-card-addr"]`
	DefaultNextPageSelector = `[title="Next page"]`
)

// Load reads configuration from the environment with sane defaults.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	return &Config{
		Server: ServerConfig{
			Host: envOr("HOMESCOUT_HOST", "0.0.0.0"),
			Port: envIntOr("HOMESCOUT_PORT", 3000),
			Mode: envOr("HOMESCOUT_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:    envBoolOr("HOMESCOUT_HEADLESS", true),
			NoSandbox:   envBoolOr("HOMESCOUT_NO_SANDBOX", false),
			BrowserBin:  os.Getenv("HOMESCOUT_BROWSER_BIN"),
			Proxy:       os.Getenv("HOMESCOUT_PROXY"),
			Stealth:     envBoolOr("HOMESCOUT_STEALTH", true),
			MaxSessions: envIntOr("HOMESCOUT_MAX_SESSIONS", 4),
		},
		Scraper: ScraperConfig{
			RequestTimeout:    envDurationOr("HOMESCOUT_REQUEST_TIMEOUT", 5*time.Minute),
			NavigationTimeout: envDurationOr("HOMESCOUT_NAV_TIMEOUT", 30*time.Second),
			SettleTimeout:     envDurationOr("HOMESCOUT_SETTLE_TIMEOUT", 1500*time.Millisecond),
			SettleQuiet:       envDurationOr("HOMESCOUT_SETTLE_QUIET", 500*time.Millisecond),
			ScrollSteps:       envIntOr("HOMESCOUT_SCROLL_STEPS", 3),
			ScrollDistance:    envIntOr("HOMESCOUT_SCROLL_DISTANCE", 500),
			MaxPages:          envIntOr("HOMESCOUT_MAX_PAGES", 25),
			MaxResults:        envIntOr("HOMESCOUT_MAX_RESULTS", 0),
			PageInterval:      envDurationOr("HOMESCOUT_PAGE_INTERVAL", 0),
			FetchMode:         envOr("HOMESCOUT_FETCH_MODE", "browser"),
			BlockedResourceTypes: envSliceOr("HOMESCOUT_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("HOMESCOUT_BLOCK_ADS", true),
		},
		Site: SiteConfig{
			BaseURL:          strings.TrimRight(envOr("HOMESCOUT_BASE_URL", DefaultBaseURL), "/"),
			ContainerID:      envOr("HOMESCOUT_CONTAINER_ID", DefaultContainerID),
			CardSelector:     envOr("HOMESCOUT_CARD_SELECTOR", DefaultCardSelector),
			PriceSelector:    envOr("HOMESCOUT_PRICE_SELECTOR", DefaultPriceSelector),
			AddressSelector:  envOr("HOMESCOUT_ADDRESS_SELECTOR", DefaultAddressSelector),
			NextPageSelector: envOr("HOMESCOUT_NEXT_SELECTOR", DefaultNextPageSelector),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("HOMESCOUT_CACHE_MAX_ENTRIES", 200),
		},
		Log: LogConfig{
			Level:  envOr("HOMESCOUT_LOG_LEVEL", "info"),
			Format: envOr("HOMESCOUT_LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects configurations the scraper cannot run with.
// Every selector must compile as CSS.
func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return errors.New("config: base URL is empty")
	}
	if c.Site.ContainerID == "" {
		return errors.New("config: container id is empty")
	}
	selectors := map[string]string{
		"card":      c.Site.CardSelector,
		"price":     c.Site.PriceSelector,
		"address":   c.Site.AddressSelector,
		"next page": c.Site.NextPageSelector,
	}
	for name, sel := range selectors {
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("config: invalid %s selector %q: %w", name, sel, err)
		}
	}
	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("config: max pages must be at least 1, got %d", c.Scraper.MaxPages)
	}
	if c.Scraper.ScrollSteps < 0 || c.Scraper.MaxResults < 0 || c.Browser.MaxSessions < 0 {
		return errors.New("config: scroll steps, max results and max sessions must not be negative")
	}
	if c.Scraper.SettleQuiet <= 0 || c.Scraper.SettleQuiet > c.Scraper.SettleTimeout {
		return fmt.Errorf("config: settle quiet window must be in (0, %s], got %s",
			c.Scraper.SettleTimeout, c.Scraper.SettleQuiet)
	}
	switch c.Scraper.FetchMode {
	case "browser", "http":
	default:
		return fmt.Errorf("config: unknown fetch mode %q", c.Scraper.FetchMode)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
