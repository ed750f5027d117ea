package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Site    SiteConfig
	Browser BrowserConfig
	Harvest HarvestConfig
	Backoff BackoffConfig
	Server  ServerConfig
	Log     LogConfig
}

// SiteConfig identifies the target portal.
type SiteConfig struct {
	// BaseURL is the site root, without trailing slash.
	BaseURL string // default: "https://poit.bolagsverket.se"

	// AppPath is the entry application path under BaseURL.
	AppPath string // default: "/poit-app/"
}

// EntryURL is the session bootstrap URL.
func (s SiteConfig) EntryURL() string { return s.BaseURL + s.AppPath }

// RecordURL builds the page URL for a normalized record identifier.
func (s SiteConfig) RecordURL(normalizedID string) string {
	return s.BaseURL + s.AppPath + "kungorelse/" + normalizedID
}

// BrowserConfig controls how the browser context is obtained.
type BrowserConfig struct {
	// Visible shows the browser window. A visible window lets a human
	// clear a CAPTCHA during backoff.
	Visible bool // default: false

	// AttachURL, if set, attaches to an already-running browser over CDP
	// instead of launching a managed one.
	AttachURL string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// Bin overrides the Chromium binary path.
	Bin string

	// NavTimeout is the per-navigation deadline.
	NavTimeout time.Duration // default: 30s
}

// Range is an inclusive wait interval for randomized humanizing delays.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// HarvestConfig controls a harvest run.
type HarvestConfig struct {
	// Date is the announcement date to harvest (YYYY-MM-DD).
	Date string // default: today

	// MaxRecords caps how many records are scraped; 0 means all.
	MaxRecords int // default: 20

	// Parallel is the chunk width for the batch coordinator.
	Parallel int // default: 1

	// PageWait is the randomized settle time after each navigation.
	PageWait Range // default: 4s-6s

	// BetweenWait is the randomized pause between chunks.
	BetweenWait Range // default: 2s-4s

	// CookieWait is how long to wait after clicking the consent button.
	// Protection cookies are often issued several seconds after consent.
	CookieWait time.Duration // default: 14s

	// OutputDir is the root under which per-date folders are created.
	OutputDir string // default: "output"
}

// BackoffConfig controls the shared CAPTCHA backoff.
type BackoffConfig struct {
	Seed time.Duration // default: 30s
	Max  time.Duration // default: 5m
}

// ServerConfig controls the collector/status HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 8088
	Mode string // "debug", "release", "test"; default: "release"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL: envOr("POIT_BASE_URL", "https://poit.bolagsverket.se"),
			AppPath: envOr("POIT_APP_PATH", "/poit-app/"),
		},
		Browser: BrowserConfig{
			Visible:    envBoolOr("POIT_VISIBLE", false),
			AttachURL:  os.Getenv("POIT_ATTACH_URL"),
			NoSandbox:  envBoolOr("POIT_NO_SANDBOX", false),
			Bin:        os.Getenv("POIT_BROWSER_BIN"),
			NavTimeout: envDurationOr("POIT_NAV_TIMEOUT", 30*time.Second),
		},
		Harvest: HarvestConfig{
			Date:        envOr("POIT_DATE", time.Now().Format("2006-01-02")),
			MaxRecords:  envIntOr("POIT_MAX_RECORDS", 20),
			Parallel:    envIntOr("POIT_PARALLEL", 1),
			PageWait:    envRangeOr("POIT_PAGE_WAIT", Range{4 * time.Second, 6 * time.Second}),
			BetweenWait: envRangeOr("POIT_BETWEEN_WAIT", Range{2 * time.Second, 4 * time.Second}),
			CookieWait:  envDurationOr("POIT_COOKIE_WAIT", 14*time.Second),
			OutputDir:   envOr("POIT_OUTPUT_DIR", "output"),
		},
		Backoff: BackoffConfig{
			Seed: envDurationOr("POIT_BACKOFF_SEED", 30*time.Second),
			Max:  envDurationOr("POIT_BACKOFF_MAX", 5*time.Minute),
		},
		Server: ServerConfig{
			Host: envOr("POIT_SERVER_HOST", "127.0.0.1"),
			Port: envIntOr("POIT_SERVER_PORT", 8088),
			Mode: envOr("POIT_SERVER_MODE", "release"),
		},
		Log: LogConfig{
			Level:  envOr("POIT_LOG_LEVEL", "info"),
			Format: envOr("POIT_LOG_FORMAT", "text"),
		},
	}
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

// envRangeOr parses "min,max" duration pairs, e.g. "4s,6s".
func envRangeOr(key string, fallback Range) Range {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.SplitN(v, ",", 2)
	if len(parts) != 2 {
		return fallback
	}
	min, err1 := time.ParseDuration(strings.TrimSpace(parts[0]))
	max, err2 := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || max < min {
		return fallback
	}
	return Range{Min: min, Max: max}
}
