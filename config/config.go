// Package config loads process configuration from the environment (and
// an optional .env file), following the fallback-default idiom used
// throughout this codebase.
package config

import (
	"os"
	"strconv"

	"github.com/ccstat-go/ccstat/ccerr"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the ingestion and
// aggregation pipeline.
type Config struct {
	// Env selects the logging verbosity ("development" enables debug
	// logging; anything else is treated as production).
	Env string

	// CostMode is the raw string form of domain.CostMode, resolved by
	// the caller via domain.ParseCostMode.
	CostMode string

	// OfflinePricing forces the pricing resolver to skip the network
	// fetch and use only the embedded catalog.
	OfflinePricing bool

	// PricingRefreshDisabled disables the lazy TTL-based refresh of the
	// pricing cache, useful for deterministic test runs.
	PricingRefreshDisabled bool

	// Timezone is an explicit IANA zone name; empty defers to TZ/system.
	Timezone string
	// UTC forces UTC regardless of Timezone/TZ/system.
	UTC bool

	// BillingBlockMaxCost is the historical maximum cost used as the
	// denominator for burn-rate percentage calculations.
	BillingBlockMaxCost float64

	// TokenLimit is the per-billing-block token ceiling; a block whose
	// total exceeds it carries a warning. Empty disables the check.
	TokenLimit string

	// SinceDate/UntilDate restrict the report to a calendar date range
	// (YYYY-MM-DD, inclusive). Project restricts to one project label.
	SinceDate string
	UntilDate string
	Project   string

	// ClaudeRecentDays, when positive, restricts the Claude loader to
	// files modified within the last N days.
	ClaudeRecentDays int

	// Verbose retains per-event detail on daily summaries.
	Verbose bool

	// Per-provider discovery path overrides; empty means "use the
	// platform default search path."
	ClaudeDataPath  string
	CodexHome       string
	OpenCodeDataDir string
	AmpDataDir      string
	PiAgentDir      string

	LogLevel string
}

// Load reads configuration from environment variables and an optional
// .env file in the working directory.
func Load() *Config {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")
	defaultLogLevel := "info"
	if env == "development" {
		defaultLogLevel = "debug"
	}

	return &Config{
		Env:                    env,
		CostMode:               getEnv("CCSTAT_COST_MODE", "auto"),
		OfflinePricing:         getEnvBool("CCSTAT_OFFLINE_PRICING", false),
		PricingRefreshDisabled: getEnvBool("CCSTAT_DISABLE_PRICING_REFRESH", false),
		Timezone:               getEnv("CCSTAT_TIMEZONE", ""),
		UTC:                    getEnvBool("CCSTAT_UTC", false),
		BillingBlockMaxCost:    getEnvFloat("CCSTAT_BLOCK_MAX_COST", 100.0),
		TokenLimit:             getEnv("CCSTAT_TOKEN_LIMIT", ""),
		SinceDate:              getEnv("CCSTAT_SINCE", ""),
		UntilDate:              getEnv("CCSTAT_UNTIL", ""),
		Project:                getEnv("CCSTAT_PROJECT", ""),
		ClaudeRecentDays:       getEnvInt("CCSTAT_CLAUDE_RECENT_DAYS", 0),
		Verbose:                getEnvBool("CCSTAT_VERBOSE", false),
		ClaudeDataPath:         getEnv("CLAUDE_DATA_PATH", ""),
		CodexHome:              getEnv("CODEX_HOME", ""),
		OpenCodeDataDir:        getEnv("OPENCODE_DATA_DIR", ""),
		AmpDataDir:             getEnv("AMP_DATA_DIR", ""),
		PiAgentDir:             getEnv("PI_AGENT_DIR", ""),
		LogLevel:               getEnv("LOG_LEVEL", defaultLogLevel),
	}
}

// IsDevelopment returns true when running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ParseTokenLimit resolves the configured token limit to a count. Zero
// means no limit is configured.
func (c *Config) ParseTokenLimit() (int64, error) {
	if c.TokenLimit == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(c.TokenLimit, 10, 64)
	if err != nil || n <= 0 {
		return 0, ccerr.New(ccerr.KindInvalidTokenLimit, "invalid token limit: "+c.TokenLimit)
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
