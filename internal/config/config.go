package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	DatabaseURL string

	ListenAddr string

	// RedisAddr enables the read cache for price-intelligence lookups
	// when non-empty. The engine behaves identically without it.
	RedisAddr string

	// IngestAPIKey is the bootstrap bearer token for the ingest endpoint.
	// If empty, no bootstrap key is created and keys must already exist
	// in the database.
	IngestAPIKey string

	// MatchSearchFloor is the minimum fuzzy score at which an existing
	// canonical item is even considered a candidate.
	MatchSearchFloor float64

	// MatchAcceptThreshold is the minimum fuzzy score at which a candidate
	// is actually reused instead of creating a new canonical item.
	// Candidates scoring in [MatchSearchFloor, MatchAcceptThreshold) are
	// logged as near misses.
	MatchAcceptThreshold float64

	// FanoutRefreshInterval is how often the background worker re-runs
	// cross-vendor comparison for recently touched canonical items.
	// Zero disables the worker.
	FanoutRefreshInterval time.Duration

	// LogJSON switches logrus to the JSON formatter.
	LogJSON bool
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:           os.Getenv("APP_DATABASE_URL"),
		ListenAddr:            getenv("APP_LISTEN_ADDR", ":8080"),
		RedisAddr:             getenv("APP_REDIS_ADDR", ""),
		IngestAPIKey:          getenv("APP_INGEST_API_KEY", ""),
		MatchSearchFloor:      0.80,
		MatchAcceptThreshold:  0.85,
		FanoutRefreshInterval: 15 * time.Minute,
		LogJSON:               os.Getenv("APP_LOG_JSON") == "1",
	}

	if v := os.Getenv("APP_MATCH_SEARCH_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.MatchSearchFloor = f
		}
	}
	if v := os.Getenv("APP_MATCH_ACCEPT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.MatchAcceptThreshold = f
		}
	}
	if cfg.MatchAcceptThreshold < cfg.MatchSearchFloor {
		cfg.MatchAcceptThreshold = cfg.MatchSearchFloor
	}
	if v := os.Getenv("APP_FANOUT_REFRESH_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.FanoutRefreshInterval = time.Duration(n) * time.Minute
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
