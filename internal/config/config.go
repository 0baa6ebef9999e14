// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load(ctx) layers defaults, an optional YAML file, and env vars.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// PostgresDSN selects the durable store. Empty runs on the in-memory
	// store (tests, local development).
	PostgresDSN string `koanf:"postgres_dsn"`

	// Areas lists the active area keys rankings are computed for.
	Areas []string `koanf:"areas"`

	// ViewQueueSize bounds the in-memory view-event queue.
	ViewQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of view-ingestion workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeCacheSize bounds the in-process dedup short-circuit cache.
	DedupeCacheSize int `koanf:"dedupe_cache_size"`

	// MaxRankingLimit caps the limit parameter on ranking reads.
	MaxRankingLimit int `koanf:"max_ranking_limit"`

	// Scoring weights. Unknown keys fall back to these defaults.
	PVWeight           float64 `koanf:"pv_weight"`
	GiftWeight         float64 `koanf:"gift_weight"`
	ReviewCountWeight  float64 `koanf:"review_count_weight"`
	ReviewRatingWeight float64 `koanf:"review_rating_weight"`

	// RankingTopCount bounds how many entities a period ranking keeps.
	RankingTopCount int `koanf:"ranking_top_count"`

	// Dedup windows. Cast detail pages use the long window (unique
	// visitor per day); shop pages use the short anti-refresh window.
	PVUniqueWindowHours   int `koanf:"pv_unique_window_hours"`
	ShopUniqueWindowHours int `koanf:"shop_unique_window_hours"`

	// Trending calculation knobs.
	TrendingWindowMinutes   int `koanf:"trending_window_minutes"`
	TrendingMinCount        int `koanf:"trending_min_count"`
	TrendingIntervalMinutes int `koanf:"trending_interval_minutes"`

	// ViewRetentionDays bounds how long raw view events are kept.
	ViewRetentionDays int `koanf:"view_retention_days"`
}

// New creates a Config populated with documented defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":9080",
		PostgresDSN:             "",
		Areas:                   []string{"okayama"},
		ViewQueueSize:           100_000,
		WorkerCount:             runtime.NumCPU() * 4,
		DedupeCacheSize:         500_000,
		MaxRankingLimit:         100,
		PVWeight:                1.0,
		GiftWeight:              1.0,
		ReviewCountWeight:       10.0,
		ReviewRatingWeight:      100.0,
		RankingTopCount:         100,
		PVUniqueWindowHours:     24,
		ShopUniqueWindowHours:   1,
		TrendingWindowMinutes:   60,
		TrendingMinCount:        5,
		TrendingIntervalMinutes: 10,
		ViewRetentionDays:       90,
	}
}
