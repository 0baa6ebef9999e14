package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if YORUNAVI_CONFIG is set
//  3. env (prefix YORUNAVI_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("YORUNAVI_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: YORUNAVI_ADDR, YORUNAVI_PV_WEIGHT, ...
	// Map env keys like YORUNAVI_QUEUE_SIZE -> queue_size (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("YORUNAVI_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "yorunavi_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations no job could run under.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case len(c.Areas) == 0:
		return fmt.Errorf("%w: at least one area is required", ErrInvalidConfig)
	case c.PVUniqueWindowHours <= 0 || c.ShopUniqueWindowHours <= 0:
		return fmt.Errorf("%w: dedup windows must be positive", ErrInvalidConfig)
	case c.TrendingWindowMinutes <= 0:
		return fmt.Errorf("%w: trending_window_minutes must be positive", ErrInvalidConfig)
	case c.TrendingMinCount < 0:
		return fmt.Errorf("%w: trending_min_count must not be negative", ErrInvalidConfig)
	case c.ViewRetentionDays <= 0:
		return fmt.Errorf("%w: view_retention_days must be positive", ErrInvalidConfig)
	}
	return nil
}
