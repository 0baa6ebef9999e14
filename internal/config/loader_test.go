package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	convey.Convey("Given a clean environment", t, func() {
		ctx := context.Background()

		convey.Convey("When nothing is set", func() {
			cfg, err := Load(ctx)

			convey.Convey("Then the documented defaults apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.PostgresDSN, convey.ShouldEqual, "")
				convey.So(cfg.Areas, convey.ShouldResemble, []string{"okayama"})
				convey.So(cfg.PVWeight, convey.ShouldEqual, 1.0)
				convey.So(cfg.ReviewCountWeight, convey.ShouldEqual, 10.0)
				convey.So(cfg.ReviewRatingWeight, convey.ShouldEqual, 100.0)
				convey.So(cfg.PVUniqueWindowHours, convey.ShouldEqual, 24)
				convey.So(cfg.ShopUniqueWindowHours, convey.ShouldEqual, 1)
				convey.So(cfg.TrendingMinCount, convey.ShouldEqual, 5)
				convey.So(cfg.ViewRetentionDays, convey.ShouldEqual, 90)
			})
		})

		convey.Convey("When env vars override fields", func() {
			_ = os.Setenv("YORUNAVI_LOG_LEVEL", "debug")
			_ = os.Setenv("YORUNAVI_TRENDING_MIN_COUNT", "12")
			_ = os.Setenv("YORUNAVI_GIFT_WEIGHT", "2.5")
			defer func() {
				_ = os.Unsetenv("YORUNAVI_LOG_LEVEL")
				_ = os.Unsetenv("YORUNAVI_TRENDING_MIN_COUNT")
				_ = os.Unsetenv("YORUNAVI_GIFT_WEIGHT")
			}()

			cfg, err := Load(ctx)

			convey.Convey("Then the overrides win over the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.TrendingMinCount, convey.ShouldEqual, 12)
				convey.So(cfg.GiftWeight, convey.ShouldEqual, 2.5)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			})
		})

		convey.Convey("When a YAML file is provided", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			content := []byte("addr: \":7070\"\nranking_top_count: 50\n")
			convey.So(os.WriteFile(path, content, 0o600), convey.ShouldBeNil)

			_ = os.Setenv("YORUNAVI_CONFIG", path)
			defer func() { _ = os.Unsetenv("YORUNAVI_CONFIG") }()

			convey.Convey("Then the file layers over the defaults", func() {
				cfg, err := Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.RankingTopCount, convey.ShouldEqual, 50)
			})

			convey.Convey("And env vars still beat the file", func() {
				_ = os.Setenv("YORUNAVI_ADDR", ":6060")
				defer func() { _ = os.Unsetenv("YORUNAVI_ADDR") }()

				cfg, err := Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			})
		})

		convey.Convey("When the file path is wrong", func() {
			_ = os.Setenv("YORUNAVI_CONFIG", "/no/such/config.yaml")
			defer func() { _ = os.Unsetenv("YORUNAVI_CONFIG") }()

			cfg, err := Load(ctx)
			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}

func TestValidate(t *testing.T) {
	convey.Convey("Given configurations with one bad field each", t, func() {
		cases := []struct {
			name   string
			mutate func(*Config)
		}{
			{"empty addr", func(c *Config) { c.Addr = "" }},
			{"no areas", func(c *Config) { c.Areas = nil }},
			{"zero cast window", func(c *Config) { c.PVUniqueWindowHours = 0 }},
			{"zero shop window", func(c *Config) { c.ShopUniqueWindowHours = 0 }},
			{"zero trending window", func(c *Config) { c.TrendingWindowMinutes = 0 }},
			{"negative trending min count", func(c *Config) { c.TrendingMinCount = -1 }},
			{"zero retention", func(c *Config) { c.ViewRetentionDays = 0 }},
		}

		for _, tc := range cases {
			convey.Convey("Then "+tc.name+" is rejected", func() {
				cfg := New()
				tc.mutate(cfg)
				err := cfg.validate()
				convey.So(errors.Is(err, ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("Then the defaults themselves validate", func() {
			convey.So(New().validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then a zero trending min count is allowed", func() {
			cfg := New()
			cfg.TrendingMinCount = 0
			convey.So(cfg.validate(), convey.ShouldBeNil)
		})
	})
}
