package seedviews

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yorunavi/engine/pkg/logger"
)

// processingWait gives the ingestion workers time to drain the queue
// before trending is recomputed.
const processingWait = 5 * time.Second

// Run executes the complete seeding pass: health check, generate,
// submit, recompute trending, and fetch the result per area.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting view seeding run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("views", config.NumViews),
		logger.Int("workers", config.Workers),
		logger.Any("areas", config.Areas),
	)

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	views, err := generateViews(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("view generation failed: %w", err)
	}

	if err := submitViews(ctx, config, views, stats); err != nil {
		return fmt.Errorf("view submission failed: %w", err)
	}

	logger.Get().Info(ctx, "waiting for ingestion workers to drain")
	time.Sleep(processingWait)

	if err := recomputeTrending(ctx, config); err != nil {
		return fmt.Errorf("trending recompute failed: %w", err)
	}

	for _, area := range config.Areas {
		rows, err := fetchTrending(ctx, config, area)
		if err != nil {
			logger.Get().Warn(ctx, "trending fetch failed",
				logger.String("area", area),
				logger.Error(err),
			)
			continue
		}
		stats.TrendingRows += len(rows)
		displayTrending(ctx, area, rows, config.Verbose)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)

	resp, err := client.get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	_, _ = readBody(resp)

	if resp.StatusCode != statusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// recomputeTrending asks the service for a fresh trending batch.
func recomputeTrending(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)

	resp, err := client.post(ctx, config.BaseURL+"/admin/trending/recompute", struct{}{})
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	body, _ := readBody(resp)

	if resp.StatusCode != statusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// fetchTrending retrieves the latest trending rows for one area.
func fetchTrending(ctx context.Context, config *Config, area string) ([]trendingEntry, error) {
	client := newHTTPClient(config.Timeout)
	url := fmt.Sprintf("%s/trending?area=%s&limit=%d", config.BaseURL, area, config.TrendingTop)

	resp, err := client.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != statusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var rows []trendingEntry
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return rows, nil
}

// displayTrending logs the fetched trending rows.
func displayTrending(ctx context.Context, area string, rows []trendingEntry, verbose bool) {
	logger.Get().Info(ctx, "trending fetched",
		logger.String("area", area),
		logger.Int("rows", len(rows)),
	)
	if !verbose {
		return
	}
	for _, row := range rows {
		logger.Get().Info(ctx, "trending row",
			logger.Int("rank", row.Rank),
			logger.String("entityID", row.EntityID),
			logger.Int("current", row.Current),
			logger.Float64("growthRate", row.GrowthRate),
		)
	}
}

// displayFinalStats logs the run statistics.
func displayFinalStats(stats *Stats) {
	var viewsPerSecond float64
	if stats.Duration > 0 {
		viewsPerSecond = float64(stats.ViewsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("viewsGenerated", stats.ViewsGenerated),
		logger.Int("viewsSubmitted", stats.ViewsSubmitted),
		logger.Int("viewsAccepted", stats.ViewsAccepted),
		logger.Int("viewsRejected", stats.ViewsRejected),
		logger.Int("viewsFailed", stats.ViewsFailed),
		logger.Int("trendingRows", stats.TrendingRows),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("viewsPerSecond", viewsPerSecond),
	)
}
