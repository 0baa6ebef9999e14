package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/yorunavi/engine/internal/seedviews"
	"github.com/yorunavi/engine/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumViews    = 10000
	defaultNumEntities = 200
	defaultNumViewers  = 2000
	defaultTrendingTop = 20
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numViews    = flag.Int("views", defaultNumViews, "Number of views to generate and submit")
		numEntities = flag.Int("entities", defaultNumEntities, "Distinct entities to spread views over")
		numViewers  = flag.Int("viewers", defaultNumViewers, "Distinct viewer identities")
		areas       = flag.String("areas", "okayama", "Comma-separated area keys")
		trendingTop = flag.Int("top", defaultTrendingTop, "Trending rows to fetch per area")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &seedviews.Config{
		BaseURL:     *baseURL,
		NumViews:    *numViews,
		NumEntities: *numEntities,
		NumViewers:  *numViewers,
		Areas:       strings.Split(*areas, ","),
		Workers:     *workers,
		Timeout:     *timeout,
		TrendingTop: *trendingTop,
		Verbose:     *verbose,
	}

	if err := seedviews.Run(ctx, config); err != nil {
		os.Stderr.WriteString("seeding run failed: " + err.Error() + "\n")
		return
	}
}
