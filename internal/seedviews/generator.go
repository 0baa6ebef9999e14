package seedviews

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/yorunavi/engine/pkg/logger"
)

// Traffic shape constants. A small head of hot entities receives most
// of the traffic so trending has something to find; repeat visits from
// the same viewer exercise the dedup window.
const (
	hotEntityShare    = 10  // percent of entities that are "hot"
	hotTrafficPercent = 60  // percent of views that land on hot entities
	repeatVisitChance = 30  // percent of views that reuse a recent viewer
	shopViewPercent   = 40  // percent of views that target shops
	percentDivisor    = 100
)

// randIntn returns a uniform int in [0, n) using crypto/rand.
func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// generateViews creates the synthetic view submissions.
func generateViews(ctx context.Context, config *Config, stats *Stats) ([]viewRequest, error) {
	logger.Get().Info(ctx, "generating views",
		logger.Int("numViews", config.NumViews),
		logger.Int("entities", config.NumEntities),
		logger.Int("viewers", config.NumViewers),
	)

	hotCount := config.NumEntities * hotEntityShare / percentDivisor
	if hotCount < 1 {
		hotCount = 1
	}

	views := make([]viewRequest, 0, config.NumViews)
	now := time.Now().UTC()

	for i := 0; i < config.NumViews; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entityType := "cast"
		if randIntn(percentDivisor) < shopViewPercent {
			entityType = "shop"
		}

		var entityIdx int
		if randIntn(percentDivisor) < hotTrafficPercent {
			entityIdx = randIntn(hotCount)
		} else {
			entityIdx = hotCount + randIntn(config.NumEntities-hotCount)
		}

		viewerIdx := randIntn(config.NumViewers)
		if randIntn(percentDivisor) < repeatVisitChance && i > 0 {
			// Reuse the previous viewer to trigger dedup.
			viewerIdx = lastViewerIdx(views[i-1])
		}

		area := config.Areas[randIntn(len(config.Areas))]

		views = append(views, viewRequest{
			EntityType: entityType,
			EntityID:   entityType + "-" + strconv.Itoa(entityIdx),
			CustomerID: "cust-" + strconv.Itoa(viewerIdx),
			Area:       area,
			ViewedAt:   now.Format(time.RFC3339),
		})
	}

	stats.ViewsGenerated = len(views)
	logger.Get().Info(ctx, "generated views", logger.Int("count", len(views)))
	return views, nil
}

// lastViewerIdx recovers the numeric viewer index from a request.
func lastViewerIdx(v viewRequest) int {
	idx, err := strconv.Atoi(v.CustomerID[len("cust-"):])
	if err != nil {
		return 0
	}
	return idx
}
