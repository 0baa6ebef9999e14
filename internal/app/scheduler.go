package service

import (
	"context"
	"time"

	"github.com/yorunavi/engine/pkg/logger"
)

// Daily job cadence. Monthly finalize stays operator-triggered via the
// admin endpoint so a bad month can be inspected before freezing.
const dailyInterval = 24 * time.Hour

// runScheduler drives the periodic jobs until the service stops. Every
// job is idempotent, so a missed or doubled tick is harmless.
func (s *Service) runScheduler(ctx context.Context) {
	defer s.wg.Done()

	trendingTicker := time.NewTicker(s.trendingInterval)
	defer trendingTicker.Stop()
	planTicker := time.NewTicker(dailyInterval)
	defer planTicker.Stop()
	cleanupTicker := time.NewTicker(dailyInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-trendingTicker.C:
			if summary, err := s.RecomputeTrending(ctx); err != nil {
				s.logger.Error(ctx, "trending recompute failed", logger.Error(err))
			} else if summary.Failed > 0 {
				s.logger.Warn(ctx, "trending recompute finished with failures",
					logger.Int("failed", summary.Failed),
				)
			}
		case <-planTicker.C:
			if summary, err := s.SyncPlanEntitlements(ctx); err != nil {
				s.logger.Error(ctx, "plan entitlement sync failed", logger.Error(err))
			} else {
				s.logger.Info(ctx, "plan entitlement sync finished",
					logger.Int("processed", summary.Processed),
					logger.Int("failed", summary.Failed),
				)
			}
		case <-cleanupTicker.C:
			if summary, err := s.CleanupViews(ctx); err != nil {
				s.logger.Error(ctx, "view cleanup failed", logger.Error(err))
			} else {
				s.logger.Info(ctx, "view cleanup finished",
					logger.Int("dropped", summary.Processed),
				)
			}
		}
	}
}
