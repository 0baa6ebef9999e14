// Package service provides the core business service that implements
// the dependencies required by the HTTP API: view ingestion, ranking
// and trending reads, and the admin job entry points.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	eventqueue "github.com/yorunavi/engine/internal/adapters/mq/queue"
	workerpool "github.com/yorunavi/engine/internal/adapters/mq/worker"
	repository "github.com/yorunavi/engine/internal/adapters/repository"
	"github.com/yorunavi/engine/internal/domain/dedupe"
	"github.com/yorunavi/engine/internal/domain/entitle"
	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/scoring"
	"github.com/yorunavi/engine/internal/domain/types"
	"github.com/yorunavi/engine/pkg/logger"
	"github.com/yorunavi/engine/pkg/metrics"
)

// Service implements the API dependencies for the ranking engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool

	// Configuration
	workerCount     int
	queueSize       int
	dedupeCacheSize int
	castWindow      time.Duration
	shopWindow      time.Duration
	areas           []string
	weights         scoring.Weights
	topCount        int

	trendingWindow   time.Duration
	trendingMinCount int
	trendingInterval time.Duration
	viewRetention    time.Duration

	// Time source, swappable in tests.
	now func() time.Time

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the durable store. Defaults to the in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of view-ingestion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the view-event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeCacheSize bounds the in-process dedup decision cache.
func WithDedupeCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeCacheSize = size
		}
	}
}

// WithDedupWindows sets the per-kind dedup windows.
func WithDedupWindows(cast, shop time.Duration) Option {
	return func(s *Service) {
		if cast > 0 {
			s.castWindow = cast
		}
		if shop > 0 {
			s.shopWindow = shop
		}
	}
}

// WithAreas sets the active area keys rankings are computed for.
func WithAreas(areas []string) Option {
	return func(s *Service) {
		if len(areas) > 0 {
			s.areas = areas
		}
	}
}

// WithWeights sets the scoring weight snapshot.
func WithWeights(w scoring.Weights) Option {
	return func(s *Service) {
		s.weights = w
	}
}

// WithTopCount bounds how many entities a period ranking keeps.
func WithTopCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topCount = n
		}
	}
}

// WithTrending sets the trending window, minimum count, and recompute
// interval.
func WithTrending(window time.Duration, minCount int, interval time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.trendingWindow = window
		}
		if minCount > 0 {
			s.trendingMinCount = minCount
		}
		if interval > 0 {
			s.trendingInterval = interval
		}
	}
}

// WithViewRetention bounds how long raw view events are kept.
func WithViewRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.viewRetention = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the time source (test hook).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        100_000,
		dedupeCacheSize:  500_000,
		castWindow:       24 * time.Hour,
		shopWindow:       time.Hour,
		areas:            []string{"okayama"},
		weights:          scoring.DefaultWeights(),
		topCount:         100,
		trendingWindow:   time.Hour,
		trendingMinCount: 5,
		trendingInterval: 10 * time.Minute,
		viewRetention:    90 * 24 * time.Hour,
		now:              time.Now,
		stopCh:           make(chan struct{}),
		logger:           nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting ranking engine service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	s.deduper = dedupe.NewWindowDeduper(
		s.store,
		dedupe.WithWindow(types.EntityCast, s.castWindow),
		dedupe.WithWindow(types.EntityShop, s.shopWindow),
		dedupe.WithCacheSize(s.dedupeCacheSize),
	)
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)

	// Create and start the ingestion worker pool
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.deduper, s.store)
	s.workerPool.Start(ctx)

	// Background job tickers
	s.wg.Add(1)
	go s.runScheduler(ctx)

	s.started = true
	s.logger.Info(ctx, "ranking engine service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeCacheSize", s.dedupeCacheSize),
		logger.Any("areas", s.areas),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping ranking engine service...")

	// Signal the scheduler to stop
	select {
	case <-s.stopCh:
		// Channel already closed
	default:
		close(s.stopCh)
	}
	s.wg.Wait()

	// Shutdown drains workers and closes the queue
	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(context.Background())
	}

	// Close the store
	if s.store != nil {
		if closer, ok := s.store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}

	s.started = false
	s.logger.Info(context.Background(), "ranking engine service stopped")
}

// RecordView enqueues a raw page view for dedup and persistence.
// Returns false on backpressure.
func (s *Service) RecordView(ctx context.Context, v model.ViewEvent) bool {
	if v.EventID == "" {
		v.EventID = uuid.NewString()
	}
	if v.ViewedAt.IsZero() {
		v.ViewedAt = s.now()
	}

	ok := s.eventQueue.Enqueue(ctx, v)
	if !ok {
		metrics.RecordViewRejected()
		s.logger.Warn(ctx, "view queue full, rejecting",
			logger.String("entityID", v.EntityID),
		)
		return false
	}
	metrics.UpdateQueueSize(s.eventQueue.Len(ctx))
	return true
}

// GetRanking returns the finalized ranking of one period, rank ascending.
func (s *Service) GetRanking(ctx context.Context, entityType types.EntityType, area string, year, month, limit int) ([]types.RankingEntry, error) {
	scores, err := s.store.ListScores(ctx, entityType, area, year, month)
	if err != nil {
		return nil, err
	}

	entries := make([]types.RankingEntry, 0, limit)
	for _, sc := range scores {
		if !sc.IsFinalized || sc.Rank == nil {
			continue
		}
		if limit > 0 && *sc.Rank > limit {
			continue
		}
		entries = append(entries, types.RankingEntry{
			Rank:          *sc.Rank,
			EntityType:    sc.EntityType,
			EntityID:      sc.EntityID,
			Area:          sc.Area,
			Year:          sc.Year,
			Month:         sc.Month,
			PVCount:       sc.PVCount,
			GiftPoints:    sc.GiftPoints,
			ReviewCount:   sc.ReviewCount,
			AverageRating: sc.AverageRating,
			TotalScore:    sc.TotalScore,
			PreviousRank:  sc.PreviousRank,
		})
	}
	return entries, nil
}

// EffectiveEntitlements returns the grants live right now for one
// placement, priority descending.
func (s *Service) EffectiveEntitlements(ctx context.Context, placement types.PlacementType, area string) ([]model.Entitlement, error) {
	return s.store.ListEffective(ctx, placement, area, s.now())
}

// EntitlementsForTarget returns every grant held by one entity.
func (s *Service) EntitlementsForTarget(ctx context.Context, targetType types.EntityType, targetID string) ([]model.Entitlement, error) {
	return s.store.ListForTarget(ctx, targetType, targetID)
}

// GetTrending returns the latest materialized trending batch for one
// kind and area.
func (s *Service) GetTrending(ctx context.Context, entityType types.EntityType, area string, limit int) ([]types.TrendingEntry, error) {
	rows, err := s.store.LatestTrending(ctx, entityType, area, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]types.TrendingEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, types.TrendingEntry{
			Rank:       r.Rank,
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
			Area:       r.Area,
			Current:    r.CurrentPV,
			Previous:   r.PreviousPV,
			GrowthRate: r.GrowthRate,
		})
	}
	return entries, nil
}

// SearchCandidate is one shop on a search result page, before monetized
// ordering is applied. The featured flag is directory content owned by
// the caller.
type SearchCandidate struct {
	ShopID   string
	Featured bool
}

// OrderSearch returns the candidate shop ids in monetized search order
// for one area: effective search boosts first (stronger boost wins),
// then plan weight, then curated featured shops.
func (s *Service) OrderSearch(ctx context.Context, area string, candidates []SearchCandidate) ([]string, error) {
	now := s.now()

	grants, err := s.store.ListEffective(ctx, types.PlacementSearchBoost, area, now)
	if err != nil {
		return nil, err
	}
	boost := make(map[string]int, len(grants))
	for _, g := range grants {
		if g.TargetType != types.EntityShop {
			continue
		}
		if prev, ok := boost[g.TargetID]; !ok || g.Priority > prev {
			boost[g.TargetID] = g.Priority
		}
	}

	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	weight := make(map[string]int, len(plans))
	for _, p := range plans {
		if p.Live(now) {
			weight[p.ShopID] = entitle.PlanPriority(p.Tier)
		}
	}

	rows := make([]entitle.SearchRanking, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, entitle.SearchRanking{
			EntityID:      c.ShopID,
			BoostPriority: boost[c.ShopID],
			PlanWeight:    weight[c.ShopID],
			Featured:      c.Featured,
		})
	}
	entitle.SortSearch(rows)

	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.EntityID
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"areas":       s.areas,
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
