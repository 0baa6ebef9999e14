// Package repository defines the durable store interfaces and their
// in-memory and Postgres implementations. The in-memory store backs
// tests and local development; production runs on Postgres via GORM.
package repository

import (
	"context"
	"time"

	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
)

// GiftAgg aggregates completed gift transactions for one cast.
type GiftAgg struct {
	Points int64
	Count  int
}

// ReviewAgg aggregates reviews for one shop.
type ReviewAgg struct {
	Count         int
	AverageRating float64
}

// ViewStore persists counted view events and answers dedup queries.
type ViewStore interface {
	// InsertView stores one counted view. Returns ErrConflict when the
	// event id was already stored (at-least-once delivery upstream).
	InsertView(ctx context.Context, v model.ViewEvent) error

	// HasViewSince reports whether a counted view exists for the same
	// (entity, viewer) strictly after cutoff.
	HasViewSince(ctx context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey, cutoff time.Time) (bool, error)

	// ViewCounts returns per-entity counted views in [from, to) for one
	// kind. Empty area matches every area.
	ViewCounts(ctx context.Context, entityType types.EntityType, area string, from, to time.Time) (map[string]int, error)

	// DeleteViewsBefore drops raw views older than cutoff and returns
	// how many rows went away.
	DeleteViewsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScoreStore persists monthly period scores.
type ScoreStore interface {
	// UpsertScore inserts or refreshes the row keyed by
	// (entity, area, year, month).
	UpsertScore(ctx context.Context, s *model.PeriodScore) error

	// SaveScores writes a batch of rows atomically.
	SaveScores(ctx context.Context, scores []model.PeriodScore) error

	// GetScore returns one row or ErrNotFound.
	GetScore(ctx context.Context, entityType types.EntityType, entityID, area string, year, month int) (model.PeriodScore, error)

	// GetScoreByID returns the row with the given id or ErrNotFound.
	// Admin operations address score rows by id.
	GetScoreByID(ctx context.Context, id string) (model.PeriodScore, error)

	// ListScores returns every row of one period ordered by rank
	// ascending with unranked rows last.
	ListScores(ctx context.Context, entityType types.EntityType, area string, year, month int) ([]model.PeriodScore, error)
}

// BadgeStore persists awarded badges.
type BadgeStore interface {
	// UpsertBadge inserts or refreshes the badge derived from one
	// period score row.
	UpsertBadge(ctx context.Context, b *model.Badge) error

	// DeleteBadgeByRanking removes the badge derived from the given
	// period score row, if any.
	DeleteBadgeByRanking(ctx context.Context, rankingID string) error

	// ListBadges returns an entity's badges newest first.
	ListBadges(ctx context.Context, entityType types.EntityType, entityID string) ([]model.Badge, error)
}

// EntitlementStore persists placement grants.
type EntitlementStore interface {
	// UpsertEntitlement inserts or refreshes the grant keyed by
	// (target, placement, source).
	UpsertEntitlement(ctx context.Context, e *model.Entitlement) error

	// DeactivateBySource flips every active grant from one source off
	// and returns how many changed.
	DeactivateBySource(ctx context.Context, sourceType types.SourceType, sourceID string) (int64, error)

	// DeactivateByTarget flips a target's active grants from one source
	// kind off.
	DeactivateByTarget(ctx context.Context, targetType types.EntityType, targetID string, sourceType types.SourceType) (int64, error)

	// ListEffective returns grants live at now for one placement,
	// priority descending with the newest grant first inside a priority.
	// Empty area matches only unrestricted grants.
	ListEffective(ctx context.Context, placement types.PlacementType, area string, now time.Time) ([]model.Entitlement, error)

	// ListForTarget returns every grant of one target, newest first.
	ListForTarget(ctx context.Context, targetType types.EntityType, targetID string) ([]model.Entitlement, error)
}

// TrendingStore persists materialized trending batches.
type TrendingStore interface {
	// SaveTrendingBatch stores one batch. All rows must share the same
	// CalculatedAt instant.
	SaveTrendingBatch(ctx context.Context, rows []model.TrendingSnapshot) error

	// LatestTrending returns rows of the newest batch for one kind and
	// area, rank ascending, capped at limit.
	LatestTrending(ctx context.Context, entityType types.EntityType, area string, limit int) ([]model.TrendingSnapshot, error)

	// PurgeTrendingBefore drops batches older than cutoff.
	PurgeTrendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PlanStore reads the billing collaborator's subscription records.
type PlanStore interface {
	// UpsertPlan stores one subscription row (webhook or seed path).
	UpsertPlan(ctx context.Context, p *model.PlanSubscription) error

	// ListPlans returns every subscription row.
	ListPlans(ctx context.Context) ([]model.PlanSubscription, error)
}

// SignalStore reads the revenue and review facts feeding the score.
type SignalStore interface {
	// InsertGift stores one gift transaction (webhook or seed path).
	InsertGift(ctx context.Context, g *model.GiftTransaction) error

	// GiftTotals aggregates completed transactions per cast in [from, to).
	GiftTotals(ctx context.Context, from, to time.Time) (map[string]GiftAgg, error)

	// InsertReview stores one review (webhook or seed path).
	InsertReview(ctx context.Context, r *model.Review) error

	// ReviewStats aggregates reviews per shop in [from, to).
	ReviewStats(ctx context.Context, from, to time.Time) (map[string]ReviewAgg, error)
}

// Store is the full persistence surface the service runs on.
type Store interface {
	ViewStore
	ScoreStore
	BadgeStore
	EntitlementStore
	TrendingStore
	PlanStore
	SignalStore
}
