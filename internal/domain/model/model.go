// Package model contains domain records passed between layers.
package model

import (
	"time"

	"github.com/yorunavi/engine/internal/domain/types"
)

// ViewEvent is one counted page view. Events are immutable facts; the
// deduplicator decides whether a raw visit becomes a ViewEvent at all.
type ViewEvent struct {
	EventID    string // unique id, generated at ingestion
	EntityType types.EntityType
	EntityID   string
	ViewerKey  ViewerKey
	Area       string
	ViewedAt   time.Time
	IP         string
	UserAgent  string
}

// ViewerKey is the identity used for deduplication: an authenticated
// customer id when available, otherwise an opaque per-browser session id.
type ViewerKey struct {
	CustomerID string // empty for anonymous visitors
	SessionID  string // empty when no session cookie was present
}

// Anonymous reports whether neither identity is available. Such views can
// never be deduplicated and are always counted.
func (k ViewerKey) Anonymous() bool {
	return k.CustomerID == "" && k.SessionID == ""
}

// String renders the key for cache/index use. Customer identity wins over
// session identity, mirroring the dedup preference order.
func (k ViewerKey) String() string {
	if k.CustomerID != "" {
		return "c:" + k.CustomerID
	}
	if k.SessionID != "" {
		return "s:" + k.SessionID
	}
	return ""
}

// PeriodScore is one entity's aggregate for a calendar month in an area.
// At most one row exists per (EntityID, Area, Year, Month); rows are never
// hard-deleted so overrides stay auditable.
type PeriodScore struct {
	ID         string
	EntityType types.EntityType
	EntityID   string
	Area       string
	Year       int
	Month      int

	// Raw counters.
	PVCount       int
	GiftPoints    int64
	GiftCount     int
	ReviewCount   int
	AverageRating float64

	// Derived weighted scores.
	PVScore     float64
	GiftScore   float64
	ReviewScore float64
	TotalScore  float64

	// Rank is nil for disqualified entities.
	Rank         *int
	PreviousRank *int

	IsFinalized bool
	FinalizedAt *time.Time

	IsOverridden   bool
	OverrideReason string
	OverriddenBy   string
	OverriddenAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Badge is an immutable award derived from a finalized top-10 rank. The
// validity window always covers the calendar month after the scored period.
type Badge struct {
	ID         string
	EntityType types.EntityType
	EntityID   string
	RankingID  string // PeriodScore the badge derives from
	Tier       types.BadgeTier
	Rank       int
	Area       string
	Year       int
	Month      int
	ValidFrom  time.Time
	ValidUntil time.Time
	CreatedAt  time.Time
}

// Entitlement is a time-bounded right to occupy a promotional placement.
// Superseded or expired grants are deactivated, never deleted.
type Entitlement struct {
	ID            string
	TargetType    types.EntityType
	TargetID      string
	PlacementType types.PlacementType
	Area          string // empty means every area
	Priority      int
	StartsAt      time.Time
	EndsAt        time.Time
	SourceType    types.SourceType
	SourceID      string
	Rank          int // badge rank for ranking-sourced grants, 0 otherwise
	IsActive      bool
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Effective reports whether the grant is live at the given instant.
func (e Entitlement) Effective(now time.Time) bool {
	return e.IsActive && !now.Before(e.StartsAt) && !now.After(e.EndsAt)
}

// TrendingSnapshot is one row of a materialized trending batch. All rows
// of a batch share CalculatedAt; readers only consume the newest batch.
type TrendingSnapshot struct {
	ID           string
	EntityType   types.EntityType
	EntityID     string
	Area         string
	CurrentPV    int
	PreviousPV   int
	GrowthRate   float64
	Rank         int
	CalculatedAt time.Time
}

// GiftTransaction is a revenue fact recorded by the billing collaborator.
// Only completed transactions feed the revenue score.
type GiftTransaction struct {
	ID        string
	CastID    string
	Points    int64
	Status    string // "completed" counts; anything else is ignored
	CreatedAt time.Time
}

// GiftCompleted is the status value for transactions that count.
const GiftCompleted = "completed"

// Review is a review fact recorded by the review collaborator. Reviews
// only contribute to shop-kind scores.
type Review struct {
	ID        string
	ShopID    string
	Rating    float64 // 1..5
	CreatedAt time.Time
}

// PlanSubscription is the billing collaborator's view of a shop's paid
// plan, consumed by the entitlement sync.
type PlanSubscription struct {
	ID        string
	ShopID    string
	Tier      types.PlanTier
	Status    types.PlanStatus
	StartsAt  time.Time
	EndsAt    *time.Time // nil means open-ended auto renewal
	UpdatedAt time.Time
}

// Live reports whether the subscription currently grants anything.
func (p PlanSubscription) Live(now time.Time) bool {
	if p.Status != types.PlanActive && p.Status != types.PlanTrial {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}
