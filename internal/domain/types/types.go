// Package types contains common types used across the application.
package types

import "sort"

// EntityType identifies the kind of directory entity a signal belongs to.
type EntityType string

const (
	EntityShop EntityType = "shop"
	EntityCast EntityType = "cast"
)

// Valid reports whether the entity type is one of the known kinds.
func (t EntityType) Valid() bool {
	return t == EntityShop || t == EntityCast
}

// PlacementType names a promotional slot. The set is fixed; entitlements
// referencing an unknown placement are rejected before any write.
type PlacementType string

const (
	PlacementTopBanner    PlacementType = "top_banner"
	PlacementSearchBoost  PlacementType = "search_boost"
	PlacementPremiumBadge PlacementType = "premium_badge"
	PlacementTopBadge     PlacementType = "top_badge"
	PlacementPlatinum     PlacementType = "platinum"
	PlacementJobBoard     PlacementType = "job_board"
	PlacementCastDisplay  PlacementType = "cast_display"
	PlacementInlineAd     PlacementType = "inline_ad"
)

// AllPlacements lists every known placement type.
func AllPlacements() []PlacementType {
	return []PlacementType{
		PlacementTopBanner,
		PlacementSearchBoost,
		PlacementPremiumBadge,
		PlacementTopBadge,
		PlacementPlatinum,
		PlacementJobBoard,
		PlacementCastDisplay,
		PlacementInlineAd,
	}
}

// Valid reports whether the placement type is one of the known slots.
func (p PlacementType) Valid() bool {
	for _, known := range AllPlacements() {
		if p == known {
			return true
		}
	}
	return false
}

// SourceType names the origin of an entitlement.
type SourceType string

const (
	SourceRanking   SourceType = "ranking"
	SourcePlan      SourceType = "plan"
	SourceManual    SourceType = "manual"
	SourcePromotion SourceType = "promotion"
)

// BadgeTier is the award level derived from a finalized rank.
type BadgeTier string

const (
	BadgeGold   BadgeTier = "gold"   // rank 1
	BadgeSilver BadgeTier = "silver" // ranks 2-3
	BadgeBronze BadgeTier = "bronze" // ranks 4-10
)

// PlanTier is a shop's subscription level.
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanPremium  PlanTier = "premium"
	PlanBusiness PlanTier = "business"
)

// PlanStatus is the billing state of a subscription.
type PlanStatus string

const (
	PlanActive   PlanStatus = "active"
	PlanTrial    PlanStatus = "trial"
	PlanPastDue  PlanStatus = "past_due"
	PlanCanceled PlanStatus = "canceled"
	PlanExpired  PlanStatus = "expired"
)

// Capabilities is the fixed set of placements a plan tier grants. It
// replaces attribute-name feature lookups with an explicit set query.
type Capabilities struct {
	placements map[PlacementType]struct{}
}

// NewCapabilities builds a capability set from the given placements.
func NewCapabilities(placements ...PlacementType) Capabilities {
	set := make(map[PlacementType]struct{}, len(placements))
	for _, p := range placements {
		set[p] = struct{}{}
	}
	return Capabilities{placements: set}
}

// Contains reports whether the set grants the given placement.
func (c Capabilities) Contains(p PlacementType) bool {
	_, ok := c.placements[p]
	return ok
}

// Placements returns the granted placements in stable (sorted) order.
func (c Capabilities) Placements() []PlacementType {
	out := make([]PlacementType, 0, len(c.placements))
	for p := range c.placements {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of granted placements.
func (c Capabilities) Len() int { return len(c.placements) }

// RankingEntry mirrors the read shape returned by ranking queries.
type RankingEntry struct {
	Rank          int        `json:"rank"`
	EntityType    EntityType `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	Area          string     `json:"area"`
	Year          int        `json:"year"`
	Month         int        `json:"month"`
	PVCount       int        `json:"pv_count"`
	GiftPoints    int64      `json:"gift_points"`
	ReviewCount   int        `json:"review_count"`
	AverageRating float64    `json:"average_rating"`
	TotalScore    float64    `json:"total_score"`
	PreviousRank  *int       `json:"previous_rank,omitempty"`
}

// TrendingEntry mirrors the read shape returned by trending queries.
type TrendingEntry struct {
	Rank       int        `json:"rank"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Area       string     `json:"area"`
	Current    int        `json:"current"`
	Previous   int        `json:"previous"`
	GrowthRate float64    `json:"growth_rate"`
}
