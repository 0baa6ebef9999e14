// Package entitle contains the priority and grant rules for promotional
// placements: what a rank earns, what a plan includes, and which grant
// wins when several target the same slot.
package entitle

import (
	"sort"
	"time"

	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
)

// Plan base priorities. Ranking grants always beat plan grants because
// the lowest ranking priority (100-10=90) still exceeds the highest plan
// base (50).
const (
	BusinessPriority = 50
	PremiumPriority  = 30
	FreePriority     = 0
)

// RankingPriority converts a finalized rank into a grant priority:
// rank 1 -> 99, rank 10 -> 90.
func RankingPriority(rank int) int {
	return 100 - rank
}

// PlanPriority returns the base priority a plan tier's grants carry.
func PlanPriority(tier types.PlanTier) int {
	switch tier {
	case types.PlanBusiness:
		return BusinessPriority
	case types.PlanPremium:
		return PremiumPriority
	default:
		return FreePriority
	}
}

// PlanCapabilities returns the placement set a plan tier includes. Free
// plans include nothing; business includes everything premium does plus
// the top banner.
func PlanCapabilities(tier types.PlanTier) types.Capabilities {
	switch tier {
	case types.PlanPremium:
		return types.NewCapabilities(
			types.PlacementSearchBoost,
			types.PlacementPremiumBadge,
			types.PlacementJobBoard,
			types.PlacementCastDisplay,
		)
	case types.PlanBusiness:
		return types.NewCapabilities(
			types.PlacementSearchBoost,
			types.PlacementPremiumBadge,
			types.PlacementJobBoard,
			types.PlacementCastDisplay,
			types.PlacementTopBanner,
		)
	default:
		return types.NewCapabilities()
	}
}

// PlacementsForRank returns the placements a finalized rank earns for
// the badge validity month. Ranks outside the top 10 earn nothing.
func PlacementsForRank(rank int) []types.PlacementType {
	switch {
	case rank == 1:
		return []types.PlacementType{
			types.PlacementTopBanner,
			types.PlacementTopBadge,
			types.PlacementPlatinum,
		}
	case rank >= 2 && rank <= 3:
		return []types.PlacementType{
			types.PlacementTopBadge,
			types.PlacementPlatinum,
		}
	case rank >= 4 && rank <= 10:
		return []types.PlacementType{
			types.PlacementTopBadge,
		}
	default:
		return nil
	}
}

// Resolve filters to grants effective at now for the given placement and
// area, ordered best-first: priority descending, most recently granted
// wins a tie, then id for determinism. An area-scoped query also matches
// grants with no area restriction.
func Resolve(grants []model.Entitlement, placement types.PlacementType, area string, now time.Time) []model.Entitlement {
	out := make([]model.Entitlement, 0, len(grants))
	for _, g := range grants {
		if g.PlacementType != placement {
			continue
		}
		if !g.Effective(now) {
			continue
		}
		if g.Area != "" && g.Area != area {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Winner returns the single effective grant for a placement, if any.
func Winner(grants []model.Entitlement, placement types.PlacementType, area string, now time.Time) (model.Entitlement, bool) {
	resolved := Resolve(grants, placement, area, now)
	if len(resolved) == 0 {
		return model.Entitlement{}, false
	}
	return resolved[0], true
}

// SearchRanking is one candidate row of a search result, annotated with
// the placement signals that drive ordering.
type SearchRanking struct {
	EntityID      string
	BoostPriority int  // effective search_boost grant priority, 0 when none
	PlanWeight    int  // plan base priority
	Featured      bool // operator-curated flag
}

// SortSearch orders search candidates: boost priority descending (a
// rank-1 boost outranks a rank-10 boost), then plan weight descending,
// then featured, then entity id descending.
func SortSearch(rows []SearchRanking) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.BoostPriority != b.BoostPriority {
			return a.BoostPriority > b.BoostPriority
		}
		if a.PlanWeight != b.PlanWeight {
			return a.PlanWeight > b.PlanWeight
		}
		if a.Featured != b.Featured {
			return a.Featured
		}
		return a.EntityID > b.EntityID
	})
}
