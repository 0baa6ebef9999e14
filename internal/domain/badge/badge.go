// Package badge maps finalized ranks to award tiers and their validity.
package badge

import (
	"time"

	"github.com/yorunavi/engine/internal/domain/types"
)

// Ranks 1..MaxBadgeRank earn a badge; everything below earns nothing.
const MaxBadgeRank = 10

// TierFor maps a finalized rank to its badge tier. The second return is
// false for ranks outside the awarded range.
func TierFor(rank int) (types.BadgeTier, bool) {
	switch {
	case rank == 1:
		return types.BadgeGold, true
	case rank >= 2 && rank <= 3:
		return types.BadgeSilver, true
	case rank >= 4 && rank <= MaxBadgeRank:
		return types.BadgeBronze, true
	default:
		return "", false
	}
}

// ValidityWindow returns the display window for a badge earned in the
// given scored month: the whole calendar month after it. time.Date
// normalizes month 13, so a December period rolls into January of the
// next year.
func ValidityWindow(year, month int, loc *time.Location) (from, until time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from = time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, loc)
	until = from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return from, until
}
