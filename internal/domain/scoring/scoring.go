// Package scoring computes weighted period scores from raw counters.
//
// The package is deliberately pure: callers collect the counters and pass
// an explicit weight snapshot, so a recomputation with the same inputs
// always yields the same breakdown and the formula tests need no store.
package scoring

import "github.com/yorunavi/engine/internal/domain/types"

// Documented default weights. Unknown or unset config keys fall back here.
const (
	DefaultPVWeight           = 1.0
	DefaultGiftWeight         = 1.0
	DefaultReviewCountWeight  = 10.0
	DefaultReviewRatingWeight = 100.0
)

// Weights is a configuration snapshot applied to one aggregation pass.
type Weights struct {
	PV           float64
	Gift         float64
	ReviewCount  float64
	ReviewRating float64
}

// DefaultWeights returns the documented defaults.
func DefaultWeights() Weights {
	return Weights{
		PV:           DefaultPVWeight,
		Gift:         DefaultGiftWeight,
		ReviewCount:  DefaultReviewCountWeight,
		ReviewRating: DefaultReviewRatingWeight,
	}
}

// Totals are the raw counters for one entity over one calendar period.
type Totals struct {
	PVCount       int
	GiftPoints    int64
	GiftCount     int
	ReviewCount   int
	AverageRating float64
}

// Breakdown is the weighted result of one aggregation.
type Breakdown struct {
	Totals

	PVScore     float64
	GiftScore   float64
	ReviewScore float64
	TotalScore  float64
}

// Compute derives the weighted breakdown for one entity. Review signals
// apply to shop-kind entities only; cast scores carry no review term.
func Compute(kind types.EntityType, t Totals, w Weights) Breakdown {
	b := Breakdown{Totals: t}

	b.PVScore = w.PV * float64(t.PVCount)
	b.GiftScore = w.Gift * float64(t.GiftPoints)
	if kind == types.EntityShop {
		b.ReviewScore = w.ReviewCount*float64(t.ReviewCount) + w.ReviewRating*t.AverageRating
	}
	b.TotalScore = b.PVScore + b.GiftScore + b.ReviewScore

	return b
}
