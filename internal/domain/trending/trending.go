// Package trending computes short-window growth rankings from paired
// view counts. The computation is pure; the caller supplies the counts
// for the current and previous windows and persists the result batch.
package trending

import (
	"sort"

	"github.com/yorunavi/engine/internal/domain/types"
)

// DefaultTopPerArea caps how many rows one area's batch keeps.
const DefaultTopPerArea = 50

// Counts pairs the two window totals for one entity in one area.
type Counts struct {
	EntityType types.EntityType
	EntityID   string
	Area       string
	Current    int
	Previous   int
}

// Row is one ranked output of a trending batch.
type Row struct {
	EntityType types.EntityType
	EntityID   string
	Area       string
	Current    int
	Previous   int
	GrowthRate float64
	Rank       int
}

// Growth returns (current-previous)/max(previous,1). A flat previous
// window therefore reads the current count as its own growth factor
// instead of dividing by zero.
func Growth(current, previous int) float64 {
	base := previous
	if base < 1 {
		base = 1
	}
	return float64(current-previous) / float64(base)
}

// Compute ranks one area's candidates by growth. Entities below minCount
// current views are dropped as noise, the rest are ordered by growth
// rate, then current count, then entity id, and capped at limit rows
// (DefaultTopPerArea when limit <= 0). Ranks are 1-based and contiguous.
func Compute(counts []Counts, minCount, limit int) []Row {
	if limit <= 0 {
		limit = DefaultTopPerArea
	}

	rows := make([]Row, 0, len(counts))
	for _, c := range counts {
		if c.Current < minCount {
			continue
		}
		rows = append(rows, Row{
			EntityType: c.EntityType,
			EntityID:   c.EntityID,
			Area:       c.Area,
			Current:    c.Current,
			Previous:   c.Previous,
			GrowthRate: Growth(c.Current, c.Previous),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].GrowthRate != rows[j].GrowthRate {
			return rows[i].GrowthRate > rows[j].GrowthRate
		}
		if rows[i].Current != rows[j].Current {
			return rows[i].Current > rows[j].Current
		}
		return rows[i].EntityID < rows[j].EntityID
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
