// Package ranking orders period scores and manages rank assignment.
//
// All functions operate on slices in place and are pure with respect to
// the store: callers load the month's rows, apply an operation, and
// persist the result in one transaction.
package ranking

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrRankTaken    = errors.New("rank already pinned")
	ErrInvalidRank  = errors.New("invalid rank")
	ErrNotRanked    = errors.New("entity not ranked")
	ErrAlreadyFinal = errors.New("period already finalized")
)

// Entry is the minimal view of a period score the ranker needs. Keeping
// the interface small lets tests rank plain fixtures.
type Entry struct {
	EntityID   string
	TotalScore float64
	GiftPoints int64
	PVCount    int

	// Rank is nil for disqualified entries. Pinned marks ranks fixed by
	// an operator override; Repack never moves them.
	Rank   *int
	Pinned bool
}

// SortByScore orders entries best-first: total score, then gift points,
// then pv count, all descending. Equal entries keep their input order so
// repeated recomputations are stable.
func SortByScore(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.GiftPoints != b.GiftPoints {
			return a.GiftPoints > b.GiftPoints
		}
		return a.PVCount > b.PVCount
	})
}

// AssignRanks sorts and numbers every entry 1..N. Disqualification is
// expressed by excluding the entry from the slice before calling.
func AssignRanks(entries []Entry) {
	SortByScore(entries)
	for i := range entries {
		r := i + 1
		entries[i].Rank = &r
	}
}

// Repack renumbers non-pinned entries around pinned ones. Entries must
// already be in score order; pinned ranks are skipped, everything else
// receives the next free rank. Ranks stay contiguous over the union of
// pinned and free slots.
func Repack(entries []Entry) {
	taken := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.Pinned && e.Rank != nil {
			taken[*e.Rank] = true
		}
	}

	next := 1
	for i := range entries {
		if entries[i].Pinned {
			continue
		}
		for taken[next] {
			next++
		}
		r := next
		entries[i].Rank = &r
		next++
	}
}

// Pin fixes one entity at the given rank and re-packs the rest. Pinning
// the same rank twice fails; unpin the previous holder first.
func Pin(entries []Entry, entityID string, rank int) error {
	if rank < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidRank, rank)
	}

	idx := -1
	for i := range entries {
		if entries[i].EntityID == entityID {
			idx = i
			continue
		}
		if entries[i].Pinned && entries[i].Rank != nil && *entries[i].Rank == rank {
			return fmt.Errorf("%w: rank %d held by %s", ErrRankTaken, rank, entries[i].EntityID)
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotRanked, entityID)
	}

	r := rank
	entries[idx].Rank = &r
	entries[idx].Pinned = true
	Repack(entries)
	return nil
}

// Remove drops one entity from the slice and re-packs the remainder.
// Returns the shortened slice; the caller persists the removed entity
// with a nil rank separately.
func Remove(entries []Entry, entityID string) ([]Entry, bool) {
	idx := -1
	for i := range entries {
		if entries[i].EntityID == entityID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return entries, false
	}
	entries = append(entries[:idx], entries[idx+1:]...)
	Repack(entries)
	return entries, true
}
