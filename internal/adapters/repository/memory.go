package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
)

// MemoryStore is the in-process Store used by tests and DSN-less local
// runs. One mutex guards everything; none of the hot paths here need to
// scale past a developer laptop.
type MemoryStore struct {
	mu sync.RWMutex

	views    []model.ViewEvent
	viewIDs  map[string]struct{}
	scores   map[string]model.PeriodScore // natural key
	badges   map[string]model.Badge       // keyed by ranking id
	grants   map[string]model.Entitlement // natural key
	trending []model.TrendingSnapshot
	plans    map[string]model.PlanSubscription // keyed by shop id
	gifts    []model.GiftTransaction
	reviews  []model.Review
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		viewIDs: make(map[string]struct{}),
		scores:  make(map[string]model.PeriodScore),
		badges:  make(map[string]model.Badge),
		grants:  make(map[string]model.Entitlement),
		plans:   make(map[string]model.PlanSubscription),
	}
}

func scoreKey(entityType types.EntityType, entityID, area string, year, month int) string {
	return fmt.Sprintf("%s|%s|%s|%04d-%02d", entityType, entityID, area, year, month)
}

func grantKey(e *model.Entitlement) string {
	return strings.Join([]string{
		string(e.TargetType), e.TargetID, string(e.PlacementType),
		string(e.SourceType), e.SourceID,
	}, "|")
}

// InsertView stores one counted view.
func (m *MemoryStore) InsertView(_ context.Context, v model.ViewEvent) error {
	if v.EventID == "" {
		return fmt.Errorf("%w: empty event id", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.viewIDs[v.EventID]; ok {
		return fmt.Errorf("%w: view %s", ErrConflict, v.EventID)
	}
	m.viewIDs[v.EventID] = struct{}{}
	m.views = append(m.views, v)
	return nil
}

// HasViewSince reports whether a counted view exists after cutoff.
func (m *MemoryStore) HasViewSince(_ context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey, cutoff time.Time) (bool, error) {
	key := viewer.String()
	if key == "" {
		return false, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.views) - 1; i >= 0; i-- {
		v := m.views[i]
		if v.EntityType != entityType || v.EntityID != entityID {
			continue
		}
		if v.ViewerKey.String() != key {
			continue
		}
		if v.ViewedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// ViewCounts returns per-entity counted views in [from, to).
func (m *MemoryStore) ViewCounts(_ context.Context, entityType types.EntityType, area string, from, to time.Time) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int)
	for _, v := range m.views {
		if v.EntityType != entityType {
			continue
		}
		if area != "" && v.Area != area {
			continue
		}
		if v.ViewedAt.Before(from) || !v.ViewedAt.Before(to) {
			continue
		}
		out[v.EntityID]++
	}
	return out, nil
}

// DeleteViewsBefore drops raw views older than cutoff.
func (m *MemoryStore) DeleteViewsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.views[:0]
	var dropped int64
	for _, v := range m.views {
		if v.ViewedAt.Before(cutoff) {
			delete(m.viewIDs, v.EventID)
			dropped++
			continue
		}
		kept = append(kept, v)
	}
	m.views = kept
	return dropped, nil
}

// UpsertScore inserts or refreshes one period score row.
func (m *MemoryStore) UpsertScore(_ context.Context, s *model.PeriodScore) error {
	if s.EntityID == "" || !s.EntityType.Valid() {
		return fmt.Errorf("%w: score needs a valid entity", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertScoreLocked(s)
	return nil
}

func (m *MemoryStore) upsertScoreLocked(s *model.PeriodScore) {
	key := scoreKey(s.EntityType, s.EntityID, s.Area, s.Year, s.Month)
	now := time.Now()
	if existing, ok := m.scores[key]; ok {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	} else {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.scores[key] = *s
}

// SaveScores writes a batch of rows.
func (m *MemoryStore) SaveScores(_ context.Context, scores []model.PeriodScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range scores {
		m.upsertScoreLocked(&scores[i])
	}
	return nil
}

// GetScore returns one row or ErrNotFound.
func (m *MemoryStore) GetScore(_ context.Context, entityType types.EntityType, entityID, area string, year, month int) (model.PeriodScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scores[scoreKey(entityType, entityID, area, year, month)]
	if !ok {
		return model.PeriodScore{}, fmt.Errorf("%w: score for %s %s", ErrNotFound, entityType, entityID)
	}
	return s, nil
}

// GetScoreByID returns the row with the given id or ErrNotFound.
func (m *MemoryStore) GetScoreByID(_ context.Context, id string) (model.PeriodScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.scores {
		if s.ID == id {
			return s, nil
		}
	}
	return model.PeriodScore{}, fmt.Errorf("%w: score %s", ErrNotFound, id)
}

// ListScores returns one period's rows, ranked rows first.
func (m *MemoryStore) ListScores(_ context.Context, entityType types.EntityType, area string, year, month int) ([]model.PeriodScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.PeriodScore, 0)
	for _, s := range m.scores {
		if s.EntityType == entityType && s.Area == area && s.Year == year && s.Month == month {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Rank, out[j].Rank
		switch {
		case a != nil && b != nil:
			if *a != *b {
				return *a < *b
			}
		case a != nil:
			return true
		case b != nil:
			return false
		}
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

// UpsertBadge inserts or refreshes a badge keyed by its ranking row.
func (m *MemoryStore) UpsertBadge(_ context.Context, b *model.Badge) error {
	if b.RankingID == "" {
		return fmt.Errorf("%w: badge needs a ranking id", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.badges[b.RankingID]; ok {
		b.ID = existing.ID
		b.CreatedAt = existing.CreatedAt
	} else {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		b.CreatedAt = time.Now()
	}
	m.badges[b.RankingID] = *b
	return nil
}

// DeleteBadgeByRanking removes the badge derived from one ranking row.
func (m *MemoryStore) DeleteBadgeByRanking(_ context.Context, rankingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.badges, rankingID)
	return nil
}

// ListBadges returns an entity's badges newest first.
func (m *MemoryStore) ListBadges(_ context.Context, entityType types.EntityType, entityID string) ([]model.Badge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Badge, 0)
	for _, b := range m.badges {
		if b.EntityType == entityType && b.EntityID == entityID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom.After(out[j].ValidFrom) })
	return out, nil
}

// UpsertEntitlement inserts or refreshes a grant on its natural key.
func (m *MemoryStore) UpsertEntitlement(_ context.Context, e *model.Entitlement) error {
	if !e.PlacementType.Valid() {
		return fmt.Errorf("%w: unknown placement %q", ErrValidation, e.PlacementType)
	}
	if e.TargetID == "" || !e.TargetType.Valid() {
		return fmt.Errorf("%w: grant needs a valid target", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := grantKey(e)
	now := time.Now()
	if existing, ok := m.grants[key]; ok {
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
	} else {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	m.grants[key] = *e
	return nil
}

// DeactivateBySource flips every active grant from one source off.
func (m *MemoryStore) DeactivateBySource(_ context.Context, sourceType types.SourceType, sourceID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, g := range m.grants {
		if g.SourceType != sourceType || !g.IsActive {
			continue
		}
		if sourceID != "" && g.SourceID != sourceID {
			continue
		}
		g.IsActive = false
		g.UpdatedAt = time.Now()
		m.grants[key] = g
		n++
	}
	return n, nil
}

// DeactivateByTarget flips a target's active grants from one source off.
func (m *MemoryStore) DeactivateByTarget(_ context.Context, targetType types.EntityType, targetID string, sourceType types.SourceType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, g := range m.grants {
		if g.TargetType != targetType || g.TargetID != targetID {
			continue
		}
		if g.SourceType != sourceType || !g.IsActive {
			continue
		}
		g.IsActive = false
		g.UpdatedAt = time.Now()
		m.grants[key] = g
		n++
	}
	return n, nil
}

// ListEffective returns grants live at now for one placement.
func (m *MemoryStore) ListEffective(_ context.Context, placement types.PlacementType, area string, now time.Time) ([]model.Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Entitlement, 0)
	for _, g := range m.grants {
		if g.PlacementType != placement || !g.Effective(now) {
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
	return out, nil
}

// ListForTarget returns every grant of one target, newest first.
func (m *MemoryStore) ListForTarget(_ context.Context, targetType types.EntityType, targetID string) ([]model.Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Entitlement, 0)
	for _, g := range m.grants {
		if g.TargetType == targetType && g.TargetID == targetID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SaveTrendingBatch stores one trending batch.
func (m *MemoryStore) SaveTrendingBatch(_ context.Context, rows []model.TrendingSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
	}
	m.trending = append(m.trending, rows...)
	return nil
}

// LatestTrending returns rows of the newest batch for one kind and area.
func (m *MemoryStore) LatestTrending(_ context.Context, entityType types.EntityType, area string, limit int) ([]model.TrendingSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest time.Time
	for _, r := range m.trending {
		if r.EntityType == entityType && r.Area == area && r.CalculatedAt.After(latest) {
			latest = r.CalculatedAt
		}
	}
	if latest.IsZero() {
		return nil, nil
	}

	out := make([]model.TrendingSnapshot, 0)
	for _, r := range m.trending {
		if r.EntityType == entityType && r.Area == area && r.CalculatedAt.Equal(latest) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PurgeTrendingBefore drops batches older than cutoff.
func (m *MemoryStore) PurgeTrendingBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.trending[:0]
	var dropped int64
	for _, r := range m.trending {
		if r.CalculatedAt.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	m.trending = kept
	return dropped, nil
}

// UpsertPlan stores one subscription row keyed by shop.
func (m *MemoryStore) UpsertPlan(_ context.Context, p *model.PlanSubscription) error {
	if p.ShopID == "" {
		return fmt.Errorf("%w: plan needs a shop id", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		if existing, ok := m.plans[p.ShopID]; ok {
			p.ID = existing.ID
		} else {
			p.ID = uuid.NewString()
		}
	}
	p.UpdatedAt = time.Now()
	m.plans[p.ShopID] = *p
	return nil
}

// ListPlans returns every subscription row.
func (m *MemoryStore) ListPlans(_ context.Context) ([]model.PlanSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.PlanSubscription, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShopID < out[j].ShopID })
	return out, nil
}

// InsertGift stores one gift transaction.
func (m *MemoryStore) InsertGift(_ context.Context, g *model.GiftTransaction) error {
	if g.CastID == "" {
		return fmt.Errorf("%w: gift needs a cast id", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	m.gifts = append(m.gifts, *g)
	return nil
}

// GiftTotals aggregates completed transactions per cast in [from, to).
func (m *MemoryStore) GiftTotals(_ context.Context, from, to time.Time) (map[string]GiftAgg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]GiftAgg)
	for _, g := range m.gifts {
		if g.Status != model.GiftCompleted {
			continue
		}
		if g.CreatedAt.Before(from) || !g.CreatedAt.Before(to) {
			continue
		}
		agg := out[g.CastID]
		agg.Points += g.Points
		agg.Count++
		out[g.CastID] = agg
	}
	return out, nil
}

// InsertReview stores one review.
func (m *MemoryStore) InsertReview(_ context.Context, r *model.Review) error {
	if r.ShopID == "" {
		return fmt.Errorf("%w: review needs a shop id", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.reviews = append(m.reviews, *r)
	return nil
}

// ReviewStats aggregates reviews per shop in [from, to).
func (m *MemoryStore) ReviewStats(_ context.Context, from, to time.Time) (map[string]ReviewAgg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range m.reviews {
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		sums[r.ShopID] += r.Rating
		counts[r.ShopID]++
	}

	out := make(map[string]ReviewAgg, len(counts))
	for shopID, n := range counts {
		out[shopID] = ReviewAgg{Count: n, AverageRating: sums[shopID] / float64(n)}
	}
	return out, nil
}
