package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	repository "github.com/yorunavi/engine/internal/adapters/repository"
	"github.com/yorunavi/engine/internal/domain/badge"
	"github.com/yorunavi/engine/internal/domain/entitle"
	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/ranking"
	"github.com/yorunavi/engine/internal/domain/scoring"
	"github.com/yorunavi/engine/internal/domain/trending"
	"github.com/yorunavi/engine/internal/domain/types"
	"github.com/yorunavi/engine/pkg/logger"
	"github.com/yorunavi/engine/pkg/metrics"
)

// openEndedHorizon bounds plan grants whose subscription auto-renews
// without an end date.
const openEndedHorizon = 100 * 365 * 24 * time.Hour

// JobSummary reports one job run. Jobs isolate per-entity failures; a
// non-nil error means the run as a whole could not proceed.
type JobSummary struct {
	Job        string    `json:"job"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

func (s *Service) entityKinds() []types.EntityType {
	return []types.EntityType{types.EntityCast, types.EntityShop}
}

// recordJob finishes a summary and emits the job metrics.
func (s *Service) recordJob(summary *JobSummary, err error) {
	summary.DurationMs = time.Since(summary.StartedAt).Milliseconds()
	metrics.RecordJobRun(summary.Job)
	metrics.RecordJobDuration(summary.Job, float64(summary.DurationMs))
	if err != nil || summary.Failed > 0 {
		metrics.RecordJobFailure(summary.Job)
	}
}

// RecomputeMonth rebuilds one period's scores and provisional ranks for
// one kind and area. Overridden rows keep their frozen scores and pinned
// ranks; a finalized period returns ErrConflict.
func (s *Service) RecomputeMonth(ctx context.Context, entityType types.EntityType, area string, year, month int) (int, error) {
	periodStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	existing, err := s.store.ListScores(ctx, entityType, area, year, month)
	if err != nil {
		return 0, fmt.Errorf("list scores: %w", err)
	}
	frozen := make(map[string]model.PeriodScore)
	for _, row := range existing {
		if row.IsFinalized {
			return 0, fmt.Errorf("%w: %s %s %d-%02d is finalized", repository.ErrConflict, entityType, area, year, month)
		}
		if row.IsOverridden {
			frozen[row.EntityID] = row
		}
	}

	pv, err := s.store.ViewCounts(ctx, entityType, area, periodStart, periodEnd)
	if err != nil {
		return 0, fmt.Errorf("view counts: %w", err)
	}

	var gifts map[string]repository.GiftAgg
	var reviews map[string]repository.ReviewAgg
	if entityType == types.EntityCast {
		if gifts, err = s.store.GiftTotals(ctx, periodStart, periodEnd); err != nil {
			return 0, fmt.Errorf("gift totals: %w", err)
		}
	} else {
		if reviews, err = s.store.ReviewStats(ctx, periodStart, periodEnd); err != nil {
			return 0, fmt.Errorf("review stats: %w", err)
		}
	}

	prevRanks, err := s.previousRanks(ctx, entityType, area, periodStart)
	if err != nil {
		return 0, fmt.Errorf("previous ranks: %w", err)
	}

	// Candidates are entities seen in this area during the period, plus
	// any frozen overridden rows.
	candidates := make([]string, 0, len(pv)+len(frozen))
	for id := range pv {
		candidates = append(candidates, id)
	}
	for id := range frozen {
		if _, seen := pv[id]; !seen {
			candidates = append(candidates, id)
		}
	}
	sort.Strings(candidates)

	rows := make([]model.PeriodScore, 0, len(candidates))
	for _, id := range candidates {
		if row, ok := frozen[id]; ok {
			rows = append(rows, row)
			continue
		}

		totals := scoring.Totals{PVCount: pv[id]}
		if g, ok := gifts[id]; ok {
			totals.GiftPoints = g.Points
			totals.GiftCount = g.Count
		}
		if r, ok := reviews[id]; ok {
			totals.ReviewCount = r.Count
			totals.AverageRating = r.AverageRating
		}
		bd := scoring.Compute(entityType, totals, s.weights)

		rows = append(rows, model.PeriodScore{
			EntityType:    entityType,
			EntityID:      id,
			Area:          area,
			Year:          year,
			Month:         month,
			PVCount:       bd.PVCount,
			GiftPoints:    bd.GiftPoints,
			GiftCount:     bd.GiftCount,
			ReviewCount:   bd.ReviewCount,
			AverageRating: bd.AverageRating,
			PVScore:       bd.PVScore,
			GiftScore:     bd.GiftScore,
			ReviewScore:   bd.ReviewScore,
			TotalScore:    bd.TotalScore,
			PreviousRank:  prevRanks[id],
		})
	}

	s.rankRows(rows)

	if err := s.store.SaveScores(ctx, rows); err != nil {
		return 0, fmt.Errorf("save scores: %w", err)
	}
	return len(rows), nil
}

// previousRanks maps entity ids to their finalized rank one month back.
func (s *Service) previousRanks(ctx context.Context, entityType types.EntityType, area string, periodStart time.Time) (map[string]*int, error) {
	prev := periodStart.AddDate(0, -1, 0)
	rows, err := s.store.ListScores(ctx, entityType, area, prev.Year(), int(prev.Month()))
	if err != nil {
		return nil, err
	}

	ranks := make(map[string]*int, len(rows))
	for _, row := range rows {
		if row.IsFinalized && row.Rank != nil {
			r := *row.Rank
			ranks[row.EntityID] = &r
		}
	}
	return ranks, nil
}

// rankRows orders rows by score, packs ranks around pinned overrides,
// and nils out ranks beyond the configured top count. Disqualified rows
// (overridden with no rank) stay unranked.
func (s *Service) rankRows(rows []model.PeriodScore) {
	entries := make([]ranking.Entry, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		index[row.EntityID] = i
		if row.IsOverridden && row.Rank == nil {
			continue // disqualified
		}
		entries = append(entries, ranking.Entry{
			EntityID:   row.EntityID,
			TotalScore: row.TotalScore,
			GiftPoints: row.GiftPoints,
			PVCount:    row.PVCount,
			Rank:       row.Rank,
			Pinned:     row.IsOverridden,
		})
	}

	ranking.SortByScore(entries)
	ranking.Repack(entries)

	for i := range rows {
		rows[i].Rank = nil
	}
	for _, e := range entries {
		if e.Rank == nil || (s.topCount > 0 && *e.Rank > s.topCount) {
			continue
		}
		r := *e.Rank
		rows[index[e.EntityID]].Rank = &r
	}
}

// FinalizeMonth recomputes and freezes one period across every active
// area and kind, then issues badges and ranking entitlements for the
// top ranks. Already-frozen slices are skipped so a killed run can be
// re-run; a period with nothing left to freeze returns ErrAlreadyFinal.
// Per-entity failures are collected, not fatal.
func (s *Service) FinalizeMonth(ctx context.Context, year, month int) (JobSummary, error) {
	summary := JobSummary{Job: "finalize", StartedAt: time.Now()}
	defer func() { s.recordJob(&summary, nil) }()

	now := s.now()

	var frozenSlices, skippedFinal int
	for _, kind := range s.entityKinds() {
		for _, area := range s.areas {
			existing, err := s.store.ListScores(ctx, kind, area, year, month)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("list %s/%s: %v", kind, area, err))
				continue
			}
			// A run killed mid-way resumes by skipping the slices it
			// already froze.
			alreadyFinal := false
			for _, row := range existing {
				if row.IsFinalized {
					alreadyFinal = true
					break
				}
			}
			if alreadyFinal {
				skippedFinal++
				continue
			}

			if _, err := s.RecomputeMonth(ctx, kind, area, year, month); err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("recompute %s/%s: %v", kind, area, err))
				continue
			}

			rows, err := s.store.ListScores(ctx, kind, area, year, month)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("list %s/%s: %v", kind, area, err))
				continue
			}

			for i := range rows {
				rows[i].IsFinalized = true
				finalizedAt := now
				rows[i].FinalizedAt = &finalizedAt
			}
			if err := s.store.SaveScores(ctx, rows); err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("freeze %s/%s: %v", kind, area, err))
				continue
			}
			if len(rows) > 0 {
				frozenSlices++
			}

			for _, row := range rows {
				if row.Rank == nil || *row.Rank > badge.MaxBadgeRank {
					continue
				}
				if err := s.issueAwards(ctx, row); err != nil {
					summary.Failed++
					summary.Errors = append(summary.Errors, fmt.Sprintf("awards %s %s: %v", kind, row.EntityID, err))
					s.logger.Error(ctx, "award issue failed",
						logger.String("entityID", row.EntityID),
						logger.Error(err),
					)
					continue
				}
				summary.Processed++
			}
			metrics.RecordFinalization()
		}
	}

	// Only a re-run that found nothing left to freeze is a conflict.
	if frozenSlices == 0 && skippedFinal > 0 {
		return summary, fmt.Errorf("%w: %d-%02d", ranking.ErrAlreadyFinal, year, month)
	}

	return summary, nil
}

// issueAwards writes the badge and ranking entitlements one top-10 row
// earns. Idempotent on the score row id.
func (s *Service) issueAwards(ctx context.Context, row model.PeriodScore) error {
	tier, ok := badge.TierFor(*row.Rank)
	if !ok {
		return nil
	}
	from, until := badge.ValidityWindow(row.Year, row.Month, time.UTC)

	b := model.Badge{
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		RankingID:  row.ID,
		Tier:       tier,
		Rank:       *row.Rank,
		Area:       row.Area,
		Year:       row.Year,
		Month:      row.Month,
		ValidFrom:  from,
		ValidUntil: until,
	}
	if err := s.store.UpsertBadge(ctx, &b); err != nil {
		return fmt.Errorf("upsert badge: %w", err)
	}
	metrics.RecordBadgeAwarded()

	for _, placement := range entitle.PlacementsForRank(*row.Rank) {
		e := model.Entitlement{
			TargetType:    row.EntityType,
			TargetID:      row.EntityID,
			PlacementType: placement,
			Area:          row.Area,
			Priority:      entitle.RankingPriority(*row.Rank),
			StartsAt:      from,
			EndsAt:        until,
			SourceType:    types.SourceRanking,
			SourceID:      row.ID,
			Rank:          *row.Rank,
			IsActive:      true,
			CreatedBy:     "system",
		}
		if err := s.store.UpsertEntitlement(ctx, &e); err != nil {
			return fmt.Errorf("upsert entitlement %s: %w", placement, err)
		}
		metrics.RecordEntitlementUpsert()
	}
	return nil
}

// revokeAwards removes the badge and deactivates the grants derived from
// one score row.
func (s *Service) revokeAwards(ctx context.Context, row model.PeriodScore) error {
	if err := s.store.DeleteBadgeByRanking(ctx, row.ID); err != nil {
		return fmt.Errorf("delete badge: %w", err)
	}
	n, err := s.store.DeactivateBySource(ctx, types.SourceRanking, row.ID)
	if err != nil {
		return fmt.Errorf("deactivate grants: %w", err)
	}
	metrics.RecordEntitlementDeactivations(n)
	return nil
}

// OverrideRank pins one finalized score row at a new rank and re-packs
// the rest of the period around it. Awards follow the new ranks.
func (s *Service) OverrideRank(ctx context.Context, scoreID string, newRank int, reason, actor string) error {
	target, err := s.store.GetScoreByID(ctx, scoreID)
	if err != nil {
		return err
	}
	if !target.IsFinalized {
		return fmt.Errorf("%w: period %d-%02d is not finalized", repository.ErrConflict, target.Year, target.Month)
	}

	rows, err := s.store.ListScores(ctx, target.EntityType, target.Area, target.Year, target.Month)
	if err != nil {
		return fmt.Errorf("list scores: %w", err)
	}

	entries := overrideEntries(rows, target.EntityID)
	if err := ranking.Pin(entries, target.EntityID, newRank); err != nil {
		return err
	}

	now := s.now()
	before := rankSnapshot(rows)
	applyRanks(rows, entries)
	for i := range rows {
		if rows[i].EntityID != target.EntityID {
			continue
		}
		rows[i].IsOverridden = true
		rows[i].OverrideReason = reason
		rows[i].OverriddenBy = actor
		overriddenAt := now
		rows[i].OverriddenAt = &overriddenAt
	}

	if err := s.store.SaveScores(ctx, rows); err != nil {
		return fmt.Errorf("save scores: %w", err)
	}
	if err := s.reissueMovedAwards(ctx, rows, before); err != nil {
		return err
	}
	metrics.RecordRankOverride()
	return nil
}

// Disqualify strips one score row of its rank, closes the gap, and
// revokes the row's awards. The row itself stays for auditability.
func (s *Service) Disqualify(ctx context.Context, scoreID string, reason, actor string) error {
	target, err := s.store.GetScoreByID(ctx, scoreID)
	if err != nil {
		return err
	}

	rows, err := s.store.ListScores(ctx, target.EntityType, target.Area, target.Year, target.Month)
	if err != nil {
		return fmt.Errorf("list scores: %w", err)
	}

	entries := overrideEntries(rows, "")
	entries, _ = ranking.Remove(entries, target.EntityID)

	now := s.now()
	before := rankSnapshot(rows)
	applyRanks(rows, entries)
	for i := range rows {
		if rows[i].EntityID != target.EntityID {
			continue
		}
		rows[i].Rank = nil
		rows[i].IsOverridden = true
		rows[i].OverrideReason = reason
		rows[i].OverriddenBy = actor
		overriddenAt := now
		rows[i].OverriddenAt = &overriddenAt
	}

	if err := s.store.SaveScores(ctx, rows); err != nil {
		return fmt.Errorf("save scores: %w", err)
	}
	if err := s.revokeAwards(ctx, target); err != nil {
		return err
	}
	if err := s.reissueMovedAwards(ctx, rows, before); err != nil {
		return err
	}
	metrics.RecordDisqualification()
	return nil
}

// overrideEntries builds rank entries from a period's rows. Unranked
// rows are excluded unless they are the override target; overridden rows
// enter pinned so Repack leaves them alone.
func overrideEntries(rows []model.PeriodScore, targetID string) []ranking.Entry {
	entries := make([]ranking.Entry, 0, len(rows))
	for _, row := range rows {
		if row.Rank == nil && row.EntityID != targetID {
			continue
		}
		entries = append(entries, ranking.Entry{
			EntityID:   row.EntityID,
			TotalScore: row.TotalScore,
			GiftPoints: row.GiftPoints,
			PVCount:    row.PVCount,
			Rank:       row.Rank,
			Pinned:     row.IsOverridden && row.Rank != nil,
		})
	}
	return entries
}

// rankSnapshot captures current ranks by entity id.
func rankSnapshot(rows []model.PeriodScore) map[string]*int {
	snap := make(map[string]*int, len(rows))
	for _, row := range rows {
		if row.Rank != nil {
			r := *row.Rank
			snap[row.EntityID] = &r
		} else {
			snap[row.EntityID] = nil
		}
	}
	return snap
}

// applyRanks writes entry ranks back onto their rows. Rows absent from
// entries keep a nil rank.
func applyRanks(rows []model.PeriodScore, entries []ranking.Entry) {
	ranked := make(map[string]*int, len(entries))
	for _, e := range entries {
		ranked[e.EntityID] = e.Rank
	}
	for i := range rows {
		r, ok := ranked[rows[i].EntityID]
		if !ok || r == nil {
			rows[i].Rank = nil
			continue
		}
		v := *r
		rows[i].Rank = &v
	}
}

// reissueMovedAwards refreshes awards for rows whose rank crossed the
// badge boundary or moved inside it.
func (s *Service) reissueMovedAwards(ctx context.Context, rows []model.PeriodScore, before map[string]*int) error {
	for _, row := range rows {
		prev := before[row.EntityID]
		cur := row.Rank

		wasTop := prev != nil && *prev <= badge.MaxBadgeRank
		isTop := cur != nil && *cur <= badge.MaxBadgeRank

		switch {
		case isTop && (prev == nil || *prev != *cur):
			if err := s.issueAwards(ctx, row); err != nil {
				return err
			}
		case wasTop && !isTop:
			if err := s.revokeAwards(ctx, row); err != nil {
				return err
			}
		}
	}
	return nil
}

// SyncPlanEntitlements reconciles plan-sourced grants with the billing
// subscriptions: live plans hold exactly their tier's capability set
// (a downgrade sheds the difference), dead plans lose it all. Manual
// and ranking grants are untouched.
func (s *Service) SyncPlanEntitlements(ctx context.Context) (JobSummary, error) {
	summary := JobSummary{Job: "plan_sync", StartedAt: time.Now()}
	defer func() { s.recordJob(&summary, nil) }()

	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return summary, fmt.Errorf("list plans: %w", err)
	}

	now := s.now()
	for _, plan := range plans {
		if !plan.Live(now) {
			n, err := s.store.DeactivateByTarget(ctx, types.EntityShop, plan.ShopID, types.SourcePlan)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("deactivate %s: %v", plan.ShopID, err))
				continue
			}
			metrics.RecordEntitlementDeactivations(n)
			summary.Processed++
			continue
		}

		endsAt := now.Add(openEndedHorizon)
		if plan.EndsAt != nil {
			endsAt = *plan.EndsAt
		}

		caps := entitle.PlanCapabilities(plan.Tier)
		// A downgrade must lose the placements the new tier no longer
		// includes before the current set is granted.
		if err := s.deactivateStalePlanGrants(ctx, plan.ShopID, caps); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("stale grants %s: %v", plan.ShopID, err))
			continue
		}
		failed := false
		for _, placement := range caps.Placements() {
			e := model.Entitlement{
				TargetType:    types.EntityShop,
				TargetID:      plan.ShopID,
				PlacementType: placement,
				Priority:      entitle.PlanPriority(plan.Tier),
				StartsAt:      plan.StartsAt,
				EndsAt:        endsAt,
				SourceType:    types.SourcePlan,
				SourceID:      plan.ID,
				IsActive:      true,
				CreatedBy:     "system",
			}
			if err := s.store.UpsertEntitlement(ctx, &e); err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("grant %s/%s: %v", plan.ShopID, placement, err))
				failed = true
				break
			}
			metrics.RecordEntitlementUpsert()
		}
		if !failed {
			summary.Processed++
		}
	}

	return summary, nil
}

// deactivateStalePlanGrants flips off a shop's active plan-sourced
// grants whose placement the current tier no longer includes.
func (s *Service) deactivateStalePlanGrants(ctx context.Context, shopID string, caps types.Capabilities) error {
	grants, err := s.store.ListForTarget(ctx, types.EntityShop, shopID)
	if err != nil {
		return fmt.Errorf("list grants: %w", err)
	}
	for _, g := range grants {
		if g.SourceType != types.SourcePlan || !g.IsActive {
			continue
		}
		if caps.Contains(g.PlacementType) {
			continue
		}
		g.IsActive = false
		if err := s.store.UpsertEntitlement(ctx, &g); err != nil {
			return fmt.Errorf("deactivate %s: %w", g.PlacementType, err)
		}
		metrics.RecordEntitlementDeactivations(1)
	}
	return nil
}

// RecomputeTrending materializes a fresh trending batch per kind and
// area from the two adjacent view windows, then purges stale batches.
func (s *Service) RecomputeTrending(ctx context.Context) (JobSummary, error) {
	summary := JobSummary{Job: "trending", StartedAt: time.Now()}
	defer func() { s.recordJob(&summary, nil) }()

	now := s.now()
	calculatedAt := now
	windowStart := now.Add(-s.trendingWindow)
	prevStart := now.Add(-2 * s.trendingWindow)

	var batch []model.TrendingSnapshot
	for _, kind := range s.entityKinds() {
		for _, area := range s.areas {
			current, err := s.store.ViewCounts(ctx, kind, area, windowStart, now)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("counts %s/%s: %v", kind, area, err))
				continue
			}
			previous, err := s.store.ViewCounts(ctx, kind, area, prevStart, windowStart)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("counts %s/%s: %v", kind, area, err))
				continue
			}

			counts := mergeWindowCounts(kind, area, current, previous)
			for _, row := range trending.Compute(counts, s.trendingMinCount, trending.DefaultTopPerArea) {
				batch = append(batch, model.TrendingSnapshot{
					EntityType:   row.EntityType,
					EntityID:     row.EntityID,
					Area:         row.Area,
					CurrentPV:    row.Current,
					PreviousPV:   row.Previous,
					GrowthRate:   row.GrowthRate,
					Rank:         row.Rank,
					CalculatedAt: calculatedAt,
				})
			}
		}
	}

	if len(batch) > 0 {
		if err := s.store.SaveTrendingBatch(ctx, batch); err != nil {
			return summary, fmt.Errorf("save trending batch: %w", err)
		}
	}
	if _, err := s.store.PurgeTrendingBefore(ctx, now.Add(-24*time.Hour)); err != nil {
		return summary, fmt.Errorf("purge trending: %w", err)
	}

	summary.Processed = len(batch)
	metrics.UpdateTrendingBatchSize(len(batch))
	metrics.RecordTrendingBatchDuration(float64(time.Since(summary.StartedAt).Milliseconds()))
	return summary, nil
}

// mergeWindowCounts unions the two window maps into trending inputs.
func mergeWindowCounts(kind types.EntityType, area string, current, previous map[string]int) []trending.Counts {
	ids := make(map[string]struct{}, len(current)+len(previous))
	for id := range current {
		ids[id] = struct{}{}
	}
	for id := range previous {
		ids[id] = struct{}{}
	}

	out := make([]trending.Counts, 0, len(ids))
	for id := range ids {
		out = append(out, trending.Counts{
			EntityType: kind,
			EntityID:   id,
			Area:       area,
			Current:    current[id],
			Previous:   previous[id],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// CleanupViews drops raw view events older than the retention window.
func (s *Service) CleanupViews(ctx context.Context) (JobSummary, error) {
	summary := JobSummary{Job: "view_cleanup", StartedAt: time.Now()}
	defer func() { s.recordJob(&summary, nil) }()

	dropped, err := s.store.DeleteViewsBefore(ctx, s.now().Add(-s.viewRetention))
	if err != nil {
		return summary, fmt.Errorf("delete views: %w", err)
	}
	summary.Processed = int(dropped)
	return summary, nil
}
