package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
)

const connectTimeout = 5 * time.Second

// GormStore is the Postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

// Connect opens the Postgres store, verifies connectivity, and migrates
// the schema.
func Connect(dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", ErrValidation)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&viewRow{}, &scoreRow{}, &badgeRow{}, &entitlementRow{},
		&trendingRow{}, &planRow{}, &giftRow{}, &reviewRow{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &GormStore{db: db}, nil
}

// NewGormStore wraps an existing GORM handle (tests, shared pools).
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertView stores one counted view.
func (s *GormStore) InsertView(ctx context.Context, v model.ViewEvent) error {
	if v.EventID == "" {
		return fmt.Errorf("%w: empty event id", ErrValidation)
	}

	row := viewRowFromModel(v)
	create := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return fmt.Errorf("%w: view %s", ErrConflict, v.EventID)
		}
		return fmt.Errorf("insert view: %w", create.Error)
	}
	if create.RowsAffected == 0 {
		return fmt.Errorf("%w: view %s", ErrConflict, v.EventID)
	}
	return nil
}

// HasViewSince reports whether a counted view exists after cutoff.
func (s *GormStore) HasViewSince(ctx context.Context, entityType types.EntityType, entityID string, viewer model.ViewerKey, cutoff time.Time) (bool, error) {
	key := viewer.String()
	if key == "" {
		return false, nil
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&viewRow{}).
		Where("entity_type = ?", string(entityType)).
		Where("entity_id = ?", entityID).
		Where("viewer_key = ?", key).
		Where("viewed_at > ?", cutoff.UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count recent views: %w", err)
	}
	return count > 0, nil
}

// ViewCounts returns per-entity counted views in [from, to).
func (s *GormStore) ViewCounts(ctx context.Context, entityType types.EntityType, area string, from, to time.Time) (map[string]int, error) {
	tx := s.db.WithContext(ctx).Model(&viewRow{}).
		Select("entity_id, COUNT(*) AS views").
		Where("entity_type = ?", string(entityType)).
		Where("viewed_at >= ? AND viewed_at < ?", from.UTC(), to.UTC()).
		Group("entity_id")
	if area != "" {
		tx = tx.Where("area = ?", area)
	}

	var rows []struct {
		EntityID string
		Views    int
	}
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count views: %w", err)
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.EntityID] = r.Views
	}
	return out, nil
}

// DeleteViewsBefore drops raw views older than cutoff.
func (s *GormStore) DeleteViewsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("viewed_at < ?", cutoff.UTC()).
		Delete(&viewRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old views: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// scoreConflictColumns is the natural key of a period score row.
var scoreConflictColumns = []clause.Column{
	{Name: "entity_type"}, {Name: "entity_id"}, {Name: "area"},
	{Name: "year"}, {Name: "month"},
}

// UpsertScore inserts or refreshes one period score row.
func (s *GormStore) UpsertScore(ctx context.Context, sc *model.PeriodScore) error {
	if sc.EntityID == "" || !sc.EntityType.Valid() {
		return fmt.Errorf("%w: score needs a valid entity", ErrValidation)
	}
	return s.upsertScore(s.db.WithContext(ctx), sc)
}

func (s *GormStore) upsertScore(tx *gorm.DB, sc *model.PeriodScore) error {
	row := scoreRowFromModel(*sc)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	create := tx.Clauses(clause.OnConflict{
		Columns: scoreConflictColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"pv_count":        row.PVCount,
			"gift_points":     row.GiftPoints,
			"gift_count":      row.GiftCount,
			"review_count":    row.ReviewCount,
			"average_rating":  row.AverageRating,
			"pv_score":        row.PVScore,
			"gift_score":      row.GiftScore,
			"review_score":    row.ReviewScore,
			"total_score":     row.TotalScore,
			"rank":            row.Rank,
			"previous_rank":   row.PreviousRank,
			"is_finalized":    row.IsFinalized,
			"finalized_at":    row.FinalizedAt,
			"is_overridden":   row.IsOverridden,
			"override_reason": row.OverrideReason,
			"overridden_by":   row.OverriddenBy,
			"overridden_at":   row.OverriddenAt,
			"updated_at":      row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return fmt.Errorf("upsert score: %w", create.Error)
	}

	// Reload so the caller sees the surviving id and timestamps.
	var stored scoreRow
	err := tx.
		Where("entity_type = ? AND entity_id = ? AND area = ? AND year = ? AND month = ?",
			row.EntityType, row.EntityID, row.Area, row.Year, row.Month).
		First(&stored).Error
	if err != nil {
		return fmt.Errorf("reload score: %w", err)
	}
	*sc = stored.toModel()
	return nil
}

// SaveScores writes a batch of rows atomically.
func (s *GormStore) SaveScores(ctx context.Context, scores []model.PeriodScore) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range scores {
			if err := s.upsertScore(tx, &scores[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetScore returns one row or ErrNotFound.
func (s *GormStore) GetScore(ctx context.Context, entityType types.EntityType, entityID, area string, year, month int) (model.PeriodScore, error) {
	var row scoreRow
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND area = ? AND year = ? AND month = ?",
			string(entityType), entityID, area, year, month).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.PeriodScore{}, fmt.Errorf("%w: score for %s %s", ErrNotFound, entityType, entityID)
		}
		return model.PeriodScore{}, fmt.Errorf("get score: %w", err)
	}
	return row.toModel(), nil
}

// GetScoreByID returns the row with the given id or ErrNotFound.
func (s *GormStore) GetScoreByID(ctx context.Context, id string) (model.PeriodScore, error) {
	var row scoreRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.PeriodScore{}, fmt.Errorf("%w: score %s", ErrNotFound, id)
		}
		return model.PeriodScore{}, fmt.Errorf("get score by id: %w", err)
	}
	return row.toModel(), nil
}

// ListScores returns one period's rows, ranked rows first.
func (s *GormStore) ListScores(ctx context.Context, entityType types.EntityType, area string, year, month int) ([]model.PeriodScore, error) {
	var rows []scoreRow
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND area = ? AND year = ? AND month = ?",
			string(entityType), area, year, month).
		Order("rank ASC NULLS LAST, total_score DESC, entity_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}

	out := make([]model.PeriodScore, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// UpsertBadge inserts or refreshes a badge keyed by its ranking row.
func (s *GormStore) UpsertBadge(ctx context.Context, b *model.Badge) error {
	if b.RankingID == "" {
		return fmt.Errorf("%w: badge needs a ranking id", ErrValidation)
	}

	row := badgeRowFromModel(*b)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	create := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ranking_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"tier":        row.Tier,
			"rank":        row.Rank,
			"valid_from":  row.ValidFrom,
			"valid_until": row.ValidUntil,
		}),
	}).Create(&row)
	if create.Error != nil {
		return fmt.Errorf("upsert badge: %w", create.Error)
	}

	var stored badgeRow
	if err := s.db.WithContext(ctx).
		Where("ranking_id = ?", row.RankingID).
		First(&stored).Error; err != nil {
		return fmt.Errorf("reload badge: %w", err)
	}
	*b = stored.toModel()
	return nil
}

// DeleteBadgeByRanking removes the badge derived from one ranking row.
func (s *GormStore) DeleteBadgeByRanking(ctx context.Context, rankingID string) error {
	res := s.db.WithContext(ctx).
		Where("ranking_id = ?", rankingID).
		Delete(&badgeRow{})
	if res.Error != nil {
		return fmt.Errorf("delete badge: %w", res.Error)
	}
	return nil
}

// ListBadges returns an entity's badges newest first.
func (s *GormStore) ListBadges(ctx context.Context, entityType types.EntityType, entityID string) ([]model.Badge, error) {
	var rows []badgeRow
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", string(entityType), entityID).
		Order("valid_from DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}

	out := make([]model.Badge, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// grantConflictColumns is the natural key of an entitlement row.
var grantConflictColumns = []clause.Column{
	{Name: "target_type"}, {Name: "target_id"}, {Name: "placement_type"},
	{Name: "source_type"}, {Name: "source_id"},
}

// UpsertEntitlement inserts or refreshes a grant on its natural key.
func (s *GormStore) UpsertEntitlement(ctx context.Context, e *model.Entitlement) error {
	if !e.PlacementType.Valid() {
		return fmt.Errorf("%w: unknown placement %q", ErrValidation, e.PlacementType)
	}
	if e.TargetID == "" || !e.TargetType.Valid() {
		return fmt.Errorf("%w: grant needs a valid target", ErrValidation)
	}

	row := entitlementRowFromModel(*e)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	create := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: grantConflictColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"area":       row.Area,
			"priority":   row.Priority,
			"starts_at":  row.StartsAt,
			"ends_at":    row.EndsAt,
			"rank":       row.Rank,
			"is_active":  row.IsActive,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return fmt.Errorf("upsert entitlement: %w", create.Error)
	}

	var stored entitlementRow
	err := s.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ? AND placement_type = ? AND source_type = ? AND source_id = ?",
			row.TargetType, row.TargetID, row.PlacementType, row.SourceType, row.SourceID).
		First(&stored).Error
	if err != nil {
		return fmt.Errorf("reload entitlement: %w", err)
	}
	*e = stored.toModel()
	return nil
}

// DeactivateBySource flips every active grant from one source off.
func (s *GormStore) DeactivateBySource(ctx context.Context, sourceType types.SourceType, sourceID string) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&entitlementRow{}).
		Where("source_type = ?", string(sourceType)).
		Where("is_active = ?", true)
	if sourceID != "" {
		tx = tx.Where("source_id = ?", sourceID)
	}
	res := tx.Updates(map[string]any{
		"is_active":  false,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate grants: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeactivateByTarget flips a target's active grants from one source off.
func (s *GormStore) DeactivateByTarget(ctx context.Context, targetType types.EntityType, targetID string, sourceType types.SourceType) (int64, error) {
	res := s.db.WithContext(ctx).Model(&entitlementRow{}).
		Where("target_type = ? AND target_id = ?", string(targetType), targetID).
		Where("source_type = ?", string(sourceType)).
		Where("is_active = ?", true).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate target grants: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListEffective returns grants live at now for one placement.
func (s *GormStore) ListEffective(ctx context.Context, placement types.PlacementType, area string, now time.Time) ([]model.Entitlement, error) {
	var rows []entitlementRow
	err := s.db.WithContext(ctx).
		Where("placement_type = ?", string(placement)).
		Where("is_active = ?", true).
		Where("starts_at <= ? AND ends_at >= ?", now.UTC(), now.UTC()).
		Where("area = '' OR area = ?", area).
		Order("priority DESC, created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list effective grants: %w", err)
	}

	out := make([]model.Entitlement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// ListForTarget returns every grant of one target, newest first.
func (s *GormStore) ListForTarget(ctx context.Context, targetType types.EntityType, targetID string) ([]model.Entitlement, error) {
	var rows []entitlementRow
	err := s.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", string(targetType), targetID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list target grants: %w", err)
	}

	out := make([]model.Entitlement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// SaveTrendingBatch stores one trending batch.
func (s *GormStore) SaveTrendingBatch(ctx context.Context, batch []model.TrendingSnapshot) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([]trendingRow, 0, len(batch))
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
		rows = append(rows, trendingRowFromModel(batch[i]))
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, 500).Error; err != nil {
		return fmt.Errorf("save trending batch: %w", err)
	}
	return nil
}

// LatestTrending returns rows of the newest batch for one kind and area.
func (s *GormStore) LatestTrending(ctx context.Context, entityType types.EntityType, area string, limit int) ([]model.TrendingSnapshot, error) {
	var latest sql.NullTime
	err := s.db.WithContext(ctx).Model(&trendingRow{}).
		Select("MAX(calculated_at)").
		Where("entity_type = ? AND area = ?", string(entityType), area).
		Row().Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("find latest trending batch: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}

	tx := s.db.WithContext(ctx).
		Where("entity_type = ? AND area = ?", string(entityType), area).
		Where("calculated_at = ?", latest.Time).
		Order("rank ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var rows []trendingRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list trending: %w", err)
	}

	out := make([]model.TrendingSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// PurgeTrendingBefore drops batches older than cutoff.
func (s *GormStore) PurgeTrendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("calculated_at < ?", cutoff.UTC()).
		Delete(&trendingRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge trending: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpsertPlan stores one subscription row keyed by shop.
func (s *GormStore) UpsertPlan(ctx context.Context, p *model.PlanSubscription) error {
	if p.ShopID == "" {
		return fmt.Errorf("%w: plan needs a shop id", ErrValidation)
	}

	row := planRowFromModel(*p)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	create := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"tier":       row.Tier,
			"status":     row.Status,
			"starts_at":  row.StartsAt,
			"ends_at":    row.EndsAt,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return fmt.Errorf("upsert plan: %w", create.Error)
	}

	var stored planRow
	if err := s.db.WithContext(ctx).
		Where("shop_id = ?", row.ShopID).
		First(&stored).Error; err != nil {
		return fmt.Errorf("reload plan: %w", err)
	}
	*p = stored.toModel()
	return nil
}

// ListPlans returns every subscription row.
func (s *GormStore) ListPlans(ctx context.Context) ([]model.PlanSubscription, error) {
	var rows []planRow
	if err := s.db.WithContext(ctx).Order("shop_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	out := make([]model.PlanSubscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// InsertGift stores one gift transaction.
func (s *GormStore) InsertGift(ctx context.Context, g *model.GiftTransaction) error {
	if g.CastID == "" {
		return fmt.Errorf("%w: gift needs a cast id", ErrValidation)
	}

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	row := giftRowFromModel(*g)
	create := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return fmt.Errorf("insert gift: %w", create.Error)
	}
	return nil
}

// GiftTotals aggregates completed transactions per cast in [from, to).
func (s *GormStore) GiftTotals(ctx context.Context, from, to time.Time) (map[string]GiftAgg, error) {
	var rows []struct {
		CastID string
		Points int64
		Num    int
	}
	err := s.db.WithContext(ctx).Model(&giftRow{}).
		Select("cast_id, SUM(points) AS points, COUNT(*) AS num").
		Where("status = ?", model.GiftCompleted).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Group("cast_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate gifts: %w", err)
	}

	out := make(map[string]GiftAgg, len(rows))
	for _, r := range rows {
		out[r.CastID] = GiftAgg{Points: r.Points, Count: r.Num}
	}
	return out, nil
}

// InsertReview stores one review.
func (s *GormStore) InsertReview(ctx context.Context, r *model.Review) error {
	if r.ShopID == "" {
		return fmt.Errorf("%w: review needs a shop id", ErrValidation)
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row := reviewRowFromModel(*r)
	create := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return fmt.Errorf("insert review: %w", create.Error)
	}
	return nil
}

// ReviewStats aggregates reviews per shop in [from, to).
func (s *GormStore) ReviewStats(ctx context.Context, from, to time.Time) (map[string]ReviewAgg, error) {
	var rows []struct {
		ShopID string
		Num    int
		Avg    float64
	}
	err := s.db.WithContext(ctx).Model(&reviewRow{}).
		Select("shop_id, COUNT(*) AS num, AVG(rating) AS avg").
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Group("shop_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate reviews: %w", err)
	}

	out := make(map[string]ReviewAgg, len(rows))
	for _, r := range rows {
		out[r.ShopID] = ReviewAgg{Count: r.Num, AverageRating: r.Avg}
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*GormStore)(nil)
var _ Store = (*MemoryStore)(nil)
