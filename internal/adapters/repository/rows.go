package repository

import (
	"time"

	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
)

// Row structs map domain records onto tables. Natural keys carry unique
// indexes so the upserts in gorm.go have a conflict target.

type viewRow struct {
	EventID    string    `gorm:"column:event_id;primaryKey"`
	EntityType string    `gorm:"column:entity_type;index:idx_views_entity"`
	EntityID   string    `gorm:"column:entity_id;index:idx_views_entity"`
	CustomerID string    `gorm:"column:customer_id"`
	SessionID  string    `gorm:"column:session_id"`
	ViewerKey  string    `gorm:"column:viewer_key;index:idx_views_viewer"`
	Area       string    `gorm:"column:area;index"`
	ViewedAt   time.Time `gorm:"column:viewed_at;index"`
	IP         string    `gorm:"column:ip"`
	UserAgent  string    `gorm:"column:user_agent"`
}

func (viewRow) TableName() string { return "view_events" }

func viewRowFromModel(v model.ViewEvent) viewRow {
	return viewRow{
		EventID:    v.EventID,
		EntityType: string(v.EntityType),
		EntityID:   v.EntityID,
		CustomerID: v.ViewerKey.CustomerID,
		SessionID:  v.ViewerKey.SessionID,
		ViewerKey:  v.ViewerKey.String(),
		Area:       v.Area,
		ViewedAt:   v.ViewedAt.UTC(),
		IP:         v.IP,
		UserAgent:  v.UserAgent,
	}
}

type scoreRow struct {
	ID         string `gorm:"column:id;primaryKey"`
	EntityType string `gorm:"column:entity_type;uniqueIndex:uq_scores_period"`
	EntityID   string `gorm:"column:entity_id;uniqueIndex:uq_scores_period"`
	Area       string `gorm:"column:area;uniqueIndex:uq_scores_period"`
	Year       int    `gorm:"column:year;uniqueIndex:uq_scores_period"`
	Month      int    `gorm:"column:month;uniqueIndex:uq_scores_period"`

	PVCount       int     `gorm:"column:pv_count"`
	GiftPoints    int64   `gorm:"column:gift_points"`
	GiftCount     int     `gorm:"column:gift_count"`
	ReviewCount   int     `gorm:"column:review_count"`
	AverageRating float64 `gorm:"column:average_rating"`

	PVScore     float64 `gorm:"column:pv_score"`
	GiftScore   float64 `gorm:"column:gift_score"`
	ReviewScore float64 `gorm:"column:review_score"`
	TotalScore  float64 `gorm:"column:total_score"`

	Rank         *int `gorm:"column:rank"`
	PreviousRank *int `gorm:"column:previous_rank"`

	IsFinalized bool       `gorm:"column:is_finalized"`
	FinalizedAt *time.Time `gorm:"column:finalized_at"`

	IsOverridden   bool       `gorm:"column:is_overridden"`
	OverrideReason string     `gorm:"column:override_reason"`
	OverriddenBy   string     `gorm:"column:overridden_by"`
	OverriddenAt   *time.Time `gorm:"column:overridden_at"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (scoreRow) TableName() string { return "period_scores" }

func scoreRowFromModel(s model.PeriodScore) scoreRow {
	row := scoreRow{
		ID:             s.ID,
		EntityType:     string(s.EntityType),
		EntityID:       s.EntityID,
		Area:           s.Area,
		Year:           s.Year,
		Month:          s.Month,
		PVCount:        s.PVCount,
		GiftPoints:     s.GiftPoints,
		GiftCount:      s.GiftCount,
		ReviewCount:    s.ReviewCount,
		AverageRating:  s.AverageRating,
		PVScore:        s.PVScore,
		GiftScore:      s.GiftScore,
		ReviewScore:    s.ReviewScore,
		TotalScore:     s.TotalScore,
		Rank:           s.Rank,
		PreviousRank:   s.PreviousRank,
		IsFinalized:    s.IsFinalized,
		FinalizedAt:    s.FinalizedAt,
		IsOverridden:   s.IsOverridden,
		OverrideReason: s.OverrideReason,
		OverriddenBy:   s.OverriddenBy,
		OverriddenAt:   s.OverriddenAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return row
}

func (m scoreRow) toModel() model.PeriodScore {
	return model.PeriodScore{
		ID:             m.ID,
		EntityType:     types.EntityType(m.EntityType),
		EntityID:       m.EntityID,
		Area:           m.Area,
		Year:           m.Year,
		Month:          m.Month,
		PVCount:        m.PVCount,
		GiftPoints:     m.GiftPoints,
		GiftCount:      m.GiftCount,
		ReviewCount:    m.ReviewCount,
		AverageRating:  m.AverageRating,
		PVScore:        m.PVScore,
		GiftScore:      m.GiftScore,
		ReviewScore:    m.ReviewScore,
		TotalScore:     m.TotalScore,
		Rank:           m.Rank,
		PreviousRank:   m.PreviousRank,
		IsFinalized:    m.IsFinalized,
		FinalizedAt:    m.FinalizedAt,
		IsOverridden:   m.IsOverridden,
		OverrideReason: m.OverrideReason,
		OverriddenBy:   m.OverriddenBy,
		OverriddenAt:   m.OverriddenAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type badgeRow struct {
	ID         string    `gorm:"column:id;primaryKey"`
	EntityType string    `gorm:"column:entity_type;index:idx_badges_entity"`
	EntityID   string    `gorm:"column:entity_id;index:idx_badges_entity"`
	RankingID  string    `gorm:"column:ranking_id;uniqueIndex"`
	Tier       string    `gorm:"column:tier"`
	Rank       int       `gorm:"column:rank"`
	Area       string    `gorm:"column:area"`
	Year       int       `gorm:"column:year"`
	Month      int       `gorm:"column:month"`
	ValidFrom  time.Time `gorm:"column:valid_from"`
	ValidUntil time.Time `gorm:"column:valid_until"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (badgeRow) TableName() string { return "ranking_badges" }

func badgeRowFromModel(b model.Badge) badgeRow {
	row := badgeRow{
		ID:         b.ID,
		EntityType: string(b.EntityType),
		EntityID:   b.EntityID,
		RankingID:  b.RankingID,
		Tier:       string(b.Tier),
		Rank:       b.Rank,
		Area:       b.Area,
		Year:       b.Year,
		Month:      b.Month,
		ValidFrom:  b.ValidFrom.UTC(),
		ValidUntil: b.ValidUntil.UTC(),
		CreatedAt:  b.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row
}

func (m badgeRow) toModel() model.Badge {
	return model.Badge{
		ID:         m.ID,
		EntityType: types.EntityType(m.EntityType),
		EntityID:   m.EntityID,
		RankingID:  m.RankingID,
		Tier:       types.BadgeTier(m.Tier),
		Rank:       m.Rank,
		Area:       m.Area,
		Year:       m.Year,
		Month:      m.Month,
		ValidFrom:  m.ValidFrom,
		ValidUntil: m.ValidUntil,
		CreatedAt:  m.CreatedAt,
	}
}

type entitlementRow struct {
	ID            string    `gorm:"column:id;primaryKey"`
	TargetType    string    `gorm:"column:target_type;uniqueIndex:uq_grants_key"`
	TargetID      string    `gorm:"column:target_id;uniqueIndex:uq_grants_key"`
	PlacementType string    `gorm:"column:placement_type;uniqueIndex:uq_grants_key"`
	SourceType    string    `gorm:"column:source_type;uniqueIndex:uq_grants_key"`
	SourceID      string    `gorm:"column:source_id;uniqueIndex:uq_grants_key"`
	Area          string    `gorm:"column:area"`
	Priority      int       `gorm:"column:priority"`
	StartsAt      time.Time `gorm:"column:starts_at;index"`
	EndsAt        time.Time `gorm:"column:ends_at;index"`
	Rank          int       `gorm:"column:rank"`
	IsActive      bool      `gorm:"column:is_active;index"`
	CreatedBy     string    `gorm:"column:created_by"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (entitlementRow) TableName() string { return "entitlements" }

func entitlementRowFromModel(e model.Entitlement) entitlementRow {
	row := entitlementRow{
		ID:            e.ID,
		TargetType:    string(e.TargetType),
		TargetID:      e.TargetID,
		PlacementType: string(e.PlacementType),
		SourceType:    string(e.SourceType),
		SourceID:      e.SourceID,
		Area:          e.Area,
		Priority:      e.Priority,
		StartsAt:      e.StartsAt.UTC(),
		EndsAt:        e.EndsAt.UTC(),
		Rank:          e.Rank,
		IsActive:      e.IsActive,
		CreatedBy:     e.CreatedBy,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return row
}

func (m entitlementRow) toModel() model.Entitlement {
	return model.Entitlement{
		ID:            m.ID,
		TargetType:    types.EntityType(m.TargetType),
		TargetID:      m.TargetID,
		PlacementType: types.PlacementType(m.PlacementType),
		Area:          m.Area,
		Priority:      m.Priority,
		StartsAt:      m.StartsAt,
		EndsAt:        m.EndsAt,
		SourceType:    types.SourceType(m.SourceType),
		SourceID:      m.SourceID,
		Rank:          m.Rank,
		IsActive:      m.IsActive,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type trendingRow struct {
	ID           string    `gorm:"column:id;primaryKey"`
	EntityType   string    `gorm:"column:entity_type;index:idx_trending_batch"`
	EntityID     string    `gorm:"column:entity_id"`
	Area         string    `gorm:"column:area;index:idx_trending_batch"`
	CurrentPV    int       `gorm:"column:current_pv"`
	PreviousPV   int       `gorm:"column:previous_pv"`
	GrowthRate   float64   `gorm:"column:growth_rate"`
	Rank         int       `gorm:"column:rank"`
	CalculatedAt time.Time `gorm:"column:calculated_at;index:idx_trending_batch"`
}

func (trendingRow) TableName() string { return "trending_snapshots" }

func trendingRowFromModel(t model.TrendingSnapshot) trendingRow {
	return trendingRow{
		ID:           t.ID,
		EntityType:   string(t.EntityType),
		EntityID:     t.EntityID,
		Area:         t.Area,
		CurrentPV:    t.CurrentPV,
		PreviousPV:   t.PreviousPV,
		GrowthRate:   t.GrowthRate,
		Rank:         t.Rank,
		CalculatedAt: t.CalculatedAt.UTC(),
	}
}

func (m trendingRow) toModel() model.TrendingSnapshot {
	return model.TrendingSnapshot{
		ID:           m.ID,
		EntityType:   types.EntityType(m.EntityType),
		EntityID:     m.EntityID,
		Area:         m.Area,
		CurrentPV:    m.CurrentPV,
		PreviousPV:   m.PreviousPV,
		GrowthRate:   m.GrowthRate,
		Rank:         m.Rank,
		CalculatedAt: m.CalculatedAt,
	}
}

type planRow struct {
	ID        string     `gorm:"column:id;primaryKey"`
	ShopID    string     `gorm:"column:shop_id;uniqueIndex"`
	Tier      string     `gorm:"column:tier"`
	Status    string     `gorm:"column:status"`
	StartsAt  time.Time  `gorm:"column:starts_at"`
	EndsAt    *time.Time `gorm:"column:ends_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (planRow) TableName() string { return "plan_subscriptions" }

func planRowFromModel(p model.PlanSubscription) planRow {
	return planRow{
		ID:        p.ID,
		ShopID:    p.ShopID,
		Tier:      string(p.Tier),
		Status:    string(p.Status),
		StartsAt:  p.StartsAt.UTC(),
		EndsAt:    p.EndsAt,
		UpdatedAt: time.Now().UTC(),
	}
}

func (m planRow) toModel() model.PlanSubscription {
	return model.PlanSubscription{
		ID:        m.ID,
		ShopID:    m.ShopID,
		Tier:      types.PlanTier(m.Tier),
		Status:    types.PlanStatus(m.Status),
		StartsAt:  m.StartsAt,
		EndsAt:    m.EndsAt,
		UpdatedAt: m.UpdatedAt,
	}
}

type giftRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	CastID    string    `gorm:"column:cast_id;index"`
	Points    int64     `gorm:"column:points"`
	Status    string    `gorm:"column:status;index"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
}

func (giftRow) TableName() string { return "gift_transactions" }

func giftRowFromModel(g model.GiftTransaction) giftRow {
	return giftRow{
		ID:        g.ID,
		CastID:    g.CastID,
		Points:    g.Points,
		Status:    g.Status,
		CreatedAt: g.CreatedAt.UTC(),
	}
}

type reviewRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	ShopID    string    `gorm:"column:shop_id;index"`
	Rating    float64   `gorm:"column:rating"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
}

func (reviewRow) TableName() string { return "reviews" }

func reviewRowFromModel(r model.Review) reviewRow {
	return reviewRow{
		ID:        r.ID,
		ShopID:    r.ShopID,
		Rating:    r.Rating,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
