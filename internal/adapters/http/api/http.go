// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yorunavi/engine/internal/adapters/repository"
	app "github.com/yorunavi/engine/internal/app"
	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/ranking"
	"github.com/yorunavi/engine/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ViewIngestor
	RankingReader
	EntitlementReader
	TrendingReader
	AdminOperations
}

// ViewIngestor accepts raw page views for async processing.
type ViewIngestor interface {
	// RecordView enqueues a view for dedup and persistence.
	// Returns false on backpressure.
	RecordView(ctx context.Context, v model.ViewEvent) bool
}

// RankingReader exposes finalized monthly rankings.
type RankingReader interface {
	GetRanking(ctx context.Context, entityType types.EntityType, area string, year, month, limit int) ([]types.RankingEntry, error)
}

// EntitlementReader exposes promotional grant queries.
type EntitlementReader interface {
	EffectiveEntitlements(ctx context.Context, placement types.PlacementType, area string) ([]model.Entitlement, error)
	EntitlementsForTarget(ctx context.Context, targetType types.EntityType, targetID string) ([]model.Entitlement, error)
}

// TrendingReader exposes the latest trending batch.
type TrendingReader interface {
	GetTrending(ctx context.Context, entityType types.EntityType, area string, limit int) ([]types.TrendingEntry, error)
}

// AdminOperations are the job entry points hit by operators or cron.
type AdminOperations interface {
	FinalizeMonth(ctx context.Context, year, month int) (app.JobSummary, error)
	OverrideRank(ctx context.Context, scoreID string, newRank int, reason, actor string) error
	Disqualify(ctx context.Context, scoreID string, reason, actor string) error
	SyncPlanEntitlements(ctx context.Context) (app.JobSummary, error)
	RecomputeTrending(ctx context.Context) (app.JobSummary, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	viewsHandler        *ViewsHandler
	rankingsHandler     *RankingsHandler
	entitlementsHandler *EntitlementsHandler
	trendingHandler     *TrendingHandler
	adminHandler        *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		viewsHandler:        NewViewsHandler(deps),
		rankingsHandler:     NewRankingsHandler(deps, maxLimit),
		entitlementsHandler: NewEntitlementsHandler(deps),
		trendingHandler:     NewTrendingHandler(deps),
		adminHandler:        NewAdminHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/views", MetricsMiddleware(s.viewsHandler.HandlePostView, "views"))
	mux.HandleFunc("/rankings", MetricsMiddleware(s.rankingsHandler.HandleGetRankings, "rankings"))
	mux.HandleFunc("/entitlements", MetricsMiddleware(s.entitlementsHandler.HandleGetEntitlements, "entitlements"))
	mux.HandleFunc("/trending", MetricsMiddleware(s.trendingHandler.HandleGetTrending, "trending"))
	mux.HandleFunc("/admin/finalize", MetricsMiddleware(s.adminHandler.HandleFinalize, "admin_finalize"))
	mux.HandleFunc("/admin/override", MetricsMiddleware(s.adminHandler.HandleOverride, "admin_override"))
	mux.HandleFunc("/admin/disqualify", MetricsMiddleware(s.adminHandler.HandleDisqualify, "admin_disqualify"))
	mux.HandleFunc("/admin/sync-plans", MetricsMiddleware(s.adminHandler.HandleSyncPlans, "admin_sync_plans"))
	mux.HandleFunc("/admin/trending/recompute", MetricsMiddleware(s.adminHandler.HandleRecomputeTrending, "admin_trending_recompute"))
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates upstream sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrValidation), errors.Is(err, ranking.ErrInvalidRank):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ranking.ErrNotRanked):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, ranking.ErrRankTaken),
		errors.Is(err, ranking.ErrAlreadyFinal):
		writeError(w, http.StatusConflict, "conflict", Wrap(op, err))
	case errors.Is(err, ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
