package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/yorunavi/engine/internal/adapters/http/api"
	"github.com/yorunavi/engine/internal/adapters/repository"
	app "github.com/yorunavi/engine/internal/app"
	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/ranking"
	"github.com/yorunavi/engine/internal/domain/types"
	"github.com/yorunavi/engine/pkg/logger"
)

// fakeDeps implements api.Dependencies and api.StatsProvider with
// scripted responses.
type fakeDeps struct {
	acceptViews bool
	recorded    []model.ViewEvent

	rankings  []types.RankingEntry
	grants    []model.Entitlement
	trending  []types.TrendingEntry
	jobErr    error
	adminErr  error
	summaries []string
}

func (f *fakeDeps) RecordView(_ context.Context, v model.ViewEvent) bool {
	if !f.acceptViews {
		return false
	}
	f.recorded = append(f.recorded, v)
	return true
}

func (f *fakeDeps) GetRanking(_ context.Context, _ types.EntityType, _ string, _, _, _ int) ([]types.RankingEntry, error) {
	return f.rankings, nil
}

func (f *fakeDeps) EffectiveEntitlements(_ context.Context, _ types.PlacementType, _ string) ([]model.Entitlement, error) {
	return f.grants, nil
}

func (f *fakeDeps) EntitlementsForTarget(_ context.Context, _ types.EntityType, _ string) ([]model.Entitlement, error) {
	return f.grants, nil
}

func (f *fakeDeps) GetTrending(_ context.Context, _ types.EntityType, _ string, _ int) ([]types.TrendingEntry, error) {
	return f.trending, nil
}

func (f *fakeDeps) FinalizeMonth(_ context.Context, year, month int) (app.JobSummary, error) {
	if f.jobErr != nil {
		return app.JobSummary{}, f.jobErr
	}
	f.summaries = append(f.summaries, "finalize")
	return app.JobSummary{Job: "finalize", Processed: 10}, nil
}

func (f *fakeDeps) OverrideRank(_ context.Context, _ string, _ int, _, _ string) error {
	return f.adminErr
}

func (f *fakeDeps) Disqualify(_ context.Context, _ string, _, _ string) error {
	return f.adminErr
}

func (f *fakeDeps) SyncPlanEntitlements(_ context.Context) (app.JobSummary, error) {
	return app.JobSummary{Job: "plan_sync"}, f.jobErr
}

func (f *fakeDeps) RecomputeTrending(_ context.Context) (app.JobSummary, error) {
	return app.JobSummary{Job: "trending"}, f.jobErr
}

func (f *fakeDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newTestMux(deps *fakeDeps) *http.ServeMux {
	_ = logger.Init()
	mux := http.NewServeMux()
	server := api.NewServer(deps, deps, 100)
	server.Register(context.Background(), mux)
	return mux
}

func doJSON(mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPostViews(t *testing.T) {
	convey.Convey("Given the views endpoint", t, func() {
		convey.Convey("When a valid view is posted", func() {
			deps := &fakeDeps{acceptViews: true}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodPost, "/views", map[string]any{
				"entity_type": "cast",
				"entity_id":   "cast-1",
				"customer_id": "cust-1",
				"area":        "okayama",
			})

			convey.Convey("Then it is accepted", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusAccepted)
				convey.So(len(deps.recorded), convey.ShouldEqual, 1)
				convey.So(deps.recorded[0].EntityID, convey.ShouldEqual, "cast-1")
			})
		})

		convey.Convey("When required fields are missing", func() {
			deps := &fakeDeps{acceptViews: true}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodPost, "/views", map[string]any{
				"entity_type": "cast",
			})

			convey.Convey("Then it is rejected with 400", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
				convey.So(len(deps.recorded), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the entity type is unknown", func() {
			deps := &fakeDeps{acceptViews: true}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodPost, "/views", map[string]any{
				"entity_type": "venue",
				"entity_id":   "v-1",
				"area":        "okayama",
			})

			convey.Convey("Then it is rejected with 400", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
			})
		})

		convey.Convey("When the queue is full", func() {
			deps := &fakeDeps{acceptViews: false}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodPost, "/views", map[string]any{
				"entity_type": "shop",
				"entity_id":   "shop-1",
				"session_id":  "sess-1",
				"area":        "okayama",
			})

			convey.Convey("Then backpressure maps to 429", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusTooManyRequests)
			})
		})
	})
}

func TestGetRankings(t *testing.T) {
	convey.Convey("Given the rankings endpoint", t, func() {
		deps := &fakeDeps{
			rankings: []types.RankingEntry{
				{Rank: 1, EntityID: "cast-9", TotalScore: 300},
				{Rank: 2, EntityID: "cast-3", TotalScore: 200},
			},
		}
		mux := newTestMux(deps)

		convey.Convey("When queried with an area", func() {
			rec := doJSON(mux, http.MethodGet, "/rankings?area=okayama&year=2026&month=7", nil)

			convey.Convey("Then the entries come back in rank order", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)

				var got []types.RankingEntry
				convey.So(json.Unmarshal(rec.Body.Bytes(), &got), convey.ShouldBeNil)
				convey.So(len(got), convey.ShouldEqual, 2)
				convey.So(got[0].EntityID, convey.ShouldEqual, "cast-9")
			})
		})

		convey.Convey("When the area is missing", func() {
			rec := doJSON(mux, http.MethodGet, "/rankings", nil)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("When the limit exceeds the cap", func() {
			rec := doJSON(mux, http.MethodGet, "/rankings?area=okayama&limit=5000", nil)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("When the month is out of range", func() {
			rec := doJSON(mux, http.MethodGet, "/rankings?area=okayama&month=13", nil)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestGetEntitlements(t *testing.T) {
	convey.Convey("Given the entitlements endpoint", t, func() {
		deps := &fakeDeps{
			grants: []model.Entitlement{
				{ID: "g-1", TargetID: "shop-1", PlacementType: types.PlacementTopBanner, Priority: 99, IsActive: true},
			},
		}
		mux := newTestMux(deps)

		convey.Convey("When queried by placement", func() {
			rec := doJSON(mux, http.MethodGet, "/entitlements?placement=top_banner&area=okayama", nil)

			convey.Convey("Then the grants come back", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "shop-1")
			})
		})

		convey.Convey("When queried by target", func() {
			rec := doJSON(mux, http.MethodGet, "/entitlements?target_type=shop&target_id=shop-1", nil)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("When the placement is unknown", func() {
			rec := doJSON(mux, http.MethodGet, "/entitlements?placement=skyscraper", nil)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestGetTrending(t *testing.T) {
	convey.Convey("Given the trending endpoint", t, func() {
		deps := &fakeDeps{
			trending: []types.TrendingEntry{
				{Rank: 1, EntityID: "cast-7", Current: 50, Previous: 5, GrowthRate: 9.0},
			},
		}
		mux := newTestMux(deps)

		convey.Convey("When queried with an area", func() {
			rec := doJSON(mux, http.MethodGet, "/trending?area=okayama", nil)

			convey.Convey("Then the latest batch comes back", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "cast-7")
			})
		})

		convey.Convey("When the area is missing", func() {
			rec := doJSON(mux, http.MethodGet, "/trending", nil)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestAdminEndpoints(t *testing.T) {
	convey.Convey("Given the admin endpoints", t, func() {
		convey.Convey("When finalize is posted without a period", func() {
			deps := &fakeDeps{}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodPost, "/admin/finalize", nil)

			convey.Convey("Then it defaults to the previous month and succeeds", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(deps.summaries, convey.ShouldContain, "finalize")
			})
		})

		convey.Convey("When finalize hits an already finalized period", func() {
			deps := &fakeDeps{jobErr: ranking.ErrAlreadyFinal}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodPost, "/admin/finalize", map[string]any{"year": 2026, "month": 7})

			convey.Convey("Then the conflict maps to 409", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusConflict)
			})
		})

		convey.Convey("When an override names a taken rank", func() {
			deps := &fakeDeps{adminErr: ranking.ErrRankTaken}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodPost, "/admin/override", map[string]any{
				"score_id": "s-1",
				"new_rank": 1,
				"reason":   "manual correction",
				"actor":    "ops",
			})

			convey.So(rec.Code, convey.ShouldEqual, http.StatusConflict)
		})

		convey.Convey("When an override omits the reason", func() {
			deps := &fakeDeps{}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodPost, "/admin/override", map[string]any{
				"score_id": "s-1",
				"new_rank": 1,
				"actor":    "ops",
			})

			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("When a disqualify names a missing score", func() {
			deps := &fakeDeps{adminErr: repository.ErrNotFound}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodPost, "/admin/disqualify", map[string]any{
				"score_id": "missing",
				"reason":   "fraud",
				"actor":    "ops",
			})

			convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
		})

		convey.Convey("When sync-plans and trending recompute are posted", func() {
			deps := &fakeDeps{}
			mux := newTestMux(deps)

			convey.So(doJSON(mux, http.MethodPost, "/admin/sync-plans", nil).Code, convey.ShouldEqual, http.StatusOK)
			convey.So(doJSON(mux, http.MethodPost, "/admin/trending/recompute", nil).Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("When an admin endpoint is hit with GET", func() {
			deps := &fakeDeps{}
			mux := newTestMux(deps)

			rec := doJSON(mux, http.MethodGet, "/admin/finalize", nil)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestStats(t *testing.T) {
	convey.Convey("Given the stats endpoint", t, func() {
		deps := &fakeDeps{}
		mux := newTestMux(deps)

		rec := doJSON(mux, http.MethodGet, "/stats", nil)

		convey.Convey("Then the provider's stats come back as JSON", func() {
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, "started")
		})
	})
}
