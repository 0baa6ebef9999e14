package entitle_test

import (
	"testing"
	"time"

	entitle "github.com/yorunavi/engine/internal/domain/entitle"
	"github.com/yorunavi/engine/internal/domain/model"
	"github.com/yorunavi/engine/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPriorities(t *testing.T) {
	Convey("Given the priority rules", t, func() {
		Convey("When converting ranks", func() {
			So(entitle.RankingPriority(1), ShouldEqual, 99)
			So(entitle.RankingPriority(10), ShouldEqual, 90)
		})

		Convey("Then every ranking grant outranks every plan grant", func() {
			So(entitle.RankingPriority(10), ShouldBeGreaterThan, entitle.PlanPriority(types.PlanBusiness))
		})

		Convey("When mapping plan tiers", func() {
			So(entitle.PlanPriority(types.PlanBusiness), ShouldEqual, 50)
			So(entitle.PlanPriority(types.PlanPremium), ShouldEqual, 30)
			So(entitle.PlanPriority(types.PlanFree), ShouldEqual, 0)
		})
	})
}

func TestPlanCapabilities(t *testing.T) {
	Convey("Given the plan capability sets", t, func() {
		Convey("When the plan is free", func() {
			So(entitle.PlanCapabilities(types.PlanFree).Len(), ShouldEqual, 0)
		})

		Convey("When the plan is premium", func() {
			caps := entitle.PlanCapabilities(types.PlanPremium)
			So(caps.Contains(types.PlacementSearchBoost), ShouldBeTrue)
			So(caps.Contains(types.PlacementPremiumBadge), ShouldBeTrue)
			So(caps.Contains(types.PlacementJobBoard), ShouldBeTrue)
			So(caps.Contains(types.PlacementCastDisplay), ShouldBeTrue)
			So(caps.Contains(types.PlacementTopBanner), ShouldBeFalse)
		})

		Convey("When the plan is business", func() {
			caps := entitle.PlanCapabilities(types.PlanBusiness)
			So(caps.Contains(types.PlacementTopBanner), ShouldBeTrue)

			Convey("Then business is a strict superset of premium", func() {
				for _, p := range entitle.PlanCapabilities(types.PlanPremium).Placements() {
					So(caps.Contains(p), ShouldBeTrue)
				}
			})
		})
	})
}

func TestPlacementsForRank(t *testing.T) {
	Convey("Given the ranking grant matrix", t, func() {
		Convey("When the rank is 1", func() {
			got := entitle.PlacementsForRank(1)
			So(got, ShouldContain, types.PlacementTopBanner)
			So(got, ShouldContain, types.PlacementTopBadge)
			So(got, ShouldContain, types.PlacementPlatinum)
		})

		Convey("When the rank is 2 or 3", func() {
			for _, r := range []int{2, 3} {
				got := entitle.PlacementsForRank(r)
				So(got, ShouldNotContain, types.PlacementTopBanner)
				So(got, ShouldContain, types.PlacementTopBadge)
				So(got, ShouldContain, types.PlacementPlatinum)
			}
		})

		Convey("When the rank is 4 through 10", func() {
			for r := 4; r <= 10; r++ {
				got := entitle.PlacementsForRank(r)
				So(got, ShouldResemble, []types.PlacementType{types.PlacementTopBadge})
			}
		})

		Convey("When the rank is below the badge range", func() {
			So(entitle.PlacementsForRank(11), ShouldBeNil)
		})
	})
}

func TestResolve(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	window := func(active bool) model.Entitlement {
		return model.Entitlement{
			PlacementType: types.PlacementTopBanner,
			StartsAt:      now.AddDate(0, 0, -5),
			EndsAt:        now.AddDate(0, 0, 5),
			IsActive:      active,
		}
	}

	Convey("Given grants competing for one placement", t, func() {
		a := window(true)
		a.ID, a.TargetID, a.Priority = "g-a", "shop-a", 99
		b := window(true)
		b.ID, b.TargetID, b.Priority = "g-b", "shop-b", 20
		grants := []model.Entitlement{b, a}

		Convey("When resolved", func() {
			got := entitle.Resolve(grants, types.PlacementTopBanner, "okayama", now)

			Convey("Then the higher priority grant comes first", func() {
				So(len(got), ShouldEqual, 2)
				So(got[0].TargetID, ShouldEqual, "shop-a")
				So(got[1].TargetID, ShouldEqual, "shop-b")
			})

			Convey("And the winner matches", func() {
				w, ok := entitle.Winner(grants, types.PlacementTopBanner, "okayama", now)
				So(ok, ShouldBeTrue)
				So(w.TargetID, ShouldEqual, "shop-a")
			})
		})

		Convey("When the leader is inactive", func() {
			a.IsActive = false
			w, ok := entitle.Winner([]model.Entitlement{a, b}, types.PlacementTopBanner, "okayama", now)

			Convey("Then the runner-up wins", func() {
				So(ok, ShouldBeTrue)
				So(w.TargetID, ShouldEqual, "shop-b")
			})
		})

		Convey("When two grants tie on priority", func() {
			older := window(true)
			older.ID, older.TargetID, older.Priority = "g-old", "shop-old", 50
			older.CreatedAt = now.AddDate(0, -2, 0)

			newer := window(true)
			newer.ID, newer.TargetID, newer.Priority = "g-new", "shop-new", 50
			newer.CreatedAt = now.AddDate(0, -1, 0)

			got := entitle.Resolve([]model.Entitlement{older, newer}, types.PlacementTopBanner, "okayama", now)

			Convey("Then the most recently granted one wins", func() {
				So(len(got), ShouldEqual, 2)
				So(got[0].TargetID, ShouldEqual, "shop-new")
				So(got[1].TargetID, ShouldEqual, "shop-old")
			})
		})

		Convey("When the leader's window has ended", func() {
			a.EndsAt = now.AddDate(0, 0, -1)
			got := entitle.Resolve([]model.Entitlement{a, b}, types.PlacementTopBanner, "okayama", now)

			Convey("Then it is excluded", func() {
				So(len(got), ShouldEqual, 1)
				So(got[0].TargetID, ShouldEqual, "shop-b")
			})
		})
	})

	Convey("Given area-scoped grants", t, func() {
		global := window(true)
		global.ID, global.TargetID, global.Priority = "g-1", "shop-g", 10

		scoped := window(true)
		scoped.ID, scoped.TargetID, scoped.Priority = "g-2", "shop-s", 10
		scoped.Area = "kurashiki"

		grants := []model.Entitlement{global, scoped}

		Convey("When resolving for a different area", func() {
			got := entitle.Resolve(grants, types.PlacementTopBanner, "okayama", now)

			Convey("Then only the unrestricted grant matches", func() {
				So(len(got), ShouldEqual, 1)
				So(got[0].TargetID, ShouldEqual, "shop-g")
			})
		})

		Convey("When resolving for the scoped area", func() {
			got := entitle.Resolve(grants, types.PlacementTopBanner, "kurashiki", now)

			Convey("Then both match", func() {
				So(len(got), ShouldEqual, 2)
			})
		})
	})
}

func TestSortSearch(t *testing.T) {
	Convey("Given search candidates with mixed signals", t, func() {
		rows := []entitle.SearchRanking{
			{EntityID: "plain-a"},
			{EntityID: "featured", Featured: true},
			{EntityID: "business", PlanWeight: 50},
			{EntityID: "boost-weak", BoostPriority: 90},
			{EntityID: "boost-strong", BoostPriority: 99},
			{EntityID: "premium", PlanWeight: 30},
			{EntityID: "plain-b"},
		}

		Convey("When sorted", func() {
			entitle.SortSearch(rows)

			Convey("Then a stronger boost beats a weaker one, plan beats featured, id descends", func() {
				ids := make([]string, len(rows))
				for i, r := range rows {
					ids[i] = r.EntityID
				}
				So(ids, ShouldResemble, []string{
					"boost-strong", "boost-weak", "business", "premium", "featured", "plain-b", "plain-a",
				})
			})
		})
	})
}
