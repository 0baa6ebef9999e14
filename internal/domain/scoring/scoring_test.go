package scoring_test

import (
	"testing"

	scoring "github.com/yorunavi/engine/internal/domain/scoring"
	"github.com/yorunavi/engine/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCompute(t *testing.T) {
	Convey("Given the default weights", t, func() {
		w := scoring.DefaultWeights()

		Convey("When computing a cast score", func() {
			totals := scoring.Totals{
				PVCount:    120,
				GiftPoints: 3500,
				GiftCount:  7,
			}
			b := scoring.Compute(types.EntityCast, totals, w)

			Convey("Then PV and gift terms are weighted counters", func() {
				So(b.PVScore, ShouldEqual, 120.0)
				So(b.GiftScore, ShouldEqual, 3500.0)
			})

			Convey("And the review term is absent for casts", func() {
				So(b.ReviewScore, ShouldEqual, 0.0)
				So(b.TotalScore, ShouldEqual, 3620.0)
			})
		})

		Convey("When computing a shop score", func() {
			totals := scoring.Totals{
				PVCount:       50,
				GiftPoints:    0,
				ReviewCount:   4,
				AverageRating: 4.5,
			}
			b := scoring.Compute(types.EntityShop, totals, w)

			Convey("Then the review term combines count and rating", func() {
				// 4*10 + 4.5*100 = 490
				So(b.ReviewScore, ShouldEqual, 490.0)
				So(b.TotalScore, ShouldEqual, 540.0)
			})
		})

		Convey("When one counter grows and the rest stay fixed", func() {
			base := scoring.Totals{PVCount: 10, GiftPoints: 100}
			more := base
			more.PVCount = 11

			Convey("Then the total score never decreases", func() {
				lo := scoring.Compute(types.EntityCast, base, w)
				hi := scoring.Compute(types.EntityCast, more, w)
				So(hi.TotalScore, ShouldBeGreaterThan, lo.TotalScore)
			})
		})
	})

	Convey("Given custom weights", t, func() {
		w := scoring.Weights{PV: 2.0, Gift: 0.5, ReviewCount: 1.0, ReviewRating: 10.0}

		Convey("When computing with zeroed counters", func() {
			b := scoring.Compute(types.EntityShop, scoring.Totals{}, w)

			Convey("Then every term is zero", func() {
				So(b.TotalScore, ShouldEqual, 0.0)
			})
		})

		Convey("When computing with mixed counters", func() {
			totals := scoring.Totals{
				PVCount:       3,
				GiftPoints:    40,
				ReviewCount:   2,
				AverageRating: 3.0,
			}
			b := scoring.Compute(types.EntityShop, totals, w)

			Convey("Then each weight applies to its own counter", func() {
				So(b.PVScore, ShouldEqual, 6.0)
				So(b.GiftScore, ShouldEqual, 20.0)
				So(b.ReviewScore, ShouldEqual, 32.0)
				So(b.TotalScore, ShouldEqual, 58.0)
			})
		})
	})
}
