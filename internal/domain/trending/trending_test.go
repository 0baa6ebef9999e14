package trending_test

import (
	"testing"

	trending "github.com/yorunavi/engine/internal/domain/trending"
	"github.com/yorunavi/engine/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGrowth(t *testing.T) {
	Convey("Given the growth formula", t, func() {
		Convey("When both windows have views", func() {
			So(trending.Growth(30, 10), ShouldEqual, 2.0)
			So(trending.Growth(10, 20), ShouldEqual, -0.5)
		})

		Convey("When the previous window is empty", func() {
			// Denominator clamps to 1.
			So(trending.Growth(7, 0), ShouldEqual, 7.0)
		})

		Convey("When nothing changed", func() {
			So(trending.Growth(10, 10), ShouldEqual, 0.0)
		})
	})
}

func TestCompute(t *testing.T) {
	Convey("Given candidates in one area", t, func() {
		counts := []trending.Counts{
			{EntityType: types.EntityCast, EntityID: "slow", Area: "okayama", Current: 12, Previous: 10},
			{EntityType: types.EntityCast, EntityID: "fast", Area: "okayama", Current: 30, Previous: 5},
			{EntityType: types.EntityCast, EntityID: "new", Area: "okayama", Current: 8, Previous: 0},
			{EntityType: types.EntityCast, EntityID: "quiet", Area: "okayama", Current: 3, Previous: 1},
		}

		Convey("When computed with min count 5", func() {
			rows := trending.Compute(counts, 5, 0)

			Convey("Then low-volume entities are dropped", func() {
				So(len(rows), ShouldEqual, 3)
				for _, r := range rows {
					So(r.EntityID, ShouldNotEqual, "quiet")
				}
			})

			Convey("And rows are ordered by growth with contiguous ranks", func() {
				// new: (8-0)/1 = 8, fast: (30-5)/5 = 5, slow: 0.2
				So(rows[0].EntityID, ShouldEqual, "new")
				So(rows[0].GrowthRate, ShouldEqual, 8.0)
				So(rows[1].EntityID, ShouldEqual, "fast")
				So(rows[2].EntityID, ShouldEqual, "slow")
				for i, r := range rows {
					So(r.Rank, ShouldEqual, i+1)
				}
			})
		})

		Convey("When growth rates tie", func() {
			tied := []trending.Counts{
				{EntityID: "b", Area: "okayama", Current: 20, Previous: 10},
				{EntityID: "a", Area: "okayama", Current: 40, Previous: 20},
			}
			rows := trending.Compute(tied, 0, 0)

			Convey("Then the higher current count wins", func() {
				So(rows[0].EntityID, ShouldEqual, "a")
				So(rows[1].EntityID, ShouldEqual, "b")
			})
		})

		Convey("When more candidates qualify than the limit", func() {
			many := make([]trending.Counts, 0, 60)
			for i := 0; i < 60; i++ {
				many = append(many, trending.Counts{
					EntityID: string(rune('a'+i%26)) + string(rune('0'+i/26)),
					Area:     "okayama",
					Current:  100 + i,
					Previous: 10,
				})
			}
			rows := trending.Compute(many, 0, 0)

			Convey("Then the batch is capped at the default top count", func() {
				So(len(rows), ShouldEqual, trending.DefaultTopPerArea)
				So(rows[len(rows)-1].Rank, ShouldEqual, trending.DefaultTopPerArea)
			})
		})

		Convey("When an explicit limit is given", func() {
			rows := trending.Compute(counts, 0, 2)

			Convey("Then only that many rows survive", func() {
				So(len(rows), ShouldEqual, 2)
			})
		})
	})
}
