package badge_test

import (
	"testing"
	"time"

	badge "github.com/yorunavi/engine/internal/domain/badge"
	"github.com/yorunavi/engine/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTierFor(t *testing.T) {
	Convey("Given the badge tier mapping", t, func() {
		Convey("When the rank is 1", func() {
			tier, ok := badge.TierFor(1)

			Convey("Then the badge is gold", func() {
				So(ok, ShouldBeTrue)
				So(tier, ShouldEqual, types.BadgeGold)
			})
		})

		Convey("When the rank is 2 or 3", func() {
			for _, r := range []int{2, 3} {
				tier, ok := badge.TierFor(r)
				So(ok, ShouldBeTrue)
				So(tier, ShouldEqual, types.BadgeSilver)
			}
		})

		Convey("When the rank is 4 through 10", func() {
			for r := 4; r <= 10; r++ {
				tier, ok := badge.TierFor(r)
				So(ok, ShouldBeTrue)
				So(tier, ShouldEqual, types.BadgeBronze)
			}
		})

		Convey("When the rank is outside the awarded range", func() {
			for _, r := range []int{0, -1, 11, 100} {
				_, ok := badge.TierFor(r)
				So(ok, ShouldBeFalse)
			}
		})
	})
}

func TestValidityWindow(t *testing.T) {
	Convey("Given a mid-year scored month", t, func() {
		from, until := badge.ValidityWindow(2025, 6, time.UTC)

		Convey("Then the badge covers the following calendar month", func() {
			So(from, ShouldEqual, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))
			So(until.After(from), ShouldBeTrue)
			So(until.Before(time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})
	})

	Convey("Given a December scored month", t, func() {
		from, until := badge.ValidityWindow(2025, 12, time.UTC)

		Convey("Then the window rolls into January of the next year", func() {
			So(from, ShouldEqual, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))
			So(until.Before(time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})
	})
}
