package types_test

import (
	"testing"
	"time"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/model"
	types "github.com/okian/promille/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHoursLeft(t *testing.T) {
	Convey("Given a reference instant", t, func() {
		now := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)

		Convey("Then whole hours are kept", func() {
			So(types.HoursLeft(now.Add(3*time.Hour), now), ShouldEqual, 3)
		})

		Convey("Then partial hours round up", func() {
			So(types.HoursLeft(now.Add(2*time.Hour+time.Second), now), ShouldEqual, 3)
			So(types.HoursLeft(now.Add(time.Minute), now), ShouldEqual, 1)
		})

		Convey("Then past instants yield zero", func() {
			So(types.HoursLeft(now, now), ShouldEqual, 0)
			So(types.HoursLeft(now.Add(-time.Hour), now), ShouldEqual, 0)
		})
	})
}

func TestNewStatus(t *testing.T) {
	Convey("Given a record with two active categories", t, func() {
		now := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
		rec := model.NewStatusRecord(model.MemberRef{GuildID: "g1", MemberID: "u1"}, "Alice")
		rec.Counts["blunt"] = 1
		rec.ExpiresAt["blunt"] = now.Add(4 * time.Hour)
		rec.Counts["beer"] = 2
		rec.ExpiresAt["beer"] = now.Add(90 * time.Minute)
		rec.Counts["vodka"] = 0

		status := types.NewStatus(catalog.Default(), rec.Clone(), now)

		Convey("Then categories follow catalog order and skip zeros", func() {
			So(status.MemberID, ShouldEqual, "u1")
			So(status.BaseName, ShouldEqual, "Alice")
			So(status.Categories, ShouldHaveLength, 2)
			So(status.Categories[0].Category, ShouldEqual, "beer")
			So(status.Categories[0].Symbol, ShouldEqual, "🍺")
			So(status.Categories[0].HoursLeft, ShouldEqual, 2)
			So(status.Categories[1].Category, ShouldEqual, "blunt")
			So(status.Categories[1].HoursLeft, ShouldEqual, 4)
		})
	})

	Convey("Given an inactive record", t, func() {
		rec := model.NewStatusRecord(model.MemberRef{MemberID: "u2"}, "Bob")
		status := types.NewStatus(catalog.Default(), rec.Clone(), time.Now())

		Convey("Then the category list is empty, not nil", func() {
			So(status.Categories, ShouldNotBeNil)
			So(status.Categories, ShouldBeEmpty)
		})
	})
}
