package clock_test

import (
	"testing"
	"time"

	"github.com/okian/promille/internal/domain/clock"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFakeClock(t *testing.T) {
	Convey("Given a fake clock", t, func() {
		start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
		fc := clock.NewFake(start)
		ticker := fc.NewTicker(time.Minute)
		defer ticker.Stop()

		Convey("When advancing less than one period", func() {
			fc.Advance(30 * time.Second)

			Convey("Then no tick is delivered", func() {
				So(fc.Now(), ShouldEqual, start.Add(30*time.Second))
				select {
				case <-ticker.C():
					So("unexpected tick", ShouldBeEmpty)
				default:
				}
			})
		})

		Convey("When advancing past one period", func() {
			fc.Advance(61 * time.Second)

			Convey("Then the tick carries the scheduled time", func() {
				tick := <-ticker.C()
				So(tick, ShouldEqual, start.Add(time.Minute))
			})
		})

		Convey("When a ticker has no period", func() {
			Convey("Then it is refused instead of spinning in Advance", func() {
				So(func() { fc.NewTicker(0) }, ShouldPanic)
				So(func() { fc.NewTicker(-time.Second) }, ShouldPanic)
				So(func() { fc.Advance(time.Hour) }, ShouldNotPanic)
			})
		})

		Convey("When the ticker is stopped", func() {
			ticker.Stop()
			fc.Advance(5 * time.Minute)

			Convey("Then nothing fires", func() {
				select {
				case <-ticker.C():
					So("unexpected tick", ShouldBeEmpty)
				default:
				}
			})
		})

		Convey("When the clock is set directly", func() {
			later := start.Add(48 * time.Hour)
			fc.Set(later)
			So(fc.Now(), ShouldEqual, later)
		})
	})
}
