package usage

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/pkg/logger"
)

func TestMonthKey(t *testing.T) {
	Convey("Given instants near a month boundary", t, func() {
		Convey("Then keys use the UTC calendar month", func() {
			So(MonthKey(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)), ShouldEqual, "2024-01")
			So(MonthKey(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)), ShouldEqual, "2024-02")

			warsaw := time.FixedZone("CET", 3600)
			So(MonthKey(time.Date(2024, 3, 1, 0, 30, 0, 0, warsaw)), ShouldEqual, "2024-02")
		})

		Convey("Then keys parse back", func() {
			ts, err := ParseMonth("2024-02")
			So(err, ShouldBeNil)
			So(ts.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)

			_, err = ParseMonth("02/2024")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestAddUsage(t *testing.T) {
	Convey("Given an empty record", t, func() {
		cat := catalog.Default()
		rec := model.NewStatusRecord(model.MemberRef{MemberID: "u1"}, "Alice")

		Convey("When usage is added", func() {
			AddUsage(rec, cat, "2024-05", "beer", 2)
			AddUsage(rec, cat, "2024-05", "beer", 1)

			Convey("Then the bucket is zero-filled and accumulates", func() {
				b := rec.MonthlyUsage["2024-05"]
				So(b, ShouldHaveLength, len(cat.Tags()))
				So(b["beer"], ShouldEqual, 3)
				So(b["vodka"], ShouldEqual, 0)
				So(Total(b), ShouldEqual, 3)
			})
		})

		Convey("When a non-positive quantity is added", func() {
			AddUsage(rec, cat, "2024-05", "beer", 0)
			AddUsage(rec, cat, "2024-05", "beer", -4)

			Convey("Then no bucket is created", func() {
				So(rec.MonthlyUsage, ShouldBeEmpty)
			})
		})
	})
}

type fakeLedger struct {
	months  map[string][]model.MemberUsage
	dropped []string
}

func (l *fakeLedger) PendingMonths(before string) []string {
	var out []string
	for m := range l.months {
		if m < before {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func (l *fakeLedger) MonthSnapshot(month string) model.MonthSnapshot {
	return model.MonthSnapshot{Month: month, Members: l.months[month]}
}

func (l *fakeLedger) DropMonth(month string) int {
	n := len(l.months[month])
	delete(l.months, month)
	l.dropped = append(l.dropped, month)
	return n
}

type fakeExporter struct {
	failFor  map[string]bool
	exported []string
}

func (e *fakeExporter) ExportMonth(_ context.Context, snap model.MonthSnapshot) error {
	if e.failFor[snap.Month] {
		return errors.New("disk full")
	}
	e.exported = append(e.exported, snap.Month)
	return nil
}

func TestRoller(t *testing.T) {
	Convey("Given a ledger holding two past months and the current one", t, func() {
		ctx := context.Background()
		ledger := &fakeLedger{months: map[string][]model.MemberUsage{
			"2024-03": {{MemberID: "u1", Usage: model.Bucket{"beer": 2}}},
			"2024-04": {{MemberID: "u2", Usage: model.Bucket{"vodka": 1}}},
			"2024-05": {{MemberID: "u1", Usage: model.Bucket{"beer": 1}}},
		}}
		exporter := &fakeExporter{failFor: map[string]bool{}}
		clk := clock.NewFake(time.Date(2024, 5, 1, 0, 0, 5, 0, time.UTC))
		saves := 0
		roller := NewRoller(ledger, exporter, clk, func(context.Context) { saves++ }, logger.Nop())

		Convey("When every export succeeds", func() {
			done, err := roller.Run(ctx)

			Convey("Then past months are exported oldest first and dropped", func() {
				So(err, ShouldBeNil)
				So(done, ShouldResemble, []string{"2024-03", "2024-04"})
				So(exporter.exported, ShouldResemble, []string{"2024-03", "2024-04"})
				So(ledger.months, ShouldContainKey, "2024-05")
				So(ledger.months, ShouldHaveLength, 1)
				So(saves, ShouldEqual, 1)
			})

			Convey("Then a second run has nothing to do", func() {
				done, err := roller.Run(ctx)
				So(err, ShouldBeNil)
				So(done, ShouldBeEmpty)
				So(saves, ShouldEqual, 1)
			})
		})

		Convey("When one export fails", func() {
			exporter.failFor["2024-03"] = true
			done, err := roller.Run(ctx)

			Convey("Then the failed month keeps its bucket and the rest proceed", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "2024-03")
				So(done, ShouldResemble, []string{"2024-04"})
				So(ledger.months, ShouldContainKey, "2024-03")
				So(ledger.dropped, ShouldResemble, []string{"2024-04"})
			})
		})

		Convey("When every export fails", func() {
			exporter.failFor["2024-03"] = true
			exporter.failFor["2024-04"] = true
			_, err := roller.Run(ctx)

			Convey("Then nothing is dropped or saved", func() {
				So(err, ShouldNotBeNil)
				So(ledger.dropped, ShouldBeEmpty)
				So(saves, ShouldEqual, 0)
			})
		})
	})
}
