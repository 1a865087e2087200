package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/promille/internal/domain/model"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestArchiveExport(t *testing.T) {
	Convey("Given an empty archive", t, func() {
		ctx := context.Background()
		db := openTemp(t)
		snap := model.MonthSnapshot{
			Month: "2024-04",
			Members: []model.MemberUsage{
				{MemberID: "2", Usage: model.Bucket{"beer": 4, "vodka": 0}},
				{MemberID: "1", Usage: model.Bucket{"blunt": 2}},
			},
		}

		Convey("When a month is exported", func() {
			So(db.ExportMonth(ctx, snap), ShouldBeNil)
			got, err := db.MonthUsage(ctx, "2024-04")

			Convey("Then it reads back ordered by member", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].MemberID, ShouldEqual, "1")
				So(got[0].Usage["blunt"], ShouldEqual, 2)
				So(got[1].Usage["beer"], ShouldEqual, 4)
				So(got[1].Usage["vodka"], ShouldEqual, 0)
			})

			Convey("Then exporting it again does not double count", func() {
				So(db.ExportMonth(ctx, snap), ShouldBeNil)
				again, err := db.MonthUsage(ctx, "2024-04")
				So(err, ShouldBeNil)
				So(again, ShouldResemble, got)

				n, err := db.ExportCount(ctx, "2024-04")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})

			Convey("Then the month is listed", func() {
				So(db.ExportMonth(ctx, model.MonthSnapshot{Month: "2024-03"}), ShouldBeNil)
				months, err := db.Months(ctx)
				So(err, ShouldBeNil)
				So(months, ShouldResemble, []string{"2024-04"})
			})
		})

		Convey("When a month was never exported", func() {
			got, err := db.MonthUsage(ctx, "2023-01")
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})
	})
}

func TestArchiveClosed(t *testing.T) {
	Convey("Given a nil archive", t, func() {
		var db *DB
		So(errors.Is(db.ExportMonth(context.Background(), model.MonthSnapshot{}), ErrClosed), ShouldBeTrue)
		_, err := db.MonthUsage(context.Background(), "2024-01")
		So(errors.Is(err, ErrClosed), ShouldBeTrue)
		So(db.Close(), ShouldBeNil)
	})
}
