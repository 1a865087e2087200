package simulate

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/promille/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRun(t *testing.T) {
	Convey("Given a small simulation", t, func() {
		So(logger.Configure(io.Discard, "text"), ShouldBeNil)
		out := filepath.Join(t.TempDir(), "events", "events.json")
		cfg := &Config{
			NumEvents:  300,
			Members:    25,
			Workers:    4,
			Timeout:    5 * time.Second,
			OutputFile: out,
		}

		Convey("When it runs", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			stats, err := Run(ctx, cfg)

			Convey("Then every check passes and the events are saved", func() {
				So(err, ShouldBeNil)
				So(stats.EventsRecorded, ShouldEqual, 300)
				So(stats.EventsFailed, ShouldEqual, 0)
				So(stats.StatusesRetrieved, ShouldEqual, 25)
				So(stats.StatusesExpired, ShouldEqual, 25)
				So(stats.LeaderboardEntries, ShouldBeBetweenOrEqual, 1, 25)

				raw, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				var saved []Event
				So(json.Unmarshal(raw, &saved), ShouldBeNil)
				So(saved, ShouldHaveLength, 300)
			})
		})

		Convey("When there is nothing to generate", func() {
			cfg.NumEvents = 0
			_, err := Run(context.Background(), cfg)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestVerifyLeaderboard(t *testing.T) {
	Convey("Given expected totals", t, func() {
		expected := map[string]int{"100": 3, "200": 3, "300": 5}
		good := Board{Standings: []Entry{
			{Position: 1, MemberID: "300", Total: 5, Usage: map[string]int{"beer": 5}},
			{Position: 2, MemberID: "100", Total: 3, Usage: map[string]int{"beer": 1, "vodka": 2}},
			{Position: 3, MemberID: "200", Total: 3, Usage: map[string]int{"blunt": 3}},
		}}

		Convey("A consistent board passes", func() {
			So(verifyLeaderboard(expected, good), ShouldBeNil)
		})

		Convey("A tie out of ID order fails", func() {
			bad := good
			bad.Standings = []Entry{good.Standings[0], good.Standings[2], good.Standings[1]}
			bad.Standings[1].Position, bad.Standings[2].Position = 2, 3
			So(verifyLeaderboard(expected, bad), ShouldNotBeNil)
		})

		Convey("A wrong total fails", func() {
			bad := Board{Standings: append([]Entry(nil), good.Standings...)}
			bad.Standings[0].Total = 4
			So(verifyLeaderboard(expected, bad), ShouldNotBeNil)
		})

		Convey("A missing member fails", func() {
			So(verifyLeaderboard(expected, Board{Standings: good.Standings[:2]}), ShouldNotBeNil)
		})
	})

	Convey("Statuses and expiry are checked per member", t, func() {
		So(verifyStatuses(map[string]int{"1": 2}, map[string]int{"1": 2}), ShouldBeNil)
		So(verifyStatuses(map[string]int{"1": 2}, map[string]int{"1": 1}), ShouldNotBeNil)
		n, err := verifyExpired(map[string]int{"1": 0, "2": 0})
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 2)
		_, err = verifyExpired(map[string]int{"1": 1})
		So(err, ShouldNotBeNil)
	})
}

func TestGenerator(t *testing.T) {
	Convey("Quantities stay between one and three", t, func() {
		for i := 0; i < 200; i++ {
			So(generateQuantity(), ShouldBeBetweenOrEqual, 1, 3)
		}
	})

	Convey("Member IDs are fixed width and ordered", t, func() {
		ids := memberIDs(3)
		So(ids, ShouldResemble, []string{"100000000000000000", "100000000000000001", "100000000000000002"})
	})

	Convey("Expected totals sum quantities per member", t, func() {
		totals := expectedTotals([]Event{
			{MemberID: "1", Quantity: 2},
			{MemberID: "1", Quantity: 1},
			{MemberID: "2", Quantity: 3},
		})
		So(totals, ShouldResemble, map[string]int{"1": 3, "2": 3})
	})
}
