package ranking

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/platform/platformtest"
	"github.com/okian/promille/pkg/logger"
)

func TestRank(t *testing.T) {
	Convey("Given monthly usage for several members", t, func() {
		cat := catalog.Default()
		members := []model.MemberUsage{
			{MemberID: "300", Usage: model.Bucket{"beer": 2, "vodka": 3}},
			{MemberID: "42", Usage: model.Bucket{"whiskey": 5}},
			{MemberID: "7", Usage: model.Bucket{"beer": 0}},
			{MemberID: "1000", Usage: model.Bucket{"blunt": 7, "beer": 1}},
		}

		Convey("When ranked", func() {
			standings := Rank(cat, members)

			Convey("Then totals are sorted descending and zero totals dropped", func() {
				So(standings, ShouldHaveLength, 3)
				So(standings[0].MemberID, ShouldEqual, "1000")
				So(standings[0].Total, ShouldEqual, 8)
				So(standings[0].Breakdown, ShouldEqual, "🍺1🍃7")
				So(standings[0].Position, ShouldEqual, 1)
			})

			Convey("Then equal totals order numeric IDs by value", func() {
				So(standings[1].MemberID, ShouldEqual, "42")
				So(standings[2].MemberID, ShouldEqual, "300")
				So(standings[1].Position, ShouldEqual, 2)
				So(standings[2].Position, ShouldEqual, 3)
			})

			Convey("Then ranking twice gives the same order", func() {
				reversed := make([]model.MemberUsage, len(members))
				for i, m := range members {
					reversed[len(members)-1-i] = m
				}
				So(Rank(cat, reversed), ShouldResemble, standings)
			})
		})

		Convey("When nobody has usage", func() {
			So(Rank(cat, nil), ShouldBeEmpty)
		})
	})
}

func TestBreakdown(t *testing.T) {
	Convey("Given an all-zero bucket", t, func() {
		So(Breakdown(catalog.Default(), model.Bucket{"beer": 0}), ShouldEqual, Placeholder)
	})
}

func TestLessID(t *testing.T) {
	Convey("Given mixed member IDs", t, func() {
		So(lessID("9", "10"), ShouldBeTrue)
		So(lessID("10", "9"), ShouldBeFalse)
		So(lessID("alice", "bob"), ShouldBeTrue)
		So(lessID("123", "abc"), ShouldBeTrue)
		So(lessID("007", "8"), ShouldBeTrue)
	})
}

func TestFormatText(t *testing.T) {
	Convey("Given standings", t, func() {
		standings := []Standing{
			{Position: 1, MemberID: "1", Total: 3, Breakdown: "🍺3"},
			{Position: 2, MemberID: "2", Total: 1, Breakdown: "🍸1"},
		}

		Convey("Then the list uses mentions and totals", func() {
			text := FormatText("2024-05", standings, nil)
			So(text, ShouldStartWith, "**Leaderboard for 2024-05**:")
			So(text, ShouldContainSubstring, "**1)** <@1> (🍺3) - Total: 3")
			So(text, ShouldContainSubstring, "**2)** <@2> (🍸1) - Total: 1")
		})

		Convey("Then an empty month says so", func() {
			So(FormatText("2024-05", nil, nil), ShouldEqual, "Nobody has any points in 2024-05.")
		})
	})
}

func TestChart(t *testing.T) {
	Convey("Given standings", t, func() {
		standings := Rank(catalog.Default(), []model.MemberUsage{
			{MemberID: "1", Usage: model.Bucket{"beer": 3}},
			{MemberID: "2", Usage: model.Bucket{"vodka": 1}},
		})

		Convey("Then a PNG is produced", func() {
			png, err := Chart("2024-05", standings, func(id string) string { return "member " + id })
			So(err, ShouldBeNil)
			So(bytes.HasPrefix(png, []byte("\x89PNG")), ShouldBeTrue)
		})

		Convey("Then an empty board is rejected", func() {
			_, err := Chart("2024-05", nil, nil)
			So(errors.Is(err, ErrEmptyStanding), ShouldBeTrue)
		})
	})
}

type liveStub map[string][]model.MemberUsage

func (l liveStub) MonthUsage(month string) []model.MemberUsage { return l[month] }

type historyStub struct {
	months map[string][]model.MemberUsage
	err    error
	calls  int
}

func (h *historyStub) MonthUsage(_ context.Context, month string) ([]model.MemberUsage, error) {
	h.calls++
	return h.months[month], h.err
}

func TestBuilder(t *testing.T) {
	Convey("Given live and archived ledgers", t, func() {
		ctx := context.Background()
		clk := clock.NewFake(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC))
		live := liveStub{"2024-05": {{MemberID: "1", Usage: model.Bucket{"beer": 2}}}}
		history := &historyStub{months: map[string][]model.MemberUsage{
			"2024-04": {{MemberID: "2", Usage: model.Bucket{"vodka": 4}}},
		}}
		b := NewBuilder(catalog.Default(), live, history, clk)

		Convey("When no month is given", func() {
			month, standings, err := b.Board(ctx, "")

			Convey("Then the current month comes from memory", func() {
				So(err, ShouldBeNil)
				So(month, ShouldEqual, "2024-05")
				So(standings, ShouldHaveLength, 1)
				So(history.calls, ShouldEqual, 0)
			})
		})

		Convey("When a rolled-over month is asked for", func() {
			_, standings, err := b.Board(ctx, "2024-04")

			Convey("Then the archive answers", func() {
				So(err, ShouldBeNil)
				So(standings, ShouldHaveLength, 1)
				So(standings[0].MemberID, ShouldEqual, "2")
			})
		})

		Convey("When the archive fails", func() {
			history.err = errors.New("locked")
			_, _, err := b.Board(ctx, "2024-03")
			So(err, ShouldNotBeNil)
		})

		Convey("When the month is malformed", func() {
			_, _, err := b.Board(ctx, "May")
			So(errors.Is(err, ErrInvalidMonth), ShouldBeTrue)
		})
	})
}

func TestRefresher(t *testing.T) {
	Convey("Given a refresher over a fake publisher", t, func() {
		ctx := context.Background()
		fake := platformtest.New()
		settings := &settingsStub{}
		r := NewRefresher(fake, settings, logger.Nop())

		Convey("When nothing was published", func() {
			ok, err := r.Refresh(ctx, "board")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			_, err = r.Publish(ctx, "", "board")
			So(errors.Is(err, ErrNoChannel), ShouldBeTrue)
		})

		Convey("When a board is published and refreshed", func() {
			id, err := r.Publish(ctx, "c1", "v1")
			So(err, ShouldBeNil)
			ok, err := r.Refresh(ctx, "v2")

			Convey("Then the message is edited in place", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(fake.Messages[id].Content, ShouldEqual, "v2")
				So(settings.s.LeaderboardMessageID, ShouldEqual, id)
			})
		})

		Convey("When the published message was deleted", func() {
			id, _ := r.Publish(ctx, "c1", "v1")
			fake.Delete(id)
			ok, err := r.Refresh(ctx, "v2")

			Convey("Then the refresh is skipped silently", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				So(settings.s.LeaderboardMessageID, ShouldBeEmpty)
				So(settings.s.LeaderboardChannelID, ShouldEqual, "c1")
			})
		})

		Convey("When editing fails for another reason", func() {
			_, _ = r.Publish(ctx, "c1", "v1")
			fake.EditErr = errors.New("rate limited")
			_, err := r.Refresh(ctx, "v2")
			So(err, ShouldNotBeNil)
			So(settings.s.LeaderboardMessageID, ShouldNotBeEmpty)
		})
	})
}

type settingsStub struct{ s model.Settings }

func (s *settingsStub) Settings() model.Settings { return s.s }

func (s *settingsStub) UpdateSettings(fn func(*model.Settings)) model.Settings {
	fn(&s.s)
	return s.s
}
