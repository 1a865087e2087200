package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/promille/internal/adapters/repository"
	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/pkg/logger"
)

func sampleSnapshot(at time.Time) model.Snapshot {
	rec := model.NewStatusRecord(model.MemberRef{GuildID: "g1", MemberID: "123"}, "Alice")
	rec.Counts["beer"] = 2
	rec.Counts["vodka"] = 0
	rec.ExpiresAt["beer"] = at
	rec.MonthlyUsage["2024-05"] = model.Bucket{"beer": 2, "vodka": 1, "whiskey": 0, "other": 0, "blunt": 0}

	return model.Snapshot{
		Settings: model.Settings{
			ListeningChannelID:   "c1",
			LeaderboardChannelID: "c2",
			LeaderboardMessageID: "m1",
		},
		Records: map[string]model.StatusRecord{"123": rec.Clone()},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	Convey("Given a file store in a temp dir", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "data", "statuses.json")
		store := New(path, WithLogger(logger.Nop()))

		Convey("When the file does not exist", func() {
			snap, err := store.Load(ctx)

			Convey("Then an empty document is created", func() {
				So(err, ShouldBeNil)
				So(snap.Records, ShouldBeEmpty)
				_, statErr := os.Stat(path)
				So(statErr, ShouldBeNil)
			})
		})

		Convey("When a snapshot is saved and loaded", func() {
			at := time.Date(2024, 5, 10, 15, 0, 0, 123456789, time.UTC)
			want := sampleSnapshot(at)
			So(store.Save(ctx, want), ShouldBeNil)
			got, err := store.Load(ctx)

			Convey("Then counts, timers and the ledger survive", func() {
				So(err, ShouldBeNil)
				So(got.Settings, ShouldResemble, want.Settings)
				rec := got.Records["123"]
				So(rec.MemberID, ShouldEqual, "123")
				So(rec.GuildID, ShouldEqual, "g1")
				So(rec.BaseName, ShouldEqual, "Alice")
				So(rec.Counts, ShouldResemble, want.Records["123"].Counts)
				So(rec.ExpiresAt["beer"].Equal(at), ShouldBeTrue)
				So(rec.ExpiresAt, ShouldHaveLength, 1)
				So(rec.MonthlyUsage, ShouldResemble, want.Records["123"].MonthlyUsage)
			})

			Convey("Then absent timers are written as null", func() {
				raw, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				var doc map[string]any
				So(json.Unmarshal(raw, &doc), ShouldBeNil)
				member := doc["members"].(map[string]any)["123"].(map[string]any)
				expires := member["expires_at"].(map[string]any)
				So(expires, ShouldContainKey, "vodka")
				So(expires["vodka"], ShouldBeNil)
				So(expires["beer"], ShouldEqual, "2024-05-10T15:00:00.123456789Z")
			})
		})
	})
}

func TestFileStoreDamagedInput(t *testing.T) {
	Convey("Given hand-written data files", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		write := func(name, body string) *FileStore {
			path := filepath.Join(dir, name)
			So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)
			return New(path, WithLogger(logger.Nop()))
		}

		Convey("When a timestamp is malformed", func() {
			store := write("bad-ts.json", `{
				"version": 1,
				"members": {
					"1": {
						"base_name": "Bob",
						"counts": {"beer": 3, "vodka": 1},
						"expires_at": {"beer": "yesterday", "vodka": "2024-05-10T15:00:00Z"},
						"monthly_usage": {"2024-05": {"beer": 3, "vodka": 1}}
					}
				}
			}`)
			snap, err := store.Load(ctx)

			Convey("Then that category loads as expired and the rest survives", func() {
				So(err, ShouldBeNil)
				rec := snap.Records["1"]
				So(rec.Counts[catalog.Tag("beer")], ShouldEqual, 0)
				So(rec.ExpiresAt, ShouldNotContainKey, catalog.Tag("beer"))
				So(rec.Counts[catalog.Tag("vodka")], ShouldEqual, 1)
				So(rec.MonthlyUsage["2024-05"][catalog.Tag("beer")], ShouldEqual, 3)
			})
		})

		Convey("When a positive count has a null timer", func() {
			store := write("null-ts.json", `{"members": {"1": {"base_name": "Bob", "counts": {"beer": 2}, "expires_at": {"beer": null}}}}`)
			snap, err := store.Load(ctx)
			So(err, ShouldBeNil)
			So(snap.Records["1"].Counts[catalog.Tag("beer")], ShouldEqual, 0)
		})

		Convey("When a member counts a category the catalog no longer has", func() {
			store := write("unknown-tag.json", `{
				"version": 1,
				"members": {
					"1": {
						"base_name": "Bob",
						"counts": {"mead": 3, "beer": 9223372036854775807},
						"expires_at": {"mead": "2024-05-09T12:00:00Z", "beer": "2024-05-10T15:00:00Z"},
						"monthly_usage": {"2024-05": {"mead": 3}}
					}
				}
			}`)
			snap, err := store.Load(ctx)
			So(err, ShouldBeNil)

			Convey("Then the file loads with counts clamped to the limit", func() {
				rec := snap.Records["1"]
				So(rec.Counts[catalog.Tag("mead")], ShouldEqual, 3)
				So(rec.Counts[catalog.Tag("beer")], ShouldEqual, model.MaxCount)
			})

			Convey("Then restoring it leaves only known categories live", func() {
				clk := clock.NewFake(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
				statuses := repository.New(catalog.Default(), repository.WithClock(clk))
				dropped := statuses.Restore(snap)
				So(dropped, ShouldHaveLength, 1)
				So(dropped[0].Tag, ShouldEqual, catalog.Tag("mead"))

				rec, err := statuses.GetStatus(ctx, "1")
				So(err, ShouldBeNil)
				So(rec.Counts, ShouldNotContainKey, catalog.Tag("mead"))
				So(rec.MonthlyUsage["2024-05"][catalog.Tag("mead")], ShouldEqual, 3)

				_, err = statuses.RecordEvent(ctx, rec.Ref(), "Bob", "beer", 1)
				So(errors.Is(err, repository.ErrQuantityTooLarge), ShouldBeTrue)

				statuses.Expire(clk.Now().Add(48 * time.Hour))
				_, err = statuses.GetStatus(ctx, "1")
				So(errors.Is(err, repository.ErrNoActiveStatus), ShouldBeTrue)
			})
		})

		Convey("When the document is not JSON", func() {
			store := write("corrupt.json", `{"members": `)
			_, err := store.Load(ctx)
			So(errors.Is(err, ErrCorrupt), ShouldBeTrue)
		})

		Convey("When the document comes from a newer release", func() {
			store := write("future.json", `{"version": 99}`)
			_, err := store.Load(ctx)
			So(errors.Is(err, ErrVersion), ShouldBeTrue)
		})
	})
}
