package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/promille/internal/adapters/http/api"
	"github.com/okian/promille/internal/adapters/repository"
	"github.com/okian/promille/internal/domain/ranking"
	"github.com/okian/promille/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDependencies struct {
	statuses   map[string]types.Status
	statusErr  error
	boards     map[string]types.Leaderboard
	boardErr   error
	chart      []byte
	chartErr   error
	lastMonth  string
	lastMember string
}

func (m *mockDependencies) Status(_ context.Context, memberID string) (types.Status, error) {
	m.lastMember = memberID
	if m.statusErr != nil {
		return types.Status{}, m.statusErr
	}
	s, ok := m.statuses[memberID]
	if !ok {
		return types.Status{}, fmt.Errorf("status %s: %w", memberID, repository.ErrNoActiveStatus)
	}
	return s, nil
}

func (m *mockDependencies) Leaderboard(_ context.Context, month string) (types.Leaderboard, error) {
	m.lastMonth = month
	if m.boardErr != nil {
		return types.Leaderboard{}, m.boardErr
	}
	if month == "" {
		month = "2026-10"
	}
	return m.boards[month], nil
}

func (m *mockDependencies) LeaderboardChart(_ context.Context, month string) ([]byte, error) {
	m.lastMonth = month
	return m.chart, m.chartErr
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"tracked_members": 3}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("Then health endpoint serves metrics", func() {
			w := serve(mux, http.MethodGet, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats endpoint serves JSON", func() {
			w := serve(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			var body map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["tracked_members"], ShouldEqual, 3.0)
		})

		Convey("Then stats rejects other methods", func() {
			w := serve(mux, http.MethodPost, "/stats")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then unknown paths are not found", func() {
			w := serve(mux, http.MethodGet, "/unknown")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestStatusHandler(t *testing.T) {
	Convey("Given a member with an active status", t, func() {
		deps := &mockDependencies{statuses: map[string]types.Status{
			"123": {
				MemberID: "123",
				BaseName: "Alice",
				Categories: []types.CategoryStatus{
					{Category: "beer", Symbol: "🍺", Count: 2, HoursLeft: 3},
				},
			},
		}}
		mux := newMux(deps)

		Convey("When requesting the status", func() {
			w := serve(mux, http.MethodGet, "/status/123")

			Convey("Then the status is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastMember, ShouldEqual, "123")
				var got types.Status
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.BaseName, ShouldEqual, "Alice")
				So(got.Categories, ShouldHaveLength, 1)
				So(got.Categories[0].HoursLeft, ShouldEqual, 3)
			})
		})

		Convey("When requesting an unknown member", func() {
			w := serve(mux, http.MethodGet, "/status/999")

			Convey("Then 404 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Body.String(), ShouldContainSubstring, "not_found")
			})
		})

		Convey("When the member ID is missing or nested", func() {
			So(serve(mux, http.MethodGet, "/status/").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/status/1/2").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the store fails", func() {
			deps.statusErr = errors.New("boom")
			w := serve(mux, http.MethodGet, "/status/123")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When using another method", func() {
			So(serve(mux, http.MethodDelete, "/status/123").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestLeaderboardHandler(t *testing.T) {
	Convey("Given leaderboards for two months", t, func() {
		deps := &mockDependencies{boards: map[string]types.Leaderboard{
			"2026-10": {Month: "2026-10", Standings: []ranking.Standing{
				{Position: 1, MemberID: "1", Total: 5, Breakdown: "🍺5"},
			}},
			"2026-09": {Month: "2026-09", Standings: []ranking.Standing{}},
		}}
		mux := newMux(deps)

		Convey("When no month is given", func() {
			w := serve(mux, http.MethodGet, "/leaderboard")

			Convey("Then the current month is ranked", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastMonth, ShouldEqual, "")
				var got types.Leaderboard
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.Month, ShouldEqual, "2026-10")
				So(got.Standings, ShouldHaveLength, 1)
				So(got.Standings[0].Breakdown, ShouldEqual, "🍺5")
			})
		})

		Convey("When a past month is given", func() {
			w := serve(mux, http.MethodGet, "/leaderboard?month=2026-09")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastMonth, ShouldEqual, "2026-09")
		})

		Convey("When the month is malformed", func() {
			deps.boardErr = fmt.Errorf("%w: %q", ranking.ErrInvalidMonth, "09/2026")
			w := serve(mux, http.MethodGet, "/leaderboard?month=09/2026")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the archive fails", func() {
			deps.boardErr = errors.New("database is locked")
			w := serve(mux, http.MethodGet, "/leaderboard?month=2026-01")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})

	Convey("Given a chart renderer", t, func() {
		deps := &mockDependencies{chart: []byte("\x89PNG")}
		mux := newMux(deps)

		Convey("When the chart renders", func() {
			w := serve(mux, http.MethodGet, "/leaderboard.png?month=2026-10")

			Convey("Then a PNG is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "image/png")
				So(w.Body.String(), ShouldEqual, "\x89PNG")
				So(deps.lastMonth, ShouldEqual, "2026-10")
			})
		})

		Convey("When nobody has points", func() {
			deps.chartErr = ranking.ErrEmptyStanding
			So(serve(mux, http.MethodGet, "/leaderboard.png").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the month is malformed", func() {
			deps.chartErr = ranking.ErrInvalidMonth
			So(serve(mux, http.MethodGet, "/leaderboard.png?month=x").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
