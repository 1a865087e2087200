package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/promille/internal/domain/ranking"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, month string) (Leaderboard, error)
	LeaderboardChart(ctx context.Context, month string) ([]byte, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard?month=YYYY-MM requests.
// Without month the current UTC month is ranked.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	board, err := h.deps.Leaderboard(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		if errors.Is(err, ranking.ErrInvalidMonth) {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// HandleGetChart handles GET /leaderboard.png?month=YYYY-MM requests.
func (h *LeaderboardHandler) HandleGetChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard_chart"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	png, err := h.deps.LeaderboardChart(r.Context(), r.URL.Query().Get("month"))
	switch {
	case errors.Is(err, ranking.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, err))
		return
	case errors.Is(err, ranking.ErrEmptyStanding):
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%s: %w", op, err))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s: %w", op, err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
