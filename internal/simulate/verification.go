package simulate

import (
	"context"
	"fmt"

	"github.com/okian/promille/pkg/logger"
)

// expectedTotals sums event quantities per member.
func expectedTotals(events []Event) map[string]int {
	out := map[string]int{}
	for _, e := range events {
		out[e.MemberID] += e.Quantity
	}
	return out
}

// verifyLeaderboard checks the served leaderboard against the generated
// events: every member with usage appears once with the right total, rows
// are ordered by total then member ID, and positions run from 1.
func verifyLeaderboard(expected map[string]int, board Board) error {
	if len(board.Standings) != len(expected) {
		return fmt.Errorf("leaderboard has %d entries, expected %d", len(board.Standings), len(expected))
	}
	seen := make(map[string]bool, len(board.Standings))
	for i, e := range board.Standings {
		if e.Position != i+1 {
			return fmt.Errorf("entry %d has position %d", i, e.Position)
		}
		if seen[e.MemberID] {
			return fmt.Errorf("member %s listed twice", e.MemberID)
		}
		seen[e.MemberID] = true
		if want := expected[e.MemberID]; e.Total != want {
			return fmt.Errorf("member %s total %d, expected %d", e.MemberID, e.Total, want)
		}
		sum := 0
		for _, n := range e.Usage {
			sum += n
		}
		if sum != e.Total {
			return fmt.Errorf("member %s usage sums to %d, total is %d", e.MemberID, sum, e.Total)
		}
		if i == 0 {
			continue
		}
		prev := board.Standings[i-1]
		if prev.Total < e.Total || (prev.Total == e.Total && prev.MemberID > e.MemberID) {
			return fmt.Errorf("entries %d and %d out of order", i-1, i)
		}
	}
	return nil
}

// verifyStatuses checks the active counts served per member.
func verifyStatuses(expected, got map[string]int) error {
	for id, want := range expected {
		if got[id] != want {
			return fmt.Errorf("member %s has %d active, expected %d", id, got[id], want)
		}
	}
	return nil
}

// verifyExpired checks that no member has an active count left.
func verifyExpired(got map[string]int) (int, error) {
	for id, n := range got {
		if n != 0 {
			return 0, fmt.Errorf("member %s still has %d active after expiry", id, n)
		}
	}
	return len(got), nil
}

func displayTopMembers(ctx context.Context, board Board, verbose bool) {
	topN := 10
	if verbose {
		topN = len(board.Standings)
	}
	topN = min(topN, len(board.Standings))
	for _, e := range board.Standings[:topN] {
		logger.Get().Info(ctx, "standing",
			logger.Int("position", e.Position),
			logger.String("member_id", e.MemberID),
			logger.Int("total", e.Total),
			logger.String("breakdown", e.Breakdown))
	}
}
