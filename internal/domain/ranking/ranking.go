// Package ranking builds the monthly leaderboard from the usage ledger.
package ranking

import (
	"sort"
	"strings"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/render"
	"github.com/okian/promille/internal/domain/usage"
)

// Placeholder is shown when a breakdown has no positive category.
const Placeholder = "none"

// Standing is one ranked member.
type Standing struct {
	Position  int          `json:"position"`
	MemberID  string       `json:"member_id"`
	Total     int          `json:"total"`
	Breakdown string       `json:"breakdown"`
	Usage     model.Bucket `json:"usage"`
}

// Rank orders members by their bucket total, highest first. Members with a
// zero total are left out. Equal totals are ordered by member ID ascending,
// comparing all-digit IDs numerically.
func Rank(cat *catalog.Catalog, members []model.MemberUsage) []Standing {
	out := make([]Standing, 0, len(members))
	for _, m := range members {
		total := usage.Total(m.Usage)
		if total <= 0 {
			continue
		}
		out = append(out, Standing{
			MemberID:  m.MemberID,
			Total:     total,
			Breakdown: Breakdown(cat, m.Usage),
			Usage:     m.Usage.Clone(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return lessID(out[i].MemberID, out[j].MemberID)
	})
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

// Breakdown renders symbol+count per positive category in catalog order.
func Breakdown(cat *catalog.Catalog, b model.Bucket) string {
	if s := render.Suffix(cat, b); s != "" {
		return s
	}
	return Placeholder
}

// lessID orders snowflake-style numeric IDs by value and anything else
// lexically.
func lessID(a, b string) bool {
	if isDigits(a) && isDigits(b) {
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			return len(a) < len(b)
		}
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
