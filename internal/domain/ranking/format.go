package ranking

import (
	"fmt"
	"strings"
)

// Mention formats a member reference for chat output.
type Mention func(memberID string) string

// DefaultMention renders a platform user mention.
func DefaultMention(memberID string) string {
	return "<@" + memberID + ">"
}

// FormatText renders standings as a flat ordered list.
func FormatText(month string, standings []Standing, mention Mention) string {
	if len(standings) == 0 {
		return fmt.Sprintf("Nobody has any points in %s.", month)
	}
	if mention == nil {
		mention = DefaultMention
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Leaderboard for %s**:", month)
	for _, s := range standings {
		fmt.Fprintf(&b, "\n**%d)** %s (%s) - Total: %d", s.Position, mention(s.MemberID), s.Breakdown, s.Total)
	}
	return b.String()
}
