// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"

	"github.com/okian/promille/internal/domain/catalog"
)

// MemberRef addresses a member on the chat platform.
type MemberRef struct {
	GuildID  string
	MemberID string
}

// MaxCount bounds every live count and every monthly bucket total, so a
// bucket can be summed without overflowing int.
const MaxCount = math.MaxInt32

// Bucket maps a category to a count.
type Bucket map[catalog.Tag]int

// Clone returns an independent copy of b.
func (b Bucket) Clone() Bucket {
	if b == nil {
		return nil
	}
	out := make(Bucket, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// StatusRecord is the per-member aggregate of live counts, expiry timers,
// base name and the monthly ledger.
type StatusRecord struct {
	MemberID string
	GuildID  string
	// BaseName is the display name without the rendered suffix.
	BaseName string
	Counts   Bucket
	// ExpiresAt holds an entry only while the matching count is positive.
	ExpiresAt map[catalog.Tag]time.Time
	// MonthlyUsage is keyed by UTC month (YYYY-MM).
	MonthlyUsage map[string]Bucket
}

// NewStatusRecord returns an empty record for member.
func NewStatusRecord(member MemberRef, baseName string) *StatusRecord {
	return &StatusRecord{
		MemberID:     member.MemberID,
		GuildID:      member.GuildID,
		BaseName:     baseName,
		Counts:       Bucket{},
		ExpiresAt:    map[catalog.Tag]time.Time{},
		MonthlyUsage: map[string]Bucket{},
	}
}

// Ref returns the platform address of the record's owner.
func (r *StatusRecord) Ref() MemberRef {
	return MemberRef{GuildID: r.GuildID, MemberID: r.MemberID}
}

// Active reports whether any count is positive.
func (r *StatusRecord) Active() bool {
	for _, n := range r.Counts {
		if n > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of r.
func (r *StatusRecord) Clone() StatusRecord {
	out := StatusRecord{
		MemberID:     r.MemberID,
		GuildID:      r.GuildID,
		BaseName:     r.BaseName,
		Counts:       r.Counts.Clone(),
		ExpiresAt:    make(map[catalog.Tag]time.Time, len(r.ExpiresAt)),
		MonthlyUsage: make(map[string]Bucket, len(r.MonthlyUsage)),
	}
	if out.Counts == nil {
		out.Counts = Bucket{}
	}
	for k, v := range r.ExpiresAt {
		out.ExpiresAt[k] = v
	}
	for month, b := range r.MonthlyUsage {
		out.MonthlyUsage[month] = b.Clone()
	}
	return out
}

// Settings holds process-wide platform references. The values are opaque
// identifiers owned by the chat platform.
type Settings struct {
	ListeningChannelID   string
	LeaderboardChannelID string
	LeaderboardMessageID string
	StatusMessageID      string
}

// Snapshot is the full persisted state.
type Snapshot struct {
	Settings Settings
	Records  map[string]StatusRecord
}

// MemberUsage is one member's bucket for a given month.
type MemberUsage struct {
	MemberID string
	Usage    Bucket
}

// MonthSnapshot is the exportable ledger of one completed month.
type MonthSnapshot struct {
	Month   string
	Members []MemberUsage
}

// Expiration describes one category zeroed by the sweep.
type Expiration struct {
	MemberID string
	Tag      catalog.Tag
	Count    int
}
