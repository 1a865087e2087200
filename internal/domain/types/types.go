// Package types contains read models shared by the HTTP API and the chat
// command replies.
package types

import (
	"time"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/ranking"
)

// CategoryStatus is one active category of a member.
type CategoryStatus struct {
	Category  string    `json:"category"`
	Symbol    string    `json:"symbol"`
	Count     int       `json:"count"`
	ExpiresAt time.Time `json:"expires_at"`
	// HoursLeft is the remaining time rounded up to whole hours.
	HoursLeft int `json:"hours_left"`
}

// Status is the read shape of a member's live status.
type Status struct {
	MemberID   string           `json:"member_id"`
	BaseName   string           `json:"base_name"`
	Categories []CategoryStatus `json:"categories"`
}

// Leaderboard is the read shape of a ranked month.
type Leaderboard struct {
	Month     string             `json:"month"`
	Standings []ranking.Standing `json:"standings"`
}

// NewStatus lists the positive categories of rec in catalog order.
func NewStatus(cat *catalog.Catalog, rec model.StatusRecord, now time.Time) Status {
	out := Status{
		MemberID:   rec.MemberID,
		BaseName:   rec.BaseName,
		Categories: []CategoryStatus{},
	}
	for _, c := range cat.Categories() {
		n := rec.Counts[c.Tag]
		if n <= 0 {
			continue
		}
		at := rec.ExpiresAt[c.Tag]
		out.Categories = append(out.Categories, CategoryStatus{
			Category:  string(c.Tag),
			Symbol:    c.Symbol,
			Count:     n,
			ExpiresAt: at,
			HoursLeft: HoursLeft(at, now),
		})
	}
	return out
}

// HoursLeft rounds the time until at up to whole hours. Past instants
// yield zero.
func HoursLeft(at, now time.Time) int {
	d := at.Sub(now)
	if d <= 0 {
		return 0
	}
	h := int(d / time.Hour)
	if d%time.Hour != 0 {
		h++
	}
	return h
}
