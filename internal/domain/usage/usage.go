// Package usage maintains the monthly ledger inside status records.
//
// Buckets only grow during normal operation. Expiry touches live counts,
// never the ledger; the only removal is Roller dropping a completed month
// after it was exported.
package usage

import (
	"time"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/model"
)

// monthLayout is the ledger key format.
const monthLayout = "2006-01"

// MonthKey returns the UTC calendar month of t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// ParseMonth validates a YYYY-MM key.
func ParseMonth(key string) (time.Time, error) {
	return time.ParseInLocation(monthLayout, key, time.UTC)
}

// EnsureMonth creates a zeroed bucket for month if absent and returns it.
func EnsureMonth(rec *model.StatusRecord, cat *catalog.Catalog, month string) model.Bucket {
	if rec.MonthlyUsage == nil {
		rec.MonthlyUsage = map[string]model.Bucket{}
	}
	b, ok := rec.MonthlyUsage[month]
	if !ok {
		b = make(model.Bucket, len(cat.Tags()))
		for _, tag := range cat.Tags() {
			b[tag] = 0
		}
		rec.MonthlyUsage[month] = b
	}
	return b
}

// AddUsage adds qty to the month bucket of tag. Non-positive quantities are
// ignored so a bucket can never decrease.
func AddUsage(rec *model.StatusRecord, cat *catalog.Catalog, month string, tag catalog.Tag, qty int) {
	if qty <= 0 {
		return
	}
	b := EnsureMonth(rec, cat, month)
	b[tag] += qty
}

// Total sums a bucket across categories.
func Total(b model.Bucket) int {
	sum := 0
	for _, n := range b {
		sum += n
	}
	return sum
}
