package ranking

import (
	"context"
	"fmt"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/usage"
)

// LiveSource returns the ledger still held in memory.
type LiveSource interface {
	MonthUsage(month string) []model.MemberUsage
}

// HistorySource returns months that were rolled over to durable storage.
type HistorySource interface {
	MonthUsage(ctx context.Context, month string) ([]model.MemberUsage, error)
}

// Builder ranks any month, reading the in-memory ledger first and falling
// back to the archive for months already rolled over.
type Builder struct {
	catalog *catalog.Catalog
	live    LiveSource
	history HistorySource
	clock   clock.Clock
}

// NewBuilder wires a Builder. history may be nil.
func NewBuilder(cat *catalog.Catalog, live LiveSource, history HistorySource, clk clock.Clock) *Builder {
	return &Builder{catalog: cat, live: live, history: history, clock: clk}
}

// CurrentMonth returns the ledger key for now.
func (b *Builder) CurrentMonth() string {
	return usage.MonthKey(b.clock.Now())
}

// Board ranks month. An empty month means the current one.
func (b *Builder) Board(ctx context.Context, month string) (string, []Standing, error) {
	if month == "" {
		month = b.CurrentMonth()
	}
	if _, err := usage.ParseMonth(month); err != nil {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}

	members := b.live.MonthUsage(month)
	if len(members) == 0 && b.history != nil && month < b.CurrentMonth() {
		archived, err := b.history.MonthUsage(ctx, month)
		if err != nil {
			return month, nil, fmt.Errorf("load archived month %s: %w", month, err)
		}
		members = archived
	}
	return month, Rank(b.catalog, members), nil
}
