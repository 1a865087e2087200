package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

// Ledger exposes the month buckets held by the status store.
type Ledger interface {
	// PendingMonths lists months strictly before the given key that still
	// have a bucket on any record, oldest first.
	PendingMonths(before string) []string
	MonthSnapshot(month string) model.MonthSnapshot
	// DropMonth removes the month bucket from every record and returns the
	// number of records touched.
	DropMonth(month string) int
}

// Exporter stores a completed month durably. Implementations must be
// idempotent per (month, member, category): exporting the same snapshot
// twice leaves the same totals.
type Exporter interface {
	ExportMonth(ctx context.Context, snap model.MonthSnapshot) error
}

// Saver persists the store after buckets were dropped.
type Saver func(ctx context.Context)

// Roller exports completed months and frees their buckets.
type Roller struct {
	ledger   Ledger
	exporter Exporter
	clock    clock.Clock
	save     Saver
	logger   logger.Logger
}

// NewRoller wires a Roller. save may be nil.
func NewRoller(ledger Ledger, exporter Exporter, clk clock.Clock, save Saver, log logger.Logger) *Roller {
	if log == nil {
		log = logger.Get()
	}
	return &Roller{
		ledger:   ledger,
		exporter: exporter,
		clock:    clk,
		save:     save,
		logger:   log.Named("rollover"),
	}
}

// Run exports and drops every month before the current one. A failed export
// keeps its bucket for the next run; the remaining months are still tried.
// It returns the months rolled over and the joined export errors.
func (r *Roller) Run(ctx context.Context) ([]string, error) {
	current := MonthKey(r.clock.Now())
	pending := r.ledger.PendingMonths(current)
	if len(pending) == 0 {
		return nil, nil
	}

	var (
		done []string
		errs []error
	)
	for _, month := range pending {
		snap := r.ledger.MonthSnapshot(month)
		if err := r.exporter.ExportMonth(ctx, snap); err != nil {
			metrics.RecordRollover("failed")
			r.logger.Warn(ctx, "month export failed; bucket retained",
				logger.String("month", month),
				logger.Error(err),
			)
			errs = append(errs, fmt.Errorf("export %s: %w", month, err))
			continue
		}
		touched := r.ledger.DropMonth(month)
		metrics.RecordRollover("exported")
		r.logger.Info(ctx, "month rolled over",
			logger.String("month", month),
			logger.Int("members", len(snap.Members)),
			logger.Int("records", touched),
		)
		done = append(done, month)
	}

	if len(done) > 0 && r.save != nil {
		r.save(ctx)
	}
	return done, errors.Join(errs...)
}
