// Package sweep enforces category expiry on every clock tick.
package sweep

import (
	"context"
	"time"

	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/render"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

// Expirer zeroes expired categories and returns the changed records.
type Expirer interface {
	Expire(now time.Time) ([]model.StatusRecord, []model.Expiration)
	Count() (tracked, active int)
}

// Renderer re-renders a record after expiry.
type Renderer interface {
	Render(ctx context.Context, rec model.StatusRecord, reason render.Reason) string
}

// OwnerCheck tells the sweeper which members to re-render.
type OwnerCheck func(ctx context.Context, member model.MemberRef) bool

// Saver persists the store after a tick changed it.
type Saver func(ctx context.Context)

// Result summarises one tick.
type Result struct {
	Now      time.Time
	Changed  int
	Expired  int
	Rendered int
}

// Sweeper zeroes expired categories and restores display names.
type Sweeper struct {
	store     Expirer
	renderer  Renderer
	isOwner   OwnerCheck
	save      Saver
	clock     clock.Clock
	logger    logger.Logger
	renameAll bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithRenameAll re-renders every changed member instead of owners only.
func WithRenameAll(all bool) Option {
	return func(s *Sweeper) { s.renameAll = all }
}

// WithLogger sets the sweeper logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l.Named("sweep")
		}
	}
}

// New wires a Sweeper. save may be nil.
func New(store Expirer, renderer Renderer, isOwner OwnerCheck, save Saver, clk clock.Clock, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    store,
		renderer: renderer,
		isOwner:  isOwner,
		save:     save,
		clock:    clk,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("sweep")
	}
	return s
}

// Tick runs one sweep using a single timestamp for every comparison.
func (s *Sweeper) Tick(ctx context.Context) Result {
	started := time.Now()
	now := s.clock.Now()

	changed, expired := s.store.Expire(now)
	res := Result{Now: now, Changed: len(changed), Expired: len(expired)}
	for _, e := range expired {
		metrics.RecordExpiration(string(e.Tag))
	}

	for _, rec := range changed {
		if !s.renameAll && (s.isOwner == nil || !s.isOwner(ctx, rec.Ref())) {
			continue
		}
		s.renderer.Render(ctx, rec, render.ReasonExpired)
		res.Rendered++
	}

	if len(changed) > 0 {
		s.logger.Info(ctx, "statuses expired",
			logger.Int("records", res.Changed),
			logger.Int("categories", res.Expired),
			logger.Int("rendered", res.Rendered),
		)
		if s.save != nil {
			s.save(ctx)
		}
	}

	metrics.UpdateMembers(s.store.Count())
	metrics.RecordSweep(float64(time.Since(started).Microseconds()) / 1000)
	return res
}
