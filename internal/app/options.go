package service

import (
	"time"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/internal/domain/platform"
	"github.com/okian/promille/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCatalog sets the category catalog.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(s *Service) {
		if cat != nil {
			s.catalog = cat
		}
	}
}

// WithClock sets the time source for the store, sweep and tickers.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithPlatform sets the chat platform used for renames and notifications.
func WithPlatform(p platform.Platform) Option {
	return func(s *Service) {
		if p != nil {
			s.platform = p
		}
	}
}

// WithPublisher sets where leaderboards are published.
func WithPublisher(p platform.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithPersister sets the snapshot store.
func WithPersister(p Persister) Option {
	return func(s *Service) {
		if p != nil {
			s.persister = p
		}
	}
}

// WithArchive sets the durable store for completed months.
func WithArchive(a Archive) Option {
	return func(s *Service) {
		if a != nil {
			s.archive = a
		}
	}
}

// WithQueueSize sets the maximum number of pending tasks.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithSweepInterval sets the expiry sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithRolloverInterval sets the month-boundary check period.
func WithRolloverInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.rolloverInterval = d
		}
	}
}

// WithExpiryRenameAll re-renders every member touched by a sweep, not only
// owners.
func WithExpiryRenameAll(all bool) Option {
	return func(s *Service) {
		s.renameAll = all
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
