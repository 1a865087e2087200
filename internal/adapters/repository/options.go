package repository

import (
	"time"

	"github.com/okian/promille/internal/domain/clock"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock sets the time source used for expiry timers and month keys.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background gauge updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
