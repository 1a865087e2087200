package worker

import (
	"time"

	"github.com/okian/promille/pkg/logger"
)

// Option applies a configuration option to the SerialWorker.
type Option func(*SerialWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *SerialWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *SerialWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithTaskTimeout bounds how long a single task may run.
func WithTaskTimeout(d time.Duration) Option {
	return func(w *SerialWorker) {
		if d > 0 {
			w.taskTimeout = d
		}
	}
}
