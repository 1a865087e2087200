// Package worker runs queued tasks one at a time.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

const defaultTaskTimeout = 30 * time.Second

// Queue defines how the worker receives tasks.
type Queue interface {
	Dequeue() <-chan model.Task
}

// Worker consumes tasks.
type Worker interface {
	// Run executes tasks until ctx is cancelled, Shutdown is called, or
	// the queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after the task in flight finishes.
	Shutdown(ctx context.Context) error
}

// SerialWorker executes tasks strictly in order, one at a time.
type SerialWorker struct {
	queue       Queue
	name        string
	taskTimeout time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewSerialWorker creates a worker with configuration options.
func NewSerialWorker(queue Queue, opts ...Option) *SerialWorker {
	w := &SerialWorker{
		queue:       queue,
		name:        "worker",
		taskTimeout: defaultTaskTimeout,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get()
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *SerialWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.execute(ctx, task); err != nil {
				w.logger.Error(ctx, "task failed",
					logger.String("task", task.Name),
					logger.String("task_id", task.ID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker and waits for it to exit.
func (w *SerialWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *SerialWorker) Done() <-chan struct{} { return w.done }

func (w *SerialWorker) execute(ctx context.Context, task model.Task) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task %s: %v\n%s", task.Name, r, debug.Stack())
		}
		metrics.RecordTask(task.Name, float64(time.Since(start).Microseconds())/1000, err != nil)
	}()

	if task.Run == nil {
		return nil
	}
	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()
	return task.Run(taskCtx)
}
