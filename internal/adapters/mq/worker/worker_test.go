package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/promille/internal/adapters/mq/queue"
	worker "github.com/okian/promille/internal/adapters/mq/worker"
	model "github.com/okian/promille/internal/domain/model"
	logging "github.com/okian/promille/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func waitDone(t *testing.T, w *worker.SerialWorker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestSerialWorker(t *testing.T) {
	convey.Convey("Given a serial worker over an in-memory queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		w := worker.NewSerialWorker(q, worker.WithName("test-worker"), worker.WithLogger(logging.Nop()))

		convey.Convey("When tasks are queued and the queue is closed", func() {
			var (
				mu    sync.Mutex
				order []string
			)
			for _, name := range []string{"a", "b", "c"} {
				err := q.Enqueue(ctx, model.NewTask(name, func(context.Context) error {
					mu.Lock()
					defer mu.Unlock()
					order = append(order, name)
					return nil
				}))
				convey.So(err, convey.ShouldBeNil)
			}
			_ = q.Close()
			go w.Run(ctx)
			waitDone(t, w)

			convey.Convey("Then they ran in order", func() {
				convey.So(order, convey.ShouldResemble, []string{"a", "b", "c"})
			})
		})

		convey.Convey("When many tasks are queued", func() {
			var running, maxRunning int32
			for i := 0; i < 20; i++ {
				_ = q.Enqueue(ctx, model.NewTask("overlap", func(context.Context) error {
					n := atomic.AddInt32(&running, 1)
					for {
						m := atomic.LoadInt32(&maxRunning)
						if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					atomic.AddInt32(&running, -1)
					return nil
				}))
			}
			_ = q.Close()
			go w.Run(ctx)
			waitDone(t, w)

			convey.Convey("Then no two tasks overlapped", func() {
				convey.So(atomic.LoadInt32(&maxRunning), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a task fails or panics", func() {
			var after atomic.Bool
			_ = q.Enqueue(ctx, model.NewTask("fail", func(context.Context) error { return errors.New("boom") }))
			_ = q.Enqueue(ctx, model.NewTask("panic", func(context.Context) error { panic("bad") }))
			_ = q.Enqueue(ctx, model.Task{Name: "nil-run"})
			_ = q.Enqueue(ctx, model.NewTask("after", func(context.Context) error {
				after.Store(true)
				return nil
			}))
			_ = q.Close()
			go w.Run(ctx)
			waitDone(t, w)

			convey.Convey("Then later tasks still run", func() {
				convey.So(after.Load(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shut down while idle", func() {
			go w.Run(ctx)
			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then it stops and a second shutdown is harmless", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the run context is cancelled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			go w.Run(runCtx)
			cancel()
			waitDone(t, w)
			convey.So(true, convey.ShouldBeTrue)
		})
	})
}

func TestSerialWorkerTaskTimeout(t *testing.T) {
	convey.Convey("Given a worker with a short task timeout", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue()
		w := worker.NewSerialWorker(q, worker.WithTaskTimeout(10*time.Millisecond), worker.WithLogger(logging.Nop()))

		var deadlineHit atomic.Bool
		_ = q.Enqueue(ctx, model.NewTask("slow", func(taskCtx context.Context) error {
			<-taskCtx.Done()
			deadlineHit.Store(errors.Is(taskCtx.Err(), context.DeadlineExceeded))
			return taskCtx.Err()
		}))
		_ = q.Close()
		go w.Run(ctx)
		waitDone(t, w)

		convey.So(deadlineHit.Load(), convey.ShouldBeTrue)
	})
}
