package simulate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/pkg/logger"
)

// Recorder is the part of the service a simulation drives.
type Recorder interface {
	Submit(ctx context.Context, name string, fn func(context.Context) error) error
	RecordEvent(ctx context.Context, member model.MemberRef, baseNameHint string, tag catalog.Tag, qty int) (model.StatusRecord, error)
}

// submitEvents pushes events through the serial task queue from
// cfg.Workers goroutines and waits for each task to finish.
func submitEvents(ctx context.Context, cfg *Config, svc Recorder, guildID string, events []Event, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "submitting events",
		logger.Int("events", len(events)),
		logger.Int("workers", cfg.Workers))

	var (
		submitted int64
		recorded  int64
		failed    int64
	)

	// Progress reporting
	var lastReport atomic.Int64
	reportInterval := time.Second

	eventChan := make(chan Event, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range eventChan {
				if ctx.Err() != nil {
					return
				}
				atomic.AddInt64(&submitted, 1)
				if err := submitSingleEvent(ctx, svc, guildID, event); err != nil {
					atomic.AddInt64(&failed, 1)
					if cfg.Verbose {
						log.Warn(ctx, "event failed",
							logger.String("event_id", event.EventID),
							logger.Error(err))
					}
				} else {
					atomic.AddInt64(&recorded, 1)
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(reportInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int("submitted", int(atomic.LoadInt64(&submitted))),
						logger.Int("total", len(events)),
						logger.Int("failed", int(atomic.LoadInt64(&failed))))
				}
			}
		}()
	}

	go func() {
		defer close(eventChan)
		for _, event := range events {
			select {
			case <-ctx.Done():
				return
			case eventChan <- event:
			}
		}
	}()

	wg.Wait()

	stats.EventsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.EventsRecorded = int(atomic.LoadInt64(&recorded))
	stats.EventsFailed = int(atomic.LoadInt64(&failed))

	log.Info(ctx, "event submission completed",
		logger.Int("recorded", stats.EventsRecorded),
		logger.Int("failed", stats.EventsFailed))
}

func submitSingleEvent(ctx context.Context, svc Recorder, guildID string, event Event) error {
	done := make(chan error, 1)
	member := model.MemberRef{GuildID: guildID, MemberID: event.MemberID}
	err := svc.Submit(ctx, "simulate.record", func(ctx context.Context) error {
		_, err := svc.RecordEvent(ctx, member, "member-"+event.MemberID[len(event.MemberID)-4:], catalog.Tag(event.Category), event.Quantity)
		done <- err
		return err
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
