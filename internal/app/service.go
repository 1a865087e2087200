// Package service wires the status store, sweep, rollover, renderer and
// leaderboard into one process and serialises every state change through a
// single task worker.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	eventqueue "github.com/okian/promille/internal/adapters/mq/queue"
	taskworker "github.com/okian/promille/internal/adapters/mq/worker"
	"github.com/okian/promille/internal/adapters/repository"
	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/platform"
	"github.com/okian/promille/internal/domain/ranking"
	"github.com/okian/promille/internal/domain/render"
	"github.com/okian/promille/internal/domain/sweep"
	"github.com/okian/promille/internal/domain/types"
	"github.com/okian/promille/internal/domain/usage"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

// Persister loads and saves the full snapshot.
type Persister interface {
	Load(ctx context.Context) (model.Snapshot, error)
	Save(ctx context.Context, snap model.Snapshot) error
}

// Archive receives completed months and serves them back for historical
// leaderboards.
type Archive interface {
	usage.Exporter
	ranking.HistorySource
}

// Service owns the process state. Mutating methods (RecordEvent,
// ClearStatus, OnTick, OnMonthBoundary, PublishLeaderboard, the settings
// setters) must run on the task worker; callers reach them through Submit.
// Read methods are safe from any goroutine.
type Service struct {
	mu sync.RWMutex

	// Core components
	catalog   *catalog.Catalog
	clock     clock.Clock
	store     *repository.Store
	platform  platform.Platform
	publisher platform.Publisher
	persister Persister
	archive   Archive
	renderer  *render.Renderer
	sweeper   *sweep.Sweeper
	roller    *usage.Roller
	builder   *ranking.Builder
	refresher *ranking.Refresher

	queue  eventqueue.Queue
	worker *taskworker.SerialWorker

	// Configuration
	queueSize        int
	sweepInterval    time.Duration
	rolloverInterval time.Duration
	renameAll        bool

	// State
	started          bool
	stopCh           chan struct{}
	wg               sync.WaitGroup
	leaderboardDirty atomic.Bool
	saveFailures     atomic.Int64

	// month is the ledger month seen by the last boundary check. Only the
	// task worker touches it.
	month string

	logger logger.Logger
}

// New constructs a Service. Without a platform renames are dropped, which
// is how the service runs when no chat connection is configured.
func New(opts ...Option) *Service {
	s := &Service{
		catalog:          catalog.Default(),
		clock:            clock.Real(),
		platform:         nopPlatform{},
		publisher:        nopPlatform{},
		persister:        memoryPersister{},
		queueSize:        1024,
		sweepInterval:    time.Minute,
		rolloverInterval: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.store = repository.New(s.catalog, repository.WithClock(s.clock))
	s.renderer = render.New(s.platform, s.catalog, s.logger)
	s.sweeper = sweep.New(s.store, s.renderer, s.platform.IsOwner, s.save, s.clock,
		sweep.WithRenameAll(s.renameAll),
		sweep.WithLogger(s.logger),
	)
	var history ranking.HistorySource
	if s.archive != nil {
		history = s.archive
		s.roller = usage.NewRoller(s.store, s.archive, s.clock, s.save, s.logger)
	}
	s.builder = ranking.NewBuilder(s.catalog, s.store, history, s.clock)
	s.refresher = ranking.NewRefresher(s.publisher, s.store, s.logger)
	return s
}

// Start loads the snapshot, starts the task worker and the sweep and
// rollover tickers. A snapshot that cannot be read aborts the start so the
// data file is never overwritten with an empty store.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	snap, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	for _, d := range s.store.Restore(snap) {
		s.logger.Warn(ctx, "dropping live count of unknown category",
			logger.String("member_id", d.MemberID),
			logger.String("category", string(d.Tag)),
			logger.Int("count", d.Count),
		)
	}
	tracked, active := s.store.Count()
	s.logger.Info(ctx, "state loaded",
		logger.Int("tracked", tracked),
		logger.Int("active", active),
	)

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.worker = taskworker.NewSerialWorker(s.queue,
		taskworker.WithName("tasks"),
		taskworker.WithLogger(s.logger),
	)
	s.stopCh = make(chan struct{})

	s.store.Start(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker.Run(ctx)
	}()
	s.runTicker(ctx, "sweep", s.sweepInterval, func(ctx context.Context) error {
		s.OnTick(ctx)
		return nil
	})
	s.runTicker(ctx, "rollover", s.rolloverInterval, func(ctx context.Context) error {
		_, err := s.OnMonthBoundary(ctx)
		return err
	})

	s.started = true

	// Months completed while the process was down.
	if err := s.submitLocked(ctx, "rollover", func(ctx context.Context) error {
		_, err := s.OnMonthBoundary(ctx)
		return err
	}); err != nil {
		s.logger.Warn(ctx, "initial rollover not scheduled", logger.Error(err))
	}

	s.logger.Info(ctx, "service started",
		logger.Int("queue_size", s.queueSize),
		logger.Duration("sweep_interval", s.sweepInterval),
		logger.Duration("rollover_interval", s.rolloverInterval),
		logger.Bool("expiry_rename_all", s.renameAll),
	)
	return nil
}

// runTicker submits fn as a task on every tick. Ticks never run work on the
// ticker goroutine.
func (s *Service) runTicker(ctx context.Context, name string, every time.Duration, fn func(context.Context) error) {
	ticker := s.clock.NewTicker(every)
	stop := s.stopCh
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C():
				if err := s.Submit(ctx, name, fn); err != nil {
					s.logger.Warn(ctx, "tick dropped",
						logger.String("task", name),
						logger.Error(err),
					)
				}
			}
		}
	}()
}

// Stop drains pending tasks, saves the store one last time and stops the
// background goroutines.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	_ = s.queue.Close()
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping service...")

	// A closed queue ends Run once drained.
	select {
	case <-s.worker.Done():
	case <-ctx.Done():
		_ = s.worker.Shutdown(context.Background())
	}
	s.wg.Wait()

	s.save(ctx)
	_ = s.store.Close()
	s.logger.Info(ctx, "service stopped")
}

// Submit queues fn to run on the task worker.
func (s *Service) Submit(ctx context.Context, name string, fn func(context.Context) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submitLocked(ctx, name, fn)
}

func (s *Service) submitLocked(ctx context.Context, name string, fn func(context.Context) error) error {
	if !s.started {
		return ErrNotStarted
	}
	if err := s.queue.Enqueue(ctx, model.NewTask(name, fn)); err != nil {
		return fmt.Errorf("submit %s: %w", name, err)
	}
	metrics.UpdateQueueSize(s.queue.Len())
	return nil
}

// Catalog returns the category catalog.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// RecordEvent applies an event, renders the new name and saves.
func (s *Service) RecordEvent(ctx context.Context, member model.MemberRef, baseNameHint string, tag catalog.Tag, qty int) (model.StatusRecord, error) {
	rec, err := s.store.RecordEvent(ctx, member, baseNameHint, tag, qty)
	if err != nil {
		return model.StatusRecord{}, err
	}
	if base := s.renderer.Render(ctx, rec, render.ReasonCommand); rec.BaseName == "" && s.store.SetBaseName(rec.MemberID, base) {
		rec.BaseName = base
	}
	s.leaderboardDirty.Store(true)
	s.save(ctx)
	return rec, nil
}

// ClearStatus zeroes the member's counts, restores the plain base name and
// saves. It returns the base name.
func (s *Service) ClearStatus(ctx context.Context, member model.MemberRef) (string, error) {
	base, err := s.store.ClearStatus(ctx, member.MemberID)
	if err != nil {
		return "", err
	}
	if rec, ok := s.store.Lookup(member.MemberID); ok {
		if rec.GuildID == "" {
			rec.GuildID = member.GuildID
		}
		if b := s.renderer.Render(ctx, rec, render.ReasonCommand); base == "" {
			base = b
		}
	}
	s.save(ctx)
	return base, nil
}

// GetStatus returns a copy of the member's active record.
func (s *Service) GetStatus(ctx context.Context, memberID string) (model.StatusRecord, error) {
	return s.store.GetStatus(ctx, memberID)
}

// Status returns the read model of a member's active status.
func (s *Service) Status(ctx context.Context, memberID string) (types.Status, error) {
	rec, err := s.store.GetStatus(ctx, memberID)
	if err != nil {
		return types.Status{}, fmt.Errorf("status of %s: %w", memberID, err)
	}
	return types.NewStatus(s.catalog, rec, s.clock.Now()), nil
}

// Leaderboard ranks month. An empty month means the current one.
func (s *Service) Leaderboard(ctx context.Context, month string) (types.Leaderboard, error) {
	month, standings, err := s.builder.Board(ctx, month)
	if err != nil {
		return types.Leaderboard{}, err
	}
	return types.Leaderboard{Month: month, Standings: standings}, nil
}

// LeaderboardText renders month as a chat message.
func (s *Service) LeaderboardText(ctx context.Context, month string) (string, error) {
	month, standings, err := s.builder.Board(ctx, month)
	if err != nil {
		return "", err
	}
	return ranking.FormatText(month, standings, ranking.DefaultMention), nil
}

// LeaderboardChart renders month as a PNG bar chart labelled with base
// names.
func (s *Service) LeaderboardChart(ctx context.Context, month string) ([]byte, error) {
	month, standings, err := s.builder.Board(ctx, month)
	if err != nil {
		return nil, err
	}
	return ranking.Chart(month, standings, s.label)
}

func (s *Service) label(memberID string) string {
	if rec, ok := s.store.Lookup(memberID); ok && rec.BaseName != "" {
		return rec.BaseName
	}
	return memberID
}

// PublishLeaderboard posts the current month to channelID, or to the
// configured leaderboard channel, and remembers the message for refreshes.
func (s *Service) PublishLeaderboard(ctx context.Context, channelID string) (string, error) {
	text, err := s.LeaderboardText(ctx, "")
	if err != nil {
		return "", err
	}
	id, err := s.refresher.Publish(ctx, channelID, text)
	if err != nil {
		return "", err
	}
	s.leaderboardDirty.Store(false)
	s.save(ctx)
	return id, nil
}

// RefreshLeaderboard edits the published leaderboard when the ledger changed
// since the last refresh.
func (s *Service) RefreshLeaderboard(ctx context.Context) {
	if !s.leaderboardDirty.Swap(false) {
		return
	}
	text, err := s.LeaderboardText(ctx, "")
	if err != nil {
		s.logger.Warn(ctx, "leaderboard not rendered", logger.Error(err))
		return
	}
	before := s.store.Settings()
	if _, err := s.refresher.Refresh(ctx, text); err != nil {
		s.leaderboardDirty.Store(true)
		s.logger.Warn(ctx, "leaderboard refresh failed", logger.Error(err))
		return
	}
	if s.store.Settings() != before {
		s.save(ctx)
	}
}

// OnTick runs one expiry sweep and refreshes the published leaderboard.
func (s *Service) OnTick(ctx context.Context) sweep.Result {
	res := s.sweeper.Tick(ctx)
	s.RefreshLeaderboard(ctx)
	return res
}

// OnMonthBoundary exports and drops every completed month. A failed export
// keeps its month for the next check. Without an archive completed months
// stay in memory and only the published leaderboard moves on.
func (s *Service) OnMonthBoundary(ctx context.Context) ([]string, error) {
	var (
		done []string
		err  error
	)
	if s.roller != nil {
		done, err = s.roller.Run(ctx)
	}
	month := s.builder.CurrentMonth()
	if len(done) > 0 || (s.month != "" && s.month != month) {
		s.leaderboardDirty.Store(true)
		s.RefreshLeaderboard(ctx)
	}
	s.month = month
	return done, err
}

// Settings returns the process-wide platform references.
func (s *Service) Settings() model.Settings {
	return s.store.Settings()
}

// SetListeningChannel restricts chat commands to channelID. An empty ID
// listens everywhere.
func (s *Service) SetListeningChannel(ctx context.Context, channelID string) {
	s.store.UpdateSettings(func(st *model.Settings) { st.ListeningChannelID = channelID })
	s.save(ctx)
}

// SetStatusMessage records the reaction panel message.
func (s *Service) SetStatusMessage(ctx context.Context, messageID string) {
	s.store.UpdateSettings(func(st *model.Settings) { st.StatusMessageID = messageID })
	s.save(ctx)
}

// save persists the snapshot. Failures are logged; memory stays
// authoritative until the next save.
func (s *Service) save(ctx context.Context) {
	if err := s.persister.Save(ctx, s.store.Snapshot()); err != nil {
		s.saveFailures.Add(1)
		s.logger.Error(ctx, "save failed", logger.Error(err))
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracked, active := s.store.Count()
	stats := map[string]any{
		"started":         s.started,
		"tracked_members": tracked,
		"active_members":  active,
		"current_month":   s.builder.CurrentMonth(),
		"categories":      s.catalog.Names(),
		"queue_capacity":  s.queueSize,
		"save_failures":   s.saveFailures.Load(),
	}
	if s.started {
		queueLen := s.queue.Len()
		stats["queue_length"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

type nopPlatform struct{}

func (nopPlatform) Rename(context.Context, model.MemberRef, string) error { return nil }
func (nopPlatform) Notify(context.Context, model.MemberRef, string) error { return nil }
func (nopPlatform) IsOwner(context.Context, model.MemberRef) bool         { return false }
func (nopPlatform) DisplayName(context.Context, model.MemberRef) (string, error) {
	return "", platform.ErrNotFound
}
func (nopPlatform) Publish(context.Context, string, string) (string, error) {
	return "", platform.ErrRefused
}
func (nopPlatform) Edit(context.Context, string, string, string) error { return platform.ErrNotFound }

type memoryPersister struct{}

func (memoryPersister) Load(context.Context) (model.Snapshot, error) {
	return model.Snapshot{Records: map[string]model.StatusRecord{}}, nil
}
func (memoryPersister) Save(context.Context, model.Snapshot) error { return nil }
