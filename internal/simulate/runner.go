package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/promille/internal/adapters/http/api"
	service "github.com/okian/promille/internal/app"
	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

const simulatedGuild = "simulated"

// Run drives a full in-process simulation: events go through the task
// queue, results are read back over HTTP, then the clock jumps past every
// window and the statuses must be gone while the ledger stays.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting promille simulation",
		logger.Int("events", cfg.NumEvents),
		logger.Int("members", cfg.Members),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
		logger.Bool("verbose", cfg.Verbose))

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	// Mid-month, so the expiry jump stays within the month.
	now := time.Now().UTC()
	clk := clock.NewFake(time.Date(now.Year(), now.Month(), 15, 12, 0, 0, 0, time.UTC))
	cat := catalog.Default()

	svc := service.New(
		service.WithCatalog(cat),
		service.WithClock(clk),
		service.WithLogger(log),
		service.WithQueueSize(max(1024, cfg.Workers*WorkerChannelMultiplier)),
	)
	if err := svc.Start(ctx); err != nil {
		return stats, fmt.Errorf("service start failed: %w", err)
	}
	defer svc.Stop(context.WithoutCancel(ctx))

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, cfg, srv.URL); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate events
	events, err := generateEvents(ctx, cfg, cat, clk.Now(), stats)
	if err != nil {
		return stats, fmt.Errorf("event generation failed: %w", err)
	}

	// Step 3: Submit events concurrently
	submitEvents(ctx, cfg, svc, simulatedGuild, events, stats)
	if stats.EventsFailed > 0 {
		return stats, fmt.Errorf("%d events failed", stats.EventsFailed)
	}
	expected := expectedTotals(events)

	// Step 4: Verify live statuses
	ids := memberIDs(cfg.Members)
	live, err := retrieveStatuses(ctx, cfg, srv.URL, ids)
	if err != nil {
		return stats, fmt.Errorf("status retrieval failed: %w", err)
	}
	stats.StatusesRetrieved = len(live)
	if err := verifyStatuses(expected, live); err != nil {
		return stats, fmt.Errorf("status verification failed: %w", err)
	}

	// Step 5: Verify leaderboard
	board, err := getLeaderboard(ctx, cfg, srv.URL)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(board.Standings)
	if err := verifyLeaderboard(expected, board); err != nil {
		return stats, fmt.Errorf("leaderboard verification failed: %w", err)
	}
	displayTopMembers(ctx, board, cfg.Verbose)

	// Step 6: Jump past every window and sweep
	clk.Advance(longestWindow(cat) + ExpiryMargin)
	if err := runSweep(ctx, svc); err != nil {
		return stats, fmt.Errorf("sweep failed: %w", err)
	}
	after, err := retrieveStatuses(ctx, cfg, srv.URL, ids)
	if err != nil {
		return stats, fmt.Errorf("status retrieval after expiry failed: %w", err)
	}
	if stats.StatusesExpired, err = verifyExpired(after); err != nil {
		return stats, fmt.Errorf("expiry verification failed: %w", err)
	}
	board, err = getLeaderboard(ctx, cfg, srv.URL)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval after expiry failed: %w", err)
	}
	if err := verifyLeaderboard(expected, board); err != nil {
		return stats, fmt.Errorf("ledger changed by expiry: %w", err)
	}

	// Step 7: Save events to file
	if cfg.OutputFile != "" {
		if err := saveEventsToFile(ctx, cfg.OutputFile, events); err != nil {
			log.Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

func longestWindow(cat *catalog.Catalog) time.Duration {
	var d time.Duration
	for _, c := range cat.Categories() {
		d = max(d, c.Window)
	}
	return d
}

// runSweep submits one sweep tick and waits for it.
func runSweep(ctx context.Context, svc *service.Service) error {
	done := make(chan struct{})
	err := svc.Submit(ctx, "simulate.sweep", func(ctx context.Context) error {
		defer close(done)
		res := svc.OnTick(ctx)
		logger.Get().Info(ctx, "sweep finished", logger.Int("expired", res.Expired))
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func checkServiceHealth(ctx context.Context, cfg *Config, baseURL string) error {
	resp, err := newHTTPClient(cfg.Timeout).Get(ctx, baseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// saveEventsToFile writes the generated events as a JSON array.
func saveEventsToFile(ctx context.Context, filename string, events []Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, eventsPerSecond float64
	if stats.EventsSubmitted > 0 {
		successRate = float64(stats.EventsRecorded) / float64(stats.EventsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsRecorded", stats.EventsRecorded),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("statusesRetrieved", stats.StatusesRetrieved),
		logger.Int("statusesExpired", stats.StatusesExpired),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
