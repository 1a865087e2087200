package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/promille/internal/adapters/archive"
	"github.com/okian/promille/internal/adapters/discord"
	"github.com/okian/promille/internal/adapters/http/api"
	"github.com/okian/promille/internal/adapters/http/swagger"
	"github.com/okian/promille/internal/adapters/persistence"
	service "github.com/okian/promille/internal/app"
	"github.com/okian/promille/internal/config"
	"github.com/okian/promille/internal/domain/dedupe"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "promille stopped with error", logger.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context) error {
	// Defaults -> optional file -> env.
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Configure(os.Stdout, cfg.LogFormat); err != nil {
		return err
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	metrics.Configure(
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval),
	)

	cat, err := cfg.Catalog()
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithCatalog(cat),
		service.WithPersister(persistence.New(cfg.DataFile, persistence.WithLogger(log))),
		service.WithQueueSize(cfg.QueueSize),
		service.WithSweepInterval(cfg.SweepInterval),
		service.WithRolloverInterval(cfg.RolloverInterval),
		service.WithExpiryRenameAll(cfg.ExpiryRenameAll),
	}

	if cfg.ArchivePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.ArchivePath), 0o755); err != nil {
			return err
		}
		db, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn(ctx, "archive close failed", logger.Error(err))
			}
		}()
		opts = append(opts, service.WithArchive(db))
	}

	var adapter *discord.Adapter
	session, err := discord.NewSession(ctx, cfg.DiscordToken)
	switch {
	case err == nil:
		adapter = discord.NewAdapter(session,
			discord.WithRenameRate(cfg.RenameRatePerSec, cfg.RenameBurst),
			discord.WithAdapterLogger(log),
		)
		opts = append(opts, service.WithPlatform(adapter), service.WithPublisher(adapter))
	case cfg.DiscordToken == "":
		log.Warn(ctx, "no discord token; running without a chat platform")
	default:
		return err
	}

	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop(context.Background())

	if session != nil {
		router := discord.NewRouter(svc, adapter,
			discord.WithPrefix(cfg.CommandPrefix),
			discord.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
			discord.WithRouterLogger(log),
		)
		router.Attach(ctx, session)
		if err := session.Open(); err != nil {
			return err
		}
		defer func() {
			if err := session.Close(); err != nil {
				log.Warn(ctx, "discord session close failed", logger.Error(err))
			}
		}()
	}

	if metrics.Enabled() {
		go startSystemMetricsUpdater(ctx)
		go startServiceMetricsUpdater(ctx, svc)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// startSystemMetricsUpdater periodically publishes process metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater periodically refreshes service gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the member gauges from the service stats.
// GetStats itself updates the queue gauge.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()
	tracked, _ := stats["tracked_members"].(int)
	active, _ := stats["active_members"].(int)
	metrics.UpdateMembers(tracked, active)
}
