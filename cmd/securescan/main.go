package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FranksOps/securescan/internal/config"
	"github.com/FranksOps/securescan/internal/metrics"
	"github.com/FranksOps/securescan/internal/progress"
	"github.com/FranksOps/securescan/internal/scraper"
	"github.com/FranksOps/securescan/internal/server"
	"github.com/FranksOps/securescan/internal/storage"
	"github.com/FranksOps/securescan/internal/storage/jsonbackend"
	"github.com/FranksOps/securescan/internal/storage/postgres"
	"github.com/FranksOps/securescan/internal/storage/sqlite"
	"github.com/FranksOps/securescan/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()

	probeFetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.HTTPTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
		UserAgent:    cfg.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	pool := worker.NewPool(worker.Config{
		WorkerCount:    cfg.WorkerCount,
		RateLimitDelay: cfg.RateLimitDelay,
		MaxConcurrent:  int64(cfg.MaxConcurrentRequests),
	}, probeFetcher, logger)
	defer pool.Shutdown()

	bus := progress.NewBus()

	var metricsSrv *metrics.Server
	if cfg.MetricsPort > 0 {
		metricsSrv = metrics.Start(cfg.MetricsPort, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Stop(ctx)
		}()
	}

	api := server.New(cfg, backend, bus, pool, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.ListenPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageDriver {
	case "sqlite":
		return sqlite.New(cfg.StorageDSN)
	case "postgres":
		return postgres.New(context.Background(), cfg.StorageDSN)
	case "json":
		return jsonbackend.New(cfg.StorageDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
