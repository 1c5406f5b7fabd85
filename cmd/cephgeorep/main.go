// Command cephgeorep is the crawl daemon binary. It loads a YAML
// configuration file, opens the watermark backend, drives the Poll Loop,
// and exposes /healthz, /status, and /metrics on a small HTTP server. It
// shuts down gracefully on SIGTERM or SIGINT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zenjabba/cephgeorep/internal/config"
	"github.com/zenjabba/cephgeorep/internal/crawler"
	"github.com/zenjabba/cephgeorep/internal/ledger"
	"github.com/zenjabba/cephgeorep/internal/metrics"
	"github.com/zenjabba/cephgeorep/internal/status"
	"github.com/zenjabba/cephgeorep/internal/syncer"
	"github.com/zenjabba/cephgeorep/internal/watermark"
)

func main() {
	configPath := flag.String("config", "/etc/cephgeorep/config.yaml", "path to the cephgeorep YAML configuration file")
	ledgerPath := flag.String("ledger-path", "/var/lib/cephgeorep/ledger.jsonl", "path to the tamper-evident cycle ledger")
	seed := flag.Bool("seed", false, "seed the watermark to the epoch sentinel, syncing the entire tree once")
	dryRun := flag.Bool("dry-run", false, "run a single cycle, log what would be synced, and do not advance the watermark")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cephgeorep: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("config_path", *configPath),
		slog.String("base_path", cfg.BasePath),
		slog.String("watermark_backend", cfg.WatermarkBackend),
		slog.String("status_addr", cfg.StatusAddr),
	)

	store, err := openWatermarkStore(cfg)
	if err != nil {
		logger.Error("failed to open watermark store", slog.Any("error", err))
		os.Exit(1)
	}

	cell, err := watermark.Open(store, cfg.RctimeAttrName, watermark.WithLogger(logger))
	if err != nil {
		logger.Error("failed to open watermark cell", slog.Any("error", err))
		os.Exit(1)
	}
	defer cell.Close()

	led, err := ledger.Open(*ledgerPath)
	if err != nil {
		logger.Error("failed to open cycle ledger", slog.String("path", *ledgerPath), slog.Any("error", err))
		os.Exit(1)
	}
	defer led.Close()

	reg := metrics.NewRegistry()

	sy := syncer.NewExecSyncer(syncer.Config{
		ExecBin:         cfg.ExecBin,
		ExecFlags:       cfg.ExecFlags,
		RemoteUser:      cfg.RemoteUser,
		RemoteHost:      cfg.RemoteHost,
		RemoteDirectory: cfg.RemoteDirectory,
	})

	cr := crawler.New(cfg, cell, logger,
		crawler.WithSyncer(sy),
		crawler.WithLedger(led),
		crawler.WithMetrics(reg),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusServer := &http.Server{
		Addr:         cfg.StatusAddr,
		Handler:      status.NewRouter(cr, reg.Handler()),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("status server listening", slog.String("addr", cfg.StatusAddr))
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server error", slog.Any("error", err))
		}
	}()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- cr.Run(ctx, *seed, *dryRun)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		<-runErrCh
	case err := <-runErrCh:
		if err != nil {
			logger.Error("poll loop exited with error", slog.Any("error", err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown error", slog.Any("error", err))
	}

	logger.Info("cephgeorep exited cleanly")
}

// openWatermarkStore constructs the durable watermark.Store selected by
// cfg.WatermarkBackend.
func openWatermarkStore(cfg *config.Config) (watermark.Store, error) {
	switch cfg.WatermarkBackend {
	case "flatfile":
		return watermark.OpenFlatFileStore(cfg.LastRctimePath)
	default:
		return watermark.OpenSQLiteStore(cfg.LastRctimePath)
	}
}

// newLogger constructs a *slog.Logger that writes JSON-structured log records
// to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
