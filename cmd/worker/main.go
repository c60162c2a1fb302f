// Command worker runs only the background mint and reconciliation queues
// against the same wired engine, with no detector feed and no HTTP
// surface. It is meant to be scaled independently of cmd/engine.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvh2205/poly-ab-sub001/internal/config"
	"github.com/nvh2205/poly-ab-sub001/internal/engine"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("path", *configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer eng.Close()

	logger.Info("worker starting")
	if err := eng.RunWorkers(ctx); err != nil && err != context.Canceled {
		logger.Error("worker exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
