// Package main provides the entry point for the render worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/framepilot/render-worker/internal/bootstrap"
	"github.com/framepilot/render-worker/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Local development convenience; absent .env files are fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting render worker",
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("work_dir", cfg.WorkDir),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs),
		slog.Bool("remote_browser", cfg.UseRemoteBrowser),
	)

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	if _, err := deps.Health.Start(cfg.HealthPort); err != nil {
		return fmt.Errorf("start health server: %w", err)
	}

	if deps.Janitor != nil {
		go deps.Janitor.Run(ctx)
	}

	// Blocks until a signal arrives, then drains in-flight renders.
	if err := deps.Worker.Run(ctx); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := deps.Health.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("worker stopped gracefully")
	return nil
}
