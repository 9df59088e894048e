// Package bootstrap provides dependency initialization for the render worker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/framepilot/render-worker/internal/blob"
	"github.com/framepilot/render-worker/internal/browser"
	"github.com/framepilot/render-worker/internal/config"
	"github.com/framepilot/render-worker/internal/media"
	"github.com/framepilot/render-worker/internal/pipeline"
	"github.com/framepilot/render-worker/internal/queue"
	"github.com/framepilot/render-worker/internal/worker"
)

// Dependencies holds all initialized dependencies for the worker runtime.
type Dependencies struct {
	Pool    *pgxpool.Pool
	Queue   queue.Queue
	Store   blob.Store
	Driver  browser.Driver
	Worker  *worker.Worker
	Health  *worker.HealthServer
	Janitor *worker.Janitor
}

// NewDependencies creates and wires every component of the worker.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	pool, err := queue.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	q := queue.NewPostgres(pool)

	store, err := blob.NewS3Store(blob.S3Config{
		Bucket:          cfg.StorageBucket,
		Region:          cfg.StorageRegion,
		Endpoint:        cfg.StorageEndpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		CDNBaseURL:      cfg.CDNBaseURL,
		PurgeEndpoint:   cfg.CDNPurgeEndpoint,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create blob store: %w", err)
	}
	logger.Info("blob store configured",
		slog.String("bucket", cfg.StorageBucket),
		slog.String("region", cfg.StorageRegion),
	)

	driver, err := newDriver(cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	processor := media.NewFFmpeg("", "")
	pipe := pipeline.New(q, store, processor, driver, cfg.WorkDir, logger)

	w := worker.New(cfg, q, pipe, logger)
	health := worker.NewHealthServer(w, w.Metrics(), cfg.HeartbeatTimeout, logger)

	var janitor *worker.Janitor
	if cfg.CleanupEnabled {
		janitor = worker.NewJanitor(worker.JanitorConfig{
			Root:     cfg.WorkDir,
			Interval: cfg.CleanupInterval,
			MaxAge:   time.Duration(cfg.CleanupMaxAgeDays) * 24 * time.Hour,
		}, logger)
	}

	return &Dependencies{
		Pool:    pool,
		Queue:   q,
		Store:   store,
		Driver:  driver,
		Worker:  w,
		Health:  health,
		Janitor: janitor,
	}, nil
}

// Close releases held connections and the browser.
func (d *Dependencies) Close() {
	if d.Driver != nil {
		_ = d.Driver.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// newDriver launches a local browser or connects to a remote one per config.
func newDriver(cfg *config.Config, logger *slog.Logger) (browser.Driver, error) {
	driverCfg := browser.Config{Mode: browser.ModeLocal}
	if cfg.UseRemoteBrowser {
		if cfg.RemoteBrowserURL == "" {
			return nil, fmt.Errorf("create browser driver: REMOTE_BROWSER_URL required when USE_STEEL is set")
		}
		driverCfg = browser.Config{Mode: browser.ModeRemote, RemoteURL: cfg.RemoteBrowserURL}
	}
	driver, err := browser.NewPlaywrightDriver(driverCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create browser driver: %w", err)
	}
	return driver, nil
}
