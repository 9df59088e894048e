package worker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// reapMarkerName is the per-directory file holding the earliest deletion
// time in RFC3339. The marker makes retention survive worker restarts: the
// reaper needs no database state to know when a directory expires.
const reapMarkerName = ".reap"

// mopUpSchedule runs the age-based backstop sweep once a day.
const mopUpSchedule = "0 3 * * *"

// JanitorConfig controls working-directory retention.
type JanitorConfig struct {
	Root     string
	Interval time.Duration
	// MaxAge is the backstop: directories older than this are removed even
	// without a marker, catching renders that crashed before finalization.
	MaxAge time.Duration
}

// Janitor deletes expired render working directories.
type Janitor struct {
	cfg  JanitorConfig
	log  *slog.Logger
	cron *cron.Cron
}

// NewJanitor creates a janitor over the work root.
func NewJanitor(cfg JanitorConfig, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{cfg: cfg, log: logger}
}

// WriteReapMarker schedules dir for deletion at the given time. Best-effort;
// an unmarked directory is still caught by the age backstop.
func WriteReapMarker(dir string, at time.Time) error {
	return os.WriteFile(filepath.Join(dir, reapMarkerName), []byte(at.UTC().Format(time.RFC3339)+"\n"), 0o644)
}

// Run sweeps markers on the configured interval and runs the daily age
// backstop until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(mopUpSchedule, j.mopUp); err != nil {
		j.log.Error("scheduling cleanup backstop failed", slog.String("error", err.Error()))
	} else {
		j.cron.Start()
	}

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.sweep()
	for {
		select {
		case <-ctx.Done():
			if j.cron != nil {
				<-j.cron.Stop().Done()
			}
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// sweep removes every directory whose reap marker has expired.
func (j *Janitor) sweep() {
	entries, err := os.ReadDir(j.cfg.Root)
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Warn("cleanup scan failed", slog.String("error", err.Error()))
		}
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(j.cfg.Root, entry.Name())
		at, ok := readReapMarker(dir)
		if !ok || now.Before(at) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			j.log.Warn("removing expired render dir failed",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			continue
		}
		j.log.Info("removed expired render dir", slog.String("dir", dir))
	}
}

// mopUp removes directories older than MaxAge regardless of markers.
func (j *Janitor) mopUp() {
	entries, err := os.ReadDir(j.cfg.Root)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-j.cfg.MaxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(j.cfg.Root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			j.log.Warn("backstop removal failed",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			continue
		}
		j.log.Info("backstop removed stale render dir", slog.String("dir", dir))
	}
}

func readReapMarker(dir string) (time.Time, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, reapMarkerName))
	if err != nil {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}
