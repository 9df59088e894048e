// Package worker runs the render-worker runtime: the claim loop, per-job
// heartbeats, the stale-render rescue sweep, working-directory retention,
// the health endpoint, and graceful drain on shutdown.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framepilot/render-worker/internal/config"
	"github.com/framepilot/render-worker/internal/pipeline"
	"github.com/framepilot/render-worker/internal/queue"
	"github.com/framepilot/render-worker/internal/render"
)

// Worker drives the job queue against one pipeline instance.
type Worker struct {
	cfg   *config.Config
	queue queue.Queue
	pipe  *pipeline.Pipeline
	log   *slog.Logger

	metrics   *Metrics
	startedAt time.Time

	mu              sync.Mutex
	active          map[string]struct{} // render ids in flight
	maxConcurrent   int
	settingsFetched time.Time

	// lastBeat is the unix-nano timestamp of the newest loop heartbeat. The
	// health endpoint turns 503 when it goes stale.
	lastBeat atomic.Int64

	draining atomic.Bool
	wg       sync.WaitGroup

	// jobsCtx outlives the run context so in-flight renders can finish
	// during the drain window; it is cancelled when the grace period ends.
	jobsCtx    context.Context
	jobsCancel context.CancelFunc
}

// New creates a worker. The metrics are created here so the uptime gauge
// anchors to construction time.
func New(cfg *config.Config, q queue.Queue, pipe *pipeline.Pipeline, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		cfg:           cfg,
		queue:         q,
		pipe:          pipe,
		log:           logger,
		startedAt:     time.Now(),
		active:        make(map[string]struct{}),
		maxConcurrent: cfg.MaxConcurrentJobs,
	}
	w.lastBeat.Store(w.startedAt.UnixNano())
	w.metrics = NewMetrics(w)
	return w
}

// Metrics returns the worker's collectors for the health server.
func (w *Worker) Metrics() *Metrics {
	return w.metrics
}

// ActiveJobs returns the number of renders in flight.
func (w *Worker) ActiveJobs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

// CurrentJobs returns the render ids in flight, sorted for stable output.
func (w *Worker) CurrentJobs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.active))
	for id := range w.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConcurrencyLimit returns the cached effective job limit.
func (w *Worker) ConcurrencyLimit() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxConcurrent
}

// LastHeartbeat returns when the loop last proved itself alive.
func (w *Worker) LastHeartbeat() time.Time {
	return time.Unix(0, w.lastBeat.Load())
}

// beat bumps the loop heartbeat the health endpoint is gated on.
func (w *Worker) beat() {
	w.lastBeat.Store(time.Now().UnixNano())
}

// Uptime returns time since the worker was constructed.
func (w *Worker) Uptime() time.Duration {
	return time.Since(w.startedAt)
}

// Draining reports whether shutdown has begun.
func (w *Worker) Draining() bool {
	return w.draining.Load()
}

// Run polls the queue until ctx is cancelled, then drains in-flight jobs for
// up to the shutdown grace period. New claims stop immediately on
// cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started",
		slog.Duration("poll_interval", w.cfg.PollInterval),
		slog.Int("max_concurrent_jobs", w.cfg.MaxConcurrentJobs),
	)

	w.jobsCtx, w.jobsCancel = context.WithCancel(context.WithoutCancel(ctx))
	defer w.jobsCancel()

	if w.cfg.RescueStuckRenders {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.rescueLoop(ctx)
		}()
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.drain()
		case <-ticker.C:
			w.beat()
			w.poll(ctx)
		}
	}
}

// drain flags the worker as draining and waits out in-flight jobs up to the
// grace period.
func (w *Worker) drain() error {
	w.draining.Store(true)
	w.log.Info("shutdown requested, draining",
		slog.Int("active_jobs", w.ActiveJobs()),
		slog.Duration("grace_period", w.cfg.ShutdownGracePeriod),
	)

	// Cut the job context when the grace period ends; anything still
	// running aborts and is finalized as failed.
	timer := time.AfterFunc(w.cfg.ShutdownGracePeriod, w.jobsCancel)
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("drain complete")
	case <-time.After(w.cfg.ShutdownGracePeriod + 15*time.Second):
		w.log.Warn("drain grace period elapsed with jobs still running",
			slog.Int("active_jobs", w.ActiveJobs()),
		)
	}
	return nil
}

// poll refreshes the concurrency setting and claims at most one job.
func (w *Worker) poll(ctx context.Context) {
	limit := w.effectiveConcurrency(ctx)

	w.mu.Lock()
	if len(w.active) >= limit {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	claimed, err := w.queue.Claim(ctx, limit)
	if err != nil {
		if errors.Is(err, queue.ErrNoJobsAvailable) || errors.Is(err, queue.ErrAtCapacity) {
			return
		}
		if ctx.Err() == nil {
			w.log.Error("claim failed", slog.String("error", err.Error()))
		}
		return
	}

	w.metrics.JobsClaimed.Inc()
	w.mu.Lock()
	w.active[claimed.Render.ID] = struct{}{}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.active, claimed.Render.ID)
			w.mu.Unlock()
		}()
		w.processJob(w.jobsCtx, claimed)
	}()
}

// effectiveConcurrency returns the current limit, refreshing the system
// setting when the cached value is older than the refresh TTL.
func (w *Worker) effectiveConcurrency(ctx context.Context) int {
	w.mu.Lock()
	fresh := time.Since(w.settingsFetched) < w.cfg.ConfigRefresh
	limit := w.maxConcurrent
	w.mu.Unlock()
	if fresh {
		return limit
	}

	value, err := w.queue.MaxConcurrentJobs(ctx)
	if err != nil {
		if !errors.Is(err, queue.ErrSettingNotFound) && ctx.Err() == nil {
			w.log.Warn("reading concurrency setting failed", slog.String("error", err.Error()))
		}
		value = w.cfg.MaxConcurrentJobs
	}
	if value < 1 {
		value = 1
	}

	w.mu.Lock()
	if value != w.maxConcurrent {
		w.log.Info("concurrency limit updated",
			slog.Int("old", w.maxConcurrent),
			slog.Int("new", value),
		)
	}
	w.maxConcurrent = value
	w.settingsFetched = time.Now()
	w.mu.Unlock()
	return value
}

// processJob runs one claimed render through the pipeline with a heartbeat
// and panic containment, then finalizes the job row and schedules the
// working directory for retention cleanup.
func (w *Worker) processJob(ctx context.Context, claimed *queue.ClaimedJob) {
	jobLog := w.log.With(
		slog.String("job_id", claimed.Job.ID),
		slog.String("render_id", claimed.Render.ID),
	)
	jobLog.Info("job started", slog.String("campaign", claimed.Campaign.Name))
	startedAt := time.Now()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.heartbeat(hbCtx, claimed.Render.ID)
	}()

	err := w.runPipeline(ctx, claimed, jobLog)
	stopHeartbeat()
	w.finalize(ctx, claimed, err, jobLog)

	elapsed := time.Since(startedAt)
	w.metrics.RenderDuration.Observe(elapsed.Seconds())
	jobLog.Info("job finished", slog.Duration("elapsed", elapsed))
}

// runPipeline isolates pipeline panics into errors.
func (w *Worker) runPipeline(ctx context.Context, claimed *queue.ClaimedJob, jobLog *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			jobLog.Error("pipeline panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return w.pipe.Run(ctx, claimed)
}

// finalize writes the terminal job and render rows for the pipeline outcome.
// Uses a detached context so shutdown cancellation cannot lose the result.
func (w *Worker) finalize(ctx context.Context, claimed *queue.ClaimedJob, runErr error, jobLog *slog.Logger) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	switch {
	case runErr == nil:
		w.metrics.JobsCompleted.Inc()
		if err := w.queue.FinalizeJob(fctx, claimed.Job.ID, render.JobCompleted, ""); err != nil {
			jobLog.Error("finalizing completed job failed", slog.String("error", err.Error()))
		}
		w.scheduleCleanup(claimed, time.Duration(w.cfg.SuccessRetentionHours)*time.Hour, jobLog)

	case errors.Is(runErr, pipeline.ErrCancelled):
		// The render row already says cancelled; only the job row needs
		// closing.
		w.metrics.JobsCancelled.Inc()
		if err := w.queue.FinalizeJob(fctx, claimed.Job.ID, render.JobCancelled, ""); err != nil {
			jobLog.Error("finalizing cancelled job failed", slog.String("error", err.Error()))
		}
		w.scheduleCleanup(claimed, time.Duration(w.cfg.FailedRetentionDays)*24*time.Hour, jobLog)

	default:
		w.metrics.JobsFailed.Inc()
		jobLog.Error("render failed", slog.String("error", runErr.Error()))
		if err := w.queue.Progress(fctx, claimed.Render.ID, render.StatusFailed, 0, runErr.Error()); err != nil {
			jobLog.Error("recording render failure failed", slog.String("error", err.Error()))
		}
		if err := w.queue.FinalizeJob(fctx, claimed.Job.ID, render.JobFailed, runErr.Error()); err != nil {
			jobLog.Error("finalizing failed job failed", slog.String("error", err.Error()))
		}
		w.scheduleCleanup(claimed, time.Duration(w.cfg.FailedRetentionDays)*24*time.Hour, jobLog)
	}
}

// scheduleCleanup marks the render's working directory for the janitor.
func (w *Worker) scheduleCleanup(claimed *queue.ClaimedJob, retention time.Duration, jobLog *slog.Logger) {
	if !w.cfg.CleanupEnabled {
		return
	}
	dir := pipeline.WorkDirFor(w.cfg.WorkDir, claimed.Campaign, claimed.Render.ID)
	if err := WriteReapMarker(dir, time.Now().Add(retention)); err != nil {
		jobLog.Warn("writing cleanup marker failed", slog.String("error", err.Error()))
	}
}

// heartbeat re-reports the render's current state on a cadence, keeping
// updated_at fresh so the rescue sweep never mistakes a live render for a
// stuck one.
func (w *Worker) heartbeat(ctx context.Context, renderID string) {
	interval := w.cfg.HeartbeatTimeout / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.beat()
			status, err := w.queue.RenderStatus(ctx, renderID)
			if err != nil || status.IsTerminal() {
				continue
			}
			if err := w.queue.Progress(ctx, renderID, status, render.ProgressFor(status), ""); err != nil && ctx.Err() == nil {
				w.log.Warn("heartbeat failed",
					slog.String("render_id", renderID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// rescueLoop periodically fails renders whose heartbeats stopped.
func (w *Worker) rescueLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.StuckSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := w.queue.RescueStale(ctx, w.cfg.StuckRenderTimeout)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error("rescue sweep failed", slog.String("error", err.Error()))
				}
				continue
			}
			if count > 0 {
				w.metrics.RendersRescued.Add(float64(count))
				w.log.Warn("rescued stuck renders", slog.Int("count", count))
			}
		}
	}
}
