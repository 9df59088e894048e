// Package queue provides the render-job queue protocol: an at-most-once,
// restart-safe claim across concurrent workers, progress reporting, and
// rescue of stale renders. The database row is the only cross-process lock.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/framepilot/render-worker/internal/campaign"
	"github.com/framepilot/render-worker/internal/render"
)

// Static errors for queue operations.
var (
	// ErrNoJobsAvailable is returned by Claim when no queued job exists.
	ErrNoJobsAvailable = errors.New("queue: no jobs available")
	// ErrAtCapacity is returned by Claim when the processing count has
	// reached the concurrency limit.
	ErrAtCapacity = errors.New("queue: at concurrency capacity")
	// ErrRenderNotFound is returned when a render cannot be found by ID.
	ErrRenderNotFound = errors.New("queue: render not found")
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("queue: job not found")
	// ErrSettingNotFound is returned when a system settings key is absent.
	ErrSettingNotFound = errors.New("queue: setting not found")
)

// StuckRenderError is the error message written by the rescue sweep.
const StuckRenderError = "heartbeat timeout"

// MaxConcurrentJobsKey is the system_settings key the worker refreshes.
const MaxConcurrentJobsKey = "max_concurrent_jobs"

// ClaimedJob bundles a claimed job with everything the pipeline needs:
// the render row and its campaign with decoded scenes and output settings.
type ClaimedJob struct {
	Job      *render.Job
	Render   *render.Render
	Campaign *campaign.Campaign
}

// Queue is the port the worker and pipeline use to drive render jobs.
// Implementations must make Claim atomic with respect to concurrent callers.
type Queue interface {
	// Claim atomically claims the oldest queued job, transitioning it to
	// processing. Returns ErrAtCapacity when maxConcurrent jobs are already
	// processing, or ErrNoJobsAvailable when the queue is empty.
	Claim(ctx context.Context, maxConcurrent int) (*ClaimedJob, error)

	// FinalizeJob transitions a job to a terminal state.
	FinalizeJob(ctx context.Context, jobID string, state render.JobState, errMsg string) error

	// Progress upserts the render's status, progress, and updated_at.
	// It is idempotent: repeating a call with identical values only
	// advances updated_at. Progress never decreases.
	Progress(ctx context.Context, renderID string, status render.Status, progress int, errMsg string) error

	// MarkComplete sets the render to completed with progress 100 and the
	// published artifact URLs.
	MarkComplete(ctx context.Context, renderID, videoURL, thumbnailURL string) error

	// RenderStatus returns the render's current status. The pipeline polls
	// this between steps to observe external cancellation.
	RenderStatus(ctx context.Context, renderID string) (render.Status, error)

	// SetLeadIdentifier writes the derived lead identifier back to the render.
	SetLeadIdentifier(ctx context.Context, renderID, identifier string) error

	// RescueStale marks non-terminal renders whose updated_at is older than
	// olderThan as failed with StuckRenderError, along with their jobs.
	// Returns the number of renders rescued. Running it twice has no
	// additional effect.
	RescueStale(ctx context.Context, olderThan time.Duration) (int, error)

	// MaxConcurrentJobs reads the concurrency limit from system settings.
	// Returns ErrSettingNotFound when the key is absent.
	MaxConcurrentJobs(ctx context.Context) (int, error)
}
