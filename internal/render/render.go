// Package render provides the Render and RenderJob aggregates: one render is
// one execution of a campaign for one lead row, and its job row is the unit
// of worker claim.
package render

import (
	"errors"
	"time"
)

// Status represents the current state of a Render. The worker moves a render
// through the pipeline states in order; failed and cancelled are terminal
// sinks reachable from any non-terminal state.
type Status string

const (
	// StatusQueued indicates the render is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusRecording indicates scenes are being captured in the browser.
	StatusRecording Status = "recording"
	// StatusNormalizing indicates raw recordings are being frame-normalized.
	StatusNormalizing Status = "normalizing"
	// StatusConcatenating indicates normalized scenes are being joined.
	StatusConcatenating Status = "concatenating"
	// StatusOverlaying indicates the facecam is being composited.
	StatusOverlaying Status = "overlaying"
	// StatusUploading indicates artifacts are being published.
	StatusUploading Status = "uploading"
	// StatusCompleted indicates the render finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the render encountered a fatal error.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the render was cancelled externally.
	StatusCancelled Status = "cancelled"
)

// Expected progress when entering each pipeline state.
var stateProgress = map[Status]int{
	StatusQueued:        0,
	StatusRecording:     10,
	StatusNormalizing:   50,
	StatusConcatenating: 60,
	StatusOverlaying:    80,
	StatusUploading:     90,
	StatusCompleted:     100,
}

// ProgressFor returns the minimum progress value for entering a state.
// Terminal failure states keep whatever progress was last reported.
func ProgressFor(s Status) int {
	return stateProgress[s]
}

// IsTerminal reports whether the status is a terminal sink.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// JobState represents the queue-row state of a render job.
type JobState string

const (
	// JobQueued indicates the job is waiting to be claimed.
	JobQueued JobState = "queued"
	// JobProcessing indicates a worker has claimed the job.
	JobProcessing JobState = "processing"
	// JobCompleted indicates the job finished successfully.
	JobCompleted JobState = "completed"
	// JobFailed indicates the job failed.
	JobFailed JobState = "failed"
	// JobCancelled indicates the job was cancelled.
	JobCancelled JobState = "cancelled"
)

// IsTerminal reports whether the job state is terminal.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which render status transitions are allowed.
// Any non-terminal state may sink to failed or cancelled.
var validTransitions = map[Status][]Status{
	StatusQueued:        {StatusRecording},
	StatusRecording:     {StatusNormalizing},
	StatusNormalizing:   {StatusConcatenating},
	StatusConcatenating: {StatusOverlaying, StatusUploading},
	StatusOverlaying:    {StatusUploading},
	StatusUploading:     {StatusCompleted},
	StatusCompleted:     {},
	StatusFailed:        {},
	StatusCancelled:     {},
}

// CanTransition checks whether a render status transition is allowed.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed || to == StatusCancelled {
		return true
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Render is one execution instance of a campaign for one lead row.
type Render struct {
	// ID is the internal identifier.
	ID string
	// PublicID is the short shareable identifier used in viewer URLs.
	// It is globally unique and immutable once assigned.
	PublicID string
	// CampaignID references the owning campaign.
	CampaignID string
	// FacecamURL is the optional facecam blob URL.
	FacecamURL string
	// LeadCSVURL is the optional lead-list blob URL.
	LeadCSVURL string
	// LeadRowIndex selects the lead row within the CSV.
	LeadRowIndex int
	// LeadIdentifier is derived from the lead row during processing.
	LeadIdentifier string
	// Status is the current pipeline state.
	Status Status
	// Progress is the completion percentage (0-100), monotonically
	// non-decreasing until terminal.
	Progress int
	// ErrorMessage holds the failure reason when Status is failed.
	ErrorMessage string
	// VideoURL is the published MP4 URL on success.
	VideoURL string
	// ThumbnailURL is the published JPEG URL on success.
	ThumbnailURL string
	// DurationSec is copied from the campaign's total scene duration.
	DurationSec int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
	CancelledAt time.Time
}

// IsTerminal reports whether the render reached a terminal status.
func (r *Render) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Clone creates a copy of the render for safe reads.
func (r *Render) Clone() *Render {
	c := *r
	return &c
}

// Job is the queue row pointing at one render. Exactly one job exists per
// render; the job is the unit of worker claim.
type Job struct {
	ID           string
	RenderID     string
	State        JobState
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}
