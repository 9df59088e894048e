package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/framepilot/render-worker/internal/campaign"
	"github.com/framepilot/render-worker/internal/render"
	"github.com/framepilot/render-worker/internal/render/publicid"
)

// Compile-time check that Memory implements Queue.
var _ Queue = (*Memory)(nil)

// Memory is an in-memory implementation of Queue.
// It uses maps with a mutex for thread-safe access.
// Suitable for development and testing; the worker runs against Postgres.
type Memory struct {
	mu        sync.Mutex
	renders   map[string]*render.Render
	jobs      map[string]*render.Job
	campaigns map[string]*campaign.Campaign
	settings  map[string]int
}

// NewMemory creates a new in-memory queue.
func NewMemory() *Memory {
	return &Memory{
		renders:   make(map[string]*render.Render),
		jobs:      make(map[string]*render.Job),
		campaigns: make(map[string]*campaign.Campaign),
		settings:  make(map[string]int),
	}
}

// Seed inserts a campaign, render, and queued job, mimicking what the
// external API writes before a worker ever sees the rows. Renders arrive
// with a public id; one is minted here when the caller left it empty.
func (m *Memory) Seed(c *campaign.Campaign, r *render.Render, j *render.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.PublicID == "" {
		if id, err := publicid.New(); err == nil {
			r.PublicID = id
		}
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	m.campaigns[c.ID] = c
	m.renders[r.ID] = r.Clone()
	m.jobs[j.ID] = j.Clone()
}

// SetSetting stores an integer system setting.
func (m *Memory) SetSetting(key string, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
}

// Claim claims the oldest queued job, or returns ErrAtCapacity /
// ErrNoJobsAvailable.
func (m *Memory) Claim(_ context.Context, maxConcurrent int) (*ClaimedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	processing := 0
	for _, j := range m.jobs {
		if j.State == render.JobProcessing {
			processing++
		}
	}
	if processing >= maxConcurrent {
		return nil, ErrAtCapacity
	}

	var queued []*render.Job
	for _, j := range m.jobs {
		if j.State == render.JobQueued {
			queued = append(queued, j)
		}
	}
	if len(queued) == 0 {
		return nil, ErrNoJobsAvailable
	}
	sort.Slice(queued, func(i, k int) bool { return queued[i].CreatedAt.Before(queued[k].CreatedAt) })

	j := queued[0]
	j.State = render.JobProcessing
	j.StartedAt = time.Now()
	j.UpdatedAt = j.StartedAt

	r, ok := m.renders[j.RenderID]
	if !ok {
		return nil, ErrRenderNotFound
	}
	c := m.campaigns[r.CampaignID]

	return &ClaimedJob{Job: j.Clone(), Render: r.Clone(), Campaign: c}, nil
}

// FinalizeJob transitions a job to a terminal state.
func (m *Memory) FinalizeJob(_ context.Context, jobID string, state render.JobState, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	j.State = state
	j.ErrorMessage = errMsg
	j.CompletedAt = time.Now()
	j.UpdatedAt = j.CompletedAt
	return nil
}

// Progress upserts the render's status and progress. Progress never
// decreases and terminal rows are left untouched.
func (m *Memory) Progress(_ context.Context, renderID string, status render.Status, progress int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renders[renderID]
	if !ok {
		return ErrRenderNotFound
	}
	if r.Status == render.StatusCompleted || r.Status == render.StatusCancelled {
		return nil
	}
	r.Status = status
	if progress > r.Progress {
		r.Progress = progress
	}
	if errMsg != "" {
		r.ErrorMessage = errMsg
	}
	r.UpdatedAt = time.Now()
	return nil
}

// MarkComplete sets the render terminal-successful.
func (m *Memory) MarkComplete(_ context.Context, renderID, videoURL, thumbnailURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renders[renderID]
	if !ok {
		return ErrRenderNotFound
	}
	r.Status = render.StatusCompleted
	r.Progress = 100
	r.VideoURL = videoURL
	r.ThumbnailURL = thumbnailURL
	r.CompletedAt = time.Now()
	r.UpdatedAt = r.CompletedAt
	return nil
}

// RenderStatus returns the render's current status.
func (m *Memory) RenderStatus(_ context.Context, renderID string) (render.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renders[renderID]
	if !ok {
		return "", ErrRenderNotFound
	}
	return r.Status, nil
}

// SetLeadIdentifier writes the derived lead identifier back to the render.
func (m *Memory) SetLeadIdentifier(_ context.Context, renderID, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renders[renderID]
	if !ok {
		return ErrRenderNotFound
	}
	r.LeadIdentifier = identifier
	r.UpdatedAt = time.Now()
	return nil
}

// CancelRender flips a render to cancelled, mimicking the external
// cancellation write the pipeline observes between steps.
func (m *Memory) CancelRender(renderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.renders[renderID]; ok && !r.IsTerminal() {
		r.Status = render.StatusCancelled
		r.CancelledAt = time.Now()
		r.UpdatedAt = r.CancelledAt
	}
}

// RescueStale fails non-terminal renders not touched within olderThan.
func (m *Memory) RescueStale(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	rescued := 0
	for _, r := range m.renders {
		if r.IsTerminal() || !r.UpdatedAt.Before(cutoff) {
			continue
		}
		r.Status = render.StatusFailed
		r.ErrorMessage = StuckRenderError
		r.UpdatedAt = time.Now()
		rescued++
		for _, j := range m.jobs {
			if j.RenderID == r.ID && !j.State.IsTerminal() {
				j.State = render.JobFailed
				j.ErrorMessage = StuckRenderError
				j.CompletedAt = time.Now()
				j.UpdatedAt = j.CompletedAt
			}
		}
	}
	return rescued, nil
}

// MaxConcurrentJobs reads the concurrency limit from the settings map.
func (m *Memory) MaxConcurrentJobs(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[MaxConcurrentJobsKey]
	if !ok {
		return 0, ErrSettingNotFound
	}
	return v, nil
}

// GetRender returns a clone of a render for test assertions.
func (m *Memory) GetRender(renderID string) (*render.Render, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renders[renderID]
	if !ok {
		return nil, ErrRenderNotFound
	}
	return r.Clone(), nil
}

// GetJob returns a clone of a job for test assertions.
func (m *Memory) GetJob(jobID string) (*render.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}
