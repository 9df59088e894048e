package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framepilot/render-worker/internal/campaign"
	"github.com/framepilot/render-worker/internal/render"
	"github.com/framepilot/render-worker/internal/render/publicid"
)

func seedJob(t *testing.T, m *Memory, renderID string, createdAt time.Time) {
	t.Helper()
	c := &campaign.Campaign{
		ID:   "c-" + renderID,
		Name: "Test Campaign",
		Scenes: []campaign.Scene{
			{OrderIndex: 0, Kind: campaign.SceneManual, URL: "https://example.com", DurationSec: 10},
		},
		Output: campaign.DefaultOutputSettings(),
	}
	r := &render.Render{
		ID:         renderID,
		PublicID:   "p-" + renderID,
		CampaignID: c.ID,
		Status:     render.StatusQueued,
	}
	j := &render.Job{
		ID:        "j-" + renderID,
		RenderID:  renderID,
		State:     render.JobQueued,
		CreatedAt: createdAt,
	}
	m.Seed(c, r, j)
}

func TestSeedMintsMissingPublicID(t *testing.T) {
	m := NewMemory()
	c := &campaign.Campaign{ID: "c-1", Name: "Test Campaign"}
	r := &render.Render{ID: "r-1", CampaignID: c.ID, Status: render.StatusQueued}
	m.Seed(c, r, &render.Job{ID: "j-1", RenderID: r.ID, State: render.JobQueued})

	got, err := m.GetRender("r-1")
	require.NoError(t, err)
	assert.True(t, publicid.Valid(got.PublicID))
}

func TestClaimOldestFirst(t *testing.T) {
	m := NewMemory()
	base := time.Now()
	seedJob(t, m, "r-2", base.Add(time.Second))
	seedJob(t, m, "r-1", base)

	claimed, err := m.Claim(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "r-1", claimed.Render.ID)
	assert.Equal(t, render.JobProcessing, claimed.Job.State)

	claimed, err = m.Claim(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "r-2", claimed.Render.ID)
}

func TestClaimEmptyQueue(t *testing.T) {
	m := NewMemory()
	_, err := m.Claim(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
}

func TestClaimRespectsCapacity(t *testing.T) {
	m := NewMemory()
	base := time.Now()
	seedJob(t, m, "r-1", base)
	seedJob(t, m, "r-2", base.Add(time.Second))

	_, err := m.Claim(context.Background(), 1)
	require.NoError(t, err)

	_, err = m.Claim(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAtCapacity)

	// A higher limit frees the second job.
	claimed, err := m.Claim(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "r-2", claimed.Render.ID)
}

func TestClaimedJobIsACopy(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "r-1", time.Now())

	claimed, err := m.Claim(context.Background(), 1)
	require.NoError(t, err)
	claimed.Render.Status = render.StatusFailed

	got, err := m.GetRender("r-1")
	require.NoError(t, err)
	assert.Equal(t, render.StatusQueued, got.Status)
}

func TestProgressIsMonotonic(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "r-1", time.Now())

	require.NoError(t, m.Progress(context.Background(), "r-1", render.StatusNormalizing, 50, ""))
	require.NoError(t, m.Progress(context.Background(), "r-1", render.StatusRecording, 10, ""))

	got, err := m.GetRender("r-1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)
}

func TestProgressLeavesTerminalRendersAlone(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "r-1", time.Now())
	require.NoError(t, m.MarkComplete(context.Background(), "r-1", "v", "t"))

	require.NoError(t, m.Progress(context.Background(), "r-1", render.StatusRecording, 10, ""))

	got, err := m.GetRender("r-1")
	require.NoError(t, err)
	assert.Equal(t, render.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
}

func TestProgressUnknownRender(t *testing.T) {
	m := NewMemory()
	err := m.Progress(context.Background(), "missing", render.StatusRecording, 10, "")
	assert.ErrorIs(t, err, ErrRenderNotFound)
}

func TestMarkComplete(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "r-1", time.Now())

	require.NoError(t, m.MarkComplete(context.Background(), "r-1", "https://cdn/video.mp4", "https://cdn/thumb.jpg"))

	got, err := m.GetRender("r-1")
	require.NoError(t, err)
	assert.Equal(t, render.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "https://cdn/video.mp4", got.VideoURL)
	assert.Equal(t, "https://cdn/thumb.jpg", got.ThumbnailURL)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestFinalizeJob(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "r-1", time.Now())

	require.NoError(t, m.FinalizeJob(context.Background(), "j-r-1", render.JobFailed, "boom"))

	got, err := m.GetJob("j-r-1")
	require.NoError(t, err)
	assert.Equal(t, render.JobFailed, got.State)
	assert.Equal(t, "boom", got.ErrorMessage)

	assert.ErrorIs(t, m.FinalizeJob(context.Background(), "missing", render.JobFailed, ""), ErrJobNotFound)
}

func TestRescueStale(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "r-1", time.Now())
	_, err := m.Claim(context.Background(), 1)
	require.NoError(t, err)

	// Fresh renders are untouched.
	count, err := m.RescueStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// A zero threshold makes every non-terminal render stale.
	time.Sleep(5 * time.Millisecond)
	count, err = m.RescueStale(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := m.GetRender("r-1")
	require.NoError(t, err)
	assert.Equal(t, render.StatusFailed, got.Status)
	assert.Equal(t, StuckRenderError, got.ErrorMessage)

	job, err := m.GetJob("j-r-1")
	require.NoError(t, err)
	assert.Equal(t, render.JobFailed, job.State)

	// Idempotent: a second sweep finds nothing.
	count, err = m.RescueStale(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRescueStaleSkipsTerminal(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "r-1", time.Now())
	require.NoError(t, m.MarkComplete(context.Background(), "r-1", "v", "t"))

	time.Sleep(5 * time.Millisecond)
	count, err := m.RescueStale(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMaxConcurrentJobs(t *testing.T) {
	m := NewMemory()
	_, err := m.MaxConcurrentJobs(context.Background())
	assert.ErrorIs(t, err, ErrSettingNotFound)

	m.SetSetting(MaxConcurrentJobsKey, 4)
	v, err := m.MaxConcurrentJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}

func TestSetLeadIdentifier(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "r-1", time.Now())

	require.NoError(t, m.SetLeadIdentifier(context.Background(), "r-1", "Ada Lovelace"))
	got, err := m.GetRender("r-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.LeadIdentifier)
}

func TestCancelRender(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "r-1", time.Now())

	m.CancelRender("r-1")
	status, err := m.RenderStatus(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, render.StatusCancelled, status)

	// Cancellation never resurrects a completed render.
	seedJob(t, m, "r-2", time.Now())
	require.NoError(t, m.MarkComplete(context.Background(), "r-2", "v", "t"))
	m.CancelRender("r-2")
	status, err = m.RenderStatus(context.Background(), "r-2")
	require.NoError(t, err)
	assert.Equal(t, render.StatusCompleted, status)
}
