package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressFor(t *testing.T) {
	tests := []struct {
		status Status
		want   int
	}{
		{StatusQueued, 0},
		{StatusRecording, 10},
		{StatusNormalizing, 50},
		{StatusConcatenating, 60},
		{StatusOverlaying, 80},
		{StatusUploading, 90},
		{StatusCompleted, 100},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ProgressFor(tc.status), "status %s", tc.status)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusUploading.IsTerminal())
}

func TestCanTransitionFollowsPipelineOrder(t *testing.T) {
	assert.True(t, CanTransition(StatusQueued, StatusRecording))
	assert.True(t, CanTransition(StatusRecording, StatusNormalizing))
	assert.True(t, CanTransition(StatusNormalizing, StatusConcatenating))
	assert.True(t, CanTransition(StatusConcatenating, StatusOverlaying))
	assert.True(t, CanTransition(StatusOverlaying, StatusUploading))
	assert.True(t, CanTransition(StatusUploading, StatusCompleted))

	// Facecam-less renders skip the overlay stage.
	assert.True(t, CanTransition(StatusConcatenating, StatusUploading))

	assert.False(t, CanTransition(StatusQueued, StatusUploading))
	assert.False(t, CanTransition(StatusRecording, StatusQueued))
}

func TestCanTransitionFailureSinks(t *testing.T) {
	for _, from := range []Status{StatusQueued, StatusRecording, StatusNormalizing, StatusConcatenating, StatusOverlaying, StatusUploading} {
		assert.True(t, CanTransition(from, StatusFailed), "from %s", from)
		assert.True(t, CanTransition(from, StatusCancelled), "from %s", from)
	}
	for _, from := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		assert.False(t, CanTransition(from, StatusFailed), "from %s", from)
		assert.False(t, CanTransition(from, StatusRecording), "from %s", from)
	}
}

func TestJobStateIsTerminal(t *testing.T) {
	assert.True(t, JobCompleted.IsTerminal())
	assert.True(t, JobFailed.IsTerminal())
	assert.True(t, JobCancelled.IsTerminal())
	assert.False(t, JobQueued.IsTerminal())
	assert.False(t, JobProcessing.IsTerminal())
}

func TestCloneIsIndependent(t *testing.T) {
	r := &Render{ID: "r-1", Status: StatusQueued, Progress: 0}
	c := r.Clone()
	c.Status = StatusRecording
	c.Progress = 10

	assert.Equal(t, StatusQueued, r.Status)
	assert.Equal(t, 0, r.Progress)
}
