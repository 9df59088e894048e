package recorder

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framepilot/render-worker/internal/browser"
	"github.com/framepilot/render-worker/internal/campaign"
	"github.com/framepilot/render-worker/internal/motion"
)

// instantClock collapses motion-engine sleeps so scenes record in
// microseconds.
type instantClock struct {
	now time.Time
}

func (c *instantClock) Now() time.Time { return c.now }

func (c *instantClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

func newTestRecorder(t *testing.T, d *browser.FakeDriver) (*Recorder, *instantClock) {
	t.Helper()
	sess, err := d.AcquireSession(context.Background(), 1920, 1080, t.TempDir())
	require.NoError(t, err)
	clock := &instantClock{now: time.Now()}
	rec := New(sess, slog.Default(),
		WithMotionOptions(motion.WithClock(clock.Now, clock.Sleep)),
		WithSleep(clock.Sleep),
	)
	return rec, clock
}

// fastSettings drops the post-load wait so tests do not sleep in real time.
func fastSettings() campaign.OutputSettings {
	settings := campaign.DefaultOutputSettings()
	settings.PageLoadWaitMs = 0
	return settings
}

func TestRecordMotionScene(t *testing.T) {
	driver := &browser.FakeDriver{}
	rec, _ := newTestRecorder(t, driver)

	scene := campaign.Scene{Kind: campaign.SceneManual, URL: "example.com/landing", DurationSec: 30}
	recording, err := rec.Record(context.Background(), scene.URL, scene, fastSettings())
	require.NoError(t, err)

	assert.FileExists(t, recording.VideoPath)
	assert.Equal(t, 30, recording.DurationSec)
	assert.GreaterOrEqual(t, recording.LeaderSkipSec, 0.0)
	assert.LessOrEqual(t, recording.LeaderSkipSec, 4.5)

	assert.Equal(t, 1, driver.Pages())
	assert.Equal(t, []string{"https://example.com/landing"}, driver.Visited())
}

func TestRecordKeepsCapturingPastSceneDuration(t *testing.T) {
	driver := &browser.FakeDriver{}
	rec, clock := newTestRecorder(t, driver)
	start := clock.now

	scene := campaign.Scene{Kind: campaign.SceneManual, URL: "example.com", DurationSec: 10}
	_, err := rec.Record(context.Background(), scene.URL, scene, fastSettings())
	require.NoError(t, err)

	// The page stays open for the scene duration plus the tail buffer, so
	// late-flushed frames still land inside the recording.
	captured := clock.now.Sub(start)
	assert.GreaterOrEqual(t, captured, 10*time.Second+recordingTail)
}

func TestRecordActionScene(t *testing.T) {
	driver := &browser.FakeDriver{}
	rec, _ := newTestRecorder(t, driver)

	scene := campaign.Scene{
		Kind:        campaign.SceneManual,
		URL:         "example.com/docs",
		DurationSec: 1,
		Actions: []campaign.Action{
			{Kind: campaign.ActionWait, WaitMs: 20},
			{Kind: campaign.ActionClickText, Text: "Pricing"},
			{Kind: campaign.ActionScroll, ScrollBy: 400},
			{Kind: campaign.ActionHighlight, Text: "fast onboarding"},
		},
	}

	settings := fastSettings()

	recording, err := rec.Record(context.Background(), scene.URL, scene, settings)
	require.NoError(t, err)

	assert.FileExists(t, recording.VideoPath)
	assert.Equal(t, []string{"Pricing"}, driver.Clicked())
}

func TestRecordActionStepsAreBestEffort(t *testing.T) {
	driver := &browser.FakeDriver{}
	rec, _ := newTestRecorder(t, driver)

	scene := campaign.Scene{
		Kind:        campaign.SceneManual,
		URL:         "example.com",
		DurationSec: 1,
		Actions: []campaign.Action{
			{Kind: campaign.ActionKind("teleport")},
			{Kind: campaign.ActionClickText, Text: "Docs"},
		},
	}

	settings := fastSettings()

	_, err := rec.Record(context.Background(), scene.URL, scene, settings)
	require.NoError(t, err)
	// The unknown step is logged and skipped; later steps still run.
	assert.Equal(t, []string{"Docs"}, driver.Clicked())
}

func TestRecordNavigationFailure(t *testing.T) {
	driver := &browser.FakeDriver{NavigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	rec, _ := newTestRecorder(t, driver)

	scene := campaign.Scene{Kind: campaign.SceneManual, URL: "nope.invalid", DurationSec: 5}
	_, err := rec.Record(context.Background(), scene.URL, scene, fastSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

func TestRecordEmptyRecording(t *testing.T) {
	driver := &browser.FakeDriver{EmptyRecordings: true}
	rec, _ := newTestRecorder(t, driver)

	scene := campaign.Scene{Kind: campaign.SceneManual, URL: "example.com", DurationSec: 5}
	_, err := rec.Record(context.Background(), scene.URL, scene, fastSettings())
	assert.ErrorIs(t, err, browser.ErrEmptyRecording)
}

func TestRecordCancelledContext(t *testing.T) {
	driver := &browser.FakeDriver{}
	rec, _ := newTestRecorder(t, driver)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scene := campaign.Scene{Kind: campaign.SceneManual, URL: "example.com", DurationSec: 5}
	_, err := rec.Record(ctx, scene.URL, scene, fastSettings())
	assert.ErrorIs(t, err, context.Canceled)
}
