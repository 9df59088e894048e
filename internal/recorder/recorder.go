// Package recorder captures one raw scene recording per resolved URL: masked
// navigation, readiness detection, then either the motion engine or an
// explicit action script for the scene duration.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/framepilot/render-worker/internal/browser"
	"github.com/framepilot/render-worker/internal/campaign"
	"github.com/framepilot/render-worker/internal/motion"
)

// ErrRecordingTimeout is returned when a scene recording overruns its hard
// ceiling.
var ErrRecordingTimeout = errors.New("recorder: scene recording timed out")

const (
	// recordingBuffer is how much longer than the scene duration a recording
	// may run before it is abandoned.
	recordingBuffer = 60 * time.Second

	// recordingTail is extra capture kept rolling past the scene duration,
	// so the encoder has frames for the exact cut even when the last ones
	// flush late. Normalization trims the output back to the frame count.
	recordingTail = 15 * time.Second

	// fixedLeaderSkipSec is the ceiling on the normalize-time leader trim.
	// The measured readiness offset refines it downward when the page was
	// ready sooner.
	fixedLeaderSkipSec = 4.5
)

// Recording is one captured scene plus the trim metadata the normalizer
// needs.
type Recording struct {
	// VideoPath is the raw recording on disk, in the session's format.
	VideoPath string
	// LeaderSkipSec is how much pre-content leader to trim from the front.
	LeaderSkipSec float64
	// DurationSec is the scene's target duration.
	DurationSec int
}

// Recorder records scenes against one browser session.
type Recorder struct {
	session browser.Session
	log     *slog.Logger

	// motionOpts is threaded into every engine, letting tests inject a fake
	// clock.
	motionOpts []motion.Option

	// sleep paces the recorder's own waits: the post-load settle, action
	// scripts, and the tail buffer.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMotionOptions forwards engine options to every motion-driven scene.
func WithMotionOptions(opts ...motion.Option) Option {
	return func(r *Recorder) {
		r.motionOpts = opts
	}
}

// WithSleep overrides the recorder's sleeper, used by tests to collapse
// real-time waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Recorder) {
		r.sleep = sleep
	}
}

// New creates a recorder bound to one recording session.
func New(session browser.Session, logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{session: session, log: logger, sleep: sleepCtx}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record captures one scene at the resolved URL. The recording runs the
// scene duration plus load overhead and a 15s tail, hard-capped at
// duration + 60s, and the returned metadata carries the leader trim for
// normalization.
func (r *Recorder) Record(ctx context.Context, url string, scene campaign.Scene, settings campaign.OutputSettings) (*Recording, error) {
	ceiling := time.Duration(scene.DurationSec)*time.Second + recordingBuffer
	ctx, cancel := context.WithTimeoutCause(ctx, ceiling, ErrRecordingTimeout)
	defer cancel()

	page, err := r.session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening scene page: %w", err)
	}

	recording, err := r.capture(ctx, page, url, scene, settings)

	path, closeErr := page.Close(ctx)
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, fmt.Errorf("finishing scene recording: %w", closeErr)
	}
	recording.VideoPath = path
	return recording, nil
}

func (r *Recorder) capture(ctx context.Context, page browser.Page, url string, scene campaign.Scene, settings campaign.OutputSettings) (*Recording, error) {
	openedAt := time.Now()

	if err := page.ShowMask(ctx); err != nil {
		r.log.Debug("mask show failed", slog.String("error", err.Error()))
	}
	if err := page.Navigate(ctx, url, browser.DefaultNavigationTimeout); err != nil {
		return nil, err
	}

	page.WaitForNetworkIdle(ctx, browser.NetworkIdleTimeout)
	if wait := settings.PageLoadWaitMs; wait > 0 {
		if err := r.sleep(ctx, time.Duration(wait)*time.Millisecond); err != nil {
			return nil, err
		}
	}
	if err := page.WaitReady(ctx); err != nil {
		return nil, err
	}
	if err := page.RemoveMask(ctx); err != nil {
		r.log.Debug("mask removal failed", slog.String("error", err.Error()))
	}

	// The leading segment before this point is masked or blank; the
	// normalizer trims it. Measured readiness refines the fixed skip
	// downward, never upward.
	leaderSkip := time.Since(openedAt).Seconds()
	if leaderSkip > fixedLeaderSkipSec {
		leaderSkip = fixedLeaderSkipSec
	}

	if len(scene.Actions) > 0 {
		if err := r.runActions(ctx, page, scene); err != nil {
			return nil, err
		}
	} else {
		engine := motion.NewEngine(page.Stage(), url, r.log, r.motionOpts...)
		if err := engine.Run(ctx, scene.DurationSec); err != nil {
			return nil, fmt.Errorf("running motion engine: %w", err)
		}
	}

	// Keep capturing past the scene duration so the trimmed leader plus the
	// exact frame count always fit inside the recorded content.
	if err := r.sleep(ctx, recordingTail); err != nil {
		return nil, err
	}

	return &Recording{LeaderSkipSec: leaderSkip, DurationSec: scene.DurationSec}, nil
}

// runActions executes an explicit action script, then idles out any time the
// script left unspent so the recording covers the full scene duration.
func (r *Recorder) runActions(ctx context.Context, page browser.Page, scene campaign.Scene) error {
	deadline := time.Now().Add(time.Duration(scene.DurationSec) * time.Second)

	for i, action := range scene.Actions {
		if time.Now().After(deadline) {
			break
		}
		if err := r.runAction(ctx, page, action); err != nil {
			// Script steps are best-effort; a missing element should not
			// fail the whole scene.
			r.log.Warn("scene action failed",
				slog.Int("step", i),
				slog.String("kind", string(action.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}

	if remaining := time.Until(deadline); remaining > 0 {
		return r.sleep(ctx, remaining)
	}
	return nil
}

func (r *Recorder) runAction(ctx context.Context, page browser.Page, action campaign.Action) error {
	switch action.Kind {
	case campaign.ActionGoto:
		return page.Navigate(ctx, action.URL, browser.DefaultNavigationTimeout)
	case campaign.ActionWait:
		return r.sleep(ctx, time.Duration(action.WaitMs)*time.Millisecond)
	case campaign.ActionClickText:
		return page.ClickText(ctx, action.Text)
	case campaign.ActionHighlight:
		return page.HighlightText(ctx, action.Text)
	case campaign.ActionScroll:
		return page.ScrollBy(ctx, action.ScrollBy)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}
