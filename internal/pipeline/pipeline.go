// Package pipeline orchestrates one render end to end: input fetch, scene
// recording, frame normalization, concatenation, facecam overlay, and
// artifact publication, reporting progress through the queue after each
// stage.
package pipeline

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/framepilot/render-worker/internal/blob"
	"github.com/framepilot/render-worker/internal/browser"
	"github.com/framepilot/render-worker/internal/campaign"
	"github.com/framepilot/render-worker/internal/leads"
	"github.com/framepilot/render-worker/internal/media"
	"github.com/framepilot/render-worker/internal/motion"
	"github.com/framepilot/render-worker/internal/queue"
	"github.com/framepilot/render-worker/internal/recorder"
	"github.com/framepilot/render-worker/internal/render"
	"github.com/framepilot/render-worker/internal/render/publicid"
)

// ErrCancelled is returned when an external cancellation is observed at a
// stage boundary. The render row already carries the cancelled status; the
// caller must not overwrite it.
var ErrCancelled = errors.New("pipeline: render cancelled externally")

// sceneAttempts is how many times a transiently failing scene recording is
// tried before the render fails.
const sceneAttempts = 3

// transientScenePattern classifies scene-recording errors worth retrying.
var transientScenePattern = regexp.MustCompile(`(?i)timeout|navigation|too many requests|429|empty`)

// Pipeline renders claimed jobs. One Pipeline serves many renders; each Run
// gets its own working directory and browser session.
type Pipeline struct {
	queue  queue.Queue
	store  blob.Store
	media  media.Processor
	driver browser.Driver

	workRoot string
	log      *slog.Logger

	// recOpts is passed through to scene recorders, letting tests inject
	// fake clocks for the motion engine and the recorder's own waits.
	recOpts []recorder.Option
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMotionOptions forwards engine options to every scene recording.
func WithMotionOptions(opts ...motion.Option) Option {
	return func(p *Pipeline) {
		p.recOpts = append(p.recOpts, recorder.WithMotionOptions(opts...))
	}
}

// WithRecorderOptions forwards recorder options to every scene recording.
func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(p *Pipeline) {
		p.recOpts = append(p.recOpts, opts...)
	}
}

// New creates a pipeline over the given ports.
func New(q queue.Queue, store blob.Store, proc media.Processor, driver browser.Driver, workRoot string, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		queue:    q,
		store:    store,
		media:    proc,
		driver:   driver,
		workRoot: workRoot,
		log:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run-local state for one render.
type runState struct {
	claimed  *queue.ClaimedJob
	settings campaign.OutputSettings
	workDir  string
	log      *slog.Logger

	sheet       *leads.Sheet
	facecamPath string

	// cache maps md5(url|WxH|fps) to an already captured recording, so a URL
	// repeated across scenes is recorded once. It fronts the on-disk cache
	// shared across renders.
	cache map[string]*recorder.Recording
}

// Run executes one claimed render to completion. On success the render row
// is completed with its artifact URLs; on error the caller owns the failure
// bookkeeping. ErrCancelled means an external cancellation was honored.
func (p *Pipeline) Run(ctx context.Context, claimed *queue.ClaimedJob) error {
	c := claimed.Campaign
	r := claimed.Render

	if err := c.Validate(); err != nil {
		return err
	}
	// Artifact keys derive from the public id; a malformed one would publish
	// to a dead path.
	if !publicid.Valid(r.PublicID) {
		return fmt.Errorf("render %s: %w: %q", r.ID, publicid.ErrMalformed, r.PublicID)
	}

	workDir := WorkDirFor(p.workRoot, c, r.ID)
	if err := os.MkdirAll(filepath.Join(workDir, "raw"), 0o755); err != nil {
		return fmt.Errorf("creating work dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(workDir, "norm"), 0o755); err != nil {
		return fmt.Errorf("creating work dir: %w", err)
	}

	state := &runState{
		claimed:  claimed,
		settings: c.Output.Merge(campaign.DefaultOutputSettings()),
		workDir:  workDir,
		cache:    make(map[string]*recorder.Recording),
		log: p.log.With(
			slog.String("render_id", r.ID),
			slog.String("campaign_id", c.ID),
		),
	}

	if err := p.progress(ctx, state, render.StatusRecording); err != nil {
		return err
	}
	if err := p.fetchInputs(ctx, state); err != nil {
		return err
	}

	recordings, err := p.recordScenes(ctx, state)
	if err != nil {
		return err
	}

	if err := p.progress(ctx, state, render.StatusNormalizing); err != nil {
		return err
	}
	normalized, err := p.normalizeScenes(ctx, state, recordings)
	if err != nil {
		return err
	}

	if err := p.progress(ctx, state, render.StatusConcatenating); err != nil {
		return err
	}
	combined := filepath.Join(state.workDir, "combined.mp4")
	if err := p.media.Concat(ctx, normalized, combined); err != nil {
		return fmt.Errorf("concatenating scenes: %w", err)
	}

	final := combined
	if state.facecamPath != "" {
		if err := p.progress(ctx, state, render.StatusOverlaying); err != nil {
			return err
		}
		final = filepath.Join(state.workDir, "final.mp4")
		pip := media.PIPOpts{
			Width:  state.settings.PIPWidth,
			Margin: state.settings.PIPMargin,
			Corner: string(state.settings.PIPCorner),
		}
		if err := p.media.OverlayFacecam(ctx, combined, state.facecamPath, final, pip); err != nil {
			return fmt.Errorf("overlaying facecam: %w", err)
		}
	}

	if err := p.progress(ctx, state, render.StatusUploading); err != nil {
		return err
	}
	return p.publish(ctx, state, final)
}

// progress checks for external cancellation, then reports the stage
// transition.
func (p *Pipeline) progress(ctx context.Context, state *runState, status render.Status) error {
	current, err := p.queue.RenderStatus(ctx, state.claimed.Render.ID)
	if err != nil {
		return fmt.Errorf("checking render status: %w", err)
	}
	if current == render.StatusCancelled {
		state.log.Info("cancellation observed, stopping", slog.String("at", string(status)))
		return ErrCancelled
	}
	if err := p.queue.Progress(ctx, state.claimed.Render.ID, status, render.ProgressFor(status), ""); err != nil {
		return fmt.Errorf("reporting progress: %w", err)
	}
	state.log.Info("stage started",
		slog.String("status", string(status)),
		slog.Int("progress", render.ProgressFor(status)),
	)
	return nil
}

// fetchInputs downloads the facecam and lead CSV in parallel, verifies the
// facecam duration, resolves the lead row, and records the lead identifier.
func (p *Pipeline) fetchInputs(ctx context.Context, state *runState) error {
	r := state.claimed.Render
	g, gctx := errgroup.WithContext(ctx)

	if r.FacecamURL != "" {
		g.Go(func() error {
			data, err := p.store.Fetch(gctx, r.FacecamURL, blob.MaxFacecamBytes)
			if err != nil {
				return fmt.Errorf("fetching facecam: %w", err)
			}
			path := filepath.Join(state.workDir, "facecam.mp4")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing facecam: %w", err)
			}
			state.facecamPath = path
			return nil
		})
	}

	if r.LeadCSVURL != "" {
		g.Go(func() error {
			data, err := p.store.Fetch(gctx, r.LeadCSVURL, blob.MaxCSVBytes)
			if err != nil {
				return fmt.Errorf("fetching lead csv: %w", err)
			}
			sheet, err := leads.Parse(bytes.NewReader(data))
			if err != nil {
				return err
			}
			state.sheet = sheet
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if state.facecamPath != "" {
		probe, err := p.media.Probe(ctx, state.facecamPath)
		if err != nil {
			return fmt.Errorf("probing facecam: %w", err)
		}
		if err := state.claimed.Campaign.CheckFacecamDuration(probe.DurationSec); err != nil {
			return err
		}
	}

	if state.sheet != nil {
		if r.LeadRowIndex < 0 || r.LeadRowIndex >= state.sheet.Rows() {
			return fmt.Errorf("lead row %d of %d: %w", r.LeadRowIndex, state.sheet.Rows(), leads.ErrRowOutOfRange)
		}
		identifier := state.sheet.Identifier(r.LeadRowIndex)
		if err := p.queue.SetLeadIdentifier(ctx, r.ID, identifier); err != nil {
			state.log.Warn("storing lead identifier failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// recordScenes captures every scene in order against one shared browser
// session, reusing cached recordings for repeated URLs.
func (p *Pipeline) recordScenes(ctx context.Context, state *runState) ([]*recorder.Recording, error) {
	settings := state.settings
	session, err := p.driver.AcquireSession(ctx, settings.Width, settings.Height, filepath.Join(state.workDir, "raw"))
	if err != nil {
		return nil, fmt.Errorf("acquiring browser session: %w", err)
	}
	defer func() {
		if err := session.Release(context.WithoutCancel(ctx)); err != nil {
			state.log.Warn("releasing browser session failed", slog.String("error", err.Error()))
		}
	}()

	rec := recorder.New(session, state.log, p.recOpts...)
	scenes := state.claimed.Campaign.Scenes
	recordings := make([]*recorder.Recording, 0, len(scenes))

	for i, scene := range scenes {
		if status, err := p.queue.RenderStatus(ctx, state.claimed.Render.ID); err == nil && status == render.StatusCancelled {
			state.log.Info("cancellation observed between scenes", slog.Int("scene", i))
			return nil, ErrCancelled
		}

		url, err := p.resolveSceneURL(state, scene)
		if err != nil {
			return nil, err
		}

		key := sceneCacheKey(url, settings)
		cached, ok := state.cache[key]
		if !ok {
			if fromDisk := p.loadCachedScene(key, scene.DurationSec); fromDisk != nil {
				state.cache[key] = fromDisk
				cached, ok = fromDisk, true
			}
		}
		if ok && cached.DurationSec >= scene.DurationSec {
			state.log.Info("scene cache hit", slog.Int("scene", i), slog.String("url", url))
			recordings = append(recordings, &recorder.Recording{
				VideoPath:     cached.VideoPath,
				LeaderSkipSec: cached.LeaderSkipSec,
				DurationSec:   scene.DurationSec,
			})
			continue
		}

		recording, err := p.recordSceneWithRetry(ctx, state, rec, url, scene)
		if err != nil {
			return nil, fmt.Errorf("recording scene %d: %w", i, err)
		}
		recording = p.storeCachedScene(state, key, recording)
		state.cache[key] = recording
		recordings = append(recordings, recording)
		state.log.Info("scene recorded",
			slog.Int("scene", i),
			slog.String("url", url),
			slog.Int("duration_sec", scene.DurationSec),
		)
	}
	return recordings, nil
}

// recordSceneWithRetry retries transient recording failures with capped
// exponential backoff, up to sceneAttempts tries.
func (p *Pipeline) recordSceneWithRetry(ctx context.Context, state *runState, rec *recorder.Recorder, url string, scene campaign.Scene) (*recorder.Recording, error) {
	var recording *recorder.Recording
	attempt := 0

	op := func() error {
		attempt++
		r, err := rec.Record(ctx, url, scene, state.settings)
		if err != nil {
			if !transientScenePattern.MatchString(err.Error()) {
				return backoff.Permanent(err)
			}
			state.log.Warn("scene attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return err
		}
		recording = r
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(newSceneBackoff(), sceneAttempts-1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return recording, nil
}

// resolveSceneURL maps a scene to its concrete URL, consulting the lead row
// for csv scenes.
func (p *Pipeline) resolveSceneURL(state *runState, scene campaign.Scene) (string, error) {
	switch scene.Kind {
	case campaign.SceneCSV:
		if state.sheet == nil {
			return "", fmt.Errorf("scene %d references column %q but the render has no lead csv", scene.OrderIndex, scene.Column)
		}
		url, err := state.sheet.Value(state.claimed.Render.LeadRowIndex, scene.Column)
		if err != nil {
			return "", err
		}
		if url == "" {
			return "", fmt.Errorf("scene %d: lead row %d has an empty %q cell", scene.OrderIndex, state.claimed.Render.LeadRowIndex, scene.Column)
		}
		return url, nil
	default:
		return scene.URL, nil
	}
}

// normalizeScenes converts each raw recording into a frame-exact MP4 at the
// campaign's output parameters.
func (p *Pipeline) normalizeScenes(ctx context.Context, state *runState, recordings []*recorder.Recording) ([]string, error) {
	settings := state.settings
	outputs := make([]string, 0, len(recordings))
	for i, recording := range recordings {
		output := filepath.Join(state.workDir, "norm", fmt.Sprintf("scene-%03d.mp4", i))
		opts := media.NormalizeOpts{
			LeaderSkipSec: recording.LeaderSkipSec,
			DurationSec:   recording.DurationSec,
			FPS:           settings.FPS,
			Width:         settings.Width,
			Height:        settings.Height,
			EndPad:        string(settings.EndPad),
		}
		if err := p.media.NormalizeScene(ctx, recording.VideoPath, output, opts); err != nil {
			return nil, fmt.Errorf("normalizing scene %d: %w", i, err)
		}
		outputs = append(outputs, output)
	}
	return outputs, nil
}

// publish extracts the thumbnail, uploads both artifacts, purges stale CDN
// copies, and completes the render.
func (p *Pipeline) publish(ctx context.Context, state *runState, videoPath string) error {
	r := state.claimed.Render

	thumbPath := filepath.Join(state.workDir, "thumb.jpg")
	if err := p.media.Thumbnail(ctx, videoPath, thumbPath); err != nil {
		return fmt.Errorf("extracting thumbnail: %w", err)
	}

	videoURL, err := p.store.UploadFile(ctx, blob.VideoKey(r.PublicID), videoPath, blob.VideoContentType, blob.ArtifactCacheControl)
	if err != nil {
		return fmt.Errorf("uploading video: %w", err)
	}
	thumbURL, err := p.store.UploadFile(ctx, blob.ThumbnailKey(r.PublicID), thumbPath, blob.ThumbnailContentType, blob.ArtifactCacheControl)
	if err != nil {
		return fmt.Errorf("uploading thumbnail: %w", err)
	}

	// Keys are stable per public id, so a re-render overwrites in place and
	// cached CDN copies must be dropped.
	if err := p.store.Purge(ctx, []string{videoURL, thumbURL}); err != nil {
		state.log.Warn("cdn purge failed", slog.String("error", err.Error()))
	}

	if err := p.queue.MarkComplete(ctx, r.ID, videoURL, thumbURL); err != nil {
		return fmt.Errorf("completing render: %w", err)
	}
	state.log.Info("render completed",
		slog.String("video_url", videoURL),
		slog.String("thumbnail_url", thumbURL),
	)
	return nil
}

// WorkDirFor returns the per-render working directory under root. The
// campaign slug prefix keeps directories legible when debugging on a worker
// host.
func WorkDirFor(root string, c *campaign.Campaign, renderID string) string {
	return filepath.Join(root, fmt.Sprintf("%s-%s", c.Slug(), renderID))
}

// newSceneBackoff spaces scene retries at 2s doubling, capped at 32s.
func newSceneBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 32 * time.Second
	bo.RandomizationFactor = 0.25
	return bo
}

// sceneCacheKey identifies a reusable recording by URL and output
// parameters.
func sceneCacheKey(url string, settings campaign.OutputSettings) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%dx%d|%d", url, settings.Width, settings.Height, settings.FPS)))
	return fmt.Sprintf("%x", sum)
}

// cachedSceneMeta is the sidecar next to each cached recording.
type cachedSceneMeta struct {
	DurationSec   int     `json:"duration_sec"`
	LeaderSkipSec float64 `json:"leader_skip_sec"`
	Ext           string  `json:"ext"`
}

// cacheDir is the cross-render recording cache. It lives beside the
// per-render directories so the janitor's age-based sweep expires it.
func (p *Pipeline) cacheDir() string {
	return filepath.Join(p.workRoot, "cache")
}

// loadCachedScene returns a cached recording for key if one exists on disk
// and covers at least durationSec, nil otherwise.
func (p *Pipeline) loadCachedScene(key string, durationSec int) *recorder.Recording {
	data, err := os.ReadFile(filepath.Join(p.cacheDir(), key+".json"))
	if err != nil {
		return nil
	}
	var meta cachedSceneMeta
	if err := json.Unmarshal(data, &meta); err != nil || meta.DurationSec < durationSec {
		return nil
	}
	videoPath := filepath.Join(p.cacheDir(), key+meta.Ext)
	if _, err := os.Stat(videoPath); err != nil {
		return nil
	}
	return &recorder.Recording{
		VideoPath:     videoPath,
		LeaderSkipSec: meta.LeaderSkipSec,
		DurationSec:   meta.DurationSec,
	}
}

// storeCachedScene copies a fresh recording into the cache directory,
// best-effort. The returned recording points at the cached copy on success
// so the render survives its own working directory being reaped; on any
// failure the original recording is returned unchanged.
func (p *Pipeline) storeCachedScene(state *runState, key string, recording *recorder.Recording) *recorder.Recording {
	dir := p.cacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		state.log.Warn("scene cache unavailable", slog.String("error", err.Error()))
		return recording
	}

	ext := filepath.Ext(recording.VideoPath)
	videoPath := filepath.Join(dir, key+ext)
	if err := copyFile(recording.VideoPath, videoPath); err != nil {
		state.log.Warn("caching scene recording failed", slog.String("error", err.Error()))
		return recording
	}

	meta, err := json.Marshal(cachedSceneMeta{
		DurationSec:   recording.DurationSec,
		LeaderSkipSec: recording.LeaderSkipSec,
		Ext:           ext,
	})
	if err != nil {
		return recording
	}
	// The sidecar lands last, via rename, so a reader never sees a sidecar
	// without its video.
	tmp := filepath.Join(dir, key+".json.tmp")
	if err := os.WriteFile(tmp, meta, 0o644); err != nil {
		return recording
	}
	if err := os.Rename(tmp, filepath.Join(dir, key+".json")); err != nil {
		return recording
	}

	return &recorder.Recording{
		VideoPath:     videoPath,
		LeaderSkipSec: recording.LeaderSkipSec,
		DurationSec:   recording.DurationSec,
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
