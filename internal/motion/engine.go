package motion

import (
	"context"
	"log/slog"
	"time"
)

// MinBeatMs is the minimum budget reserved for every scheduled beat.
const MinBeatMs = 400

// PlannedBeat is one scheduled beat with its allocated budget.
type PlannedBeat struct {
	Name     string
	BudgetMs int
}

// Engine choreographs one scene. It is seeded from the scene URL, so the
// same (url, duration) pair always produces the same schedule, cursor path
// endpoints, and scroll plans.
type Engine struct {
	stage Stage
	rng   *RNG
	log   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	cursor Point

	// Recorded choreography, exposed for logging and determinism checks.
	schedule    []PlannedBeat
	scrollPlans [][]ScrollSegment
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock and sleeper, used by tests to run
// schedules instantly.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.now = now
		e.sleep = sleep
	}
}

// NewEngine creates an engine for one scene, seeded from the scene URL.
func NewEngine(stage Stage, url string, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		stage: stage,
		rng:   NewRNG(SeedFromURL(url)),
		log:   logger,
		now:   time.Now,
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schedule returns the planned beat list after Run.
func (e *Engine) Schedule() []PlannedBeat {
	return e.schedule
}

// ScrollPlans returns every scroll plan executed during Run.
func (e *Engine) ScrollPlans() [][]ScrollSegment {
	return e.scrollPlans
}

// Run consumes exactly durationSec of wall time (within +/-100ms) driving
// the stage. Beat errors are logged and skipped; their remaining budget
// flows to the next beat, and the final idle absorbs any residual.
func (e *Engine) Run(ctx context.Context, durationSec int) error {
	totalMs := durationSec * 1000
	start := e.now()
	deadline := start.Add(time.Duration(totalMs) * time.Millisecond)

	beats := e.planBeats(totalMs)
	e.schedule = make([]PlannedBeat, 0, len(beats))
	planned := make([]PlannedBeat, 0, len(beats))
	for _, b := range beats {
		planned = append(planned, PlannedBeat{Name: b.name, BudgetMs: b.budget})
	}
	e.schedule = planned

	e.log.Debug("motion schedule planned",
		slog.Int("duration_sec", durationSec),
		slog.Int("beats", len(planned)),
	)

	authChecked := false
	for i, b := range beats {
		remainingMs := int(deadline.Sub(e.now()) / time.Millisecond)
		if remainingMs <= 0 {
			break
		}

		// Reserve MinBeatMs for every beat still waiting behind this one.
		reserve := MinBeatMs * (len(beats) - i - 1)
		budget := b.budget
		if budget > remainingMs-reserve {
			budget = remainingMs - reserve
		}
		if i == len(beats)-1 {
			// The final idle takes everything left.
			budget = remainingMs
		}
		if budget < MinBeatMs && i != len(beats)-1 {
			continue
		}

		elapsed, err := b.run(ctx, budget)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Warn("beat failed, skipping",
				slog.String("beat", b.name),
				slog.String("error", err.Error()),
			)
		}
		e.log.Debug("beat finished",
			slog.String("beat", b.name),
			slog.Int("budget_ms", budget),
			slog.Int("elapsed_ms", elapsed),
		)

		// Authentication short-circuit: after the opening settle, a
		// password/login page gets no further interaction.
		if !authChecked && b.name == "introSettle" {
			authChecked = true
			if auth, aerr := e.stage.IsAuthPage(ctx); aerr == nil && auth {
				e.log.Info("auth page detected, idling remainder")
				remaining := int(deadline.Sub(e.now()) / time.Millisecond)
				if remaining > 0 {
					_, _ = e.beatIdle(ctx, remaining)
				}
				e.schedule = append(planned[:i+1], PlannedBeat{Name: "idle", BudgetMs: remaining})
				return nil
			}
		}
	}

	// Close any residual deficit so total elapsed lands on the target.
	if residual := deadline.Sub(e.now()); residual > 0 {
		if err := e.sleep(ctx, residual); err != nil {
			return err
		}
	}
	return nil
}

// plannedBeatExec couples a name, a drawn budget, and the beat body.
type plannedBeatExec struct {
	name   string
	budget int
	run    func(ctx context.Context, budgetMs int) (int, error)
}

// planBeats draws the schedule for a scene. Budgets are drawn from the
// seeded generator, so planning is deterministic per (url, duration).
func (e *Engine) planBeats(totalMs int) []plannedBeatExec {
	if totalMs < 10_000 {
		return e.planSimplified(totalMs)
	}
	return e.planFull(totalMs)
}

// planSimplified: introSettle, scrollDrift (40-50% of remainder), idle.
func (e *Engine) planSimplified(totalMs int) []plannedBeatExec {
	intro := e.rng.IntRange(800, 1200)
	remainder := totalMs - intro
	drift := int(e.rng.Range(0.40, 0.50) * float64(remainder))
	idle := remainder - drift

	return []plannedBeatExec{
		{"introSettle", intro, e.beatIntroSettle},
		{"scrollDrift", drift, e.beatScrollDrift},
		{"idle", idle, e.beatIdle},
	}
}

// planFull: the seven-beat script for scenes of 10s and longer.
func (e *Engine) planFull(totalMs int) []plannedBeatExec {
	intro := e.rng.IntRange(800, 1200)
	nav := e.rng.IntRange(2500, 4000)
	remaining := totalMs - intro - nav

	drift := int(e.rng.Range(0.40, 0.50) * float64(remaining))
	if drift > 12_000 {
		drift = 12_000
	}
	remaining -= drift

	heading := e.rng.IntRange(2500, 4000)
	highlight := e.rng.IntRange(1800, 3000)
	cta := e.rng.IntRange(1500, 2500)
	idle := remaining - heading - highlight - cta
	if idle < 1000 {
		idle = 1000
	}

	return []plannedBeatExec{
		{"introSettle", intro, e.beatIntroSettle},
		{"hoverNav", nav, e.beatHoverNav},
		{"scrollDrift", drift, e.beatScrollDrift},
		{"hoverHeadingNearCenter", heading, e.beatHoverHeadingNearCenter},
		{"highlightSentence", highlight, e.beatHighlightSentence},
		{"moveToCTAandHover", cta, e.beatMoveToCTA},
		{"idle", idle, e.beatIdle},
	}
}

// ambientPause fills the budget with 700-1400ms quiet windows interleaved
// with micro-moves or the occasional tiny scroll nudge. Returns the elapsed
// milliseconds so callers can close any deficit.
func (e *Engine) ambientPause(ctx context.Context, budgetMs int) (int, error) {
	start := e.now()
	deadline := start.Add(time.Duration(budgetMs) * time.Millisecond)

	for {
		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			break
		}

		quiet := time.Duration(e.rng.IntRange(700, 1400)) * time.Millisecond
		if quiet > remaining {
			quiet = remaining
		}
		if err := e.sleep(ctx, quiet); err != nil {
			return e.elapsedMs(start), err
		}

		remaining = deadline.Sub(e.now())
		if remaining < 300*time.Millisecond {
			break
		}

		if e.rng.Chance(0.22) {
			// Tiny scroll nudge: 20-40px over 300-500ms.
			nudge := []ScrollSegment{{
				DurationMs:  e.rng.IntRange(300, 500),
				AmplitudePx: e.rng.IntRange(20, 40),
				Envelope:    pickEnvelope(e.rng),
			}}
			if err := e.stage.RunScrollPlan(ctx, nudge); err != nil {
				e.log.Debug("ambient nudge failed", slog.String("error", err.Error()))
			}
		} else {
			// Micro-move: +/-8-20px over 120-220ms.
			target := Point{
				X: e.cursor.X + e.rng.Range(8, 20)*e.rng.Sign(),
				Y: e.cursor.Y + e.rng.Range(8, 20)*e.rng.Sign(),
			}
			if err := e.glide(ctx, target, e.rng.IntRange(120, 220)); err != nil {
				return e.elapsedMs(start), err
			}
		}
	}
	return e.elapsedMs(start), nil
}

// travel moves the cursor along a generated path, pacing samples against the
// clock.
func (e *Engine) travel(ctx context.Context, to Point, opts PathOpts) (int, error) {
	start := e.now()
	path := GeneratePath(e.rng, e.cursor, to, opts)
	prev := 0.0
	for _, sample := range path {
		if d := time.Duration(sample.AtMs-prev) * time.Millisecond; d > 0 {
			if err := e.sleep(ctx, d); err != nil {
				return e.elapsedMs(start), err
			}
		}
		prev = sample.AtMs
		if err := e.stage.MoveCursor(ctx, sample.X, sample.Y); err != nil {
			return e.elapsedMs(start), err
		}
		e.cursor = sample.Point
	}
	return e.elapsedMs(start), nil
}

// glide is a short direct move over a fixed duration, for micro-motion.
func (e *Engine) glide(ctx context.Context, to Point, durationMs int) error {
	steps := maxInt(2, durationMs/16)
	from := e.cursor
	for i := 1; i <= steps; i++ {
		u := minJerk(float64(i) / float64(steps))
		x := from.X + (to.X-from.X)*u
		y := from.Y + (to.Y-from.Y)*u
		if err := e.sleep(ctx, time.Duration(durationMs/steps)*time.Millisecond); err != nil {
			return err
		}
		if err := e.stage.MoveCursor(ctx, x, y); err != nil {
			return err
		}
		e.cursor = Point{X: x, Y: y}
	}
	return nil
}

// hoverIdle keeps tiny idle motion going near the current position until the
// budget runs out.
func (e *Engine) hoverIdle(ctx context.Context, budgetMs int) error {
	deadline := e.now().Add(time.Duration(budgetMs) * time.Millisecond)
	for {
		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			return nil
		}
		pause := time.Duration(e.rng.IntRange(250, 600)) * time.Millisecond
		if pause > remaining {
			pause = remaining
		}
		if err := e.sleep(ctx, pause); err != nil {
			return err
		}
		if deadline.Sub(e.now()) < 200*time.Millisecond {
			return nil
		}
		target := Point{
			X: e.cursor.X + e.rng.Range(2, 6)*e.rng.Sign(),
			Y: e.cursor.Y + e.rng.Range(2, 6)*e.rng.Sign(),
		}
		if err := e.glide(ctx, target, e.rng.IntRange(100, 180)); err != nil {
			return err
		}
	}
}

func (e *Engine) elapsedMs(start time.Time) int {
	return int(e.now().Sub(start) / time.Millisecond)
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
