package motion

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrNoTarget is returned by beats that found nothing suitable to interact
// with; the runner logs and moves on.
var ErrNoTarget = errors.New("motion: no suitable target")

// beatIntroSettle moves the cursor from offscreen to a jittered viewport
// centre, then hovers with tiny idle motion for the rest of the budget.
func (e *Engine) beatIntroSettle(ctx context.Context, budgetMs int) (int, error) {
	start := e.now()
	vw, vh := e.stage.Viewport()

	e.cursor = Point{X: -30, Y: float64(vh) * e.rng.Range(0.2, 0.5)}
	target := Point{
		X: float64(vw)/2 + e.rng.Range(-0.1, 0.1)*float64(vw),
		Y: float64(vh)/2 + e.rng.Range(-0.1, 0.1)*float64(vh),
	}
	if _, err := e.travel(ctx, target, PathOpts{TargetWidth: 120}); err != nil {
		return e.elapsedMs(start), err
	}

	if remaining := budgetMs - e.elapsedMs(start); remaining > 150 {
		if err := e.hoverIdle(ctx, remaining); err != nil {
			return e.elapsedMs(start), err
		}
	}
	return e.elapsedMs(start), nil
}

// beatHoverNav scores the nav anchors, moves to the best one, and hovers
// with 2-4 micro-movements.
func (e *Engine) beatHoverNav(ctx context.Context, budgetMs int) (int, error) {
	start := e.now()
	deadline := start.Add(time.Duration(budgetMs) * time.Millisecond)

	anchors, err := e.stage.NavAnchors(ctx)
	if err != nil {
		return e.elapsedMs(start), err
	}
	best, bestScore := Anchor{}, 0
	for _, a := range anchors {
		if s := ScoreNavAnchor(a); s > bestScore {
			best, bestScore = a, s
		}
	}
	if bestScore == 0 {
		return e.elapsedMs(start), ErrNoTarget
	}

	if _, err := e.travel(ctx, best.Center(), PathOpts{TargetWidth: best.W}); err != nil {
		return e.elapsedMs(start), err
	}

	moves := e.rng.IntRange(2, 4)
	for i := 0; i < moves; i++ {
		if deadline.Sub(e.now()) < 250*time.Millisecond {
			break
		}
		jitter := Point{
			X: best.Center().X + e.rng.Range(-best.W/4, best.W/4),
			Y: best.Center().Y + e.rng.Range(-best.H/4, best.H/4),
		}
		if err := e.glide(ctx, jitter, e.rng.IntRange(150, 280)); err != nil {
			return e.elapsedMs(start), err
		}
		pause := time.Duration(e.rng.IntRange(200, 450)) * time.Millisecond
		if remaining := deadline.Sub(e.now()); pause > remaining {
			pause = remaining
		}
		if pause > 0 {
			if err := e.sleep(ctx, pause); err != nil {
				return e.elapsedMs(start), err
			}
		}
	}
	return e.elapsedMs(start), nil
}

// beatScrollDrift plans a content-aware scroll within 95% of the budget and
// executes it in the page; the remainder pads the beat.
func (e *Engine) beatScrollDrift(ctx context.Context, budgetMs int) (int, error) {
	start := e.now()

	planBudget := budgetMs * 95 / 100
	plan, err := ContentAwareScrollPlan(ctx, e.rng, e.stage, planBudget)
	if err != nil && len(plan) == 0 {
		return e.elapsedMs(start), err
	}
	e.scrollPlans = append(e.scrollPlans, plan)

	if len(plan) > 0 {
		if err := e.stage.RunScrollPlan(ctx, plan); err != nil {
			return e.elapsedMs(start), err
		}
	}

	if pad := budgetMs - e.elapsedMs(start); pad > 0 {
		if err := e.sleep(ctx, time.Duration(pad)*time.Millisecond); err != nil {
			return e.elapsedMs(start), err
		}
	}
	return e.elapsedMs(start), nil
}

// beatHoverHeadingNearCenter scrolls the heading nearest the viewport centre
// into view and hovers it with micro-jitter.
func (e *Engine) beatHoverHeadingNearCenter(ctx context.Context, budgetMs int) (int, error) {
	start := e.now()

	headings, err := e.stage.Headings(ctx)
	if err != nil {
		return e.elapsedMs(start), err
	}
	if len(headings) == 0 {
		return e.elapsedMs(start), ErrNoTarget
	}

	_, vh := e.stage.Viewport()
	centre := float64(vh) / 2
	best := headings[0]
	bestDist := math.Abs(best.Center().Y - centre)
	for _, h := range headings[1:] {
		if d := math.Abs(h.Center().Y - centre); d < bestDist {
			best, bestDist = h, d
		}
	}

	if err := e.stage.ScrollIntoView(ctx, best.DocY, 120); err != nil {
		return e.elapsedMs(start), err
	}
	if _, err := e.travel(ctx, best.Center(), PathOpts{TargetWidth: best.W}); err != nil {
		return e.elapsedMs(start), err
	}
	if remaining := budgetMs - e.elapsedMs(start); remaining > 150 {
		if err := e.hoverIdle(ctx, remaining); err != nil {
			return e.elapsedMs(start), err
		}
	}
	return e.elapsedMs(start), nil
}

// beatHighlightSentence finds a visible paragraph of 8-30 words and drags
// the cursor across part of it as if selecting a sentence.
func (e *Engine) beatHighlightSentence(ctx context.Context, budgetMs int) (int, error) {
	start := e.now()

	paragraphs, err := e.stage.Paragraphs(ctx)
	if err != nil {
		return e.elapsedMs(start), err
	}
	var target *Paragraph
	for i := range paragraphs {
		p := paragraphs[i]
		if p.WordCount >= 8 && p.WordCount <= 30 && p.W > 80 {
			target = &p
			break
		}
	}
	if target == nil {
		return e.elapsedMs(start), ErrNoTarget
	}

	from := Point{X: target.X + target.W*0.05, Y: target.Center().Y}
	span := e.rng.Range(0.40, 0.70)
	to := Point{X: from.X + target.W*span, Y: target.Center().Y + e.rng.Range(-2, 2)}

	if _, err := e.travel(ctx, from, PathOpts{TargetWidth: 30}); err != nil {
		return e.elapsedMs(start), err
	}
	if err := e.stage.CursorDown(ctx); err != nil {
		return e.elapsedMs(start), err
	}
	dragErr := func() error {
		if _, err := e.travel(ctx, to, PathOpts{TargetWidth: 30}); err != nil {
			return err
		}
		hold := time.Duration(e.rng.IntRange(500, 900)) * time.Millisecond
		if remaining := time.Duration(budgetMs-e.elapsedMs(start)) * time.Millisecond; hold > remaining {
			hold = remaining
		}
		if hold <= 0 {
			return nil
		}
		return e.sleep(ctx, hold)
	}()
	// Release the button even when the drag errored mid-way.
	if err := e.stage.CursorUp(ctx); err != nil && dragErr == nil {
		dragErr = err
	}
	return e.elapsedMs(start), dragErr
}

// beatMoveToCTA approaches the highest-scoring safe CTA with a slight
// overshoot, corrects, and hovers. It never clicks.
func (e *Engine) beatMoveToCTA(ctx context.Context, budgetMs int) (int, error) {
	start := e.now()

	anchors, err := e.stage.CTAAnchors(ctx)
	if err != nil {
		return e.elapsedMs(start), err
	}
	best, bestScore := Anchor{}, 0
	for _, a := range anchors {
		if s := ScoreCTAAnchor(a); s > bestScore {
			best, bestScore = a, s
		}
	}
	if bestScore == 0 {
		return e.elapsedMs(start), ErrNoTarget
	}

	if _, err := e.travel(ctx, best.Center(), PathOpts{TargetWidth: best.W, Overshoot: true}); err != nil {
		return e.elapsedMs(start), err
	}
	if remaining := budgetMs - e.elapsedMs(start); remaining > 150 {
		if err := e.hoverIdle(ctx, remaining); err != nil {
			return e.elapsedMs(start), err
		}
	}
	return e.elapsedMs(start), nil
}

// beatIdle is the elastic final filler. Budgets of 5s and more delegate to
// the ambient pause; shorter ones do one micro-move and sleep out the rest.
func (e *Engine) beatIdle(ctx context.Context, budgetMs int) (int, error) {
	start := e.now()

	if budgetMs >= 5000 {
		return e.ambientPause(ctx, budgetMs)
	}

	if budgetMs > 400 {
		target := Point{
			X: e.cursor.X + e.rng.Range(8, 20)*e.rng.Sign(),
			Y: e.cursor.Y + e.rng.Range(8, 20)*e.rng.Sign(),
		}
		if err := e.glide(ctx, target, e.rng.IntRange(120, 220)); err != nil {
			return e.elapsedMs(start), err
		}
	}
	if remaining := budgetMs - e.elapsedMs(start); remaining > 0 {
		if err := e.sleep(ctx, time.Duration(remaining)*time.Millisecond); err != nil {
			return e.elapsedMs(start), err
		}
	}
	return e.elapsedMs(start), nil
}
