package motion

import (
	"context"
	"math"
)

// Envelope names the easing envelope of one scroll burst.
type Envelope string

const (
	// EnvelopeSin eases with a half-sine profile.
	EnvelopeSin Envelope = "sin"
	// EnvelopeExp eases with an exponential decay profile.
	EnvelopeExp Envelope = "exp"
)

// ScrollSegment is one burst of an inertial scroll plan. Negative amplitude
// scrolls up (a peek-back).
type ScrollSegment struct {
	DurationMs   int      `json:"durationMs"`
	AmplitudePx  int      `json:"amplitudePx"`
	Envelope     Envelope `json:"envelope"`
	PauseAfterMs int      `json:"pauseAfterMs"`
}

// PlanMs returns the total wall time a plan consumes.
func PlanMs(plan []ScrollSegment) int {
	total := 0
	for _, s := range plan {
		total += s.DurationMs + s.PauseAfterMs
	}
	return total
}

// SimpleScrollPlan emits small reading bursts with long pauses until the
// budget is consumed: 60-140px over 900-1600ms, pauses 900-1800ms, and the
// occasional single reverse peek-back of 60-120px.
func SimpleScrollPlan(rng *RNG, budgetMs int) []ScrollSegment {
	var plan []ScrollSegment
	remaining := budgetMs
	peeked := false

	for remaining > 1200 {
		seg := ScrollSegment{
			DurationMs:   rng.IntRange(900, 1600),
			AmplitudePx:  rng.IntRange(60, 140),
			Envelope:     pickEnvelope(rng),
			PauseAfterMs: rng.IntRange(900, 1800),
		}
		if !peeked && len(plan) >= 2 && rng.Chance(0.25) {
			seg.AmplitudePx = -rng.IntRange(60, 120)
			peeked = true
		}
		cost := seg.DurationMs + seg.PauseAfterMs
		if cost > remaining {
			seg.PauseAfterMs = maxInt(0, remaining-seg.DurationMs)
			cost = seg.DurationMs + seg.PauseAfterMs
		}
		plan = append(plan, seg)
		remaining -= cost
	}
	return plan
}

// ContentAwareScrollPlan inspects the page headings and plans bursts toward
// 1-2 targets within the budget, with a long reading pause at each. Falls
// back to the simple plan when the page offers no usable headings.
func ContentAwareScrollPlan(ctx context.Context, rng *RNG, stage Stage, budgetMs int) ([]ScrollSegment, error) {
	headings, err := stage.Headings(ctx)
	if err != nil || len(headings) == 0 {
		return SimpleScrollPlan(rng, budgetMs), err
	}

	scrollY, err := stage.ScrollY(ctx)
	if err != nil {
		scrollY = 0
	}
	_, vh := stage.Viewport()

	// Below-the-fold headings are scroll targets.
	var targets []Heading
	for _, h := range headings {
		if h.DocY > scrollY+float64(vh)*0.6 {
			targets = append(targets, h)
		}
	}
	if len(targets) == 0 {
		return SimpleScrollPlan(rng, budgetMs), nil
	}

	wanted := 1
	if len(targets) > 1 && budgetMs >= 7000 {
		wanted = 2
	}

	var plan []ScrollSegment
	remaining := budgetMs
	currentY := scrollY
	for i := 0; i < wanted && remaining > 2500; i++ {
		target := targets[rng.Pick(len(targets))]
		delta := target.DocY - currentY - float64(vh)/3
		if delta < 40 {
			continue
		}
		// Approach in bursts so the travel reads as inertial, not a jump.
		for delta > 40 && remaining > 2500 {
			amp := math.Min(delta, rng.Range(160, 320))
			seg := ScrollSegment{
				DurationMs:  rng.IntRange(900, 1600),
				AmplitudePx: int(amp),
				Envelope:    pickEnvelope(rng),
			}
			delta -= amp
			currentY += amp
			if delta <= 40 {
				// Reading pause at the target: 1.2-2.2s.
				seg.PauseAfterMs = rng.IntRange(1200, 2200)
			} else {
				seg.PauseAfterMs = rng.IntRange(300, 700)
			}
			cost := seg.DurationMs + seg.PauseAfterMs
			if cost > remaining {
				seg.PauseAfterMs = maxInt(0, remaining-seg.DurationMs)
				cost = seg.DurationMs + seg.PauseAfterMs
			}
			plan = append(plan, seg)
			remaining -= cost
		}
	}

	if len(plan) == 0 {
		return SimpleScrollPlan(rng, budgetMs), nil
	}
	return plan, nil
}

// scrollRunnerJS executes a serialized scroll plan inside the page via
// requestAnimationFrame with displacement-based minimum-jerk easing, so the
// motion lands in the recording. Resolves when the final segment's pause
// elapses.
const scrollRunnerJS = `(plan) => new Promise((resolve) => {
	const minJerk = (u) => 10*u**3 - 15*u**4 + 6*u**5;
	const ease = (env, u) => env === 'sin' ? Math.sin(u * Math.PI / 2) : (env === 'exp' ? 1 - Math.exp(-4 * u) : minJerk(u));
	let i = 0;
	const runSegment = () => {
		if (i >= plan.length) { resolve(); return; }
		const seg = plan[i++];
		const startY = window.scrollY;
		const start = performance.now();
		const frame = (now) => {
			const u = Math.min(1, (now - start) / seg.durationMs);
			window.scrollTo(0, startY + seg.amplitudePx * ease(seg.envelope, u));
			if (u < 1) { requestAnimationFrame(frame); }
			else { setTimeout(runSegment, seg.pauseAfterMs); }
		};
		requestAnimationFrame(frame);
	};
	runSegment();
})`

// ScrollRunnerJS returns the in-page executor source for the browser driver.
func ScrollRunnerJS() string {
	return scrollRunnerJS
}

func pickEnvelope(rng *RNG) Envelope {
	if rng.Chance(0.5) {
		return EnvelopeSin
	}
	return EnvelopeExp
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
