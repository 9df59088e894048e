package motion

import (
	"math"
)

// Fitts' Law coefficients and clamps for cursor travel time.
const (
	fittsA        = 80.0  // ms intercept
	fittsB        = 150.0 // ms per bit of index of difficulty
	minPathMs     = 120.0
	maxPathMs     = 1200.0
	defaultTarget = 40.0 // nominal target width in px
)

// Point is a cursor position.
type Point struct {
	X float64
	Y float64
}

// PathSample is one timed cursor position along a generated path.
type PathSample struct {
	Point
	// AtMs is the offset from path start.
	AtMs float64
}

// PathOpts tunes path generation.
type PathOpts struct {
	// TargetWidth is the nominal width of the destination element; it feeds
	// the Fitts' Law duration. Zero means defaultTarget.
	TargetWidth float64
	// Overshoot adds a 2-6px overrun past the endpoint followed by an
	// 80-120ms corrective approach.
	Overshoot bool
}

// FittsDuration computes the movement time for a given distance and target
// width, clamped to [120, 1200] ms.
func FittsDuration(distance, targetWidth float64) float64 {
	if targetWidth <= 0 {
		targetWidth = defaultTarget
	}
	t := fittsA + fittsB*math.Log2(1+distance/targetWidth)
	return math.Min(maxPathMs, math.Max(minPathMs, t))
}

// minJerk is the minimum-jerk time-parameterization scalar
// s(u) = 10u^3 - 15u^4 + 6u^5.
func minJerk(u float64) float64 {
	return 10*u*u*u - 15*u*u*u*u + 6*u*u*u*u*u
}

// GeneratePath samples a cubic Bezier between start and end with
// minimum-jerk pacing, decaying low-pass jitter, and an optional overshoot.
// Sampling rate is 60-120 Hz, chosen by the generator.
func GeneratePath(rng *RNG, start, end Point, opts PathOpts) []PathSample {
	dx := end.X - start.X
	dy := end.Y - start.Y
	distance := math.Hypot(dx, dy)
	if distance < 1 {
		return []PathSample{{Point: end, AtMs: 0}}
	}

	durationMs := FittsDuration(distance, opts.TargetWidth)

	// Control points offset perpendicularly by 2-8% of distance, random side.
	perpX, perpY := -dy/distance, dx/distance
	off1 := rng.Range(0.02, 0.08) * distance * rng.Sign()
	off2 := rng.Range(0.02, 0.08) * distance * rng.Sign()
	c1 := Point{start.X + dx/3 + perpX*off1, start.Y + dy/3 + perpY*off1}
	c2 := Point{start.X + 2*dx/3 + perpX*off2, start.Y + 2*dy/3 + perpY*off2}

	hz := rng.Range(60, 120)
	stepMs := 1000.0 / hz
	steps := int(math.Max(2, durationMs/stepMs))

	jitterAmp := rng.Range(0.4, 1.2)
	var jx, jy float64 // low-pass filter state

	samples := make([]PathSample, 0, steps+4)
	for i := 0; i <= steps; i++ {
		u := float64(i) / float64(steps)
		s := minJerk(u)
		p := cubicBezier(start, c1, c2, end, s)

		// Low-pass filtered micro-jitter, decaying to zero at the endpoint.
		decay := 1 - u
		jx = jx*0.7 + rng.Range(-jitterAmp, jitterAmp)*0.3
		jy = jy*0.7 + rng.Range(-jitterAmp, jitterAmp)*0.3
		p.X += jx * decay
		p.Y += jy * decay

		samples = append(samples, PathSample{Point: p, AtMs: u * durationMs})
	}

	if opts.Overshoot {
		samples = appendOvershoot(rng, samples, start, end, durationMs)
	}
	return samples
}

// appendOvershoot extends the path 2-6px past the endpoint and corrects
// back over 80-120ms.
func appendOvershoot(rng *RNG, samples []PathSample, start, end Point, durationMs float64) []PathSample {
	dx := end.X - start.X
	dy := end.Y - start.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return samples
	}
	over := rng.Range(2, 6)
	overshootPt := Point{end.X + dx/dist*over, end.Y + dy/dist*over}
	correctMs := rng.Range(80, 120)

	samples = append(samples, PathSample{Point: overshootPt, AtMs: durationMs + correctMs*0.4})
	samples = append(samples, PathSample{Point: end, AtMs: durationMs + correctMs})
	return samples
}

// cubicBezier evaluates the Bezier at parameter t.
func cubicBezier(p0, p1, p2, p3 Point, t float64) Point {
	mt := 1 - t
	a := mt * mt * mt
	b := 3 * mt * mt * t
	c := 3 * mt * t * t
	d := t * t * t
	return Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

// PathEnd returns the final position of a path.
func PathEnd(samples []PathSample) Point {
	if len(samples) == 0 {
		return Point{}
	}
	return samples[len(samples)-1].Point
}

// PathDurationMs returns the total duration of a path.
func PathDurationMs(samples []PathSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[len(samples)-1].AtMs
}
