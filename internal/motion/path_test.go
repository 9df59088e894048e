package motion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFittsDurationClamps(t *testing.T) {
	// Tiny movements hit the floor.
	assert.Equal(t, 120.0, FittsDuration(1, 200))
	// Huge movements hit the ceiling.
	assert.Equal(t, 1200.0, FittsDuration(100000, 4))

	mid := FittsDuration(500, 40)
	assert.Greater(t, mid, 120.0)
	assert.Less(t, mid, 1200.0)
}

func TestFittsDurationGrowsWithDistance(t *testing.T) {
	assert.Less(t, FittsDuration(100, 40), FittsDuration(800, 40))
}

func TestFittsDurationZeroWidthUsesDefault(t *testing.T) {
	assert.Equal(t, FittsDuration(300, defaultTarget), FittsDuration(300, 0))
}

func TestMinJerkEndpoints(t *testing.T) {
	assert.Equal(t, 0.0, minJerk(0))
	assert.Equal(t, 1.0, minJerk(1))
	assert.InDelta(t, 0.5, minJerk(0.5), 1e-9)
}

func TestGeneratePathEndsAtTarget(t *testing.T) {
	rng := NewRNG(SeedFromURL("https://example.com"))
	start := Point{X: 100, Y: 100}
	end := Point{X: 800, Y: 500}

	path := GeneratePath(rng, start, end, PathOpts{TargetWidth: 60})
	require.NotEmpty(t, path)

	final := PathEnd(path)
	// Jitter decays to zero at the endpoint.
	assert.InDelta(t, end.X, final.X, 0.5)
	assert.InDelta(t, end.Y, final.Y, 0.5)
}

func TestGeneratePathTimesAreMonotonic(t *testing.T) {
	rng := NewRNG(7)
	path := GeneratePath(rng, Point{0, 0}, Point{900, 300}, PathOpts{})
	require.Greater(t, len(path), 2)

	prev := -1.0
	for i, sample := range path {
		assert.Greater(t, sample.AtMs, prev, "sample %d", i)
		prev = sample.AtMs
	}
	assert.LessOrEqual(t, PathDurationMs(path), maxPathMs+120+1)
}

func TestGeneratePathIsDeterministic(t *testing.T) {
	a := GeneratePath(NewRNG(123), Point{10, 10}, Point{500, 400}, PathOpts{TargetWidth: 40})
	b := GeneratePath(NewRNG(123), Point{10, 10}, Point{500, 400}, PathOpts{TargetWidth: 40})
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
}

func TestGeneratePathShortMove(t *testing.T) {
	rng := NewRNG(1)
	path := GeneratePath(rng, Point{100, 100}, Point{100.2, 100.2}, PathOpts{})
	require.Len(t, path, 1)
	assert.Equal(t, 100.2, path[0].X)
}

func TestGeneratePathOvershoot(t *testing.T) {
	start := Point{0, 0}
	end := Point{400, 0}

	plain := GeneratePath(NewRNG(55), start, end, PathOpts{})
	shot := GeneratePath(NewRNG(55), start, end, PathOpts{Overshoot: true})
	require.Greater(t, len(shot), len(plain))

	// The overshoot passes the endpoint before correcting back onto it.
	over := shot[len(shot)-2]
	assert.Greater(t, over.X, end.X)
	assert.Greater(t, over.X-end.X, 1.0)
	assert.LessOrEqual(t, over.X-end.X, 6.5)

	final := PathEnd(shot)
	assert.Equal(t, end, final)
}

func TestPathSamplingRate(t *testing.T) {
	rng := NewRNG(9)
	path := GeneratePath(rng, Point{0, 0}, Point{600, 600}, PathOpts{})
	require.Greater(t, len(path), 3)

	duration := PathDurationMs(path)
	// 60-120 Hz sampling means roughly one sample every 8-17ms.
	perSample := duration / float64(len(path)-1)
	assert.Greater(t, perSample, 7.0)
	assert.Less(t, perSample, 18.0)
	assert.False(t, math.IsNaN(perSample))
}
