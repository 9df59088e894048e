package motion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleScrollPlanStaysInBudget(t *testing.T) {
	rng := NewRNG(SeedFromURL("https://example.com"))
	budget := 12000
	plan := SimpleScrollPlan(rng, budget)
	require.NotEmpty(t, plan)
	assert.LessOrEqual(t, PlanMs(plan), budget)
}

func TestSimpleScrollPlanSegmentShapes(t *testing.T) {
	rng := NewRNG(42)
	plan := SimpleScrollPlan(rng, 20000)
	require.NotEmpty(t, plan)

	reversals := 0
	for i, seg := range plan {
		assert.GreaterOrEqual(t, seg.DurationMs, 900, "segment %d", i)
		assert.LessOrEqual(t, seg.DurationMs, 1600, "segment %d", i)
		if seg.AmplitudePx < 0 {
			reversals++
			assert.GreaterOrEqual(t, -seg.AmplitudePx, 60)
			assert.LessOrEqual(t, -seg.AmplitudePx, 120)
		} else {
			assert.GreaterOrEqual(t, seg.AmplitudePx, 60)
			assert.LessOrEqual(t, seg.AmplitudePx, 140)
		}
		assert.Contains(t, []Envelope{EnvelopeSin, EnvelopeExp}, seg.Envelope)
	}
	// At most one peek-back per plan.
	assert.LessOrEqual(t, reversals, 1)
}

func TestSimpleScrollPlanIsDeterministic(t *testing.T) {
	a := SimpleScrollPlan(NewRNG(77), 15000)
	b := SimpleScrollPlan(NewRNG(77), 15000)
	assert.Equal(t, a, b)
}

func TestSimpleScrollPlanTinyBudget(t *testing.T) {
	plan := SimpleScrollPlan(NewRNG(1), 800)
	assert.Empty(t, plan)
}

// planStage is the minimal Stage slice the planner consults.
type planStage struct {
	Stage
	headings []Heading
	scrollY  float64
	vh       int
}

func (s *planStage) Headings(ctx context.Context) ([]Heading, error) { return s.headings, nil }
func (s *planStage) ScrollY(ctx context.Context) (float64, error)    { return s.scrollY, nil }
func (s *planStage) Viewport() (int, int)                            { return 1280, s.vh }

func TestContentAwareScrollPlanTargetsBelowFoldHeadings(t *testing.T) {
	stage := &planStage{
		vh: 800,
		headings: []Heading{
			{Rect: Rect{X: 100, Y: 200, W: 300, H: 40}, Text: "Above fold", DocY: 200},
			{Rect: Rect{X: 100, Y: 2000, W: 300, H: 40}, Text: "Below fold", DocY: 2000},
		},
	}

	plan, err := ContentAwareScrollPlan(context.Background(), NewRNG(5), stage, 10000)
	require.NoError(t, err)
	require.NotEmpty(t, plan)
	assert.LessOrEqual(t, PlanMs(plan), 10000)

	// Bursts approach the target without a single jump.
	for _, seg := range plan {
		assert.LessOrEqual(t, seg.AmplitudePx, 320)
		assert.Greater(t, seg.AmplitudePx, 0)
	}
}

func TestContentAwareScrollPlanFallsBackWithoutHeadings(t *testing.T) {
	stage := &planStage{vh: 800}
	plan, err := ContentAwareScrollPlan(context.Background(), NewRNG(5), stage, 10000)
	require.NoError(t, err)
	assert.NotEmpty(t, plan)
}

func TestScrollRunnerJSShape(t *testing.T) {
	js := ScrollRunnerJS()
	assert.True(t, strings.HasPrefix(js, "(plan) =>"))
	assert.Contains(t, js, "requestAnimationFrame")
	assert.Contains(t, js, "durationMs")
	assert.Contains(t, js, "amplitudePx")
	assert.Contains(t, js, "pauseAfterMs")
}

func TestPlanMs(t *testing.T) {
	plan := []ScrollSegment{
		{DurationMs: 1000, PauseAfterMs: 500},
		{DurationMs: 900, PauseAfterMs: 1100},
	}
	assert.Equal(t, 3500, PlanMs(plan))
}
