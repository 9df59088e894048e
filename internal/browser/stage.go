package browser

import (
	"context"
	"fmt"

	"github.com/framepilot/render-worker/internal/motion"
)

// pwStage adapts a recorded page to the motion engine's stage port. Element
// queries run in-page and return viewport-relative boxes at call time.
type pwStage struct {
	page *pwPage
}

var _ motion.Stage = (*pwStage)(nil)

func (s *pwStage) Viewport() (int, int) {
	return s.page.sess.width, s.page.sess.height
}

func (s *pwStage) MoveCursor(ctx context.Context, x, y float64) error {
	return s.page.page.Mouse().Move(x, y)
}

func (s *pwStage) CursorDown(ctx context.Context) error {
	return s.page.page.Mouse().Down()
}

func (s *pwStage) CursorUp(ctx context.Context) error {
	return s.page.page.Mouse().Up()
}

func (s *pwStage) NavAnchors(ctx context.Context) ([]motion.Anchor, error) {
	result, err := s.page.page.Evaluate(anchorInfoJS, "header a, nav a")
	if err != nil {
		return nil, fmt.Errorf("querying nav anchors: %w", err)
	}
	return decodeAnchors(result), nil
}

func (s *pwStage) CTAAnchors(ctx context.Context) ([]motion.Anchor, error) {
	result, err := s.page.page.Evaluate(anchorInfoJS, "a, button, [role=\"button\"]")
	if err != nil {
		return nil, fmt.Errorf("querying cta anchors: %w", err)
	}
	return decodeAnchors(result), nil
}

func (s *pwStage) Headings(ctx context.Context) ([]motion.Heading, error) {
	result, err := s.page.page.Evaluate(headingsJS)
	if err != nil {
		return nil, fmt.Errorf("querying headings: %w", err)
	}
	items, _ := result.([]interface{})
	headings := make([]motion.Heading, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		headings = append(headings, motion.Heading{
			Rect: motion.Rect{
				X: toFloat(m["x"]),
				Y: toFloat(m["y"]),
				W: toFloat(m["w"]),
				H: toFloat(m["h"]),
			},
			Text: toString(m["text"]),
			DocY: toFloat(m["docY"]),
		})
	}
	return headings, nil
}

func (s *pwStage) Paragraphs(ctx context.Context) ([]motion.Paragraph, error) {
	result, err := s.page.page.Evaluate(paragraphsJS)
	if err != nil {
		return nil, fmt.Errorf("querying paragraphs: %w", err)
	}
	items, _ := result.([]interface{})
	paragraphs := make([]motion.Paragraph, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		paragraphs = append(paragraphs, motion.Paragraph{
			Rect: motion.Rect{
				X: toFloat(m["x"]),
				Y: toFloat(m["y"]),
				W: toFloat(m["w"]),
				H: toFloat(m["h"]),
			},
			WordCount: int(toFloat(m["words"])),
		})
	}
	return paragraphs, nil
}

func (s *pwStage) IsAuthPage(ctx context.Context) (bool, error) {
	result, err := s.page.page.Evaluate(authPageJS)
	if err != nil {
		return false, fmt.Errorf("checking for auth page: %w", err)
	}
	auth, _ := result.(bool)
	return auth, nil
}

func (s *pwStage) ScrollY(ctx context.Context) (float64, error) {
	result, err := s.page.page.Evaluate(scrollYJS)
	if err != nil {
		return 0, fmt.Errorf("reading scroll position: %w", err)
	}
	return toFloat(result), nil
}

func (s *pwStage) RunScrollPlan(ctx context.Context, plan []motion.ScrollSegment) error {
	if len(plan) == 0 {
		return nil
	}
	serialized := make([]map[string]interface{}, 0, len(plan))
	for _, seg := range plan {
		serialized = append(serialized, map[string]interface{}{
			"durationMs":   seg.DurationMs,
			"amplitudePx":  seg.AmplitudePx,
			"envelope":     string(seg.Envelope),
			"pauseAfterMs": seg.PauseAfterMs,
		})
	}
	if _, err := s.page.page.Evaluate(motion.ScrollRunnerJS(), serialized); err != nil {
		return fmt.Errorf("running scroll plan: %w", err)
	}
	return nil
}

func (s *pwStage) ScrollIntoView(ctx context.Context, docY, topMargin float64) error {
	args := map[string]interface{}{
		"targetY":    docY - topMargin,
		"durationMs": 700,
	}
	if _, err := s.page.page.Evaluate(scrollToDocYJS, args); err != nil {
		return fmt.Errorf("scrolling into view: %w", err)
	}
	return nil
}
