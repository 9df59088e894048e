package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/framepilot/render-worker/internal/motion"
)

// FakeDriver is an in-memory driver for tests. Each closed page writes a
// small placeholder file so downstream file checks pass.
type FakeDriver struct {
	mu sync.Mutex

	// NavigateErr, when set, fails every navigation.
	NavigateErr error
	// EmptyRecordings makes Close return ErrEmptyRecording.
	EmptyRecordings bool
	// AuthPages marks every page as a login page.
	AuthPages bool

	sessions int
	pages    int
	visited  []string
	clicked  []string
}

var _ Driver = (*FakeDriver)(nil)

// Sessions returns how many sessions were acquired.
func (d *FakeDriver) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

// Pages returns how many pages were opened across all sessions.
func (d *FakeDriver) Pages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages
}

// Visited returns every navigated URL in order.
func (d *FakeDriver) Visited() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.visited...)
}

// Clicked returns every ClickText argument in order.
func (d *FakeDriver) Clicked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicked...)
}

func (d *FakeDriver) AcquireSession(ctx context.Context, width, height int, baseDir string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.sessions++
	d.mu.Unlock()
	return &fakeSession{driver: d, baseDir: baseDir, width: width, height: height}, nil
}

func (d *FakeDriver) Close() error { return nil }

type fakeSession struct {
	driver  *FakeDriver
	baseDir string
	width   int
	height  int
}

func (s *fakeSession) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.driver.mu.Lock()
	s.driver.pages++
	n := s.driver.pages
	s.driver.mu.Unlock()
	return &fakePage{session: s, seq: n}, nil
}

func (s *fakeSession) Release(ctx context.Context) error { return nil }

type fakePage struct {
	session *fakeSession
	seq     int
}

func (p *fakePage) Navigate(ctx context.Context, url string, maxWait time.Duration) error {
	d := p.session.driver
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.mu.Lock()
	d.visited = append(d.visited, NormalizeURL(url))
	d.mu.Unlock()
	return nil
}

func (p *fakePage) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) {}

func (p *fakePage) ShowMask(ctx context.Context) error   { return nil }
func (p *fakePage) HideMask(ctx context.Context) error   { return nil }
func (p *fakePage) RemoveMask(ctx context.Context) error { return nil }

func (p *fakePage) WaitReady(ctx context.Context) error { return ctx.Err() }

func (p *fakePage) Stage() motion.Stage {
	return &fakeStage{page: p}
}

func (p *fakePage) ClickText(ctx context.Context, text string) error {
	d := p.session.driver
	d.mu.Lock()
	d.clicked = append(d.clicked, text)
	d.mu.Unlock()
	return nil
}

func (p *fakePage) ScrollBy(ctx context.Context, px int) error { return nil }

func (p *fakePage) HighlightText(ctx context.Context, text string) error { return nil }

func (p *fakePage) Close(ctx context.Context) (string, error) {
	if p.session.driver.EmptyRecordings {
		return "", ErrEmptyRecording
	}
	if err := os.MkdirAll(p.session.baseDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.session.baseDir, fmt.Sprintf("page-%d.webm", p.seq))
	if err := os.WriteFile(path, []byte("webm"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// fakeStage gives the motion engine a minimal but populated page.
type fakeStage struct {
	page *fakePage
}

func (s *fakeStage) Viewport() (int, int) {
	return s.page.session.width, s.page.session.height
}

func (s *fakeStage) MoveCursor(ctx context.Context, x, y float64) error { return ctx.Err() }
func (s *fakeStage) CursorDown(ctx context.Context) error               { return ctx.Err() }
func (s *fakeStage) CursorUp(ctx context.Context) error                 { return ctx.Err() }

func (s *fakeStage) NavAnchors(ctx context.Context) ([]motion.Anchor, error) {
	return []motion.Anchor{{
		Rect:       motion.Rect{X: 400, Y: 20, W: 80, H: 24},
		Text:       "Pricing",
		Href:       "/pricing",
		SameOrigin: true,
	}}, nil
}

func (s *fakeStage) CTAAnchors(ctx context.Context) ([]motion.Anchor, error) {
	return []motion.Anchor{{
		Rect:       motion.Rect{X: 500, Y: 420, W: 140, H: 44},
		Text:       "Learn more",
		Href:       "/about",
		SameOrigin: true,
	}}, nil
}

func (s *fakeStage) Headings(ctx context.Context) ([]motion.Heading, error) {
	return []motion.Heading{{
		Rect: motion.Rect{X: 120, Y: 300, W: 400, H: 40},
		Text: "Why it matters",
		DocY: 300,
	}}, nil
}

func (s *fakeStage) Paragraphs(ctx context.Context) ([]motion.Paragraph, error) {
	return []motion.Paragraph{{
		Rect:      motion.Rect{X: 120, Y: 360, W: 500, H: 60},
		WordCount: 18,
	}}, nil
}

func (s *fakeStage) IsAuthPage(ctx context.Context) (bool, error) {
	return s.page.session.driver.AuthPages, nil
}

func (s *fakeStage) ScrollY(ctx context.Context) (float64, error) { return 0, nil }

func (s *fakeStage) RunScrollPlan(ctx context.Context, plan []motion.ScrollSegment) error {
	return ctx.Err()
}

func (s *fakeStage) ScrollIntoView(ctx context.Context, docY, topMargin float64) error {
	return ctx.Err()
}
