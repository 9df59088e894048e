package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/framepilot/render-worker/internal/motion"
)

// PlaywrightDriver drives Chromium through playwright, either a locally
// launched headless instance or a remote managed browser over CDP.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	mode    Mode
	log     *slog.Logger
}

// Compile-time interface checks.
var (
	_ Driver  = (*PlaywrightDriver)(nil)
	_ Session = (*pwSession)(nil)
	_ Page    = (*pwPage)(nil)
)

// NewPlaywrightDriver launches or connects a browser per cfg.
func NewPlaywrightDriver(cfg Config, logger *slog.Logger) (*PlaywrightDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	var browser playwright.Browser
	switch cfg.Mode {
	case ModeRemote:
		browser, err = pw.Chromium.ConnectOverCDP(cfg.RemoteURL)
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("connecting to remote browser: %w", err)
		}
		logger.Info("connected to remote browser", slog.String("url", cfg.RemoteURL))
	default:
		browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(true),
			Args: []string{
				"--disable-gpu",
				"--disable-dev-shm-usage",
				"--no-sandbox",
				"--hide-scrollbars",
			},
		})
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		logger.Info("launched local browser")
	}

	return &PlaywrightDriver{pw: pw, browser: browser, mode: cfg.Mode, log: logger}, nil
}

// AcquireSession opens one recording browser context at the target viewport.
func (d *PlaywrightDriver) AcquireSession(ctx context.Context, width, height int, baseDir string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating recording dir: %w", err)
	}

	bctx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: width, Height: height},
		RecordVideo: &playwright.RecordVideo{
			Dir:  baseDir,
			Size: &playwright.Size{Width: width, Height: height},
		},
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("opening browser context: %w", err)
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(maskInitJS)}); err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("installing navigation mask: %w", err)
	}

	return &pwSession{driver: d, bctx: bctx, width: width, height: height}, nil
}

// Close shuts the browser and the playwright runtime down.
func (d *PlaywrightDriver) Close() error {
	if err := d.browser.Close(); err != nil {
		_ = d.pw.Stop()
		return fmt.Errorf("closing browser: %w", err)
	}
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("stopping playwright: %w", err)
	}
	return nil
}

type pwSession struct {
	driver *PlaywrightDriver
	bctx   playwright.BrowserContext
	width  int
	height int
}

func (s *pwSession) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := s.bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	return &pwPage{sess: s, page: page, log: s.driver.log}, nil
}

func (s *pwSession) Release(ctx context.Context) error {
	if err := s.bctx.Close(); err != nil {
		return fmt.Errorf("closing browser context: %w", err)
	}
	return nil
}

type pwPage struct {
	sess *pwSession
	page playwright.Page
	log  *slog.Logger
}

// Navigate loads the URL, warms up embedded widgets, and waits for the
// viewport to settle at the session dimensions.
func (p *pwPage) Navigate(ctx context.Context, url string, maxWait time.Duration) error {
	if maxWait <= 0 {
		maxWait = DefaultNavigationTimeout
	}
	target := NormalizeURL(url)

	_, err := p.page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(maxWait.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s: %w", target, err)
	}

	p.warmupWidgets(ctx)

	if err := p.stabilizeViewport(ctx); err != nil {
		// Some remote compositors never settle exactly; proceed with
		// whatever surface the recording has.
		p.log.Warn("viewport did not stabilize", slog.String("url", target))
	}
	return nil
}

// warmupWidgets nudges lazily-initialized embeds: lifecycle activation over
// CDP, synthetic activity events, font readiness, and a fixed settle delay.
func (p *pwPage) warmupWidgets(ctx context.Context) {
	if cdp, err := p.sess.bctx.NewCDPSession(p.page); err == nil {
		if _, err := cdp.Send("Page.setWebLifecycleState", map[string]interface{}{"state": "active"}); err != nil {
			p.log.Debug("lifecycle activation failed", slog.String("error", err.Error()))
		}
	}

	if _, err := p.page.Evaluate(warmupEventsJS); err != nil {
		p.log.Debug("warmup events failed", slog.String("error", err.Error()))
	}
	if _, err := p.page.Evaluate(fontsAndFramesJS); err != nil {
		p.log.Debug("font readiness wait failed", slog.String("error", err.Error()))
	}

	select {
	case <-ctx.Done():
	case <-time.After(WidgetInitDelay):
	}
}

// stabilizeViewport polls the page dimensions until they hold the session
// size for ViewportStableFor, capped at ViewportStabilizeCap.
func (p *pwPage) stabilizeViewport(ctx context.Context) error {
	deadline := time.Now().Add(ViewportStabilizeCap)
	var stableSince time.Time

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		w, h, err := p.viewportSize()
		if err == nil && w == p.sess.width && h == p.sess.height {
			if stableSince.IsZero() {
				stableSince = time.Now()
			}
			if time.Since(stableSince) >= ViewportStableFor {
				return nil
			}
		} else {
			stableSince = time.Time{}
		}
		time.Sleep(ViewportPollInterval)
	}
	return ErrViewportUnstable
}

func (p *pwPage) viewportSize() (int, int, error) {
	result, err := p.page.Evaluate(viewportSizeJS)
	if err != nil {
		return 0, 0, err
	}
	m, ok := result.(map[string]interface{})
	if !ok {
		return 0, 0, fmt.Errorf("unexpected viewport result %T", result)
	}
	return int(toFloat(m["w"])), int(toFloat(m["h"])), nil
}

// WaitForNetworkIdle waits up to timeout for the network to quiet down.
// Long-polling pages never go idle, so a timeout is swallowed.
func (p *pwPage) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = NetworkIdleTimeout
	}
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		p.log.Debug("network never went idle", slog.String("error", err.Error()))
	}
}

func (p *pwPage) ShowMask(ctx context.Context) error {
	_, err := p.page.Evaluate(maskShowJS)
	return err
}

func (p *pwPage) HideMask(ctx context.Context) error {
	_, err := p.page.Evaluate(maskHideJS)
	return err
}

func (p *pwPage) RemoveMask(ctx context.Context) error {
	_, err := p.page.Evaluate(maskRemoveJS)
	return err
}

// WaitReady runs page-ready detection and returns nil even when the cap is
// reached; the recording proceeds with whatever the page shows.
func (p *pwPage) WaitReady(ctx context.Context) error {
	return waitVisuallyReady(ctx, p, p.log)
}

func (p *pwPage) Stage() motion.Stage {
	return &pwStage{page: p}
}

// ClickText clicks the first non-denied element containing text.
func (p *pwPage) ClickText(ctx context.Context, text string) error {
	result, err := p.page.Evaluate(findTextTargetsJS, text)
	if err != nil {
		return fmt.Errorf("finding click target %q: %w", text, err)
	}
	for _, a := range decodeAnchors(result) {
		if motion.DeniedTarget(a) {
			p.log.Info("skipping denied click target", slog.String("text", a.Text))
			continue
		}
		center := a.Center()
		if err := p.page.Mouse().Click(center.X, center.Y); err != nil {
			return fmt.Errorf("clicking %q: %w", text, err)
		}
		return nil
	}
	return fmt.Errorf("click target %q: %w", text, ErrNoClickTarget)
}

// ScrollBy scrolls the window by px with one eased in-page burst.
func (p *pwPage) ScrollBy(ctx context.Context, px int) error {
	plan := []map[string]interface{}{{
		"durationMs":   600,
		"amplitudePx":  px,
		"envelope":     "sin",
		"pauseAfterMs": 0,
	}}
	if _, err := p.page.Evaluate(motion.ScrollRunnerJS(), plan); err != nil {
		return fmt.Errorf("scrolling by %dpx: %w", px, err)
	}
	return nil
}

// HighlightText selects the first occurrence of text on the page.
func (p *pwPage) HighlightText(ctx context.Context, text string) error {
	result, err := p.page.Evaluate(highlightTextJS, text)
	if err != nil {
		return fmt.Errorf("highlighting %q: %w", text, err)
	}
	if found, ok := result.(bool); !ok || !found {
		return fmt.Errorf("highlight %q: %w", text, ErrNoClickTarget)
	}
	return nil
}

// Close flushes the recording and returns the video path.
func (p *pwPage) Close(ctx context.Context) (string, error) {
	video := p.page.Video()
	if err := p.page.Close(); err != nil {
		return "", fmt.Errorf("closing page: %w", err)
	}
	if video == nil {
		return "", ErrEmptyRecording
	}
	path, err := video.Path()
	if err != nil {
		return "", fmt.Errorf("resolving recording path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return "", ErrEmptyRecording
	}
	return path, nil
}

// decodeAnchors converts an anchorInfoJS/findTextTargetsJS result into
// motion anchors.
func decodeAnchors(result interface{}) []motion.Anchor {
	items, ok := result.([]interface{})
	if !ok {
		return nil
	}
	anchors := make([]motion.Anchor, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		anchors = append(anchors, motion.Anchor{
			Rect: motion.Rect{
				X: toFloat(m["x"]),
				Y: toFloat(m["y"]),
				W: toFloat(m["w"]),
				H: toFloat(m["h"]),
			},
			Text:       toString(m["text"]),
			AriaLabel:  toString(m["aria"]),
			Title:      toString(m["title"]),
			Href:       toString(m["href"]),
			SameOrigin: toBool(m["sameOrigin"]),
		})
	}
	return anchors
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
