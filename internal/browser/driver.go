// Package browser abstracts the headless-browser toolkit behind a driver
// port: one shared recording session per campaign, one page per scene, with
// navigation masking, widget warmup, and viewport stabilization.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/framepilot/render-worker/internal/motion"
)

// Static errors for browser operations.
var (
	// ErrEmptyRecording is returned when a closed page yields no video file.
	ErrEmptyRecording = errors.New("browser: recording is empty or missing")
	// ErrViewportUnstable is returned when the viewport never settles to the
	// target dimensions within the cap.
	ErrViewportUnstable = errors.New("browser: viewport did not stabilize")
	// ErrNoClickTarget is returned when no safe element matches the
	// requested text.
	ErrNoClickTarget = errors.New("browser: no safe matching element")
)

// Timing constants for navigation and warmup.
const (
	// DefaultNavigationTimeout bounds DOM-ready waits.
	DefaultNavigationTimeout = 15 * time.Second
	// NetworkIdleTimeout bounds the post-load network-idle wait.
	NetworkIdleTimeout = 5 * time.Second
	// WidgetInitDelay lets embedded widgets run their init scripts.
	WidgetInitDelay = 1500 * time.Millisecond
	// ViewportPollInterval is the stabilization polling cadence.
	ViewportPollInterval = 100 * time.Millisecond
	// ViewportStableFor is how long dimensions must hold before the
	// viewport counts as stable.
	ViewportStableFor = 1 * time.Second
	// ViewportStabilizeCap bounds the whole stabilization wait.
	ViewportStabilizeCap = 10 * time.Second
	// ReadinessCap bounds the visual-stability page-ready loop.
	ReadinessCap = 7 * time.Second
)

// Mode selects how the driver reaches a browser.
type Mode string

const (
	// ModeLocal launches a headless browser on this host.
	ModeLocal Mode = "local"
	// ModeRemote connects to a managed remote browser over CDP.
	ModeRemote Mode = "remote"
)

// Config configures the driver.
type Config struct {
	Mode Mode
	// RemoteURL is the CDP endpoint for ModeRemote.
	RemoteURL string
}

// Driver owns the browser process or remote connection.
type Driver interface {
	// AcquireSession opens one recording session for a whole campaign.
	// One session per campaign avoids the surface-resize glitches a remote
	// compositor produces when renegotiating per scene.
	AcquireSession(ctx context.Context, width, height int, baseDir string) (Session, error)

	// Close releases the underlying browser.
	Close() error
}

// Session is one browser context with video recording enabled. Pages are
// strictly serial; each page produces one video file.
type Session interface {
	// NewPage opens a page with the navigation mask pre-installed.
	NewPage(ctx context.Context) (Page, error)

	// Release closes the session and frees remote resources.
	Release(ctx context.Context) error
}

// Page is one recorded scene surface.
type Page interface {
	// Navigate normalizes the URL, waits for DOM-ready, applies widget
	// warmup, and waits for the viewport to stabilize.
	Navigate(ctx context.Context, url string, maxWait time.Duration) error

	// WaitForNetworkIdle waits for the network to go quiet, up to timeout.
	// A timeout is not an error; pages with long-polling never go idle.
	WaitForNetworkIdle(ctx context.Context, timeout time.Duration)

	// ShowMask and HideMask toggle the navigation mask's visibility;
	// RemoveMask deletes it once the page is stable.
	ShowMask(ctx context.Context) error
	HideMask(ctx context.Context) error
	RemoveMask(ctx context.Context) error

	// WaitReady runs the page-ready detection: first contentful paint,
	// font readiness, and the tolerant visual-stability loop. It returns
	// nil on the hard cap even if stability was never reached.
	WaitReady(ctx context.Context) error

	// Stage exposes the page to the motion engine.
	Stage() motion.Stage

	// ClickText clicks the first safe element containing text. Targets the
	// safe-click classifier denies are skipped and reported.
	ClickText(ctx context.Context, text string) error

	// ScrollBy scrolls the window by px with an eased burst.
	ScrollBy(ctx context.Context, px int) error

	// HighlightText selects the first occurrence of text on the page.
	HighlightText(ctx context.Context, text string) error

	// Close flushes the recording and returns the on-disk video path.
	Close(ctx context.Context) (string, error)
}

// NormalizeURL prefixes https:// when the URL has no scheme.
func NormalizeURL(url string) string {
	if url == "" || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}
