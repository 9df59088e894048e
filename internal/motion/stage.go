package motion

import "context"

// Rect is an element's viewport-relative bounding box.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Center returns the rect's center point.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Anchor is a link or button candidate for hovering.
type Anchor struct {
	Rect
	Text       string
	AriaLabel  string
	Title      string
	Href       string
	SameOrigin bool
}

// Heading is an h1-h3 element.
type Heading struct {
	Rect
	Text string
	// DocY is the heading's absolute document Y, for scroll targeting.
	DocY float64
}

// Paragraph is a visible text block candidate for the highlight beat.
type Paragraph struct {
	Rect
	WordCount int
}

// Stage is the surface the motion engine drives. The browser driver
// implements it over a live page; tests implement it in memory. All element
// queries are viewport-relative at call time.
type Stage interface {
	// Viewport returns the page's viewport dimensions.
	Viewport() (width, height int)

	// MoveCursor moves the cursor to an absolute viewport position.
	MoveCursor(ctx context.Context, x, y float64) error

	// CursorDown presses and CursorUp releases the primary button, used by
	// the text-highlight drag.
	CursorDown(ctx context.Context) error
	CursorUp(ctx context.Context) error

	// NavAnchors returns header/nav link candidates.
	NavAnchors(ctx context.Context) ([]Anchor, error)

	// CTAAnchors returns button and CTA-like anchor candidates.
	CTAAnchors(ctx context.Context) ([]Anchor, error)

	// Headings returns visible h1-h3 elements.
	Headings(ctx context.Context) ([]Heading, error)

	// Paragraphs returns visible <p> candidates with word counts.
	Paragraphs(ctx context.Context) ([]Paragraph, error)

	// IsAuthPage reports whether the page looks like a login/password form.
	IsAuthPage(ctx context.Context) (bool, error)

	// ScrollY returns the current window.scrollY.
	ScrollY(ctx context.Context) (float64, error)

	// RunScrollPlan serializes the plan into the page and waits for its
	// completion. The easing frame loop runs inside the page so the motion
	// is captured by the recording.
	RunScrollPlan(ctx context.Context, plan []ScrollSegment) error

	// ScrollIntoView scrolls the given document Y to topMargin pixels from
	// the viewport top with an eased burst.
	ScrollIntoView(ctx context.Context, docY, topMargin float64) error
}
