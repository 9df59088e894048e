// Package media provides thin, typed wrappers over the ffmpeg and ffprobe
// CLIs: probing, frame-exact scene normalization, stream-copy concatenation,
// facecam overlay, and thumbnail extraction.
package media

import (
	"context"
	"errors"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not positive.
	ErrInvalidDimensions = errors.New("media: width and height must be positive")
	// ErrNoInputs is returned when no input paths are provided for concatenation.
	ErrNoInputs = errors.New("media: no input paths provided")
	// ErrInvalidDuration is returned when a duration is not positive.
	ErrInvalidDuration = errors.New("media: duration must be positive")
	// ErrProbeFailed is returned when ffprobe fails or emits no video stream.
	ErrProbeFailed = errors.New("media: probe failed")
)

// ProbeResult describes a media file.
type ProbeResult struct {
	Width         int
	Height        int
	FPS           float64
	DurationSec   float64
	AudioChannels int
}

// NormalizeOpts controls scene normalization.
type NormalizeOpts struct {
	// LeaderSkipSec is the offset skipped from the start of the recording
	// (white-leader trim).
	LeaderSkipSec float64
	// DurationSec is the exact scene duration; the output carries exactly
	// DurationSec*FPS frames.
	DurationSec int
	FPS         int
	Width       int
	Height      int
	// EndPad selects how a recording shorter than DurationSec is padded to
	// the exact frame count: "freeze" repeats the last frame, "black" adds
	// black frames. Empty means freeze.
	EndPad string
}

// PIPOpts positions the facecam picture-in-picture.
type PIPOpts struct {
	Width  int
	Margin int
	Corner string // top-left | top-right | bottom-left | bottom-right
}

// Processor is the port for frame-accurate video operations.
type Processor interface {
	// Probe returns the dimensions, frame rate, duration, and audio channel
	// count of a media file.
	Probe(ctx context.Context, path string) (ProbeResult, error)

	// NormalizeScene trims the leading white offset, forces the exact frame
	// count, frame rate, dimensions, square pixels and a compatible pixel
	// format, and strips audio in a fast single pass.
	NormalizeScene(ctx context.Context, input, output string, opts NormalizeOpts) error

	// Concat joins same-parameter MP4s by stream copy, without re-encoding.
	Concat(ctx context.Context, inputs []string, output string) error

	// OverlayFacecam composites the facecam over the background in the
	// configured corner, carrying the facecam's audio, re-encoding once.
	OverlayFacecam(ctx context.Context, background, facecam, output string, pip PIPOpts) error

	// Thumbnail extracts one frame at t=3s as a 1280x720 high-quality JPEG.
	Thumbnail(ctx context.Context, input, output string) error
}
