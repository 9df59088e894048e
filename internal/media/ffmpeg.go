package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Compile-time check that FFmpeg implements Processor.
var _ Processor = (*FFmpeg)(nil)

// stderrTailBytes bounds the stderr excerpt carried in errors.
const stderrTailBytes = 2048

// FFmpeg implements Processor using the ffmpeg and ffprobe CLIs.
type FFmpeg struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg processor.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// probeOutput mirrors the ffprobe JSON we consume.
type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Channels     int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns width, height, average frame rate, duration, and audio
// channel count for a media file.
func (p *FFmpeg) Probe(ctx context.Context, path string) (ProbeResult, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ProbeResult{}, fmt.Errorf("media: probe cancelled: %w", ctx.Err())
		}
		return ProbeResult{}, fmt.Errorf("%w: %w, stderr: %s", ErrProbeFailed, err, tail(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: parse output: %w", ErrProbeFailed, err)
	}

	result := ProbeResult{}
	haveVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if !haveVideo {
				result.Width = s.Width
				result.Height = s.Height
				result.FPS = parseFrameRate(s.AvgFrameRate)
				haveVideo = true
			}
		case "audio":
			result.AudioChannels += s.Channels
		}
	}
	if !haveVideo {
		return ProbeResult{}, fmt.Errorf("%w: no video stream in %s", ErrProbeFailed, path)
	}

	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("%w: parse duration %q: %w", ErrProbeFailed, out.Format.Duration, err)
		}
		result.DurationSec = d
	}

	return result, nil
}

// NormalizeScene converts a raw recording into an exact-parameter MP4:
// skip the leader, force frame count = DurationSec*FPS, scale and pad to the
// target box, square pixels, yuv420p, video-only, single fast pass.
func (p *FFmpeg) NormalizeScene(ctx context.Context, input, output string, opts NormalizeOpts) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, opts.Width, opts.Height)
	}
	if opts.DurationSec <= 0 || opts.FPS <= 0 {
		return fmt.Errorf("%w: duration=%ds fps=%d", ErrInvalidDuration, opts.DurationSec, opts.FPS)
	}

	frames := opts.DurationSec * opts.FPS
	// tpad extends short recordings indefinitely; -frames:v caps the output
	// at the exact count either way.
	filter := fmt.Sprintf(
		"fps=%d,scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,setsar=1,%s",
		opts.FPS, opts.Width, opts.Height, opts.Width, opts.Height, endPadFilter(opts.EndPad),
	)

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", opts.LeaderSkipSec),
		"-i", input,
		"-vf", filter,
		"-frames:v", strconv.Itoa(frames),
		"-pix_fmt", "yuv420p",
		"-an", // scenes are video-only; audio comes from the facecam
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "23",
		output,
	}

	return p.runFFmpeg(ctx, args)
}

// Concat joins normalized MP4s with the concat demuxer and stream copy.
// Inputs must share codec, dimensions, and frame rate.
func (p *FFmpeg) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	if len(inputs) == 1 {
		return copyFile(inputs[0], output)
	}

	listFile, err := p.createConcatList(inputs)
	if err != nil {
		return fmt.Errorf("media: create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
	}
	return p.runFFmpeg(ctx, args)
}

// OverlayFacecam scales the facecam to pip.Width and composites it over the
// background at pip.Margin from the configured corner. The facecam's audio
// is carried into the output; the normalized background has none.
func (p *FFmpeg) OverlayFacecam(ctx context.Context, background, facecam, output string, pip PIPOpts) error {
	if pip.Width <= 0 {
		return fmt.Errorf("%w: pip width=%d", ErrInvalidDimensions, pip.Width)
	}

	x, y := overlayPosition(pip.Corner, pip.Margin)
	filter := fmt.Sprintf(
		"[1:v]scale=%d:-2[pip];[0:v][pip]overlay=%s:%s:shortest=1[v]",
		pip.Width, x, y,
	)

	args := []string{
		"-y",
		"-i", background,
		"-i", facecam,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "1:a?",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "128k",
		"-pix_fmt", "yuv420p",
		output,
	}
	return p.runFFmpeg(ctx, args)
}

// Thumbnail extracts one frame at t=3s, scaled and padded to 1280x720,
// as a high-quality JPEG.
func (p *FFmpeg) Thumbnail(ctx context.Context, input, output string) error {
	args := []string{
		"-y",
		"-ss", "3",
		"-i", input,
		"-frames:v", "1",
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2:black",
		"-q:v", "2",
		output,
	}
	return p.runFFmpeg(ctx, args)
}

// endPadFilter returns the tpad filter for an end-pad mode. Unknown or empty
// modes fall back to freezing the last frame.
func endPadFilter(mode string) string {
	if mode == "black" {
		return "tpad=stop_mode=add:stop=-1:color=black"
	}
	return "tpad=stop_mode=clone:stop=-1"
}

// overlayPosition returns the overlay x/y expressions for a corner and margin.
func overlayPosition(corner string, margin int) (string, string) {
	m := strconv.Itoa(margin)
	switch corner {
	case "top-left":
		return m, m
	case "top-right":
		return fmt.Sprintf("main_w-overlay_w-%s", m), m
	case "bottom-left":
		return m, fmt.Sprintf("main_h-overlay_h-%s", m)
	default: // bottom-right
		return fmt.Sprintf("main_w-overlay_w-%s", m), fmt.Sprintf("main_h-overlay_h-%s", m)
	}
}

// createConcatList writes the concat demuxer input list to a temp file.
func (p *FFmpeg) createConcatList(inputs []string) (string, error) {
	f, err := os.CreateTemp("", "ffmpeg-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range inputs {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		// Escape single quotes in path
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapedPath); err != nil {
			return "", fmt.Errorf("write to concat list: %w", err)
		}
	}

	return f.Name(), nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	input, err := os.ReadFile(src) // #nosec G304 - src is provided by trusted internal code
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}
	if err := os.WriteFile(dst, input, 0600); err != nil {
		return fmt.Errorf("write destination file: %w", err)
	}
	return nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing the stderr tail if the command fails.
func (p *FFmpeg) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("media: ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: tail(stderr.String()),
			Err:    err,
		}
	}

	return nil
}

// tail returns the last stderrTailBytes of s.
func tail(s string) string {
	if len(s) <= stderrTailBytes {
		return s
	}
	return s[len(s)-stderrTailBytes:]
}

// FFmpegError represents an error from running ffmpeg, including the stderr tail.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("media: ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// parseFrameRate converts an ffprobe rational like "60/1" to a float.
func parseFrameRate(r string) float64 {
	parts := strings.SplitN(r, "/", 2)
	if len(parts) == 2 {
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && den != 0 {
			return num / den
		}
		return 0
	}
	f, err := strconv.ParseFloat(r, 64)
	if err != nil {
		return 0
	}
	return f
}
