package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFFmpegDefaults(t *testing.T) {
	p := NewFFmpeg("", "")
	assert.Equal(t, "ffmpeg", p.ffmpegPath)
	assert.Equal(t, "ffprobe", p.ffprobePath)

	p = NewFFmpeg("/opt/ffmpeg", "/opt/ffprobe")
	assert.Equal(t, "/opt/ffmpeg", p.ffmpegPath)
	assert.Equal(t, "/opt/ffprobe", p.ffprobePath)
}

func TestNormalizeSceneValidation(t *testing.T) {
	p := NewFFmpeg("", "")
	ctx := context.Background()

	err := p.NormalizeScene(ctx, "in.webm", "out.mp4", NormalizeOpts{Width: 0, Height: 1080, FPS: 60, DurationSec: 10})
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	err = p.NormalizeScene(ctx, "in.webm", "out.mp4", NormalizeOpts{Width: 1920, Height: 1080, FPS: 60, DurationSec: 0})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	err = p.NormalizeScene(ctx, "in.webm", "out.mp4", NormalizeOpts{Width: 1920, Height: 1080, FPS: 0, DurationSec: 10})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestOverlayFacecamValidation(t *testing.T) {
	p := NewFFmpeg("", "")
	err := p.OverlayFacecam(context.Background(), "bg.mp4", "fc.mp4", "out.mp4", PIPOpts{Width: 0})
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestConcatRejectsEmptyInputs(t *testing.T) {
	p := NewFFmpeg("", "")
	err := p.Concat(context.Background(), nil, "out.mp4")
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestConcatSingleInputCopies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scene.mp4")
	dst := filepath.Join(dir, "combined.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video-bytes"), 0o644))

	p := NewFFmpeg("", "")
	require.NoError(t, p.Concat(context.Background(), []string{src}, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("video-bytes"), got)
}

func TestCreateConcatList(t *testing.T) {
	p := NewFFmpeg("", "")
	list, err := p.createConcatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	require.NoError(t, err)
	defer func() { _ = os.Remove(list) }()

	raw, err := os.ReadFile(list)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "file '/tmp/a.mp4'\n")
	// Single quotes must be escaped for the concat demuxer.
	assert.Contains(t, content, `it'\''s.mp4`)
}

func TestEndPadFilter(t *testing.T) {
	assert.Equal(t, "tpad=stop_mode=clone:stop=-1", endPadFilter("freeze"))
	assert.Equal(t, "tpad=stop_mode=clone:stop=-1", endPadFilter(""))
	assert.Equal(t, "tpad=stop_mode=add:stop=-1:color=black", endPadFilter("black"))
}

func TestOverlayPosition(t *testing.T) {
	tests := []struct {
		corner string
		wantX  string
		wantY  string
	}{
		{"top-left", "24", "24"},
		{"top-right", "main_w-overlay_w-24", "24"},
		{"bottom-left", "24", "main_h-overlay_h-24"},
		{"bottom-right", "main_w-overlay_w-24", "main_h-overlay_h-24"},
		{"", "main_w-overlay_w-24", "main_h-overlay_h-24"},
	}
	for _, tc := range tests {
		x, y := overlayPosition(tc.corner, 24)
		assert.Equal(t, tc.wantX, x, "corner %q", tc.corner)
		assert.Equal(t, tc.wantY, y, "corner %q", tc.corner)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"60/1", 60},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
		{"", 0},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, parseFrameRate(tc.in), 1e-9, "input %q", tc.in)
	}
}

func TestTail(t *testing.T) {
	short := "short stderr"
	assert.Equal(t, short, tail(short))

	long := strings.Repeat("x", stderrTailBytes+100)
	got := tail(long)
	assert.Len(t, got, stderrTailBytes)
}

func TestFFmpegErrorUnwraps(t *testing.T) {
	inner := os.ErrNotExist
	err := &FFmpegError{Args: []string{"-i", "in"}, Stderr: "boom", Err: inner}
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "boom")
}
