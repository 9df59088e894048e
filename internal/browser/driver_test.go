package browser

import (
	"context"
	"image"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framepilot/render-worker/internal/motion"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com"},
		{"example.com/path?a=1", "https://example.com/path?a=1"},
		{"https://example.com", "https://example.com"},
		{"http://example.com", "http://example.com"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeURL(tc.in), "input %q", tc.in)
	}
}

func TestDecodeAnchors(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{
			"x": float64(10), "y": float64(20), "w": float64(100), "h": float64(30),
			"text": "Pricing", "aria": "pricing link", "title": "See pricing",
			"href": "/pricing", "sameOrigin": true,
		},
		// Malformed entries are skipped, not fatal.
		"not a map",
		map[string]interface{}{
			"x": 5, "y": 6, "w": 7, "h": 8,
			"text": "Blog", "href": "https://other.com/blog", "sameOrigin": false,
		},
	}

	anchors := decodeAnchors(raw)
	require.Len(t, anchors, 2)

	assert.Equal(t, motion.Rect{X: 10, Y: 20, W: 100, H: 30}, anchors[0].Rect)
	assert.Equal(t, "Pricing", anchors[0].Text)
	assert.Equal(t, "pricing link", anchors[0].AriaLabel)
	assert.Equal(t, "See pricing", anchors[0].Title)
	assert.Equal(t, "/pricing", anchors[0].Href)
	assert.True(t, anchors[0].SameOrigin)

	assert.Equal(t, motion.Rect{X: 5, Y: 6, W: 7, H: 8}, anchors[1].Rect)
	assert.False(t, anchors[1].SameOrigin)
}

func TestDecodeAnchorsNonList(t *testing.T) {
	assert.Nil(t, decodeAnchors(nil))
	assert.Nil(t, decodeAnchors("garbage"))
}

func fillFrame(r, g, b uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, sampleWidth, sampleHeight))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 255
	}
	return img
}

func TestMeanLuma(t *testing.T) {
	assert.InDelta(t, 1.0, meanLuma(fillFrame(255, 255, 255)), 0.01)
	assert.InDelta(t, 0.0, meanLuma(fillFrame(0, 0, 0)), 0.01)
	assert.InDelta(t, 0.5, meanLuma(fillFrame(128, 128, 128)), 0.01)

	// A white frame trips the blank detector; a grey one does not.
	assert.Greater(t, meanLuma(fillFrame(250, 250, 250)), blankLumaFloor)
	assert.Less(t, meanLuma(fillFrame(128, 128, 128)), blankLumaFloor)
}

func TestFrameDiffIdenticalFrames(t *testing.T) {
	a := fillFrame(100, 150, 200)
	b := fillFrame(100, 150, 200)
	assert.Zero(t, frameDiff(a, b))
}

func TestFrameDiffToleratesCompressionNoise(t *testing.T) {
	a := fillFrame(100, 100, 100)
	b := fillFrame(100+uint8(pixelTolerance), 100, 100)
	assert.Zero(t, frameDiff(a, b))

	c := fillFrame(100+uint8(pixelTolerance)+1, 100, 100)
	assert.Equal(t, 1.0, frameDiff(a, c))
}

func TestFrameDiffPartialChange(t *testing.T) {
	a := fillFrame(50, 50, 50)
	b := fillFrame(50, 50, 50)
	// Change one row of pixels well past the tolerance.
	for x := 0; x < sampleWidth; x++ {
		i := x * 4
		b.Pix[i] = 200
	}
	want := 1.0 / float64(sampleHeight)
	assert.InDelta(t, want, frameDiff(a, b), 1e-9)
}

func TestFakeDriverRecordsActivity(t *testing.T) {
	ctx := context.Background()
	d := &FakeDriver{}

	sess, err := d.AcquireSession(ctx, 1920, 1080, t.TempDir())
	require.NoError(t, err)

	page, err := sess.NewPage(ctx)
	require.NoError(t, err)

	require.NoError(t, page.Navigate(ctx, "example.com", DefaultNavigationTimeout))
	require.NoError(t, page.ClickText(ctx, "Pricing"))

	path, err := page.Close(ctx)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Equal(t, 1, d.Sessions())
	assert.Equal(t, 1, d.Pages())
	assert.Equal(t, []string{"https://example.com"}, d.Visited())
	assert.Equal(t, []string{"Pricing"}, d.Clicked())
}

func TestFakeDriverEmptyRecordings(t *testing.T) {
	ctx := context.Background()
	d := &FakeDriver{EmptyRecordings: true}

	sess, err := d.AcquireSession(ctx, 1280, 720, t.TempDir())
	require.NoError(t, err)
	page, err := sess.NewPage(ctx)
	require.NoError(t, err)

	_, err = page.Close(ctx)
	assert.ErrorIs(t, err, ErrEmptyRecording)
}
