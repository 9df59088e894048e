package browser

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/image/draw"
)

// Visual-stability parameters. Frames are downscaled before comparison so
// animated cursors and tiny spinners do not hold readiness hostage.
const (
	sampleWidth  = 512
	sampleHeight = 288

	// framesRequired consecutive near-identical frames mean the page has
	// settled.
	framesRequired = 3
	// diffThreshold is the fraction of sampled pixels allowed to differ
	// between consecutive frames.
	diffThreshold = 0.01
	// pixelTolerance is the per-channel delta below which two pixels count
	// as identical, absorbing compression noise.
	pixelTolerance = 12
	// blankLumaFloor rejects frames that are still effectively white.
	blankLumaFloor = 0.95

	samplePeriod = 350 * time.Millisecond
)

// waitVisuallyReady blocks until the page is visually stable: a contentful
// paint exists, fonts are loaded, and three consecutive downscaled frames
// are near-identical and not blank. The cap is a soft limit; hitting it
// logs and returns nil so slow pages still get recorded.
func waitVisuallyReady(ctx context.Context, p *pwPage, log *slog.Logger) error {
	deadline := time.Now().Add(ReadinessCap)

	// Cheap gates first: FCP and font readiness.
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		painted, err := p.page.Evaluate(firstContentfulPaintJS)
		if err == nil {
			if ok, _ := painted.(bool); ok {
				break
			}
		}
		time.Sleep(ViewportPollInterval)
	}
	if _, err := p.page.Evaluate(fontsAndFramesJS); err != nil {
		log.Debug("font readiness check failed", slog.String("error", err.Error()))
	}

	var prev *image.NRGBA
	stable := 0
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := captureSample(p)
		if err != nil {
			log.Debug("readiness frame capture failed", slog.String("error", err.Error()))
			time.Sleep(samplePeriod)
			continue
		}

		if meanLuma(frame) > blankLumaFloor {
			// Still blank; reset the streak.
			prev, stable = nil, 0
			time.Sleep(samplePeriod)
			continue
		}

		if prev != nil && frameDiff(prev, frame) < diffThreshold {
			stable++
			if stable >= framesRequired-1 {
				return nil
			}
		} else {
			stable = 0
		}
		prev = frame
		time.Sleep(samplePeriod)
	}

	log.Debug("page never reached visual stability, proceeding")
	return nil
}

// captureSample screenshots the page and downscales it to the comparison
// resolution.
func captureSample(p *pwPage) (*image.NRGBA, error) {
	raw, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, err
	}
	src, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	dst := image.NewNRGBA(image.Rect(0, 0, sampleWidth, sampleHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// meanLuma returns the average relative luminance of a frame in [0, 1].
func meanLuma(img *image.NRGBA) float64 {
	var sum float64
	pixels := 0
	for y := 0; y < sampleHeight; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < sampleWidth; x++ {
			i := x * 4
			r, g, b := float64(row[i]), float64(row[i+1]), float64(row[i+2])
			sum += (0.2126*r + 0.7152*g + 0.0722*b) / 255
			pixels++
		}
	}
	if pixels == 0 {
		return 0
	}
	return sum / float64(pixels)
}

// frameDiff returns the fraction of pixels differing beyond the tolerance.
func frameDiff(a, b *image.NRGBA) float64 {
	changed := 0
	total := sampleWidth * sampleHeight
	for y := 0; y < sampleHeight; y++ {
		ra := a.Pix[y*a.Stride:]
		rb := b.Pix[y*b.Stride:]
		for x := 0; x < sampleWidth; x++ {
			i := x * 4
			if absDelta(ra[i], rb[i]) > pixelTolerance ||
				absDelta(ra[i+1], rb[i+1]) > pixelTolerance ||
				absDelta(ra[i+2], rb[i+2]) > pixelTolerance {
				changed++
			}
		}
	}
	return float64(changed) / float64(total)
}

func absDelta(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
