package media

import (
	"context"
	"fmt"
	"image"
	"os"

	// Registers the JPEG decoder with image.Decode.
	_ "image/jpeg"

	"github.com/vclip/vclip/internal/detect"
	"github.com/vclip/vclip/internal/render"
)

// samplingFPS matches the detection engine's keyframe-interval assumption:
// dense enough to hand the tracker a usable luma signal, sparse enough to
// keep a scene's decode pass cheap.
const samplingFPS = 5.0

// FrameSampler dumps a raw segment's frames via ffmpeg and decodes them,
// satisfying styles.FrameSource.
type FrameSampler struct {
	runner *render.Runner
}

func NewFrameSampler(runner *render.Runner) *FrameSampler {
	return &FrameSampler{runner: runner}
}

func (f *FrameSampler) SampleFrames(ctx context.Context, rawSegmentPath string) ([]detect.Frame, float64, image.Rectangle, error) {
	dir, err := os.MkdirTemp("", "vclip-frames-*")
	if err != nil {
		return nil, 0, image.Rectangle{}, fmt.Errorf("framesource: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	paths, err := f.runner.SampleFrames(ctx, rawSegmentPath, samplingFPS, dir)
	if err != nil {
		return nil, 0, image.Rectangle{}, fmt.Errorf("framesource: sample frames: %w", err)
	}

	frames := make([]detect.Frame, 0, len(paths))
	var bounds image.Rectangle
	for _, p := range paths {
		img, err := decodeImage(p)
		if err != nil {
			return nil, 0, image.Rectangle{}, fmt.Errorf("framesource: decode %s: %w", p, err)
		}
		bounds = img.Bounds()
		frames = append(frames, detect.Frame{
			Image:     img,
			LumaBlock: lumaBlock(img),
		})
	}
	return frames, samplingFPS, bounds, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// lumaBlock downsamples img into an 8x8 grid of average luma, the signal
// the scene-cut detector compares frame-to-frame.
func lumaBlock(img image.Image) [64]float64 {
	var block [64]float64
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return block
	}
	const grid = 8
	cellW, cellH := w/grid, h/grid
	if cellW == 0 {
		cellW = 1
	}
	if cellH == 0 {
		cellH = 1
	}
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			var sum float64
			var n int
			x0 := b.Min.X + gx*cellW
			y0 := b.Min.Y + gy*cellH
			x1, y1 := x0+cellW, y0+cellH
			for y := y0; y < y1 && y < b.Max.Y; y++ {
				for x := x0; x < x1 && x < b.Max.X; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
					n++
				}
			}
			if n > 0 {
				block[gy*grid+gx] = sum / float64(n)
			}
		}
	}
	return block
}
