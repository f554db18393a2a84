package detect

import (
	"image"

	"golang.org/x/image/draw"
)

// CanvasSize is a target inference canvas. Defaults: 640x640 for generic
// faces, 960x540 for YouTube-style wide content.
type CanvasSize struct{ W, H int }

var (
	CanvasGenericFace = CanvasSize{W: 640, H: 640}
	CanvasYouTube     = CanvasSize{W: 960, H: 540}
)

// Mapping records the scale and padding offsets used to letterbox a frame,
// so detections in canvas coordinates can be inverse-projected back to
// raw-frame pixels.
type Mapping struct {
	Scale      float64
	OffsetX    float64
	OffsetY    float64
	RawW, RawH int
}

// Letterbox resizes src to fit within canvas while preserving aspect ratio,
// padding the remainder, and returns the resulting image plus the mapping
// needed to invert detection coordinates.
func Letterbox(src image.Image, canvas CanvasSize) (image.Image, Mapping) {
	b := src.Bounds()
	rawW, rawH := b.Dx(), b.Dy()

	scale := minFloat(float64(canvas.W)/float64(rawW), float64(canvas.H)/float64(rawH))
	scaledW := int(float64(rawW) * scale)
	scaledH := int(float64(rawH) * scale)
	offsetX := float64(canvas.W-scaledW) / 2
	offsetY := float64(canvas.H-scaledH) / 2

	dst := image.NewRGBA(image.Rect(0, 0, canvas.W, canvas.H))
	destRect := image.Rect(int(offsetX), int(offsetY), int(offsetX)+scaledW, int(offsetY)+scaledH)
	draw.CatmullRom.Scale(dst, destRect, src, b, draw.Over, nil)

	return dst, Mapping{Scale: scale, OffsetX: offsetX, OffsetY: offsetY, RawW: rawW, RawH: rawH}
}

// ToRaw inverse-projects a canvas-space detection box into raw-frame pixels.
func (m Mapping) ToRaw(d Detection) Detection {
	return Detection{
		X:          (d.X - m.OffsetX) / m.Scale,
		Y:          (d.Y - m.OffsetY) / m.Scale,
		W:          d.W / m.Scale,
		H:          d.H / m.Scale,
		Confidence: d.Confidence,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
