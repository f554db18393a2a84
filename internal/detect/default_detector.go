package detect

import "image"

// CenterWeightedDetector is the default-tier fallback: it assumes the
// frame's dominant subject is centered, the same assumption the static-crop
// style already makes, so a canvas with no hardware-accelerated or generic
// DNN backend available still produces a stable, trackable box instead of
// an empty detection set. Real backends wire their own FrameDetector
// against the hardware or DNN inference process and are not implemented
// here; that inference runtime is an external collaborator, the same
// boundary as ffmpeg/yt-dlp.
type CenterWeightedDetector struct {
	// WidthFraction and HeightFraction size the assumed subject box
	// relative to the canvas.
	WidthFraction, HeightFraction float64
}

func NewCenterWeightedDetector() *CenterWeightedDetector {
	return &CenterWeightedDetector{WidthFraction: 0.4, HeightFraction: 0.6}
}

func (d *CenterWeightedDetector) Detect(canvasFrame image.Image) ([]Detection, error) {
	b := canvasFrame.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	boxW := w * d.WidthFraction
	boxH := h * d.HeightFraction
	return []Detection{{
		X:          (w - boxW) / 2,
		Y:          (h - boxH) / 2,
		W:          boxW,
		H:          boxH,
		Confidence: 0.5,
	}}, nil
}
