package detect

import (
	"fmt"
	"image"

	"github.com/rs/zerolog/log"
)

// Backend names the inference backend an engine was constructed with.
type Backend string

const (
	BackendHardwareAccelerated Backend = "hw_accelerated"
	BackendGenericDNN          Backend = "generic_dnn"
	BackendDefault             Backend = "default"
)

// BackendProbe reports whether a given backend is usable on this host.
type BackendProbe func() bool

// SelectBackend chooses the fastest available backend in preference order:
// hardware-accelerated, then generic DNN, then default. The choice is
// logged; there is no runtime switching afterward.
func SelectBackend(hwAvailable, dnnAvailable BackendProbe) Backend {
	var chosen Backend
	switch {
	case hwAvailable != nil && hwAvailable():
		chosen = BackendHardwareAccelerated
	case dnnAvailable != nil && dnnAvailable():
		chosen = BackendGenericDNN
	default:
		chosen = BackendDefault
	}
	log.Info().Str("backend", string(chosen)).Msg("detection engine backend selected")
	return chosen
}

// FrameDetector abstracts the concrete model inference call. One instance
// per selected Backend.
type FrameDetector interface {
	Detect(canvasFrame image.Image) ([]Detection, error)
}

// Engine runs the full detection pipeline over one scene's sampled frames
// and produces dense, gap-filled TrackedFace output in sampling order.
type Engine struct {
	backend  Backend
	detector FrameDetector
	canvas   CanvasSize
	interval int
}

func NewEngine(backend Backend, detector FrameDetector, canvas CanvasSize, keyframeInterval int) *Engine {
	return &Engine{backend: backend, detector: detector, canvas: canvas, interval: keyframeInterval}
}

// Frame is one sampled frame ready for the engine: its raw image and the
// detector-observable luma block used by the scene-cut detector.
type Frame struct {
	Image     image.Image
	LumaBlock [64]float64
}

// RunScene processes every frame of one scene from scratch with its own
// fresh Tracker, hard-resetting that Tracker at every detected cut.
func (e *Engine) RunScene(frames []Frame) ([][]TrackedFace, error) {
	tracker := NewTracker()
	cutDetector := NewSceneCutDetector()
	decimator := NewDecimator(e.interval)

	out := make([][]TrackedFace, 0, len(frames))
	for _, f := range frames {
		cut := cutDetector.Observe(f.LumaBlock)
		if cut {
			tracker.Reset()
		}

		if decimator.ShouldKeyframe(tracker, cut) {
			canvasImg, mapping := Letterbox(f.Image, e.canvas)
			dets, err := e.detector.Detect(canvasImg)
			if err != nil {
				return nil, fmt.Errorf("detect engine: backend %s: %w", e.backend, err)
			}
			raw := make([]Detection, len(dets))
			for i, d := range dets {
				raw[i] = mapping.ToRaw(d)
			}
			faces := tracker.UpdateKeyframe(raw)
			out = append(out, faces)
			decimator.Advance(true, tracker)
		} else {
			faces := tracker.PredictGapFrame()
			out = append(out, faces)
			decimator.Advance(false, tracker)
		}
	}
	return out, nil
}
