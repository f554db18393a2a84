// Package camera implements focus selection, smoothing, and crop planning
//: translating per-frame detections into a smoothed camera path
// and then into concrete FFmpeg crop rectangles.
package camera

import (
	"github.com/vclip/vclip/internal/detect"
	"github.com/vclip/vclip/internal/types"
)

// FocusPoint is the per-frame attention center before smoothing.
type FocusPoint struct {
	Time       float64
	CX, CY     float64
	Width, Height float64
}

// padFraction pads the chosen detection's box before treating it as a focus region.
const padFraction = 0.25

// SelectBasic picks the detection with the largest area*confidence and pads it.
func SelectBasic(t float64, faces []detect.TrackedFace, fallback FocusPoint) FocusPoint {
	if len(faces) == 0 {
		fallback.Time = t
		return fallback
	}
	best := faces[0]
	bestScore := best.W * best.H * best.Confidence
	for _, f := range faces[1:] {
		score := f.W * f.H * f.Confidence
		if score > bestScore {
			best = f
			bestScore = score
		}
	}
	return pad(t, best)
}

func pad(t float64, f detect.TrackedFace) FocusPoint {
	return FocusPoint{
		Time:   t,
		CX:     f.X + f.W/2,
		CY:     f.Y + f.H/2,
		Width:  f.W * (1 + padFraction),
		Height: f.H * (1 + padFraction),
	}
}

// MotionRegion is a frame-to-frame change heuristic region, used as a
// fallback when no faces are usable.
type MotionRegion struct {
	CX, CY, W, H float64
	ChangeScore  float64
}

// SelectMotionAware falls back to the highest-change region when there are
// no usable face detections.
func SelectMotionAware(t float64, regions []MotionRegion, fallback FocusPoint) FocusPoint {
	if len(regions) == 0 {
		fallback.Time = t
		return fallback
	}
	best := regions[0]
	for _, r := range regions[1:] {
		if r.ChangeScore > best.ChangeScore {
			best = r
		}
	}
	return FocusPoint{Time: t, CX: best.CX, CY: best.CY, Width: best.W * (1 + padFraction), Height: best.H * (1 + padFraction)}
}

// UpperCenterFallback is the TikTok-style talking-head default used when
// dropout tolerance is exceeded.
func UpperCenterFallback(t float64, rawW, rawH float64) FocusPoint {
	return FocusPoint{
		Time:   t,
		CX:     rawW / 2,
		CY:     rawH * 0.35,
		Width:  rawW * 0.5,
		Height: rawH * 0.5,
	}
}

// TierForStyle maps a rendering style to the detection tier its focus
// selector requires: the detection tier a plan gates access to.
func TierForStyle(s types.Style) types.DetectionTier {
	switch s {
	case types.StyleIntelligentSpeaker, types.StyleIntelligentSplitSpeaker:
		return types.TierCinematic
	case types.StyleIntelligent, types.StyleIntelligentSplit:
		return types.TierSpeakerAware
	default:
		return types.TierNone
	}
}

// withinDropoutHold reports whether the last focus, seen at lastSeen, may
// still be held at now, i.e. at most maxDropoutHold seconds have passed;
// past that the caller degrades to UpperCenterFallback.
func withinDropoutHold(lastSeen, now, maxDropoutHold float64) bool {
	return now-lastSeen <= maxDropoutHold
}
