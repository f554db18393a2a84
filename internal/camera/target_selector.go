package camera

import "github.com/vclip/vclip/internal/detect"

// Dwell timing constants recovered from the original speaker-aware selector
//.
const (
	switchMargin       = 0.15 // challenger must exceed primary's score by this fraction
	dwellSeconds       = 1.5
	reacquisitionDwell = 0.4 // shorter dwell immediately after a scene cut
	maxDropoutHold     = 1.0
)

// activity combines size, confidence, smoothed mouth-openness, stability,
// and geometric centering into one temporal score per track.
type activity struct {
	trackID    uint32
	score      float64
	face       detect.TrackedFace
}

// TrackActivity is one track's per-frame speaker-activity inputs.
type TrackActivity struct {
	Face          detect.TrackedFace
	MouthOpenness float64
	Age           int // frames the track has existed, proxy for stability
	Jitter        float64 // recent positional jitter, lower is more stable
	FrameW, FrameH float64
}

func scoreActivity(a TrackActivity) float64 {
	size := a.Face.W * a.Face.H
	stability := float64(a.Age) / (float64(a.Age) + 1 + a.Jitter)
	cx, cy := a.Face.X+a.Face.W/2, a.Face.Y+a.Face.H/2
	dx, dy := (cx-a.FrameW/2)/a.FrameW, (cy-a.FrameH/2)/a.FrameH
	centering := 1 - (dx*dx+dy*dy)

	return size*a.Face.Confidence*0.4 + a.MouthOpenness*0.3 + stability*0.2 + centering*0.1
}

// TargetSelector holds the speaker-aware primary-subject state across frames.
type TargetSelector struct {
	primaryID     uint32
	hasPrimary    bool
	lastSwitch    float64
	lastSceneCut  float64
	lastSeenFocus FocusPoint
	hasLastSeen   bool
}

func NewTargetSelector() *TargetSelector { return &TargetSelector{} }

// NotifySceneCut records a cut time so the next switch uses the shorter
// reacquisition dwell.
func (s *TargetSelector) NotifySceneCut(t float64) {
	s.lastSceneCut = t
	s.hasPrimary = false
}

// Select returns the focus point for time t given this frame's track
// activity inputs. The primary track is held until a challenger's score
// exceeds it by switchMargin and the dwell timer has elapsed.
func (s *TargetSelector) Select(t float64, activities []TrackActivity) (FocusPoint, bool) {
	if len(activities) == 0 {
		if s.hasLastSeen && withinDropoutHold(s.lastSeenFocus.Time, t, maxDropoutHold) {
			fp := s.lastSeenFocus
			fp.Time = t
			return fp, true
		}
		return FocusPoint{}, false
	}

	scored := make([]activity, len(activities))
	for i, a := range activities {
		scored[i] = activity{trackID: a.Face.TrackID, score: scoreActivity(a), face: a.Face}
	}

	best := scored[0]
	for _, a := range scored[1:] {
		if a.score > best.score {
			best = a
		}
	}

	dwell := dwellSeconds
	if t-s.lastSceneCut < 2.0 {
		dwell = reacquisitionDwell
	}

	if !s.hasPrimary {
		s.primaryID = best.trackID
		s.hasPrimary = true
		s.lastSwitch = t
	} else if best.trackID != s.primaryID {
		var primaryScore float64
		for _, a := range scored {
			if a.trackID == s.primaryID {
				primaryScore = a.score
			}
		}
		if best.score > primaryScore*(1+switchMargin) && t-s.lastSwitch >= dwell {
			s.primaryID = best.trackID
			s.lastSwitch = t
		}
	}

	var chosen activity
	found := false
	for _, a := range scored {
		if a.trackID == s.primaryID {
			chosen = a
			found = true
			break
		}
	}
	if !found {
		chosen = best
		s.primaryID = best.trackID
	}

	fp := pad(t, chosen.face)
	s.lastSeenFocus = fp
	s.hasLastSeen = true
	return fp, true
}
