// Package detect implements the face/object detection engine:
// letterbox preprocessing, temporal decimation with Kalman gap-frame
// prediction, scene-cut detection, and a per-scene arena of tracks. Track
// ids are unique within a single scene's arena and carry no meaning across
// scenes: never hold a pointer from a track into the next scene's tracker,
// always re-enter via the arena.
package detect

import "math"

// Tracker constants tuned for the centered-subject and two-shot framing
// this detector targets.
const (
	maxAge            = 30
	minHits           = 3
	iouThreshold      = 0.3
	confidenceDecay   = 0.95
	processNoisePos   = 1.0
	processNoiseVel   = 0.1
	measurementNoise  = 1.0
)

// Detection is one raw per-frame face/object box in raw-frame pixel coordinates.
type Detection struct {
	X, Y, W, H float64
	Confidence float64
}

// TrackedFace is the engine's public output: a detection with a persistent
// identity scoped to the current scene.
type TrackedFace struct {
	TrackID    uint32
	X, Y, W, H float64
	Confidence float64
}

// track is one Kalman-filtered object: state [cx, cy, w, h, vx, vy, vw, vh].
type track struct {
	id         uint32
	state      [8]float64
	covariance [8]float64 // diagonal covariance only, this tracker never needs off-diagonal terms
	hits       int
	age        int // frames since last successful update
	confirmed  bool
	confidence float64
}

func newTrack(id uint32, d Detection) *track {
	t := &track{id: id, hits: 1, confidence: d.Confidence}
	t.state = [8]float64{
		d.X + d.W/2, d.Y + d.H/2, d.W, d.H, 0, 0, 0, 0,
	}
	for i := range t.covariance {
		t.covariance[i] = measurementNoise
	}
	return t
}

func (t *track) bbox() (x, y, w, h float64) {
	cx, cy, w, h := t.state[0], t.state[1], t.state[2], t.state[3]
	return cx - w/2, cy - h/2, w, h
}

// predict advances the state one gap frame using constant velocity and
// decays confidence.
func (t *track) predict() {
	for i := 0; i < 4; i++ {
		t.state[i] += t.state[i+4]
		t.covariance[i] += processNoisePos
		t.covariance[i+4] += processNoiseVel
	}
	t.confidence *= confidenceDecay
	t.age++
}

// update corrects the state with a matched detection (simple alpha-filter
// correction over the diagonal covariance, sufficient for this tracker's
// low-dimensional state).
func (t *track) update(d Detection) {
	meas := [4]float64{d.X + d.W/2, d.Y + d.H/2, d.W, d.H}
	for i := 0; i < 4; i++ {
		gain := t.covariance[i] / (t.covariance[i] + measurementNoise)
		newPos := t.state[i] + gain*(meas[i]-t.state[i])
		t.state[i+4] = newPos - t.state[i] // velocity = delta since last keyframe position
		t.state[i] = newPos
		t.covariance[i] *= (1 - gain)
	}
	t.confidence = d.Confidence
	t.age = 0
	t.hits++
	if t.hits >= minHits {
		t.confirmed = true
	}
}

// Tracker is a per-scene Kalman tracker arena. Callers create a fresh
// Tracker per scene and call Reset at each detected cut within it; ids keep
// counting across a Reset, so no id from before a cut reappears after it.
type Tracker struct {
	tracks []*track
	nextID uint32
}

func NewTracker() *Tracker { return &Tracker{} }

// Reset clears all tracks on scene-cut: a hard reset, the next keyframe
// starts fresh with an empty arena.
func (tr *Tracker) Reset() {
	tr.tracks = nil
}

// PredictGapFrame advances every live track by one gap frame without new
// detections, returning predictions for confirmed tracks only.
func (tr *Tracker) PredictGapFrame() []TrackedFace {
	out := make([]TrackedFace, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		t.predict()
		if t.confirmed {
			x, y, w, h := t.bbox()
			out = append(out, TrackedFace{TrackID: t.id, X: x, Y: y, W: w, H: h, Confidence: t.confidence})
		}
	}
	tr.pruneAged()
	return out
}

// UpdateKeyframe associates detections to existing tracks by greedy
// descending IoU, updates matches, spawns tracks for unmatched detections,
// ages unmatched tracks, and returns confirmed tracks.
func (tr *Tracker) UpdateKeyframe(detections []Detection) []TrackedFace {
	matchedTrack := make(map[int]bool)
	matchedDet := make(map[int]bool)

	type candidate struct {
		ti, di int
		iou    float64
	}
	var candidates []candidate
	for ti, t := range tr.tracks {
		tx, ty, tw, th := t.bbox()
		for di, d := range detections {
			iou := iou(tx, ty, tw, th, d.X, d.Y, d.W, d.H)
			if iou >= iouThreshold {
				candidates = append(candidates, candidate{ti, di, iou})
			}
		}
	}
	// Greedy descending IoU assignment.
	for {
		best := -1
		bestIoU := -1.0
		for i, c := range candidates {
			if matchedTrack[c.ti] || matchedDet[c.di] {
				continue
			}
			if c.iou > bestIoU {
				bestIoU = c.iou
				best = i
			}
		}
		if best == -1 {
			break
		}
		c := candidates[best]
		matchedTrack[c.ti] = true
		matchedDet[c.di] = true
		tr.tracks[c.ti].update(detections[c.di])
	}

	for ti, t := range tr.tracks {
		if !matchedTrack[ti] {
			t.predict() // ages, decays confidence for unmatched existing tracks
		}
	}
	for di, d := range detections {
		if !matchedDet[di] {
			nt := newTrack(tr.nextID, d)
			tr.nextID++
			nt.age = 0
			tr.tracks = append(tr.tracks, nt)
		}
	}

	tr.pruneAged()

	out := make([]TrackedFace, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		if t.confirmed {
			x, y, w, h := t.bbox()
			out = append(out, TrackedFace{TrackID: t.id, X: x, Y: y, W: w, H: h, Confidence: t.confidence})
		}
	}
	return out
}

func (tr *Tracker) pruneAged() {
	kept := tr.tracks[:0]
	for _, t := range tr.tracks {
		if t.age <= maxAge {
			kept = append(kept, t)
		}
	}
	tr.tracks = kept
}

// ActiveTrackCount reports the number of live (not necessarily confirmed)
// tracks, used by the decimator's keyframe-forcing condition.
func (tr *Tracker) ActiveTrackCount() int { return len(tr.tracks) }

// MinConfidence reports the lowest confidence among confirmed tracks, or 1
// if there are none (so the decimator's threshold check never fires
// spuriously with zero tracks).
func (tr *Tracker) MinConfidence() float64 {
	min := 1.0
	for _, t := range tr.tracks {
		if t.confirmed && t.confidence < min {
			min = t.confidence
		}
	}
	return min
}

func iou(ax, ay, aw, ah, bx, by, bw, bh float64) float64 {
	ix1, iy1 := math.Max(ax, bx), math.Max(ay, by)
	ix2, iy2 := math.Min(ax+aw, bx+bw), math.Min(ay+ah, by+bh)
	iw, ih := math.Max(0, ix2-ix1), math.Max(0, iy2-iy1)
	inter := iw * ih
	union := aw*ah + bw*bh - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
