package detect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_ConfirmsAfterMinHits(t *testing.T) {
	tr := NewTracker()
	det := Detection{X: 100, Y: 100, W: 50, H: 50, Confidence: 0.9}

	faces := tr.UpdateKeyframe([]Detection{det})
	require.Empty(t, faces, "expected no confirmed tracks after 1 hit")
	faces = tr.UpdateKeyframe([]Detection{det})
	require.Empty(t, faces, "expected no confirmed tracks after 2 hits")
	faces = tr.UpdateKeyframe([]Detection{det})
	require.Len(t, faces, 1, "expected exactly 1 confirmed track after min_hits=3")
}

func TestTracker_MatchesByIoU(t *testing.T) {
	tr := NewTracker()
	d := Detection{X: 100, Y: 100, W: 50, H: 50, Confidence: 0.9}
	for i := 0; i < minHits; i++ {
		tr.UpdateKeyframe([]Detection{d})
	}
	require.Equal(t, 1, tr.ActiveTrackCount())

	// Slightly shifted detection should match the same track, not spawn a new one.
	shifted := Detection{X: 105, Y: 102, W: 50, H: 50, Confidence: 0.9}
	faces := tr.UpdateKeyframe([]Detection{shifted})
	require.Len(t, faces, 1, "expected the shifted detection to match the existing track")
	require.Equal(t, 1, tr.ActiveTrackCount())
}

func TestTracker_SpawnsNewTrackForUnmatchedDetection(t *testing.T) {
	tr := NewTracker()
	a := Detection{X: 0, Y: 0, W: 20, H: 20, Confidence: 0.9}
	b := Detection{X: 500, Y: 500, W: 20, H: 20, Confidence: 0.9}

	for i := 0; i < minHits; i++ {
		tr.UpdateKeyframe([]Detection{a})
	}
	tr.UpdateKeyframe([]Detection{a, b})
	require.Equal(t, 2, tr.ActiveTrackCount(), "expected a new track spawned for the unmatched detection")
}

func TestTracker_DeletesAfterMaxAge(t *testing.T) {
	tr := NewTracker()
	d := Detection{X: 0, Y: 0, W: 20, H: 20, Confidence: 0.9}
	for i := 0; i < minHits; i++ {
		tr.UpdateKeyframe([]Detection{d})
	}
	for i := 0; i < maxAge+1; i++ {
		tr.PredictGapFrame()
	}
	require.Zero(t, tr.ActiveTrackCount(), "expected track deleted after max_age=%d frames without update", maxAge)
}

func TestTracker_ConfidenceDecaysOnGapFrames(t *testing.T) {
	tr := NewTracker()
	d := Detection{X: 0, Y: 0, W: 20, H: 20, Confidence: 1.0}
	for i := 0; i < minHits; i++ {
		tr.UpdateKeyframe([]Detection{d})
	}
	faces := tr.PredictGapFrame()
	require.Len(t, faces, 1)
	require.Less(t, faces[0].Confidence, 1.0, "expected confidence to decay below 1.0 after a gap frame")
}

func TestTracker_HardResetClearsAllTracksOnSceneCut(t *testing.T) {
	tr := NewTracker()
	d := Detection{X: 0, Y: 0, W: 20, H: 20, Confidence: 0.9}
	for i := 0; i < minHits; i++ {
		tr.UpdateKeyframe([]Detection{d})
	}
	require.NotZero(t, tr.ActiveTrackCount(), "expected at least one track before reset")
	tr.Reset()
	require.Zero(t, tr.ActiveTrackCount(), "expected 0 tracks after Reset")
}

func TestTracker_TrackIDsDoNotCrossSceneBoundary(t *testing.T) {
	// Scene 1.
	tr1 := NewTracker()
	d := Detection{X: 0, Y: 0, W: 20, H: 20, Confidence: 0.9}
	var scene1IDs []uint32
	for i := 0; i < minHits; i++ {
		faces := tr1.UpdateKeyframe([]Detection{d})
		for _, f := range faces {
			scene1IDs = append(scene1IDs, f.TrackID)
		}
	}

	// Scene cut: hard reset of the same Tracker, as Engine.RunScene does.
	tr1.Reset()
	var scene2IDs []uint32
	for i := 0; i < minHits; i++ {
		faces := tr1.UpdateKeyframe([]Detection{d})
		for _, f := range faces {
			scene2IDs = append(scene2IDs, f.TrackID)
		}
	}

	seen := make(map[uint32]bool)
	for _, id := range scene1IDs {
		seen[id] = true
	}
	for _, id := range scene2IDs {
		require.False(t, seen[id], "track id %d leaked across scene boundary", id)
	}
}

func TestIoU(t *testing.T) {
	cases := []struct {
		name                       string
		ax, ay, aw, ah             float64
		bx, by, bw, bh             float64
		wantAbove, wantBelowThresh bool
	}{
		{"identical boxes", 0, 0, 10, 10, 0, 0, 10, 10, true, false},
		{"disjoint boxes", 0, 0, 10, 10, 100, 100, 10, 10, false, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := iou(c.ax, c.ay, c.aw, c.ah, c.bx, c.by, c.bw, c.bh)
			if c.wantAbove {
				require.GreaterOrEqual(t, got, iouThreshold)
			}
			if c.wantBelowThresh {
				require.Less(t, got, iouThreshold)
			}
		})
	}
}
