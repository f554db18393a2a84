package camera

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanCrop_AspectAndContainment(t *testing.T) {
	kf := Keyframe{Time: 0, CX: 960, CY: 540, Width: 400, Height: 400}
	cw, err := PlanCrop(kf, 1920, 1080, 9, 16)
	require.NoError(t, err)
	require.GreaterOrEqual(t, cw.X, 0)
	require.GreaterOrEqual(t, cw.Y, 0)
	require.LessOrEqual(t, cw.X+cw.W, 1920, "crop window exceeds source frame: %+v", cw)
	require.LessOrEqual(t, cw.Y+cw.H, 1080, "crop window exceeds source frame: %+v", cw)

	gotAspect := float64(cw.W) / float64(cw.H)
	wantAspect := 9.0 / 16.0
	require.InDelta(t, wantAspect, gotAspect, 0.01, "aspect mismatch (%+v)", cw)
}

func TestPlanCrop_FocusNearEdgeStaysInBounds(t *testing.T) {
	kf := Keyframe{Time: 0, CX: 10, CY: 10, Width: 100, Height: 100}
	cw, err := PlanCrop(kf, 1920, 1080, 9, 16)
	require.NoError(t, err)
	require.GreaterOrEqual(t, cw.X, 0)
	require.GreaterOrEqual(t, cw.Y, 0)
	require.LessOrEqual(t, cw.X+cw.W, 1920, "crop window escaped the source frame: %+v", cw)
	require.LessOrEqual(t, cw.Y+cw.H, 1080, "crop window escaped the source frame: %+v", cw)
}
