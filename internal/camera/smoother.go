package camera

import "math"

// Smoother constraint defaults.
const (
	baseDeadZoneRadius   = 0.08 // fraction of frame width at zoom=1
	maxPanSpeed          = 0.6  // fraction of frame width per second
	maxPanAcceleration   = 1.2
	maxZoomSpeed         = 0.5 // crop-width change, fraction of frame width per second
	maxZoomAcceleration  = 1.0
	relaxationFactor     = 1.6 // applied to the above limits right after a cut
	relaxationWindowSecs = 1.0
	emaTimeConstant      = 0.35 // tau, seconds
)

// Keyframe is the smoothed camera path output (spec glossary: camera keyframe).
type Keyframe struct {
	Time   float64
	CX, CY float64
	Width, Height float64
}

// Smoother produces a smoothed camera path from raw focus points via an EMA
// with a zoom-aware dead-zone and velocity/acceleration/zoom-speed limits,
// relaxed for a short window after a scene cut.
type Smoother struct {
	frameW, frameH float64
	have           bool
	anchor         Keyframe
	velocity       struct{ x, y, zoom float64 }
	lastSceneCut   float64
	hasCut         bool
}

func NewSmoother(frameW, frameH float64) *Smoother {
	return &Smoother{frameW: frameW, frameH: frameH}
}

func (s *Smoother) NotifySceneCut(t float64) {
	s.lastSceneCut = t
	s.hasCut = true
}

func (s *Smoother) relaxation(t float64) float64 {
	if s.hasCut && t-s.lastSceneCut <= relaxationWindowSecs {
		return relaxationFactor
	}
	return 1.0
}

// zoomOf returns an effective zoom factor from a box's size relative to the
// frame: smaller boxes (more zoomed in) yield a larger zoom value.
func (s *Smoother) zoomOf(w, h float64) float64 {
	fw := w / s.frameW
	fh := h / s.frameH
	avg := (fw + fh) / 2
	if avg <= 0 {
		return 1
	}
	return 1 / avg
}

// Step advances the smoothed path by one focus sample at real inter-sample
// dt (never a fixed fps), returning the next smoothed keyframe.
func (s *Smoother) Step(dt float64, fp FocusPoint) Keyframe {
	if !s.have {
		s.anchor = Keyframe{Time: fp.Time, CX: fp.CX, CY: fp.CY, Width: fp.Width, Height: fp.Height}
		s.have = true
		return s.anchor
	}
	if dt <= 0 {
		dt = 1.0 / 30
	}

	relax := s.relaxation(fp.Time)
	zoom := s.zoomOf(s.anchor.Width, s.anchor.Height)
	deadZone := (baseDeadZoneRadius / zoom) * s.frameW

	dx := fp.CX - s.anchor.CX
	dy := fp.CY - s.anchor.CY
	dist := math.Hypot(dx, dy)

	targetCX, targetCY := s.anchor.CX, s.anchor.CY
	if dist > deadZone {
		alpha := 1 - math.Exp(-dt/emaTimeConstant)
		targetCX = s.anchor.CX + alpha*dx
		targetCY = s.anchor.CY + alpha*dy
	}

	newCX := s.clampAxisMotion(&s.velocity.x, s.anchor.CX, targetCX, dt, maxPanSpeed*s.frameW*relax, maxPanAcceleration*s.frameW*relax)
	newCY := s.clampAxisMotion(&s.velocity.y, s.anchor.CY, targetCY, dt, maxPanSpeed*s.frameH*relax, maxPanAcceleration*s.frameH*relax)

	alphaSize := 1 - math.Exp(-dt/emaTimeConstant)
	targetW := s.anchor.Width + alphaSize*(fp.Width-s.anchor.Width)
	newW := s.clampAxisMotion(&s.velocity.zoom, s.anchor.Width, targetW, dt, maxZoomSpeed*s.frameW*relax, maxZoomAcceleration*s.frameW*relax)
	// Keep height proportional to width's change so aspect stays controlled
	// by the crop planner, not drifted by independent axis clamps.
	scaleRatio := 1.0
	if s.anchor.Width > 0 {
		scaleRatio = newW / s.anchor.Width
	}
	newH := s.anchor.Height * scaleRatio

	s.anchor = Keyframe{Time: fp.Time, CX: newCX, CY: newCY, Width: newW, Height: newH}
	return s.anchor
}

// clampAxisMotion moves `current` toward `target` subject to velocity and
// acceleration limits, updating *velocity in place.
func (s *Smoother) clampAxisMotion(velocity *float64, current, target, dt, maxSpeed, maxAccel float64) float64 {
	desiredVelocity := (target - current) / dt
	maxDeltaV := maxAccel * dt
	dv := desiredVelocity - *velocity
	if dv > maxDeltaV {
		dv = maxDeltaV
	} else if dv < -maxDeltaV {
		dv = -maxDeltaV
	}
	newVelocity := *velocity + dv
	if newVelocity > maxSpeed {
		newVelocity = maxSpeed
	} else if newVelocity < -maxSpeed {
		newVelocity = -maxSpeed
	}
	*velocity = newVelocity
	return current + newVelocity*dt
}
