package styles

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/camera"
	"github.com/vclip/vclip/internal/detect"
	"github.com/vclip/vclip/internal/render"
	"github.com/vclip/vclip/internal/types"
)

// aspectParts parses a "9:16"-shaped AspectRatio into numerator/denominator.
func aspectParts(a types.AspectRatio) (int, int) {
	switch a {
	case types.AspectRatioDefault, "":
		return 9, 16
	default:
		return 9, 16 // only one target aspect is supported today; widening this is a future style
	}
}

// FrameSource supplies sampled frames for a raw segment, the input the
// detection engine needs.
type FrameSource interface {
	SampleFrames(ctx context.Context, rawSegmentPath string) ([]detect.Frame, float64 /* sourceFPS */, image.Rectangle, error)
}

// StreamerProcessor renders the fixed single-subject-free "streamer" style:
// a static centered crop with no detection dependency. Grounded directly in
// the static-crop renderer.
type StreamerProcessor struct {
	runner *render.Runner
}

func NewStreamerProcessor(runner *render.Runner) *StreamerProcessor { return &StreamerProcessor{runner: runner} }

func (p *StreamerProcessor) Name() string { return "streamer" }
func (p *StreamerProcessor) CanHandle(s types.Style) bool {
	return s == types.StyleStreamer
}
func (p *StreamerProcessor) Validate(req Request, _ Context) error {
	if req.RawSegmentPath == "" {
		return fmt.Errorf("streamer: raw segment path required")
	}
	return nil
}
func (p *StreamerProcessor) EstimateComplexity(Request) int { return 1 }

func (p *StreamerProcessor) Process(ctx context.Context, req Request, _ Context) (Result, error) {
	// Centered static crop expressed in the input's own dimensions (the same
	// crop TopScenesGraph applies), so no ffprobe pass is needed.
	targetW, targetH := 1080, 1920
	graph := render.WithAudio(fmt.Sprintf("[0:v]crop=ih*%d/%d:ih:(iw-ih*%d/%d)/2:0,scale=%d:%d,setsar=1[vout]",
		targetW, targetH, targetW, targetH, targetW, targetH))

	out := outputPath(req)
	if err := p.runner.Encode(ctx, req.RawSegmentPath, graph,
		[]string{"-map", "[vout]", "-map", "[aout]", "-c:v", "libx264", "-c:a", "aac"}, out); err != nil {
		return Result{}, fmt.Errorf("streamer: encode: %w", err)
	}
	return Result{LocalPath: out}, nil
}

// SplitProcessor renders the two-panel split style using a naive symmetric
// left/right crop when no detection signal is requested (plain "split").
type SplitProcessor struct {
	runner *render.Runner
}

func NewSplitProcessor(runner *render.Runner) *SplitProcessor { return &SplitProcessor{runner: runner} }

func (p *SplitProcessor) Name() string { return "split" }
func (p *SplitProcessor) CanHandle(s types.Style) bool {
	return s == types.StyleSplit || s == types.StyleStreamerSplit
}
func (p *SplitProcessor) Validate(req Request, _ Context) error {
	if req.RawSegmentPath == "" {
		return fmt.Errorf("split: raw segment path required")
	}
	return nil
}
func (p *SplitProcessor) EstimateComplexity(Request) int { return 2 }

func (p *SplitProcessor) Process(ctx context.Context, req Request, _ Context) (Result, error) {
	panelW, panelH := 1080, 960
	left := camera.CropWindow{X: 0, Y: 0, W: 960, H: 1080}
	right := camera.CropWindow{X: 960, Y: 0, W: 960, H: 1080}
	graph := render.WithAudio(render.Split(left, right, panelW, panelH))

	out := outputPath(req)
	if err := p.runner.Encode(ctx, req.RawSegmentPath, graph,
		[]string{"-map", "[vout]", "-map", "[aout]", "-c:v", "libx264", "-c:a", "aac"}, out); err != nil {
		return Result{}, fmt.Errorf("split: encode: %w", err)
	}
	return Result{LocalPath: out}, nil
}

// IntelligentProcessor drives the detection engine + camera planner for the
// single-subject intelligent crop, its split variant, and the
// speaker-following cinematic variants. All four styles are rendered as one
// full-frame crop path; no two-panel layout is built for the split variants.
type IntelligentProcessor struct {
	frames  FrameSource
	engine  *detect.Engine
	runner  *render.Runner
}

func NewIntelligentProcessor(frames FrameSource, engine *detect.Engine, runner *render.Runner) *IntelligentProcessor {
	return &IntelligentProcessor{frames: frames, engine: engine, runner: runner}
}

func (p *IntelligentProcessor) Name() string { return "intelligent" }
func (p *IntelligentProcessor) CanHandle(s types.Style) bool {
	switch s {
	case types.StyleIntelligent, types.StyleIntelligentSplit, types.StyleIntelligentSpeaker, types.StyleIntelligentSplitSpeaker:
		return true
	default:
		return false
	}
}
func (p *IntelligentProcessor) Validate(req Request, _ Context) error {
	if req.RawSegmentPath == "" {
		return fmt.Errorf("intelligent: raw segment path required")
	}
	return nil
}
func (p *IntelligentProcessor) EstimateComplexity(req Request) int {
	if req.Style == types.StyleIntelligentSpeaker || req.Style == types.StyleIntelligentSplitSpeaker {
		return 5
	}
	return 3
}

// encodeArgs is the output mapping/codec args shared by every encode
// invocation this processor issues.
var encodeArgs = []string{"-map", "[vout]", "-map", "[aout]", "-c:v", "libx264", "-c:a", "aac"}

func (p *IntelligentProcessor) Process(ctx context.Context, req Request, _ Context) (Result, error) {
	frames, fps, bounds, err := p.frames.SampleFrames(ctx, req.RawSegmentPath)
	if err != nil {
		return Result{}, fmt.Errorf("intelligent: sample frames: %w", err)
	}
	perFrame, err := p.engine.RunScene(frames)
	if err != nil {
		return Result{}, fmt.Errorf("intelligent: detection: %w", err)
	}

	frameW, frameH := float64(bounds.Dx()), float64(bounds.Dy())
	dt := 1.0 / fps
	tier := camera.TierForStyle(req.Style)

	var focusPoints []camera.FocusPoint
	switch tier {
	case types.TierSpeakerAware, types.TierCinematic:
		focusPoints = selectSpeakerAwarePath(perFrame, dt, frameW, frameH)
	case types.TierMotionAware:
		focusPoints = selectMotionAwarePath(frames, perFrame, dt, frameW, frameH)
	default:
		focusPoints = selectBasicPath(perFrame, dt, frameW, frameH)
	}

	smoother := camera.NewSmoother(frameW, frameH)
	path := make([]camera.Keyframe, 0, len(focusPoints))
	for _, fp := range focusPoints {
		path = append(path, smoother.Step(dt, fp))
	}
	if len(path) == 0 {
		return Result{}, fmt.Errorf("intelligent: no frames produced a camera path")
	}

	aspectW, aspectH := aspectParts(req.TargetAspect)
	targetW, targetH := 1080, 1920

	var segments []render.Segment
	for _, kf := range path {
		cw, err := camera.PlanCrop(kf, bounds.Dx(), bounds.Dy(), aspectW, aspectH)
		if err != nil {
			return Result{}, fmt.Errorf("intelligent: plan crop: %w", err)
		}
		segments = appendCropSegment(segments, kf.Time, cw)
	}
	segments[len(segments)-1].End = path[len(path)-1].Time + dt

	out := outputPath(req)
	if err := p.renderPath(ctx, req, segments, targetW, targetH, out); err != nil {
		return Result{}, err
	}
	return Result{LocalPath: out}, nil
}

// selectBasicPath runs the Basic-tier focus strategy: largest area*confidence
// detection per frame, padded.
func selectBasicPath(perFrame [][]detect.TrackedFace, dt, frameW, frameH float64) []camera.FocusPoint {
	fps := make([]camera.FocusPoint, 0, len(perFrame))
	for i, faces := range perFrame {
		t := float64(i) * dt
		fps = append(fps, camera.SelectBasic(t, faces, camera.UpperCenterFallback(t, frameW, frameH)))
	}
	return fps
}

// trackMemory is the per-track local state (age, last position) the
// detection engine doesn't carry itself, needed to derive the speaker-aware
// selector's stability and jitter inputs.
type trackMemory struct {
	age            int
	lastCX, lastCY float64
}

// selectSpeakerAwarePath drives camera.TargetSelector's dwell-hysteresis
// primary-subject selection across the whole scene. No mouth-openness model
// is wired into the detection engine, so that term of the activity score is
// always zero; size, stability, and centering still discriminate.
func selectSpeakerAwarePath(perFrame [][]detect.TrackedFace, dt, frameW, frameH float64) []camera.FocusPoint {
	selector := camera.NewTargetSelector()
	memory := make(map[uint32]*trackMemory)
	fps := make([]camera.FocusPoint, 0, len(perFrame))

	for i, faces := range perFrame {
		t := float64(i) * dt
		activities := make([]camera.TrackActivity, 0, len(faces))
		seen := make(map[uint32]bool, len(faces))
		for _, f := range faces {
			cx, cy := f.X+f.W/2, f.Y+f.H/2
			mem, ok := memory[f.TrackID]
			var jitter float64
			if !ok {
				mem = &trackMemory{}
				memory[f.TrackID] = mem
			} else {
				jitter = math.Hypot(cx-mem.lastCX, cy-mem.lastCY)
			}
			mem.age++
			mem.lastCX, mem.lastCY = cx, cy
			seen[f.TrackID] = true
			activities = append(activities, camera.TrackActivity{
				Face: f, Age: mem.age, Jitter: jitter, FrameW: frameW, FrameH: frameH,
			})
		}
		for id := range memory {
			if !seen[id] {
				delete(memory, id)
			}
		}

		if fp, ok := selector.Select(t, activities); ok {
			fps = append(fps, fp)
		} else {
			fps = append(fps, camera.UpperCenterFallback(t, frameW, frameH))
		}
	}
	return fps
}

// motionGridSize is the side length of the coarse grid the motion-aware
// fallback scores, matching the scene-cut detector's 8x8 luma block.
const motionGridSize = 8

// selectMotionAwarePath falls back to frame-to-frame luma change when a
// frame has no usable face detections, reusing the same 8x8 luma block the
// scene-cut detector already computes per frame.
func selectMotionAwarePath(frames []detect.Frame, perFrame [][]detect.TrackedFace, dt, frameW, frameH float64) []camera.FocusPoint {
	fps := make([]camera.FocusPoint, 0, len(perFrame))
	for i, faces := range perFrame {
		t := float64(i) * dt
		fallback := camera.UpperCenterFallback(t, frameW, frameH)
		if len(faces) > 0 {
			fps = append(fps, camera.SelectBasic(t, faces, fallback))
			continue
		}
		var regions []camera.MotionRegion
		if i > 0 {
			prev := frames[i-1].LumaBlock
			cur := frames[i].LumaBlock
			cellW, cellH := frameW/motionGridSize, frameH/motionGridSize
			for cellY := 0; cellY < motionGridSize; cellY++ {
				for cellX := 0; cellX < motionGridSize; cellX++ {
					idx := cellY*motionGridSize + cellX
					regions = append(regions, camera.MotionRegion{
						CX:          (float64(cellX) + 0.5) * cellW,
						CY:          (float64(cellY) + 0.5) * cellH,
						W:           cellW,
						H:           cellH,
						ChangeScore: math.Abs(cur[idx] - prev[idx]),
					})
				}
			}
		}
		fps = append(fps, camera.SelectMotionAware(t, regions, fallback))
	}
	return fps
}

// appendCropSegment grows segs with kf's crop window, merging into the
// previous segment when the crop window hasn't changed so the sendcmd
// script only updates the filter at real segment boundaries.
func appendCropSegment(segs []render.Segment, t float64, cw camera.CropWindow) []render.Segment {
	if n := len(segs); n > 0 {
		if segs[n-1].Crop == cw {
			return segs
		}
		segs[n-1].End = t
	}
	return append(segs, render.Segment{Start: t, End: t, Crop: cw})
}

// renderPath encodes the full camera path: a single static crop when the
// path never changes window, otherwise a sendcmd-driven dynamic crop, with
// a per-segment-render-then-concat fallback when this ffmpeg build doesn't
// support sendcmd.
func (p *IntelligentProcessor) renderPath(ctx context.Context, req Request, segments []render.Segment, targetW, targetH int, out string) error {
	if len(segments) == 1 {
		graph := render.WithAudio(render.StaticCrop(segments[0].Crop, targetW, targetH))
		if err := p.runner.Encode(ctx, req.RawSegmentPath, graph, encodeArgs, out); err != nil {
			return fmt.Errorf("intelligent: encode: %w", err)
		}
		return nil
	}

	scriptPath := filepath.Join(os.TempDir(), "vclip", req.UID, req.VideoID, fmt.Sprintf("%d_%s_sendcmd.txt", req.SceneID, req.Style))
	if err := os.MkdirAll(filepath.Dir(scriptPath), 0o755); err != nil {
		return fmt.Errorf("intelligent: mkdir sendcmd dir: %w", err)
	}
	if err := os.WriteFile(scriptPath, []byte(render.WriteSendcmdScript(segments)), 0o644); err != nil {
		return fmt.Errorf("intelligent: write sendcmd script: %w", err)
	}

	graph := render.WithAudio(render.DynamicCropSendcmd(scriptPath, targetW, targetH))
	err := p.runner.Encode(ctx, req.RawSegmentPath, graph, encodeArgs, out)
	if err == nil {
		return nil
	}

	var encErr *render.EncodeError
	if !errors.As(err, &encErr) || !render.SendcmdUnsupported(encErr.Stderr) {
		return fmt.Errorf("intelligent: encode: %w", err)
	}

	log.Warn().Str("video_id", req.VideoID).Uint32("scene_id", req.SceneID).
		Msg("sendcmd unsupported by this ffmpeg build, falling back to per-segment render and concat")
	return p.renderPerSegmentConcat(ctx, req, segments, targetW, targetH, out)
}

// renderPerSegmentConcat is the sendcmd-unavailable fallback: each segment
// is stream-copy extracted, cropped with its own static-crop encode, then
// all segments are joined by one concat-filter encode.
func (p *IntelligentProcessor) renderPerSegmentConcat(ctx context.Context, req Request, segments []render.Segment, targetW, targetH int, out string) error {
	segDir := filepath.Join(os.TempDir(), "vclip", req.UID, req.VideoID, fmt.Sprintf("%d_%s_segments", req.SceneID, req.Style))
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return fmt.Errorf("intelligent: mkdir segment dir: %w", err)
	}

	renderedPaths := make([]string, 0, len(segments))
	for i, seg := range segments {
		dur := seg.End - seg.Start
		if dur <= 0 {
			dur = 1.0 / 30
		}
		rawSeg := filepath.Join(segDir, fmt.Sprintf("raw_%03d.mp4", i))
		if err := p.runner.ExtractStreamCopy(ctx, req.RawSegmentPath, seg.Start, dur, rawSeg); err != nil {
			return fmt.Errorf("intelligent: extract fallback segment %d: %w", i, err)
		}
		croppedSeg := filepath.Join(segDir, fmt.Sprintf("cropped_%03d.mp4", i))
		graph := render.WithAudio(render.StaticCrop(seg.Crop, targetW, targetH))
		if err := p.runner.Encode(ctx, rawSeg, graph, encodeArgs, croppedSeg); err != nil {
			return fmt.Errorf("intelligent: encode fallback segment %d: %w", i, err)
		}
		renderedPaths = append(renderedPaths, croppedSeg)
	}

	concatGraph := render.PerSegmentConcatGraph(len(renderedPaths))
	if err := p.runner.EncodeMulti(ctx, renderedPaths, concatGraph, encodeArgs, out); err != nil {
		return fmt.Errorf("intelligent: concat fallback segments: %w", err)
	}
	return nil
}

func outputPath(req Request) string {
	return filepath.Join(os.TempDir(), "vclip", req.UID, req.VideoID, fmt.Sprintf("%d_%s.mp4", req.SceneID, req.Style))
}
