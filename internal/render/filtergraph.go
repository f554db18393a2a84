// Package render builds FFmpeg filtergraphs per style and
// invokes FFmpeg as a single encode per clip; every transformation (crop,
// scale, pad, split-stack, overlay, sendcmd-driven dynamic crop) is
// composed into one -filter_complex graph before encoding; stream-copy is
// the rule everywhere else.
package render

import (
	"fmt"
	"strings"

	"github.com/vclip/vclip/internal/camera"
)

// audioResample is appended to every graph's audio branch to absorb
// timestamp discontinuities from stream-copied, concatenated segments.
const audioResample = "aresample=async=1:first_pts=0"

// StaticCrop builds a single crop=w:h:x:y,scale=W:H,setsar=1 graph for a
// fixed (non-time-varying) crop window.
func StaticCrop(cw camera.CropWindow, targetW, targetH int) string {
	return fmt.Sprintf("[0:v]crop=%d:%d:%d:%d,scale=%d:%d,setsar=1[vout]",
		cw.W, cw.H, cw.X, cw.Y, targetW, targetH)
}

// Segment is one grouped span of the dynamic-crop path: a crop window held
// constant from Start to End (exclusive of the next segment's Start).
type Segment struct {
	Start, End float64
	Crop       camera.CropWindow
}

// DynamicCropSendcmd builds a sendcmd-driven filtergraph that updates the
// named crop filter's parameters at each segment boundary, avoiding a
// re-encode per segment. Callers must have a sendcmd script file at
// scriptPath (see WriteSendcmdScript).
func DynamicCropSendcmd(scriptPath string, targetW, targetH int) string {
	return fmt.Sprintf("[0:v]sendcmd=f=%s,crop@dyn=iw:ih:0:0,scale=%d:%d,setsar=1[vout]",
		scriptPath, targetW, targetH)
}

// WriteSendcmdScript renders the sendcmd command script body for a sequence
// of segments, targeting a named crop filter instance "dyn".
func WriteSendcmdScript(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "%.3f crop@dyn w %d;\n", s.Start, s.Crop.W)
		fmt.Fprintf(&b, "%.3f crop@dyn h %d;\n", s.Start, s.Crop.H)
		fmt.Fprintf(&b, "%.3f crop@dyn x %d;\n", s.Start, s.Crop.X)
		fmt.Fprintf(&b, "%.3f crop@dyn y %d;\n", s.Start, s.Crop.Y)
	}
	return b.String()
}

// SendcmdUnsupported reports whether ffmpeg's stderr indicates the sendcmd
// path isn't available, the concrete trigger for falling back to
// per-segment-render-then-concat. Unsupported is a signal, not a failure.
func SendcmdUnsupported(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "sendcmd") || strings.Contains(lower, "unknown filter")
}

// PerSegmentConcatGraph builds the fallback's join step: a concat filter over
// every input's video and audio streams (caller encodes each segment's crop
// separately; the concatenated output is encoded once more).
func PerSegmentConcatGraph(segmentCount int) string {
	var ins strings.Builder
	for i := 0; i < segmentCount; i++ {
		fmt.Fprintf(&ins, "[%d:v] [%d:a] ", i, i)
	}
	return fmt.Sprintf("%sconcat=n=%d:v=1:a=1[vout][aout]", ins.String(), segmentCount)
}

// Split builds a two-panel split (left/right independently cropped) stacked
// vertically to the portrait target.
func Split(left, right camera.CropWindow, panelW, panelH int) string {
	return fmt.Sprintf(
		"[0:v]split=2[l][r];"+
			"[l]crop=%d:%d:%d:%d,scale=%d:%d,setsar=1[lp];"+
			"[r]crop=%d:%d:%d:%d,scale=%d:%d,setsar=1[rp];"+
			"[lp][rp]vstack=inputs=2[vout]",
		left.W, left.H, left.X, left.Y, panelW, panelH,
		right.W, right.H, right.X, right.Y, panelW, panelH,
	)
}

// HybridSpan is one time range during which either the full-frame or the
// split layout is shown.
type HybridSpan struct {
	Start, End float64
	Split      bool
}

// Hybrid builds enable='between(t,s,e)+...' expressions so full-screen and
// split-screen spans coexist in a single graph.
func Hybrid(full camera.CropWindow, left, right camera.CropWindow, panelW, panelH, targetW, targetH int, spans []HybridSpan) string {
	var fullExpr, splitExpr strings.Builder
	for _, s := range spans {
		clause := fmt.Sprintf("between(t,%.3f,%.3f)", s.Start, s.End)
		if s.Split {
			if splitExpr.Len() > 0 {
				splitExpr.WriteString("+")
			}
			splitExpr.WriteString(clause)
		} else {
			if fullExpr.Len() > 0 {
				fullExpr.WriteString("+")
			}
			fullExpr.WriteString(clause)
		}
	}
	return fmt.Sprintf(
		"[0:v]split=3[ffull][fl][fr];"+
			"[ffull]crop=%d:%d:%d:%d,scale=%d:%d,setsar=1[vfull];"+
			"[fl]crop=%d:%d:%d:%d,scale=%d:%d,setsar=1[lp];"+
			"[fr]crop=%d:%d:%d:%d,scale=%d:%d,setsar=1[rp];"+
			"[lp][rp]vstack=inputs=2[vsplit];"+
			"[vfull][vsplit]overlay=enable='%s'[vout]",
		full.W, full.H, full.X, full.Y, targetW, targetH,
		left.W, left.H, left.X, left.Y, panelW, panelH,
		right.W, right.H, right.X, right.Y, panelW, panelH,
		splitExpr.String(),
	)
}

// WithAudio appends the standard audio resample branch to a graph.
func WithAudio(videoGraph string) string {
	return videoGraph + fmt.Sprintf(";[0:a]%s[aout]", audioResample)
}

// TopScenesGraph builds the single filter_complex graph for a top-scenes
// compilation: each input is independently center-cropped to the target
// portrait aspect (the streamer style's crop) and stamped with its
// countdown number, then every branch is concatenated and the countdown
// overlaid within one filtergraph. The centered crop is expressed in terms
// of each input's own dimensions so no prior ffprobe pass is needed.
func TopScenesGraph(countdowns []int, targetW, targetH int) string {
	var b strings.Builder
	var labels strings.Builder
	for i, n := range countdowns {
		fmt.Fprintf(&b,
			"[%d:v]crop=ih*%d/%d:ih:(iw-ih*%d/%d)/2:0,scale=%d:%d,setsar=1,"+
				"drawtext=text='%d':x=(w-text_w)/2:y=60:fontsize=140:fontcolor=white:borderw=4:bordercolor=black[v%d];",
			i, targetW, targetH, targetW, targetH, targetW, targetH, n, i)
		fmt.Fprintf(&b, "[%d:a]%s[a%d];", i, audioResample, i)
		fmt.Fprintf(&labels, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&b, "%sconcat=n=%d:v=1:a=1[vout][aout]", labels.String(), len(countdowns))
	return b.String()
}
