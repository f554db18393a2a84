package render

import "context"

const (
	topScenesWidth  = 1080
	topScenesHeight = 1920
)

// TopScenesEncoder drives the single concat-plus-countdown-overlay encode
// that finishes a top-scenes compilation.
type TopScenesEncoder struct {
	runner *Runner
}

func NewTopScenesEncoder(runner *Runner) *TopScenesEncoder {
	return &TopScenesEncoder{runner: runner}
}

// Render encodes segmentPaths (already in final countdown order) into a
// single output file, overlaying countdowns[i] on segmentPaths[i].
func (e *TopScenesEncoder) Render(ctx context.Context, segmentPaths []string, countdowns []int, outPath string) error {
	graph := TopScenesGraph(countdowns, topScenesWidth, topScenesHeight)
	return e.runner.EncodeMulti(ctx, segmentPaths, graph,
		[]string{"-map", "[vout]", "-map", "[aout]", "-c:v", "libx264", "-c:a", "aac"}, outPath)
}
