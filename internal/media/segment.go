package media

import (
	"context"
	"fmt"

	"github.com/vclip/vclip/internal/render"
)

// SegmentExtractor composes YtDlp's direct-download attempt with
// render.Runner's stream-copy fallback, implementing
// cache.SegmentExtractor.
type SegmentExtractor struct {
	ytdlp  *YtDlp
	runner *render.Runner
}

func NewSegmentExtractor(ytdlp *YtDlp, runner *render.Runner) *SegmentExtractor {
	return &SegmentExtractor{ytdlp: ytdlp, runner: runner}
}

func (s *SegmentExtractor) TryURLSegmentDownload(ctx context.Context, videoURL string, startSeconds, endSeconds float64, destPath string) error {
	return s.ytdlp.TryURLSegmentDownload(ctx, videoURL, startSeconds, endSeconds, destPath)
}

func (s *SegmentExtractor) ExtractFromSource(ctx context.Context, sourcePath string, startSeconds, endSeconds float64, destPath string) error {
	duration := endSeconds - startSeconds
	if duration <= 0 {
		return fmt.Errorf("media: invalid segment range [%f, %f)", startSeconds, endSeconds)
	}
	return s.runner.ExtractStreamCopy(ctx, sourcePath, startSeconds, duration, destPath)
}

// SilenceRemover removes silent spans from an already-extracted segment,
// itself cacheable by a content hash of (source segment, threshold)
//.
type SilenceRemover struct {
	runner *render.Runner
}

func NewSilenceRemover(runner *render.Runner) *SilenceRemover { return &SilenceRemover{runner: runner} }

// Remove runs ffmpeg's silenceremove filter and stream-copies the result,
// satisfying the single-encode rule by operating only on audio while video
// stays copy.
func (s *SilenceRemover) Remove(ctx context.Context, inputPath, outputPath string) error {
	filter := "[0:a]silenceremove=stop_periods=-1:stop_duration=0.3:stop_threshold=-35dB[aout]"
	return s.runner.Encode(ctx, inputPath, filter, []string{"-map", "0:v", "-map", "[aout]", "-c:v", "copy"}, outputPath)
}
