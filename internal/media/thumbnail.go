package media

import (
	"context"

	"github.com/vclip/vclip/internal/render"
)

// thumbnailOffsetSeconds picks a frame past typical intro black frames
// without risking running past a very short clip.
const thumbnailOffsetSeconds = 0.5

// Thumbnailer extracts a representative still frame from a rendered clip,
// satisfying pipeline.ThumbnailGenerator.
type Thumbnailer struct {
	runner *render.Runner
}

func NewThumbnailer(runner *render.Runner) *Thumbnailer {
	return &Thumbnailer{runner: runner}
}

func (t *Thumbnailer) Generate(ctx context.Context, clipPath, destPath string) error {
	return t.runner.Snapshot(ctx, clipPath, thumbnailOffsetSeconds, destPath)
}
