package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/types"
)

// handleReprocess fans out one RenderSceneStyle job per (scene, style) pair,
// or drives the top-scenes compilation pass directly when the requested
// style set contains StreamerTopScenes: that style compiles one clip from
// every scene instead of rendering per-scene outputs.
func (c *Coordinator) handleReprocess(ctx context.Context, p types.ReprocessJob) error {
	for _, style := range p.Styles {
		if style == types.StyleStreamerTopScenes {
			if err := c.runTopScenesCompilation(ctx, p); err != nil {
				// Top-scenes compilation fails the whole job.
				c.failVideo(ctx, p.JobID, p.VideoID, fmt.Sprintf("top scenes compilation failed: %v", err))
				return err
			}
			continue
		}

		// Plan-tier style gating happens at WS admission;
		// reprocess trusts the caller already validated the style set.
		for _, sceneID := range p.SceneIDs {
			job := types.RenderSceneStyleJob{
				JobID: p.JobID, UserID: p.UserID, VideoID: p.VideoID,
				SceneID: sceneID, Style: style,
				CropMode: p.CropMode, TargetAspect: p.TargetAspect,
			}
			if _, err := c.publisher.Enqueue(ctx, types.JobRenderSceneStyle, job); err != nil {
				log.Error().Err(err).Str("video_id", p.VideoID).Uint32("scene_id", sceneID).
					Str("style", string(style)).Msg("failed to enqueue render job")
				return fmt.Errorf("pipeline: enqueue render job for scene %d style %s: %w", sceneID, style, err)
			}
		}
	}
	return nil
}
