// Package pipeline is the worker-side coordinator: it dispatches claimed
// jobs by kind, owns no state of its own beyond what the
// caches and document store already track, and performs the top-scenes
// compilation's extra concatenation pass.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/cache"
	"github.com/vclip/vclip/internal/filestore"
	"github.com/vclip/vclip/internal/quota"
	"github.com/vclip/vclip/internal/security"
	"github.com/vclip/vclip/internal/store"
	"github.com/vclip/vclip/internal/styles"
	"github.com/vclip/vclip/internal/types"
)

// Publisher is the subset of *queue.Queue the coordinator needs.
type Publisher interface {
	Publish(ctx context.Context, jobID string, event types.ProgressEvent) error
	Enqueue(ctx context.Context, kind types.JobKind, payload any) (string, error)
}

// Coordinator dispatches jobs by kind.
type Coordinator struct {
	store      *store.Store
	quota      *quota.Manager
	objects    filestore.ObjectStore
	publisher  Publisher
	source     *cache.SourceCache
	rawSeg     *cache.RawSegmentCache
	neural     *cache.NeuralCache
	registry   *styles.Registry
	highlights HighlightClient
	thumbs     ThumbnailGenerator
	compiler   TopScenesRenderer
	silence    SilenceRemover
}

func NewCoordinator(
	s *store.Store,
	q *quota.Manager,
	objects filestore.ObjectStore,
	pub Publisher,
	source *cache.SourceCache,
	rawSeg *cache.RawSegmentCache,
	neural *cache.NeuralCache,
	registry *styles.Registry,
	highlights HighlightClient,
	thumbs ThumbnailGenerator,
	compiler TopScenesRenderer,
	silence SilenceRemover,
) *Coordinator {
	return &Coordinator{
		store: s, quota: q, objects: objects, publisher: pub,
		source: source, rawSeg: rawSeg, neural: neural, registry: registry, highlights: highlights,
		thumbs: thumbs, compiler: compiler, silence: silence,
	}
}

// Dispatch routes one claimed job to its handler.
func (c *Coordinator) Dispatch(ctx context.Context, job types.Job) error {
	switch job.Kind {
	case types.JobAnalyze:
		payload, ok := job.Payload.(types.AnalyzeJob)
		if !ok {
			return fmt.Errorf("pipeline: bad payload for Analyze job %s", job.JobID)
		}
		return c.handleAnalyze(ctx, payload)
	case types.JobDownloadSource:
		payload, ok := job.Payload.(types.DownloadSourceJob)
		if !ok {
			return fmt.Errorf("pipeline: bad payload for DownloadSource job %s", job.JobID)
		}
		return c.handleDownloadSource(ctx, payload)
	case types.JobReprocess:
		payload, ok := job.Payload.(types.ReprocessJob)
		if !ok {
			return fmt.Errorf("pipeline: bad payload for Reprocess job %s", job.JobID)
		}
		return c.handleReprocess(ctx, payload)
	case types.JobRenderSceneStyle:
		payload, ok := job.Payload.(types.RenderSceneStyleJob)
		if !ok {
			return fmt.Errorf("pipeline: bad payload for RenderSceneStyle job %s", job.JobID)
		}
		return c.handleRenderSceneStyle(ctx, payload)
	default:
		return fmt.Errorf("pipeline: unknown job kind %q", job.Kind)
	}
}

// failVideo marks a video Failed and publishes a terminal Error event, the
// shared error-propagation path every job handler falls back to.
func (c *Coordinator) failVideo(ctx context.Context, jobID, videoID, reason string) {
	if v, err := c.store.GetVideo(ctx, videoID); err == nil {
		token := v.UpdatedAt
		updated := *v
		updated.Status = string(types.VideoFailed)
		updated.FailureReason = reason
		if uerr := c.store.UpdateVideoConditional(ctx, &updated, token); uerr != nil {
			log.Error().Err(uerr).Str("video_id", videoID).Msg("failed to persist Failed status")
		}
	}
	if err := c.publisher.Publish(ctx, jobID, types.ErrorEvent(reason)); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to publish terminal error")
	}
}

func (c *Coordinator) handleDownloadSource(ctx context.Context, p types.DownloadSourceJob) error {
	if err := security.CheckReachable(ctx, p.VideoURL); err != nil {
		log.Warn().Err(err).Str("video_id", p.VideoID).Msg("source url failed reachability preflight")
		return err
	}
	_, err := c.source.GetOrDownload(ctx, p.UserID, p.VideoID, p.VideoURL)
	if err != nil {
		log.Error().Err(err).Str("video_id", p.VideoID).Msg("background source download failed")
		return err // best-effort job; queue-level retry handles transient failure
	}
	return nil
}

// creditsPerClip is the flat cost charged at successful clip upload, always
// at the point of successful upload rather than at job submission.
const creditsPerClip uint32 = 1
