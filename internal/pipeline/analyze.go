package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/store"
	"github.com/vclip/vclip/internal/types"
)

// ErrHighlightServiceUnavailable marks a non-retriable failure of the
// external highlight extraction collaborator.
var ErrHighlightServiceUnavailable = errors.New("pipeline: highlight service unavailable")

// HighlightClient is the external LLM collaborator that proposes highlights
// for a video, consumed only through this interface.
type HighlightClient interface {
	// ExtractHighlights returns a list of candidate highlights. A
	// retriable failure (429/5xx/timeout) should be surfaced as a
	// RetriableError so the caller's retry policy applies.
	ExtractHighlights(ctx context.Context, videoURL string, promptInstructions *string) ([]types.Highlight, error)
}

// RetriableError marks an error from the highlight client as transient.
type RetriableError struct{ Err error }

func (e *RetriableError) Error() string { return e.Err.Error() }
func (e *RetriableError) Unwrap() error { return e.Err }

const analyzeMaxRetries = 3

func (c *Coordinator) handleAnalyze(ctx context.Context, p types.AnalyzeJob) error {
	v := &store.Video{
		VideoID:   uuid.NewString(),
		UID:       p.UserID,
		SourceURL: p.VideoURL,
		Status:    string(types.VideoProcessing),
	}
	if err := c.store.CreateVideo(ctx, v); err != nil {
		return fmt.Errorf("pipeline: create video: %w", err)
	}

	if err := c.publisher.Publish(ctx, p.JobID, types.LogEvent("analyzing video")); err != nil {
		log.Warn().Err(err).Msg("failed to publish analyze log event")
	}

	var highlights []types.Highlight
	err := retry.Do(
		func() error {
			hs, err := c.highlights.ExtractHighlights(ctx, p.VideoURL, p.PromptInstructions)
			if err != nil {
				var retriable *RetriableError
				if errors.As(err, &retriable) {
					return err // retry.Do retries by default
				}
				return retry.Unrecoverable(err)
			}
			highlights = hs
			return nil
		},
		retry.Attempts(analyzeMaxRetries),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	)
	if err != nil {
		c.failVideo(ctx, p.JobID, v.VideoID, "highlight extraction failed")
		return fmt.Errorf("pipeline: extract highlights: %w", err)
	}

	// Partial-but-nonempty highlight lists are accepted as-is: a short
	// highlight reel beats a failed job.
	if len(highlights) == 0 {
		c.failVideo(ctx, p.JobID, v.VideoID, "no highlights found")
		return fmt.Errorf("pipeline: no highlights returned for video %s", v.VideoID)
	}

	storeHighlights := make([]store.Highlight, len(highlights))
	for i, h := range highlights {
		storeHighlights[i] = store.Highlight{
			SceneID: h.ID, Title: h.Title, Start: h.Start, End: h.End,
			PadBefore: h.PadBefore, PadAfter: h.PadAfter, Category: h.Category,
		}
	}
	if err := c.store.PutHighlights(ctx, v.VideoID, storeHighlights); err != nil {
		c.failVideo(ctx, p.JobID, v.VideoID, "failed to persist highlights")
		return fmt.Errorf("pipeline: persist highlights: %w", err)
	}

	token := v.UpdatedAt
	updated := *v
	updated.Status = string(types.VideoAnalyzed)
	if err := c.store.UpdateVideoConditional(ctx, &updated, token); err != nil {
		log.Warn().Err(err).Str("video_id", v.VideoID).Msg("lost race updating video to Analyzed")
	}

	if err := c.publisher.Publish(ctx, p.JobID, types.ProgressPercent(100)); err != nil {
		log.Warn().Err(err).Msg("failed to publish analyze completion progress")
	}

	// Enqueue the source download as a background best-effort step
	//.
	if _, err := c.publisher.Enqueue(ctx, types.JobDownloadSource, types.DownloadSourceJob{
		UserID: p.UserID, VideoID: v.VideoID, VideoURL: p.VideoURL,
	}); err != nil {
		log.Warn().Err(err).Str("video_id", v.VideoID).Msg("failed to enqueue background source download")
	}

	return nil
}
