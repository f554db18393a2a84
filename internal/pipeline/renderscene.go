package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/cache"
	"github.com/vclip/vclip/internal/filestore"
	"github.com/vclip/vclip/internal/store"
	"github.com/vclip/vclip/internal/styles"
	"github.com/vclip/vclip/internal/types"
)

// ThumbnailGenerator extracts a representative still frame from a rendered clip.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, clipPath, destPath string) error
}

func (c *Coordinator) handleRenderSceneStyle(ctx context.Context, p types.RenderSceneStyleJob) error {
	v, err := c.store.GetVideo(ctx, p.VideoID)
	if err != nil {
		return fmt.Errorf("pipeline: load video: %w", err)
	}
	highlights, err := c.store.ListHighlights(ctx, p.VideoID)
	if err != nil {
		return fmt.Errorf("pipeline: load highlights: %w", err)
	}
	h, ok := findHighlight(highlights, p.SceneID)
	if !ok {
		c.failVideo(ctx, p.JobID, p.VideoID, fmt.Sprintf("unknown scene id %d", p.SceneID))
		return fmt.Errorf("pipeline: scene %d not found for video %s", p.SceneID, p.VideoID)
	}

	if err := c.publisher.Publish(ctx, p.JobID, types.ProgressEvent{Type: types.EventSceneStarted, SceneID: p.SceneID}); err != nil {
		log.Warn().Err(err).Msg("failed to publish scene_started")
	}

	clipID := ulid.Make().String()
	if err := c.store.CreateClip(ctx, &store.Clip{
		ClipID: clipID, VideoID: p.VideoID, UID: p.UserID, SceneID: p.SceneID,
		Style: string(p.Style), Status: string(types.ClipProcessing),
	}); err != nil {
		log.Warn().Err(err).Str("video_id", p.VideoID).Uint32("scene_id", p.SceneID).Msg("failed to persist processing clip placeholder")
	}

	rawPath, err := c.acquireRawSegment(ctx, v, h, p)
	if err != nil {
		c.markClipFailed(ctx, p, clipID, fmt.Sprintf("raw segment unavailable: %v", err))
		return err
	}

	processor, err := c.registry.ForStyle(p.Style)
	if err != nil {
		c.markClipFailed(ctx, p, clipID, err.Error())
		return err
	}
	req := styles.Request{
		UID: p.UserID, VideoID: p.VideoID, SceneID: p.SceneID, Style: p.Style,
		RawSegmentPath: rawPath, CropMode: p.CropMode, TargetAspect: p.TargetAspect,
	}
	if err := processor.Validate(req, styles.Context{}); err != nil {
		c.markClipFailed(ctx, p, clipID, err.Error())
		return err
	}

	result, err := processor.Process(ctx, req, styles.Context{})
	if err != nil {
		// Per-clip renders fail only the single clip, not the whole job
		//: the job itself still completes with this clip absent.
		c.markClipFailed(ctx, p, clipID, err.Error())
		return fmt.Errorf("pipeline: render scene %d style %s: %w", p.SceneID, p.Style, err)
	}

	clip, err := c.uploadAndRecordClip(ctx, p, clipID, result)
	if err != nil {
		c.markClipFailed(ctx, p, clipID, err.Error())
		return err
	}

	if err := c.quota.CheckAndReserveCredits(ctx, p.UserID, creditsPerClip); err != nil {
		log.Warn().Err(err).Str("uid", p.UserID).Msg("credit reservation failed at clip upload; clip kept, billing skipped")
	}
	if err := c.quota.AdjustStorage(ctx, p.UserID, clip.FileSize, 1); err != nil {
		log.Warn().Err(err).Str("uid", p.UserID).Msg("storage accounting update failed")
	}

	c.bumpVideoCompletion(ctx, v)

	if err := c.publisher.Publish(ctx, p.JobID, types.ProgressEvent{
		Type: types.EventClipUploaded, SceneID: p.SceneID, Style: p.Style, Credits: creditsPerClip,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to publish clip_uploaded")
	}
	if err := c.publisher.Publish(ctx, p.JobID, types.ProgressEvent{Type: types.EventSceneCompleted, SceneID: p.SceneID}); err != nil {
		log.Warn().Err(err).Msg("failed to publish scene_completed")
	}
	return nil
}

func findHighlight(hs []store.Highlight, sceneID uint32) (store.Highlight, bool) {
	for _, h := range hs {
		if h.SceneID == sceneID {
			return h, true
		}
	}
	return store.Highlight{}, false
}

func (c *Coordinator) acquireRawSegment(ctx context.Context, v *store.Video, h store.Highlight, p types.RenderSceneStyleJob) (string, error) {
	start, end, err := parsePaddedRange(h)
	if err != nil {
		return "", err
	}
	path, err := c.rawSeg.GetOrCreate(ctx, rawSegParams(p.UserID, p.VideoID, p.SceneID, v.SourceURL, v.SourceCacheKey, start, end))
	if err != nil {
		return "", fmt.Errorf("acquire raw segment: %w", err)
	}
	return path, nil
}

func rawSegParams(uid, videoID string, sceneID uint32, videoURL, sourceKey string, start, end float64) cache.Params {
	return cache.Params{
		UID: uid, VideoID: videoID, SceneID: sceneID,
		VideoURL: videoURL, SourceKey: sourceKey,
		StartSeconds: start, EndSeconds: end,
	}
}

func (c *Coordinator) uploadAndRecordClip(ctx context.Context, p types.RenderSceneStyleJob, clipID string, result styles.Result) (*store.Clip, error) {
	fi, err := os.Stat(result.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("stat rendered clip: %w", err)
	}

	filename := clipID + ".mp4"
	key := filestore.ClipKey(p.UserID, p.VideoID, filename)

	f, err := os.Open(result.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("open rendered clip: %w", err)
	}
	defer f.Close()
	if err := c.objects.Write(ctx, key, f); err != nil {
		return nil, fmt.Errorf("upload clip: %w", err)
	}

	thumbPath := result.ThumbnailPath
	if thumbPath == "" && c.thumbs != nil {
		generated := result.LocalPath + ".jpg"
		if err := c.thumbs.Generate(ctx, result.LocalPath, generated); err != nil {
			log.Warn().Err(err).Msg("thumbnail generation failed, clip will have no thumbnail")
		} else {
			thumbPath = generated
		}
	}

	thumbKey := ""
	if thumbPath != "" {
		thumbKey = filestore.ClipKey(p.UserID, p.VideoID, clipID+".jpg")
		tf, err := os.Open(thumbPath)
		if err == nil {
			defer tf.Close()
			if err := c.objects.Write(ctx, thumbKey, tf); err != nil {
				log.Warn().Err(err).Msg("failed to upload thumbnail")
				thumbKey = ""
			}
		}
	}

	clip := &store.Clip{
		ClipID: clipID, VideoID: p.VideoID, UID: p.UserID, SceneID: p.SceneID,
		Style: string(p.Style), FileSize: fi.Size(), ObjectKey: key,
		ThumbnailKey: thumbKey, Status: string(types.ClipCompleted),
	}
	if err := c.store.UpdateClip(ctx, clip); err != nil {
		return nil, fmt.Errorf("persist clip metadata: %w", err)
	}
	return clip, nil
}

func (c *Coordinator) bumpVideoCompletion(ctx context.Context, v *store.Video) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cur, err := c.store.GetVideo(ctx, v.VideoID)
		if err != nil {
			log.Error().Err(err).Str("video_id", v.VideoID).Msg("failed to reload video for completion bump")
			return
		}
		token := cur.UpdatedAt
		updated := *cur
		updated.CompletedClips++
		if updated.ExpectedClips > 0 && updated.CompletedClips >= updated.ExpectedClips {
			updated.Status = string(types.VideoCompleted)
		}
		err = c.store.UpdateVideoConditional(ctx, &updated, token)
		if err == nil {
			return
		}
		if !errors.Is(err, store.ErrPreconditionFailed) {
			log.Error().Err(err).Str("video_id", v.VideoID).Msg("failed to bump video completion")
			return
		}
	}
	log.Warn().Str("video_id", v.VideoID).Msg("exhausted retries bumping video completion")
}

func (c *Coordinator) markClipFailed(ctx context.Context, p types.RenderSceneStyleJob, clipID, reason string) {
	if err := c.publisher.Publish(ctx, p.JobID, types.ErrorEvent(reason)); err != nil {
		log.Warn().Err(err).Msg("failed to publish clip failure error")
	}

	clip := &store.Clip{
		ClipID:  clipID,
		VideoID: p.VideoID,
		UID:     p.UserID,
		SceneID: p.SceneID,
		Style:   string(p.Style),
		Status:  string(types.ClipFailed),
	}
	if err := c.store.UpdateClip(ctx, clip); err != nil {
		log.Warn().Err(err).Str("video_id", p.VideoID).Uint32("scene_id", p.SceneID).Msg("failed to persist failed clip record")
	}
}

// parsePaddedRange computes the padded [start-pad_before, end+pad_after]
// window the raw-segment cache extracts.
func parsePaddedRange(h store.Highlight) (start, end float64, err error) {
	s, err := parseTimestampSeconds(h.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("parse highlight start: %w", err)
	}
	e, err := parseTimestampSeconds(h.End)
	if err != nil {
		return 0, 0, fmt.Errorf("parse highlight end: %w", err)
	}
	start = s - h.PadBefore
	if start < 0 {
		start = 0
	}
	end = e + h.PadAfter
	return start, end, nil
}

// parseTimestampSeconds accepts either a bare seconds value ("83.5") or an
// "HH:MM:SS(.fff)" clock timestamp, the two shapes highlight start/end
// fields may arrive in from the highlight extraction collaborator.
func parseTimestampSeconds(s string) (float64, error) {
	if !strings.Contains(s, ":") {
		return strconv.ParseFloat(s, 64)
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var hours, minutes float64
	secIdx := len(parts) - 1
	if len(parts) == 3 {
		h, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		hours = h
	}
	m, err := strconv.ParseFloat(parts[secIdx-1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	minutes = m
	secs, err := strconv.ParseFloat(parts[secIdx], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return hours*3600 + minutes*60 + secs, nil
}
