package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/vclip/vclip/internal/filestore"
	"github.com/vclip/vclip/internal/store"
	"github.com/vclip/vclip/internal/styles"
	"github.com/vclip/vclip/internal/types"
)

// TopScenesRenderer produces the single compiled clip from an ordered list
// of already-extracted raw segment files, stamping countdowns[i] onto
// segmentPaths[i].
type TopScenesRenderer interface {
	Render(ctx context.Context, segmentPaths []string, countdowns []int, outPath string) error
}

// SilenceRemover strips silent spans from an already-extracted segment.
type SilenceRemover interface {
	Remove(ctx context.Context, inputPath, outputPath string) error
}

// maxConcurrentSilenceRemoval and maxConcurrentExtractions bound the two
// fan-out phases of the compilation pass.
const (
	maxConcurrentSilenceRemoval = 2
	maxConcurrentExtractions    = 3
)

func (c *Coordinator) runTopScenesCompilation(ctx context.Context, p types.ReprocessJob) error {
	highlights, err := c.store.ListHighlights(ctx, p.VideoID)
	if err != nil {
		return fmt.Errorf("top scenes: load highlights: %w", err)
	}
	byScene := make(map[uint32]store.Highlight, len(highlights))
	for _, h := range highlights {
		byScene[h.SceneID] = h
	}

	v, err := c.store.GetVideo(ctx, p.VideoID)
	if err != nil {
		return fmt.Errorf("top scenes: load video: %w", err)
	}

	// Reverse the user's selection order for countdown numbering: the
	// user's first pick becomes the last (biggest-reveal) segment, counting
	// down from len(SceneIDs) to 1.
	ordered := make([]uint32, len(p.SceneIDs))
	for i, id := range p.SceneIDs {
		ordered[len(ordered)-1-i] = id
	}
	countdowns := make([]int, len(ordered))
	for i := range ordered {
		countdowns[i] = len(ordered) - i
	}

	type sceneState struct {
		sceneID   uint32
		h         store.Highlight
		key       string
		cached    bool
		localPath string
	}
	states := make([]*sceneState, len(ordered))
	for i, sceneID := range ordered {
		h, ok := byScene[sceneID]
		if !ok {
			return fmt.Errorf("top scenes: unknown scene id %d", sceneID)
		}
		states[i] = &sceneState{sceneID: sceneID, h: h, key: filestore.RawSegmentKey(p.UserID, p.VideoID, sceneID)}
	}

	// Phase 1: parallel cache-existence checks for every scene's raw segment.
	var existWG conc.WaitGroup
	for _, st := range states {
		st := st
		existWG.Go(func() {
			exists, err := c.objects.Exists(ctx, st.key)
			if err != nil {
				log.Warn().Err(err).Uint32("scene_id", st.sceneID).Msg("top scenes: existence check failed, treating as miss")
				return
			}
			st.cached = exists
		})
	}
	existWG.Wait()

	// Phase 2: kick off the shared source download (needed only by cache
	// misses) concurrently with per-scene segment acquisition, bounded by
	// maxConcurrentExtractions; cached scenes download straight from the
	// object store and never wait on the source.
	needsSource := false
	for _, st := range states {
		if !st.cached {
			needsSource = true
		}
	}
	var sourceErr error
	var sourceWG sync.WaitGroup
	if needsSource {
		sourceWG.Add(1)
		go func() {
			defer sourceWG.Done()
			_, err := c.source.GetOrDownload(ctx, p.UserID, p.VideoID, v.SourceURL)
			sourceErr = err
		}()
	}

	extractPool := pool.New().WithMaxGoroutines(maxConcurrentExtractions).WithErrors()
	for _, st := range states {
		st := st
		extractPool.Go(func() error {
			if st.cached {
				local, err := c.downloadCachedSegment(ctx, p, st.sceneID, st.key)
				if err != nil {
					return err
				}
				st.localPath = local
				return nil
			}

			sourceWG.Wait()
			if sourceErr != nil {
				return fmt.Errorf("source download: %w", sourceErr)
			}
			start, end, err := parsePaddedRange(st.h)
			if err != nil {
				return err
			}
			path, err := c.rawSeg.GetOrCreate(ctx, rawSegParams(p.UserID, p.VideoID, st.sceneID, v.SourceURL, v.SourceCacheKey, start, end))
			if err != nil {
				return err
			}
			st.localPath = path
			return nil
		})
	}
	if err := extractPool.Wait(); err != nil {
		c.failVideo(ctx, p.JobID, p.VideoID, "top scenes: segment acquisition failed")
		return fmt.Errorf("top scenes: acquire segments: %w", err)
	}

	// Phase 3: silence removal, bounded by maxConcurrentSilenceRemoval.
	if p.CutSilentParts && c.silence != nil {
		silencePool := pool.New().WithMaxGoroutines(maxConcurrentSilenceRemoval)
		for _, st := range states {
			st := st
			silencePool.Go(func() {
				out := st.localPath + ".silenced.mp4"
				if err := c.silence.Remove(ctx, st.localPath, out); err != nil {
					log.Warn().Err(err).Uint32("scene_id", st.sceneID).Msg("silence removal failed, using original segment")
					return
				}
				st.localPath = out
			})
		}
		silencePool.Wait()
	}

	segmentPaths := make([]string, len(states))
	for i, st := range states {
		segmentPaths[i] = st.localPath
	}

	outPath := filepath.Join(os.TempDir(), "vclip", p.UserID, p.VideoID, "top_scenes.mp4")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("top scenes: mkdir: %w", err)
	}
	if err := c.compiler.Render(ctx, segmentPaths, countdowns, outPath); err != nil {
		c.failVideo(ctx, p.JobID, p.VideoID, "top scenes: compilation render failed")
		return fmt.Errorf("top scenes: render: %w", err)
	}

	clipID := ulid.Make().String()
	if err := c.store.CreateClip(ctx, &store.Clip{
		ClipID: clipID, VideoID: p.VideoID, UID: p.UserID, SceneID: 0,
		Style: string(types.StyleStreamerTopScenes), Status: string(types.ClipProcessing),
	}); err != nil {
		log.Warn().Err(err).Str("video_id", p.VideoID).Msg("top scenes: failed to persist processing clip placeholder")
	}

	clip, err := c.uploadAndRecordClip(ctx, types.RenderSceneStyleJob{
		JobID: p.JobID, UserID: p.UserID, VideoID: p.VideoID,
		SceneID: 0, Style: types.StyleStreamerTopScenes,
	}, clipID, styles.Result{LocalPath: outPath})
	if err != nil {
		c.failVideo(ctx, p.JobID, p.VideoID, "top scenes: upload failed")
		return fmt.Errorf("top scenes: upload and record: %w", err)
	}

	if err := c.quota.CheckAndReserveCredits(ctx, p.UserID, creditsPerClip); err != nil {
		log.Warn().Err(err).Str("uid", p.UserID).Msg("top scenes: credit reservation failed; clip kept, billing skipped")
	}
	if err := c.quota.AdjustStorage(ctx, p.UserID, clip.FileSize, 1); err != nil {
		log.Warn().Err(err).Str("uid", p.UserID).Msg("top scenes: storage accounting update failed")
	}

	c.bumpVideoCompletion(ctx, v)

	if err := c.publisher.Publish(ctx, p.JobID, types.ProgressPercent(100)); err != nil {
		log.Warn().Err(err).Msg("failed to publish top-scenes completion progress")
	}
	if err := c.publisher.Publish(ctx, p.JobID, types.DoneEvent(p.VideoID)); err != nil {
		log.Warn().Err(err).Msg("failed to publish top-scenes done event")
	}
	return nil
}

func (c *Coordinator) downloadCachedSegment(ctx context.Context, p types.ReprocessJob, sceneID uint32, key string) (string, error) {
	local := filepath.Join(os.TempDir(), "vclip", p.UserID, p.VideoID, "raw", fmt.Sprintf("%d.mp4", sceneID))
	if fi, err := os.Stat(local); err == nil && fi.Size() > 0 {
		return local, nil
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	r, err := c.objects.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open cached segment: %w", err)
	}
	defer r.Close()
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create local segment: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("copy cached segment: %w", err)
	}
	return local, nil
}
