package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/filestore"
	"github.com/vclip/vclip/internal/lock"
)

// maxLockWaitRetries bounds how many times a loser re-polls the object
// store / re-attempts the lock before giving up.
const maxLockWaitRetries = 5

const lockWaitRetryDelay = 2 * time.Second

// SegmentExtractor performs the two ways a raw segment can be produced.
type SegmentExtractor interface {
	// TryURLSegmentDownload attempts a direct URL-level segment download
	// (e.g. yt-dlp against an HLS source). Returns ErrUnsupported if the
	// source doesn't support it, in which case the caller falls back to
	// ExtractFromSource.
	TryURLSegmentDownload(ctx context.Context, videoURL string, startSeconds, endSeconds float64, destPath string) error
	// ExtractFromSource stream-copies [start, end] out of a local source
	// file with a single input-seek.
	ExtractFromSource(ctx context.Context, sourcePath string, startSeconds, endSeconds float64, destPath string) error
}

// RawSegmentCache caches stream-copied raw segments alongside the object store.
type RawSegmentCache struct {
	objects  filestore.ObjectStore
	locks    *lock.Client
	source   *SourceCache
	extract  SegmentExtractor
	localDir string
}

func NewRawSegmentCache(objects filestore.ObjectStore, locks *lock.Client, source *SourceCache, extract SegmentExtractor, localDir string) *RawSegmentCache {
	return &RawSegmentCache{objects: objects, locks: locks, source: source, extract: extract, localDir: localDir}
}

func (c *RawSegmentCache) localPath(uid, videoID string, sceneID uint32) string {
	return filepath.Join(c.localDir, "raw", uid, videoID, fmt.Sprintf("%d.mp4", sceneID))
}

// Params bundles the inputs needed to produce a raw segment if it's missing.
type Params struct {
	UID          string
	VideoID      string
	SceneID      uint32
	VideoURL     string
	SourceKey    string // object-store key for the full source, once known
	StartSeconds float64
	EndSeconds   float64
}

// GetOrCreate runs the 5-step acquisition protocol: local path, object-store
// lookup, single-flight lock acquisition, extraction, then cache fill.
func (c *RawSegmentCache) GetOrCreate(ctx context.Context, p Params) (string, error) {
	local := c.localPath(p.UID, p.VideoID, p.SceneID)
	key := filestore.RawSegmentKey(p.UID, p.VideoID, p.SceneID)

	// Step 1: local file already present.
	if fi, err := os.Stat(local); err == nil && fi.Size() > 0 {
		return local, nil
	}

	for attempt := 0; attempt <= maxLockWaitRetries; attempt++ {
		// Step 2: object-store key exists, download it locally.
		exists, err := c.objects.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("raw segment cache: check existence: %w", err)
		}
		if exists {
			if err := c.downloadToLocal(ctx, key, local); err != nil {
				return "", err
			}
			return local, nil
		}

		// Step 3: try to win the single-flight lock.
		lockKey := lock.RawSegmentLockKey(p.UID, p.VideoID, p.SceneID)
		l, err := c.locks.Acquire(ctx, lockKey, time.Hour)
		if err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				time.Sleep(lockWaitRetryDelay * time.Duration(attempt+1))
				continue
			}
			return "", fmt.Errorf("raw segment cache: acquire lock: %w", err)
		}

		// Winner.
		path, err := c.produce(ctx, p, local)
		if relErr := c.locks.Release(ctx, l); relErr != nil {
			log.Warn().Err(relErr).Str("video_id", p.VideoID).Uint32("scene_id", p.SceneID).Msg("failed to release raw segment lock")
		}
		if err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("raw segment cache: exhausted retries for scene %d", p.SceneID)
}

// produce runs once the caller holds the single-flight lock: try the
// URL-level segment download first, fall back to extraction from the
// locally-available source video, then upload the result.
func (c *RawSegmentCache) produce(ctx context.Context, p Params, local string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("raw segment cache: mkdir: %w", err)
	}

	err := c.extract.TryURLSegmentDownload(ctx, p.VideoURL, p.StartSeconds, p.EndSeconds, local)
	switch {
	case err == nil:
		// produced directly from the URL.
	case errors.Is(err, ErrUnsupported):
		log.Debug().Str("video_id", p.VideoID).Msg("url-level segment download unsupported, falling back to source extraction")
		sourcePath, srcErr := c.source.OpenLocal(ctx, p.UID, p.VideoID, p.SourceKey)
		if srcErr != nil {
			return "", fmt.Errorf("raw segment cache: obtain source for extraction: %w", srcErr)
		}
		if extractErr := c.extract.ExtractFromSource(ctx, sourcePath, p.StartSeconds, p.EndSeconds, local); extractErr != nil {
			return "", fmt.Errorf("raw segment cache: extract from source: %w", extractErr)
		}
	default:
		// Unsupported or a hard failure both fall back to extraction from the
		// locally-available source video; only the log level differs.
		log.Warn().Err(err).Str("video_id", p.VideoID).Msg("url-level segment download failed, falling back to source extraction")
		sourcePath, srcErr := c.source.OpenLocal(ctx, p.UID, p.VideoID, p.SourceKey)
		if srcErr != nil {
			return "", fmt.Errorf("raw segment cache: obtain source for extraction: %w", srcErr)
		}
		if extractErr := c.extract.ExtractFromSource(ctx, sourcePath, p.StartSeconds, p.EndSeconds, local); extractErr != nil {
			return "", fmt.Errorf("raw segment cache: extract from source: %w", extractErr)
		}
	}

	f, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("raw segment cache: open produced segment: %w", err)
	}
	defer f.Close()
	key := filestore.RawSegmentKey(p.UID, p.VideoID, p.SceneID)
	if err := c.objects.Write(ctx, key, f); err != nil {
		return "", fmt.Errorf("raw segment cache: upload: %w", err)
	}
	return local, nil
}

func (c *RawSegmentCache) downloadToLocal(ctx context.Context, key, local string) error {
	if fi, err := os.Stat(local); err == nil && fi.Size() > 0 {
		return nil
	}
	r, err := c.objects.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("raw segment cache: open blob: %w", err)
	}
	defer r.Close()
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("raw segment cache: mkdir: %w", err)
	}
	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("raw segment cache: create local file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("raw segment cache: copy to local: %w", err)
	}
	return nil
}
