// Package cache implements the three content-addressed caches that make
// reruns of the pipeline cheap: the source-video cache, the
// raw-segment cache, and the neural-analysis cache. All three share the
// same shape: stable key, object-store existence check, single-flight
// acquisition when absent, retry-on-contention by observers.
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
	"github.com/vclip/vclip/internal/store"
	"github.com/vclip/vclip/internal/types"
)

// ErrUnsupported signals a graceful "this path doesn't apply" outcome
// rather than a failure, a distinct sentinel instead of string-matching
// error messages.
var ErrUnsupported = errors.New("cache: operation unsupported for this input")

// sourceCacheTTL is not read anywhere: a Ready source is recorded without an
// expiry, and no sweep removes or expires cached sources.
const sourceCacheTTL = 6 * time.Hour

// Downloader fetches a video URL to a local file path, e.g. via yt-dlp.
type Downloader interface {
	DownloadSource(ctx context.Context, videoURL, destPath string) error
}

// VideoStore is the subset of the document store the source cache needs.
type VideoStore interface {
	GetVideo(ctx context.Context, videoID string) (*store.Video, error)
	UpdateVideoConditional(ctx context.Context, updated *store.Video, token time.Time) error
}

// SourceCache is the content-addressed cache of downloaded source videos,
// keyed by (uid, video_id) so a rerun of the pipeline skips the download.
type SourceCache struct {
	objects    filestore.ObjectStore
	videos     VideoStore
	locks      *lock.Client
	downloader Downloader
	localDir   string
}

func NewSourceCache(objects filestore.ObjectStore, videos VideoStore, locks *lock.Client, dl Downloader, localDir string) *SourceCache {
	return &SourceCache{objects: objects, videos: videos, locks: locks, downloader: dl, localDir: localDir}
}

// localPath returns the on-disk path a worker uses while downloading/reading
// the source video before/after it lands in the object store.
func (c *SourceCache) localPath(uid, videoID string) string {
	return filepath.Join(c.localDir, "source", uid, videoID+".mp4")
}

// GetOrDownload ensures the source video for (uid, video) is present in the
// object store, winning a single-flight lock to perform the download if
// needed; observers poll the video document for the status transition.
func (c *SourceCache) GetOrDownload(ctx context.Context, uid, videoID, videoURL string) (string, error) {
	key := filestore.SourceKey(uid, videoID)

	exists, err := c.objects.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("source cache: check existence: %w", err)
	}
	if exists {
		return key, nil
	}

	lockKey := lock.SourceDownloadLockKey(uid, videoID)
	l, err := c.locks.Acquire(ctx, lockKey, time.Hour)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return c.waitForReady(ctx, uid, videoID)
		}
		return "", fmt.Errorf("source cache: acquire lock: %w", err)
	}
	defer func() {
		if relErr := c.locks.Release(ctx, l); relErr != nil {
			log.Warn().Err(relErr).Str("video_id", videoID).Msg("failed to release source download lock")
		}
	}()

	if err := c.markStatus(ctx, videoID, types.SourceDownloading, ""); err != nil {
		return "", err
	}

	dest := c.localPath(uid, videoID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("source cache: mkdir: %w", err)
	}
	if err := c.downloader.DownloadSource(ctx, videoURL, dest); err != nil {
		_ = c.markStatus(ctx, videoID, types.SourceFailed, "")
		return "", fmt.Errorf("source cache: download: %w", err)
	}

	f, err := os.Open(dest)
	if err != nil {
		return "", fmt.Errorf("source cache: open downloaded file: %w", err)
	}
	defer f.Close()
	if err := c.objects.Write(ctx, key, f); err != nil {
		_ = c.markStatus(ctx, videoID, types.SourceFailed, "")
		return "", fmt.Errorf("source cache: upload: %w", err)
	}

	if err := c.markStatus(ctx, videoID, types.SourceReady, key); err != nil {
		return "", err
	}
	return key, nil
}

func (c *SourceCache) markStatus(ctx context.Context, videoID string, status types.SourceCacheStatus, key string) error {
	v, err := c.videos.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("source cache: load video: %w", err)
	}
	token := v.UpdatedAt
	updated := *v
	updated.SourceCacheStatus = string(status)
	if key != "" {
		updated.SourceCacheKey = key
	}
	if err := c.videos.UpdateVideoConditional(ctx, &updated, token); err != nil {
		return fmt.Errorf("source cache: update video status: %w", err)
	}
	return nil
}

// waitForReady polls the video document until the source cache reaches a
// terminal state (Ready/Failed): the observer protocol every caller other
// than the single-flight winner follows.
func (c *SourceCache) waitForReady(ctx context.Context, uid, videoID string) (string, error) {
	const pollInterval = 2 * time.Second
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			v, err := c.videos.GetVideo(ctx, videoID)
			if err != nil {
				return "", fmt.Errorf("source cache: poll video: %w", err)
			}
			switch types.SourceCacheStatus(v.SourceCacheStatus) {
			case types.SourceReady:
				return v.SourceCacheKey, nil
			case types.SourceFailed:
				return "", fmt.Errorf("source cache: download failed for video %s", videoID)
			}
		}
	}
}

// OpenLocal downloads the cached source into the local work directory (if
// not already there) and returns the path, for callers that need a local
// file (e.g. raw-segment extraction fallback).
func (c *SourceCache) OpenLocal(ctx context.Context, uid, videoID, key string) (string, error) {
	dest := c.localPath(uid, videoID)
	if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
		return dest, nil
	}
	r, err := c.objects.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("source cache: open blob: %w", err)
	}
	defer r.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("source cache: mkdir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("source cache: create local file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("source cache: copy to local file: %w", err)
	}
	return dest, nil
}
