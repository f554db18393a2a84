// Package media provides thin process wrappers around the external ffmpeg
// and yt-dlp executables, the two tools this service treats as external
// collaborators.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vclip/vclip/internal/cache"
	"github.com/vclip/vclip/internal/security"
)

// YtDlp wraps the yt-dlp executable for full-source downloads and, where
// supported, direct URL-level segment downloads.
type YtDlp struct {
	binaryPath string
}

func NewYtDlp(binaryPath string) *YtDlp {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	return &YtDlp{binaryPath: binaryPath}
}

// DownloadSource fetches the full video to destPath, satisfying
// cache.Downloader.
func (y *YtDlp) DownloadSource(ctx context.Context, videoURL, destPath string) error {
	args := []string{"-f", "mp4", "-o", destPath, videoURL}
	if err := security.ValidatePath(destPath, []string{"mp4"}); err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return y.run(ctx, args)
}

// TryURLSegmentDownload attempts a direct URL-level segment download (e.g.
// against an HLS source), satisfying cache.SegmentExtractor. Sources that
// don't support range downloads report ErrUnsupported via yt-dlp's
// "unsupported" diagnostics so the caller can fall back to extraction.
func (y *YtDlp) TryURLSegmentDownload(ctx context.Context, videoURL string, startSeconds, endSeconds float64, destPath string) error {
	section := fmt.Sprintf("*%.3f-%.3f", startSeconds, endSeconds)
	args := []string{"-f", "mp4", "--download-sections", section, "-o", destPath, videoURL}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, y.binaryPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if isUnsupportedSectionsError(stderr.String()) {
			return cache.ErrUnsupported
		}
		return fmt.Errorf("yt-dlp segment download: %w: %s", err, stderr.String())
	}
	return nil
}

func isUnsupportedSectionsError(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "unsupported") || strings.Contains(lower, "not supported") ||
		strings.Contains(lower, "download sections are not supported")
}

func (y *YtDlp) run(ctx context.Context, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, y.binaryPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp: %w: %s", err, stderr.String())
	}
	return nil
}
