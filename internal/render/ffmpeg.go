package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/vclip/vclip/internal/security"
)

// Runner invokes FFmpeg with a bounded number of concurrent processes,
// capped by a per-process semaphore.
type Runner struct {
	sem *semaphore.Weighted
}

func NewRunner(maxFFmpegProcesses int64) *Runner {
	return &Runner{sem: semaphore.NewWeighted(maxFFmpegProcesses)}
}

// Encode runs one ffmpeg invocation with a single filter_complex graph and
// the given output mapping/codec args; every call is a single encode per
// clip. Arguments are sanitized before exec.
func (r *Runner) Encode(ctx context.Context, inputPath, filterComplex string, outputArgs []string, outputPath string) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("ffmpeg: acquire concurrency slot: %w", err)
	}
	defer r.sem.Release(1)

	args := append([]string{"-y", "-i", inputPath, "-filter_complex", filterComplex}, outputArgs...)
	args = append(args, outputPath)

	if err := security.SanitizeArgs(args); err != nil {
		return fmt.Errorf("ffmpeg: rejected arguments: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &EncodeError{Err: err, Stderr: stderr.String()}
	}
	return nil
}

// EncodeMulti is Encode's multi-input counterpart, used by the top-scenes
// compilation pass where every raw segment is a separate ffmpeg input
// feeding one concat filtergraph.
func (r *Runner) EncodeMulti(ctx context.Context, inputPaths []string, filterComplex string, outputArgs []string, outputPath string) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("ffmpeg: acquire concurrency slot: %w", err)
	}
	defer r.sem.Release(1)

	args := []string{"-y"}
	for _, p := range inputPaths {
		args = append(args, "-i", p)
	}
	args = append(args, "-filter_complex", filterComplex)
	args = append(args, outputArgs...)
	args = append(args, outputPath)

	if err := security.SanitizeArgs(args); err != nil {
		return fmt.Errorf("ffmpeg: rejected arguments: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &EncodeError{Err: err, Stderr: stderr.String()}
	}
	return nil
}

// Snapshot grabs a single still frame at offsetSeconds into destPath,
// producing clip thumbnails.
func (r *Runner) Snapshot(ctx context.Context, inputPath string, offsetSeconds float64, destPath string) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("ffmpeg: acquire concurrency slot: %w", err)
	}
	defer r.sem.Release(1)

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", offsetSeconds),
		"-i", inputPath,
		"-frames:v", "1",
		destPath,
	}
	if err := security.SanitizeArgs(args); err != nil {
		return fmt.Errorf("ffmpeg: rejected arguments: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &EncodeError{Err: err, Stderr: stderr.String()}
	}
	return nil
}

// ExtractStreamCopy stream-copies [startSeconds, endSeconds) out of source
// with a single input-seek.
func (r *Runner) ExtractStreamCopy(ctx context.Context, sourcePath string, startSeconds, durationSeconds float64, destPath string) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("ffmpeg: acquire concurrency slot: %w", err)
	}
	defer r.sem.Release(1)

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", startSeconds),
		"-i", sourcePath,
		"-t", fmt.Sprintf("%.3f", durationSeconds),
		"-c", "copy",
		destPath,
	}
	if err := security.SanitizeArgs(args); err != nil {
		return fmt.Errorf("ffmpeg: rejected arguments: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &EncodeError{Err: err, Stderr: stderr.String()}
	}
	return nil
}

// SampleFrames dumps one JPEG per output of the given fps into destDir,
// named frame-00001.jpg, frame-00002.jpg, ... in presentation order, the
// raw input the detection engine letterboxes and tracks.
func (r *Runner) SampleFrames(ctx context.Context, inputPath string, fps float64, destDir string) ([]string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("ffmpeg: acquire concurrency slot: %w", err)
	}
	defer r.sem.Release(1)

	pattern := destDir + "/frame-%05d.jpg"
	args := []string{
		"-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("fps=%.3f", fps),
		pattern,
	}
	if err := security.SanitizeArgs(args); err != nil {
		return nil, fmt.Errorf("ffmpeg: rejected arguments: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &EncodeError{Err: err, Stderr: stderr.String()}
	}

	matches, err := filepath.Glob(destDir + "/frame-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: glob sampled frames: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// EncodeError carries ffmpeg's stderr alongside the process error so callers
// can detect the sendcmd-unsupported fallback trigger (SendcmdUnsupported).
type EncodeError struct {
	Err    error
	Stderr string
}

func (e *EncodeError) Error() string { return fmt.Sprintf("ffmpeg failed: %v: %s", e.Err, e.Stderr) }
func (e *EncodeError) Unwrap() error { return e.Err }
