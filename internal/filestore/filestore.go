// Package filestore is the object-store abstraction behind the
// content-addressed key layout (source videos, raw segments, rendered
// clips, neural-analysis blobs). It wraps gocloud.dev/blob so the concrete
// backend (GCS in production, a local fileblob in tests) is swappable
// without touching call sites.
package filestore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
)

//go:generate mockgen -source $GOFILE -destination filestore_mocks.go -package $GOPACKAGE

// ObjectStore is the capability interface the rest of the codebase depends
// on: get/put/exists/delete over opaque keys.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Write(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string) (string, error)
}

type blobStore struct {
	bucket *blob.Bucket
}

// OpenGCS opens a GCS-backed bucket, e.g. "gs://vclip-data". It also probes
// the bucket with the native client at startup, so a misconfigured bucket
// name or missing credentials surfaces immediately instead of on the first
// request.
func OpenGCS(ctx context.Context, bucketURL string) (ObjectStore, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open gcs bucket: %w", err)
	}

	bucketName := strings.TrimPrefix(bucketURL, "gs://")
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs client: %w", err)
	}
	attrs, err := client.Bucket(bucketName).Attrs(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("probe gcs bucket %s: %w", bucketName, err)
	}
	log.Info().Str("bucket", bucketName).Str("storage_class", attrs.StorageClass).Msg("gcs bucket ready")
	_ = client.Close()

	return &blobStore{bucket: b}, nil
}

// OpenLocal opens a fileblob-backed bucket rooted at dir, used for local
// development and tests.
func OpenLocal(ctx context.Context, dir string) (ObjectStore, error) {
	b, err := blob.OpenBucket(ctx, "file://"+dir)
	if err != nil {
		return nil, fmt.Errorf("open local bucket: %w", err)
	}
	return &blobStore{bucket: b}, nil
}

func (s *blobStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return ok, nil
}

func (s *blobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return r, nil
}

func (s *blobStore) Write(ctx context.Context, key string, r io.Reader) error {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: close: %w", key, err)
	}
	return nil
}

func (s *blobStore) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *blobStore) SignedURL(ctx context.Context, key string) (string, error) {
	url, err := s.bucket.SignedURL(ctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("signed url %s: %w", key, err)
	}
	return url, nil
}

// Key layout. Every function here returns the opaque object-store
// key for one of the four content-addressed artifact families.

func SourceKey(uid, videoID string) string {
	return path.Join("source", uid, videoID+".mp4")
}

func RawSegmentKey(uid, videoID string, sceneID uint32) string {
	return path.Join("clips", uid, videoID, "raw", fmt.Sprintf("%d.mp4", sceneID))
}

func ClipKey(uid, videoID, filename string) string {
	return path.Join("clips", uid, videoID, filename)
}

func NeuralAnalysisKey(videoID string, sceneID uint32, tier string) string {
	return path.Join("neural", videoID, fmt.Sprintf("%d", sceneID), tier+".bin")
}

// IsUnderPrefix reports whether key lives under the given top-level prefix.
func IsUnderPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix+"/")
}
