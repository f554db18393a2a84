package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/vclip/vclip/internal/filestore"
	"github.com/vclip/vclip/internal/lock"
)

// ModelVersion identifies the detection model revision that produced a
// neural-analysis payload. A cache hit whose stored version doesn't match
// the current one is treated as a miss.
const ModelVersion = "yolov8n-1"

// TrackedFace mirrors internal/detect's output shape; duplicated here (not
// imported) so the cache package has no dependency on the detection engine.
type TrackedFace struct {
	TrackID        uint32
	X, Y, W, H     float64
	Confidence     float64
	MouthOpenness  float64
}

// ObjectDetection is a generic per-frame object box, independent of faces.
type ObjectDetection struct {
	Label      string
	X, Y, W, H float64
	Confidence float64
}

// Payload is the gob-encoded, versioned contents of one neural-analysis
// blob. Faces, objects, and shot boundaries are independent sub-caches
// within the same blob: a payload may have faces populated and objects nil,
// meaning "objects not yet computed" rather than "no objects present";
// HasObjects/HasShotBoundaries disambiguate the two.
type Payload struct {
	ModelVersion     string
	Faces            []FrameFaces
	HasObjects       bool
	Objects          []FrameObjects
	HasShotBoundaries bool
	ShotBoundaries   []int
}

type FrameFaces struct {
	FrameIndex int
	Faces      []TrackedFace
}

type FrameObjects struct {
	FrameIndex int
	Objects    []ObjectDetection
}

// NeuralCache is the neural-analysis cache: an in-process ristretto hot
// layer in front of the blob-backed cache, with the same single-flight
// shape as the other two caches.
type NeuralCache struct {
	objects filestore.ObjectStore
	locks   *lock.Client
	hot     *ristretto.Cache[string, Payload]
}

func NewNeuralCache(objects filestore.ObjectStore, locks *lock.Client) (*NeuralCache, error) {
	hot, err := ristretto.NewCache(&ristretto.Config[string, Payload]{
		NumCounters: 1e5,
		MaxCost:     1 << 27, // 128MB of hot entries per worker process
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("neural cache: init ristretto: %w", err)
	}
	return &NeuralCache{objects: objects, locks: locks, hot: hot}, nil
}

func (c *NeuralCache) Close() { c.hot.Close() }

// Get reads the cached payload for (videoID, sceneID, tier), returning
// (nil, false) on a miss or a stale ModelVersion.
func (c *NeuralCache) Get(ctx context.Context, videoID string, sceneID uint32, tier string) (*Payload, bool, error) {
	key := filestore.NeuralAnalysisKey(videoID, sceneID, tier)

	if p, ok := c.hot.Get(key); ok {
		if p.ModelVersion == ModelVersion {
			return &p, true, nil
		}
		c.hot.Del(key)
	}

	exists, err := c.objects.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("neural cache: check existence: %w", err)
	}
	if !exists {
		return nil, false, nil
	}

	r, err := c.objects.Open(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("neural cache: open blob: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("neural cache: read blob: %w", err)
	}

	var p Payload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, false, fmt.Errorf("neural cache: decode payload: %w", err)
	}
	if p.ModelVersion != ModelVersion {
		return nil, false, nil
	}
	c.hot.Set(key, p, int64(len(data)))
	return &p, true, nil
}

// Put writes a payload, stamping it with the current ModelVersion.
func (c *NeuralCache) Put(ctx context.Context, videoID string, sceneID uint32, tier string, p Payload) error {
	p.ModelVersion = ModelVersion
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("neural cache: encode payload: %w", err)
	}
	key := filestore.NeuralAnalysisKey(videoID, sceneID, tier)
	if err := c.objects.Write(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("neural cache: upload: %w", err)
	}
	c.hot.Set(key, p, int64(buf.Len()))
	return nil
}

// Producer computes a fresh payload (or a partial one, e.g. objects-only)
// when the cache is missing or stale.
type Producer interface {
	Analyze(ctx context.Context, videoID string, sceneID uint32, tier string, existing *Payload) (Payload, error)
}

// GetOrCompute runs the single-flight acquisition shape shared by all three
// caches: fast-path hit, else acquire the per-key lock and compute, else
// wait for the winner and retry.
func (c *NeuralCache) GetOrCompute(ctx context.Context, videoID string, sceneID uint32, tier string, producer Producer) (*Payload, error) {
	if p, ok, err := c.Get(ctx, videoID, sceneID, tier); err != nil {
		return nil, err
	} else if ok && p.HasObjects && p.HasShotBoundaries && len(p.Faces) > 0 {
		return p, nil
	}

	lockKey := lock.NeuralAnalysisLockKey(videoID, sceneID, tier)
	for attempt := 0; attempt <= maxLockWaitRetries; attempt++ {
		l, err := c.locks.Acquire(ctx, lockKey, time.Hour)
		if err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				time.Sleep(lockWaitRetryDelay * time.Duration(attempt+1))
				if p, ok, gerr := c.Get(ctx, videoID, sceneID, tier); gerr == nil && ok {
					return p, nil
				}
				continue
			}
			return nil, fmt.Errorf("neural cache: acquire lock: %w", err)
		}

		existing, _, _ := c.Get(ctx, videoID, sceneID, tier)
		payload, err := producer.Analyze(ctx, videoID, sceneID, tier, existing)
		relErr := c.locks.Release(ctx, l)
		if err != nil {
			return nil, fmt.Errorf("neural cache: compute: %w", err)
		}
		if relErr != nil {
			return nil, fmt.Errorf("neural cache: release lock: %w", relErr)
		}
		if err := c.Put(ctx, videoID, sceneID, tier, payload); err != nil {
			return nil, err
		}
		return &payload, nil
	}
	return nil, fmt.Errorf("neural cache: exhausted retries for scene %d tier %s", sceneID, tier)
}
