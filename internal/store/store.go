// Package store is the gorm-backed document store: users, videos,
// highlights, clips, plans, and share slugs, with optimistic-concurrency
// updates gated by each row's updated_at as a precondition token.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrPreconditionFailed is returned when a conditional write's token is stale.
var ErrPreconditionFailed = errors.New("store: precondition failed")

// ErrNotFound mirrors gorm.ErrRecordNotFound under a package-local name so
// callers don't need to import gorm directly.
var ErrNotFound = gorm.ErrRecordNotFound

// User is the `users/{uid}` document.
type User struct {
	UID                  string `gorm:"primaryKey"`
	PlanID               string `gorm:"default:free"`
	Role                 string `gorm:"default:user"`
	CreditsUsedThisMonth uint32
	UsageResetMonth      string // "YYYY-MM"
	StorageUsedBytes     int64
	ClipCount            int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PlanLimits is the `plans/{plan_id}` read-only lookup document.
type PlanLimits struct {
	PlanID              string `gorm:"primaryKey"`
	MonthlyCredits       uint32
	StorageCapBytes      int64
	AllowedTiers         datatypes.JSONSlice[string]
	WatermarkEnabled     bool
	FeatureFlags         datatypes.JSONMap
}

// Video is the `users/{uid}/videos/{video_id}` document.
type Video struct {
	VideoID             string `gorm:"primaryKey"`
	UID                 string `gorm:"index"`
	SourceURL           string
	Title               string
	Status              string
	SourceCacheKey      string
	SourceCacheStatus   string
	ExpectedClips       int
	CompletedClips      int
	ProcessingProgress  int
	ClipsByStyle        datatypes.JSONMap
	FailureReason       string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Highlight is one row of the immutable highlight set owned by a video.
type Highlight struct {
	VideoID   string `gorm:"primaryKey"`
	SceneID   uint32 `gorm:"primaryKey"`
	Title     string
	Start     string
	End       string
	PadBefore float64
	PadAfter  float64
	Category  string
}

// Clip is the `users/{uid}/videos/{video_id}/clips/{clip_id}` document.
type Clip struct {
	ClipID       string `gorm:"primaryKey"`
	VideoID      string `gorm:"index"`
	UID          string `gorm:"index"`
	SceneID      uint32
	Style        string
	ByteRangeStart int64
	ByteRangeEnd   int64
	FileSize       int64
	ObjectKey      string
	ThumbnailKey   string
	RawSegmentKey  string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ShareSlug is the `share_slugs/{slug}` document.
type ShareSlug struct {
	Slug      string `gorm:"primaryKey"`
	VideoID   string
	UID       string
	CreatedAt time.Time
}

// Store wraps a *gorm.DB with the domain operations the rest of the codebase needs.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

// AutoMigrate creates/updates the schema for all document types. Production
// deployments instead run the golang-migrate-driven `migrate` CLI subcommand
// against versioned SQL; AutoMigrate remains for the sqlite test backend.
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&User{}, &PlanLimits{}, &Video{}, &Highlight{}, &Clip{}, &ShareSlug{})
}

// GetOrCreateUser reads the user document, creating it under an
// if-not-exists precondition when absent.
func (s *Store) GetOrCreateUser(ctx context.Context, uid string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, "uid = ?", uid).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u = User{UID: uid, PlanID: "free", Role: "user"}
	createErr := s.db.WithContext(ctx).Clauses(onConflictDoNothing()).Create(&u).Error
	if createErr != nil {
		return nil, fmt.Errorf("create user: %w", createErr)
	}
	// Re-read: another writer may have won the if-not-exists race.
	if err := s.db.WithContext(ctx).First(&u, "uid = ?", uid).Error; err != nil {
		return nil, fmt.Errorf("reread user after create: %w", err)
	}
	return &u, nil
}

// GetUser reads the user document without creating it.
func (s *Store) GetUser(ctx context.Context, uid string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "uid = ?", uid).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserConditional writes back a user row, using `token` (the UpdatedAt
// value the caller last observed) as the optimistic-concurrency precondition.
// Returns ErrPreconditionFailed if another writer updated the row first.
func (s *Store) UpdateUserConditional(ctx context.Context, updated *User, token time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&User{}).
		Where("uid = ? AND updated_at = ?", updated.UID, token).
		Updates(map[string]any{
			"plan_id":                  updated.PlanID,
			"credits_used_this_month":  updated.CreditsUsedThisMonth,
			"usage_reset_month":        updated.UsageResetMonth,
			"storage_used_bytes":       updated.StorageUsedBytes,
			"clip_count":               updated.ClipCount,
		})
	if res.Error != nil {
		return fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

func (s *Store) GetPlanLimits(ctx context.Context, planID string) (*PlanLimits, error) {
	var p PlanLimits
	if err := s.db.WithContext(ctx).First(&p, "plan_id = ?", planID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateVideo(ctx context.Context, v *Video) error {
	return s.db.WithContext(ctx).Create(v).Error
}

func (s *Store) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	var v Video
	if err := s.db.WithContext(ctx).First(&v, "video_id = ?", videoID).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateVideoConditional is the optimistic write for video documents, gated
// on the same updated_at precondition token as UpdateUserConditional.
func (s *Store) UpdateVideoConditional(ctx context.Context, updated *Video, token time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&Video{}).
		Where("video_id = ? AND updated_at = ?", updated.VideoID, token).
		Updates(map[string]any{
			"status":              updated.Status,
			"source_cache_key":    updated.SourceCacheKey,
			"source_cache_status": updated.SourceCacheStatus,
			"expected_clips":      updated.ExpectedClips,
			"completed_clips":     updated.CompletedClips,
			"processing_progress": updated.ProcessingProgress,
			"clips_by_style":      updated.ClipsByStyle,
			"failure_reason":      updated.FailureReason,
		})
	if res.Error != nil {
		return fmt.Errorf("update video: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// PutHighlights persists the immutable highlight set for a video exactly once.
func (s *Store) PutHighlights(ctx context.Context, videoID string, highlights []Highlight) error {
	for i := range highlights {
		highlights[i].VideoID = videoID
	}
	return s.db.WithContext(ctx).Clauses(onConflictDoNothing()).Create(&highlights).Error
}

func (s *Store) ListHighlights(ctx context.Context, videoID string) ([]Highlight, error) {
	var hs []Highlight
	err := s.db.WithContext(ctx).Where("video_id = ?", videoID).Order("scene_id").Find(&hs).Error
	return hs, err
}

func (s *Store) CreateClip(ctx context.Context, c *Clip) error {
	return s.db.WithContext(ctx).Create(c).Error
}

// UpdateClip overwrites an existing clip row in place (by ClipID), used to
// advance a clip from Processing to Completed or Failed without allocating
// a new row.
func (s *Store) UpdateClip(ctx context.Context, c *Clip) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *Store) GetClip(ctx context.Context, clipID string) (*Clip, error) {
	var c Clip
	if err := s.db.WithContext(ctx).First(&c, "clip_id = ?", clipID).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListClipsForVideo(ctx context.Context, videoID string) ([]Clip, error) {
	var cs []Clip
	err := s.db.WithContext(ctx).Where("video_id = ?", videoID).Find(&cs).Error
	return cs, err
}

// ListClipsForUser lists every clip a user owns, across all videos; the
// source of truth Recalculate sums against to rebuild storage accounting.
func (s *Store) ListClipsForUser(ctx context.Context, uid string) ([]Clip, error) {
	var cs []Clip
	err := s.db.WithContext(ctx).Where("uid = ?", uid).Find(&cs).Error
	return cs, err
}

// ListUserIDs returns every known user id, for the janitor's periodic
// storage-accounting sweep.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var uids []string
	err := s.db.WithContext(ctx).Model(&User{}).Pluck("uid", &uids).Error
	return uids, err
}

// DeleteVideoCascade removes a video and every document it owns.
func (s *Store) DeleteVideoCascade(ctx context.Context, videoID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).Delete(&Clip{}).Error; err != nil {
			return err
		}
		if err := tx.Where("video_id = ?", videoID).Delete(&Highlight{}).Error; err != nil {
			return err
		}
		return tx.Where("video_id = ?", videoID).Delete(&Video{}).Error
	})
}

// PutShareSlug inserts slug, returning ErrPreconditionFailed if the slug
// already exists (an ON CONFLICT DO NOTHING insert with zero rows affected)
// so callers generating random slugs can retry on the rare collision.
func (s *Store) PutShareSlug(ctx context.Context, slug *ShareSlug) error {
	tx := s.db.WithContext(ctx).Clauses(onConflictDoNothing()).Create(slug)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

func (s *Store) GetShareSlug(ctx context.Context, slug string) (*ShareSlug, error) {
	var sl ShareSlug
	if err := s.db.WithContext(ctx).First(&sl, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &sl, nil
}
