// Package quota implements monthly credit reservation and storage
// accounting under the document store's optimistic-concurrency protocol.
// Two entry points exist: a cheap pre-check used by the gateway before
// enqueue, and the authoritative atomic reservation used by the worker just
// before billing a completed unit of work.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/store"
)

// ErrInsufficientCredits is returned when a reservation would exceed the
// plan's monthly credit budget.
var ErrInsufficientCredits = errors.New("quota: insufficient credits")

// ErrStorageExceeded is returned when a reservation would exceed the plan's
// storage cap.
var ErrStorageExceeded = errors.New("quota: storage cap exceeded")

// ErrConcurrentUpdate is returned after exhausting the optimistic-concurrency
// retry budget.
var ErrConcurrentUpdate = errors.New("quota: concurrent update, retries exhausted")

const (
	maxRetries       = 5
	retryBaseDelay   = 50 * time.Millisecond
)

// Store is the subset of *store.Store this package needs, so tests can fake it.
type Store interface {
	GetOrCreateUser(ctx context.Context, uid string) (*store.User, error)
	GetPlanLimits(ctx context.Context, planID string) (*store.PlanLimits, error)
	UpdateUserConditional(ctx context.Context, updated *store.User, token time.Time) error
	ListClipsForUser(ctx context.Context, uid string) ([]store.Clip, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// RecalculateAll rebuilds storage accounting for every known user, logging
// and continuing past a single user's failure instead of aborting the sweep.
func (m *Manager) RecalculateAll(ctx context.Context) error {
	uids, err := m.store.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("recalculate all: list users: %w", err)
	}
	for _, uid := range uids {
		if err := m.Recalculate(ctx, uid); err != nil {
			log.Error().Err(err).Str("uid", uid).Msg("storage recalculation failed")
		}
	}
	return nil
}

// Manager performs quota reservation and storage accounting.
type Manager struct {
	store Store
}

func NewManager(s Store) *Manager { return &Manager{store: s} }

func currentMonth(now time.Time) string { return now.Format("2006-01") }

// effectiveCredits returns credits_used_this_month, resetting to zero when
// the stored usage_reset_month differs from the current calendar month.
func effectiveCredits(u *store.User, now time.Time) uint32 {
	if u.UsageResetMonth != currentMonth(now) {
		return 0
	}
	return u.CreditsUsedThisMonth
}

// CheckAllQuotas is the cheap pre-check the gateway runs before enqueueing a
// job: it does not reserve anything, it only reports whether the user has
// headroom under their plan's monthly credits and storage cap.
func (m *Manager) CheckAllQuotas(ctx context.Context, uid string, requestedCredits uint32) error {
	u, err := m.store.GetOrCreateUser(ctx, uid)
	if err != nil {
		return fmt.Errorf("check quotas: %w", err)
	}
	plan, err := m.store.GetPlanLimits(ctx, u.PlanID)
	if err != nil {
		return fmt.Errorf("check quotas: load plan: %w", err)
	}
	if effectiveCredits(u, time.Now())+requestedCredits > plan.MonthlyCredits {
		return ErrInsufficientCredits
	}
	if u.StorageUsedBytes >= plan.StorageCapBytes {
		return ErrStorageExceeded
	}
	return nil
}

// CheckAndReserveCredits is the sole billing path in this codebase: it
// atomically reserves `requested` credits against the user's monthly
// budget, retrying on precondition failure with linear backoff.
func (m *Manager) CheckAndReserveCredits(ctx context.Context, uid string, requested uint32) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		u, err := m.store.GetOrCreateUser(ctx, uid)
		if err != nil {
			return fmt.Errorf("reserve credits: %w", err)
		}
		plan, err := m.store.GetPlanLimits(ctx, u.PlanID)
		if err != nil {
			return fmt.Errorf("reserve credits: load plan: %w", err)
		}

		now := time.Now()
		used := effectiveCredits(u, now)
		if used+requested > plan.MonthlyCredits {
			return ErrInsufficientCredits
		}

		token := u.UpdatedAt
		updated := *u
		updated.CreditsUsedThisMonth = used + requested
		updated.UsageResetMonth = currentMonth(now)

		err = m.store.UpdateUserConditional(ctx, &updated, token)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrPreconditionFailed) {
			return fmt.Errorf("reserve credits: %w", err)
		}
		log.Debug().Str("uid", uid).Int("attempt", attempt).Msg("quota reservation lost race, retrying")
		time.Sleep(retryBaseDelay * time.Duration(attempt+1))
	}
	return ErrConcurrentUpdate
}

// AdjustStorage applies a signed delta to storage_used_bytes and clip_count,
// saturating at zero, using the same optimistic-concurrency retry shape.
// delta is positive on clip creation (+size, +1) and negative on clip
// deletion (-size, -1).
func (m *Manager) AdjustStorage(ctx context.Context, uid string, byteDelta int64, clipCountDelta int64) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		u, err := m.store.GetOrCreateUser(ctx, uid)
		if err != nil {
			return fmt.Errorf("adjust storage: %w", err)
		}

		token := u.UpdatedAt
		updated := *u
		updated.StorageUsedBytes = saturateAtZero(u.StorageUsedBytes + byteDelta)
		updated.ClipCount = saturateAtZero(u.ClipCount + clipCountDelta)

		err = m.store.UpdateUserConditional(ctx, &updated, token)
		if err == nil {
			log.Debug().Str("uid", uid).Str("storage", humanize.Bytes(uint64(updated.StorageUsedBytes))).Msg("storage accounting updated")
			return nil
		}
		if !errors.Is(err, store.ErrPreconditionFailed) {
			return fmt.Errorf("adjust storage: %w", err)
		}
		time.Sleep(retryBaseDelay * time.Duration(attempt+1))
	}
	return ErrConcurrentUpdate
}

// Recalculate rebuilds storage_used_bytes and clip_count from the clips a
// user actually owns, correcting the drift storage accounting's eventual
// consistency permits. It is not on any request path; RecalculateAll runs
// it for every user from the janitor's periodic sweep.
func (m *Manager) Recalculate(ctx context.Context, uid string) error {
	clips, err := m.store.ListClipsForUser(ctx, uid)
	if err != nil {
		return fmt.Errorf("recalculate: list clips: %w", err)
	}
	var totalBytes int64
	for _, c := range clips {
		totalBytes += c.FileSize
	}
	clipCount := int64(len(clips))

	for attempt := 0; attempt < maxRetries; attempt++ {
		u, err := m.store.GetOrCreateUser(ctx, uid)
		if err != nil {
			return fmt.Errorf("recalculate: %w", err)
		}

		token := u.UpdatedAt
		updated := *u
		updated.StorageUsedBytes = totalBytes
		updated.ClipCount = clipCount

		err = m.store.UpdateUserConditional(ctx, &updated, token)
		if err == nil {
			log.Info().Str("uid", uid).Str("storage", humanize.Bytes(uint64(totalBytes))).Int64("clips", clipCount).Msg("storage accounting recalculated")
			return nil
		}
		if !errors.Is(err, store.ErrPreconditionFailed) {
			return fmt.Errorf("recalculate: %w", err)
		}
		time.Sleep(retryBaseDelay * time.Duration(attempt+1))
	}
	return ErrConcurrentUpdate
}

func saturateAtZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
