package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // shared in-memory cache needs a single connection to stay visible across calls
	s := New(db)
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u1, err := s.GetOrCreateUser(ctx, "uid-1")
	require.NoError(t, err)
	require.Equal(t, "free", u1.PlanID)

	u2, err := s.GetOrCreateUser(ctx, "uid-1")
	require.NoError(t, err)
	require.Equal(t, u1.CreatedAt, u2.CreatedAt)
}

func TestUpdateUserConditionalRejectsStaleToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.GetOrCreateUser(ctx, "uid-2")
	require.NoError(t, err)

	staleToken := u.UpdatedAt
	u.PlanID = "pro"
	require.NoError(t, s.UpdateUserConditional(ctx, u, staleToken))

	// Reusing the now-stale token must fail: another write already moved
	// updated_at forward.
	u.PlanID = "studio"
	err = s.UpdateUserConditional(ctx, u, staleToken)
	require.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestPutShareSlugRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	slug := &ShareSlug{Slug: "abc123", VideoID: "v1", UID: "uid-1"}
	require.NoError(t, s.PutShareSlug(ctx, slug))

	err := s.PutShareSlug(ctx, &ShareSlug{Slug: "abc123", VideoID: "v2", UID: "uid-2"})
	require.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestListUserIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateUser(ctx, "uid-a")
	require.NoError(t, err)
	_, err = s.GetOrCreateUser(ctx, "uid-b")
	require.NoError(t, err)

	uids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"uid-a", "uid-b"}, uids)
}
