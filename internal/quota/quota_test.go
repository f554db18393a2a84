package quota

import (
	"context"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"gotest.tools/v3/assert"

	"github.com/vclip/vclip/internal/store"
)

func TestCheckAndReserveCreditsRejectsOverBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := NewMockStore(ctrl)
	now := time.Now()
	mockStore.EXPECT().GetOrCreateUser(gomock.Any(), "uid-1").Return(&store.User{
		UID: "uid-1", PlanID: "free", CreditsUsedThisMonth: 9, UsageResetMonth: currentMonth(now), UpdatedAt: now,
	}, nil)
	mockStore.EXPECT().GetPlanLimits(gomock.Any(), "free").Return(&store.PlanLimits{
		PlanID: "free", MonthlyCredits: 10, StorageCapBytes: 1 << 30,
	}, nil)

	m := NewManager(mockStore)
	err := m.CheckAndReserveCredits(context.Background(), "uid-1", 5)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestCheckAndReserveCreditsRetriesOnConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := NewMockStore(ctrl)
	now := time.Now()
	user := &store.User{UID: "uid-2", PlanID: "free", UsageResetMonth: currentMonth(now), UpdatedAt: now}
	plan := &store.PlanLimits{PlanID: "free", MonthlyCredits: 10, StorageCapBytes: 1 << 30}

	mockStore.EXPECT().GetOrCreateUser(gomock.Any(), "uid-2").Return(user, nil).Times(2)
	mockStore.EXPECT().GetPlanLimits(gomock.Any(), "free").Return(plan, nil).Times(2)
	gomock.InOrder(
		mockStore.EXPECT().UpdateUserConditional(gomock.Any(), gomock.Any(), now).Return(store.ErrPreconditionFailed),
		mockStore.EXPECT().UpdateUserConditional(gomock.Any(), gomock.Any(), now).Return(nil),
	)

	m := NewManager(mockStore)
	err := m.CheckAndReserveCredits(context.Background(), "uid-2", 1)
	assert.NilError(t, err)
}

func TestRecalculateAllContinuesPastOneUserFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := NewMockStore(ctrl)
	mockStore.EXPECT().ListUserIDs(gomock.Any()).Return([]string{"uid-bad", "uid-good"}, nil)
	mockStore.EXPECT().ListClipsForUser(gomock.Any(), "uid-bad").Return(nil, assertError{})
	mockStore.EXPECT().ListClipsForUser(gomock.Any(), "uid-good").Return([]store.Clip{{FileSize: 100}}, nil)
	mockStore.EXPECT().GetOrCreateUser(gomock.Any(), "uid-good").Return(&store.User{UID: "uid-good", UpdatedAt: time.Now()}, nil)
	mockStore.EXPECT().UpdateUserConditional(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	m := NewManager(mockStore)
	err := m.RecalculateAll(context.Background())
	assert.NilError(t, err)
}

type assertError struct{}

func (assertError) Error() string { return "simulated list failure" }
