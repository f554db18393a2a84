package wsgateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrTooManyConnections is returned when a user is already at their
// process-local connection cap.
var ErrTooManyConnections = fmt.Errorf("wsgateway: too many concurrent connections for this user")

// ErrJobTooSoon is returned when a user's last job was enqueued less than
// MinJobInterval ago.
var ErrJobTooSoon = fmt.Errorf("wsgateway: job submitted too soon after the previous one")

type userState struct {
	mu          sync.Mutex
	connections int
	lastJobAt   time.Time
}

// UserConnectionTracker is process-local bookkeeping for the per-user
// connection cap and minimum job interval. The cap is advisory, not a
// security boundary; a gateway restart losing these counts is tolerated.
// The user map is a lock-free xsync.MapOf so connects/disconnects for
// different users never contend on a single mutex; each user's own counters
// are still serialized by a per-entry lock.
type UserConnectionTracker struct {
	users          *xsync.MapOf[string, *userState]
	maxPerUser     int
	minJobInterval time.Duration
}

func NewUserConnectionTracker(maxPerUser int, minJobInterval time.Duration) *UserConnectionTracker {
	return &UserConnectionTracker{
		users:          xsync.NewMapOf[string, *userState](),
		maxPerUser:     maxPerUser,
		minJobInterval: minJobInterval,
	}
}

func (t *UserConnectionTracker) stateFor(uid string) *userState {
	st, _ := t.users.LoadOrCompute(uid, func() *userState { return &userState{} })
	return st
}

// Acquire reserves one connection slot for uid, returning a release func the
// caller must call on scope exit.
func (t *UserConnectionTracker) Acquire(uid string) (func(), error) {
	st := t.stateFor(uid)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.connections >= t.maxPerUser {
		return nil, ErrTooManyConnections
	}
	st.connections++
	return func() { t.release(uid) }, nil
}

func (t *UserConnectionTracker) release(uid string) {
	st, ok := t.users.Load(uid)
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.connections--
	if st.connections <= 0 && st.lastJobAt.IsZero() {
		t.users.Delete(uid)
	}
}

// CheckJobInterval reports ErrJobTooSoon if uid submitted a job within the
// last MinJobInterval.
func (t *UserConnectionTracker) CheckJobInterval(uid string) error {
	st, ok := t.users.Load(uid)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.lastJobAt.IsZero() {
		return nil
	}
	if time.Since(st.lastJobAt) < t.minJobInterval {
		return ErrJobTooSoon
	}
	return nil
}

// RecordJob stamps uid's last job submission time.
func (t *UserConnectionTracker) RecordJob(uid string) {
	st := t.stateFor(uid)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastJobAt = time.Now()
}
