package conn

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// LockMode selects how an object's lock is acquired.
type LockMode int

const (
	// LockExclusive acquires the lock for writing. It is the default
	// when LockShared is not set.
	LockExclusive LockMode = 1 << iota

	// LockShared acquires the lock for reading.
	LockShared

	// LockIgnoreGone skips the gone check. Only the teardown path and
	// the administrative dump use it.
	LockIgnoreGone
)

func (m LockMode) exclusive() bool {
	return m&LockShared == 0
}

// exclusiveWeight is the semaphore weight of an exclusive holder. A
// shared holder weighs 1, so an exclusive acquisition waits for every
// shared holder and blocks new ones while it is queued.
const exclusiveWeight = 1 << 30

// rwLock is a shared/exclusive lock whose waits can be cancelled through
// a context. sync.RWMutex cannot be interrupted, which is why this is
// built on a weighted semaphore.
type rwLock struct {
	sem *semaphore.Weighted

	mu    sync.Mutex
	owner uint64 // exclusive holder's owner token, 0 when unknown or free
}

func newRWLock() rwLock {
	return rwLock{sem: semaphore.NewWeighted(exclusiveWeight)}
}

func (l *rwLock) acquire(ctx context.Context, exclusive bool) error {
	if exclusive {
		return l.sem.Acquire(ctx, exclusiveWeight)
	}
	return l.sem.Acquire(ctx, 1)
}

func (l *rwLock) release(exclusive bool) {
	if exclusive {
		l.sem.Release(exclusiveWeight)
		return
	}
	l.sem.Release(1)
}

func (l *rwLock) setOwner(owner uint64) {
	l.mu.Lock()
	l.owner = owner
	l.mu.Unlock()
}

func (l *rwLock) heldBy(owner uint64) bool {
	if owner == 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner == owner
}

// ============================================================================
// Lock owners
// ============================================================================

type ownerKey struct{}

var nextOwner atomic.Uint64

// NewOwner returns a context carrying a fresh lock owner token, replacing
// any token ctx already has. Exclusive acquisitions made with that
// context record the token, and a second acquisition of the same object
// with the same token fails with ErrRecursiveLock instead of
// deadlocking.
//
// A token identifies one call on one goroutine. Every public operation
// that locks mints its own, so callers sharing a context across
// goroutines still wait for each other.
func NewOwner(ctx context.Context) context.Context {
	return context.WithValue(ctx, ownerKey{}, nextOwner.Add(1))
}

func ownerFrom(ctx context.Context) uint64 {
	if ctx == nil {
		return 0
	}
	owner, _ := ctx.Value(ownerKey{}).(uint64)
	return owner
}
