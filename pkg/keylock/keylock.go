// Package keylock provides named mutual-exclusion locks with a bounded
// acquire wait. It serializes overlapping scheduler fires for the same
// (job, tenant) key: a newly-fired invocation suspends until the lock is
// free or the timeout elapses, in which case it is abandoned rather than
// queued indefinitely. No external dependencies - uses only standard library.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when a lock could not be acquired within
// its timeout, or the context was cancelled while waiting.
var ErrNotAcquired = errors.New("keylock: lock not acquired within timeout")

// KeyedLock manages a set of independently acquirable locks keyed by name.
// Locks for different keys never contend with each other.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// New creates an empty KeyedLock.
func New() *KeyedLock {
	return &KeyedLock{
		locks: make(map[string]chan struct{}),
	}
}

// semaphore returns the buffered channel acting as the lock for key,
// creating it on first use.
func (kl *KeyedLock) semaphore(key string) chan struct{} {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	sem, ok := kl.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		kl.locks[key] = sem
	}
	return sem
}

// Acquire obtains the lock for key, waiting at most timeout. On success
// it returns a release function that must be called exactly once. On
// timeout or context cancellation it returns ErrNotAcquired.
func (kl *KeyedLock) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	sem := kl.semaphore(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() { <-sem })
		}
		return release, nil
	case <-timer.C:
		return nil, ErrNotAcquired
	case <-ctx.Done():
		return nil, ErrNotAcquired
	}
}

// TryAcquire obtains the lock for key without waiting. It returns the
// release function and true on success, or nil and false if the lock is
// currently held.
func (kl *KeyedLock) TryAcquire(key string) (func(), bool) {
	sem := kl.semaphore(key)

	select {
	case sem <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() { <-sem })
		}
		return release, true
	default:
		return nil, false
	}
}
