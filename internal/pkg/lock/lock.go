// Package lock provides per-user locking for balance operations.
// Same-user requests are serialized in-process before they reach the
// database, where the row lock remains the authority across instances.
package lock

import (
	"context"
	"sync"
)

// entry is a one-slot semaphore with a reference count so idle users
// can be dropped from the map.
type entry struct {
	sem  chan struct{}
	refs int
}

// UserLock provides per-user mutual exclusion with context support.
type UserLock struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{locks: make(map[int64]*entry)}
}

func (ul *UserLock) acquire(userID int64) *entry {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e, ok := ul.locks[userID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		ul.locks[userID] = e
	}
	e.refs++
	return e
}

func (ul *UserLock) release(userID int64, e *entry) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(ul.locks, userID)
	}
}

// Lock acquires the lock for a user, giving up when ctx is done.
func (ul *UserLock) Lock(ctx context.Context, userID int64) error {
	e := ul.acquire(userID)
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.release(userID, e)
		return ErrLockTimeout
	}
}

// Unlock releases the lock for a user.
func (ul *UserLock) Unlock(userID int64) {
	ul.mu.Lock()
	e, ok := ul.locks[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}
	<-e.sem
	ul.release(userID, e)
}

// WithLock executes fn while holding the user's lock.
func (ul *UserLock) WithLock(ctx context.Context, userID int64, fn func() error) error {
	if err := ul.Lock(ctx, userID); err != nil {
		return err
	}
	defer ul.Unlock(userID)
	return fn()
}

// Len returns the number of users with a held or awaited lock.
func (ul *UserLock) Len() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.locks)
}
