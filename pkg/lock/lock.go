// Package lock provides a keyed mutual-exclusion primitive used to serialize
// read-then-write sections that share a key, such as queue number allocation
// and double-booking checks for one doctor on one date.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when the lock for a key could not be obtained.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker guards a critical section identified by a string key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// MutexLocker is an in-process Locker backed by per-key mutexes. It is the
// default for single-node deployments and tests.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MutexLocker) keyMutex(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

func (l *MutexLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := l.keyMutex(key)
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
