package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexLockerSerializesSameKey(t *testing.T) {
	locker := NewMutexLocker()

	// An unguarded counter: only mutual exclusion keeps it consistent.
	counter := 0
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "booking:slot", func(ctx context.Context) error {
				counter++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, counter)
}

func TestMutexLockerIndependentKeys(t *testing.T) {
	locker := NewMutexLocker()

	// Holding one key must not block another.
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "key-a", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := locker.WithLock(context.Background(), "key-b", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	close(release)
}

func TestMutexLockerCancelledContext(t *testing.T) {
	locker := NewMutexLocker()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := locker.WithLock(ctx, "key", func(ctx context.Context) error {
		t.Fatal("critical section must not run with a cancelled context")
		return nil
	})
	assert.Error(t, err)
}

func TestMutexLockerPropagatesError(t *testing.T) {
	locker := NewMutexLocker()

	want := ErrNotAcquired
	err := locker.WithLock(context.Background(), "key", func(ctx context.Context) error {
		return want
	})
	assert.Equal(t, want, err)
}
