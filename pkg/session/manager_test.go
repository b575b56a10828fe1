package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/aretw0/switchyard/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Serializes(t *testing.T) {
	manager := session.NewManager()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, "race-test", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
	assert.Zero(t, manager.Active())
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
	ttl      time.Duration
	err      error
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.locked = append(f.locked, key)
	f.ttl = ttl
	f.mu.Unlock()
	return func(ctx context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unlocked = append(f.unlocked, key)
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &fakeLocker{}
	manager := session.NewManager(session.WithLocker(locker), session.WithLockTTL(time.Minute))

	ran := false
	err := manager.WithLock(context.Background(), "orders", func(context.Context) error {
		ran = true
		assert.Equal(t, []string{"orders"}, locker.locked)
		assert.Empty(t, locker.unlocked)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"orders"}, locker.unlocked)
	assert.Equal(t, time.Minute, locker.ttl)
}

func TestManager_DistributedLockFailure(t *testing.T) {
	locker := &fakeLocker{err: errors.New("redis down")}
	manager := session.NewManager(session.WithLocker(locker))

	err := manager.WithLock(context.Background(), "orders", func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.ErrorContains(t, err, "redis down")
	assert.Zero(t, manager.Active())
}

func TestManager_PropagatesError(t *testing.T) {
	manager := session.NewManager()
	want := errors.New("rejected")
	err := manager.WithLock(context.Background(), "orders", func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}
