package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexFIFOOrder(t *testing.T) {
	var m Mutex
	ctx := context.Background()

	release, err := m.Lock(ctx)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := m.Lock(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}(i)
		// make sure waiter i is queued before i+1 asks
		require.Eventually(t, func() bool { return m.Waiting() == i+1 }, time.Second, time.Millisecond)
	}

	release()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.False(t, m.Locked())
}

func TestMutexCriticalSectionsDoNotOverlap(t *testing.T) {
	var m Mutex
	ctx := context.Background()

	releaseA, err := m.Lock(ctx)
	require.NoError(t, err)

	bStarted := make(chan struct{})
	aDone := false
	go func() {
		_, _ = WithLock(ctx, &m, func(context.Context) (struct{}, error) {
			assert.True(t, aDone, "B entered before A released")
			close(bStarted)
			return struct{}{}, nil
		})
	}()

	require.Eventually(t, func() bool { return m.Waiting() == 1 }, time.Second, time.Millisecond)
	select {
	case <-bStarted:
		t.Fatal("B acquired while A holds the lock")
	case <-time.After(20 * time.Millisecond):
	}
	aDone = true
	releaseA()
	<-bStarted
}

func TestReleaseIsIdempotent(t *testing.T) {
	var m Mutex
	ctx := context.Background()

	release, err := m.Lock(ctx)
	require.NoError(t, err)

	got := make(chan func(), 1)
	go func() {
		r, err := m.Lock(ctx)
		if err == nil {
			got <- r
		}
	}()
	require.Eventually(t, func() bool { return m.Waiting() == 1 }, time.Second, time.Millisecond)

	release()
	second := <-got
	// A stale double release must not free the lock held by the second owner.
	release()
	assert.True(t, m.Locked())
	second()
	assert.False(t, m.Locked())
}

func TestWithLockReleasesOnErrorAndPanic(t *testing.T) {
	var m Mutex
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := WithLock(ctx, &m, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.Locked())

	assert.Panics(t, func() {
		_, _ = WithLock(ctx, &m, func(context.Context) (int, error) { panic("kaboom") })
	})
	assert.False(t, m.Locked())

	v, err := WithLock(ctx, &m, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestLockCancelledWaiterLeavesQueue(t *testing.T) {
	var m Mutex
	release, err := m.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, m.Waiting())

	release()
	assert.False(t, m.Locked())
}

func TestKeyedMutex(t *testing.T) {
	var k KeyedMutex
	assert.Same(t, k.Get("a"), k.Get("a"))
	assert.NotSame(t, k.Get("a"), k.Get("b"))
}
