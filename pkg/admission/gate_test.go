package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateAcquireRelease(t *testing.T) {
	g := NewGate(4)

	require.NoError(t, g.Acquire(context.Background(), 2))
	assert.Equal(t, 2, g.Used())

	require.NoError(t, g.Acquire(context.Background(), 2))
	assert.Equal(t, 4, g.Used())

	g.Release(2)
	g.Release(2)
	assert.Equal(t, 0, g.Used())
}

func TestGateRejectsOversizedJob(t *testing.T) {
	g := NewGate(4)

	err := g.Acquire(context.Background(), 5)
	assert.ErrorIs(t, err, ErrExceedsBudget)
	assert.Equal(t, 0, g.Used())

	assert.ErrorIs(t, g.Acquire(context.Background(), 0), ErrInvalidCores)
}

func TestGateBlocksUntilRelease(t *testing.T) {
	g := NewGate(2)
	require.NoError(t, g.Acquire(context.Background(), 2))

	acquired := make(chan struct{})
	go func() {
		assert.NoError(t, g.Acquire(context.Background(), 2))
		close(acquired)
	}()

	assert.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)

	select {
	case <-acquired:
		t.Fatal("second acquire did not block")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release(2)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
	assert.Equal(t, 2, g.Used())
	assert.Equal(t, 0, g.Waiting())
}

func TestGateAcquireCancelled(t *testing.T) {
	g := NewGate(1)
	require.NoError(t, g.Acquire(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- g.Acquire(ctx, 1)
	}()

	assert.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire did not return")
	}
	assert.Equal(t, 1, g.Used())
}

func TestGateNeverExceedsBudget(t *testing.T) {
	const max = 5
	g := NewGate(max)

	var inUse, peak int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		n := i%max + 1
		go func() {
			defer wg.Done()
			if !assert.NoError(t, g.Acquire(context.Background(), n)) {
				return
			}
			now := atomic.AddInt64(&inUse, int64(n))
			for {
				old := atomic.LoadInt64(&peak)
				if now <= old || atomic.CompareAndSwapInt64(&peak, old, now) {
					break
				}
			}
			assert.LessOrEqual(t, g.Used(), max)
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&inUse, -int64(n))
			g.Release(n)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, peak, int64(max))
	assert.Equal(t, 0, g.Used())
}

func TestGateReleaseWakesAllWaiters(t *testing.T) {
	g := NewGate(3)
	require.NoError(t, g.Acquire(context.Background(), 3))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Acquire(context.Background(), 1))
		}()
	}

	assert.Eventually(t, func() bool { return g.Waiting() == 3 }, time.Second, time.Millisecond)
	g.Release(3)
	wg.Wait()
	assert.Equal(t, 3, g.Used())
}
