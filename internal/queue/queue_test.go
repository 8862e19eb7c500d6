package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_ExecutesEnqueuedUnits(t *testing.T) {
	q := New(2)
	defer q.Stop()

	var mu sync.Mutex
	seen := make(map[string]int)
	q.Start(func(_ context.Context, requestID string) error {
		mu.Lock()
		seen[requestID]++
		mu.Unlock()
		return nil
	})

	for _, id := range []string{"r1", "r2", "r3"} {
		_, err := q.Enqueue(id)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for id, count := range seen {
		assert.Equal(t, 1, count, "request %s executed more than once", id)
	}
}

func TestQueue_EnqueueBeforeStartIsDrained(t *testing.T) {
	q := New(1)
	defer q.Stop()

	_, err := q.Enqueue("r1")
	require.NoError(t, err)

	var executed atomic.Int32
	q.Start(func(context.Context, string) error {
		executed.Add(1)
		return nil
	})

	require.Eventually(t, func() bool {
		return executed.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_CancelStopsRunningUnit(t *testing.T) {
	q := New(1)
	defer q.Stop()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	q.Start(func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil
	})

	handle, err := q.Enqueue("r1")
	require.NoError(t, err)

	<-started
	assert.True(t, q.Cancel(handle))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("unit never observed cancellation")
	}
}

func TestQueue_CancelUnknownHandle(t *testing.T) {
	q := New(1)
	defer q.Stop()

	assert.False(t, q.Cancel("job-999"))
}

func TestQueue_CancelFinishedUnit(t *testing.T) {
	q := New(1)
	defer q.Stop()

	var executed atomic.Int32
	q.Start(func(context.Context, string) error {
		executed.Add(1)
		return nil
	})

	handle, err := q.Enqueue("r1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return executed.Load() == 1 && q.InFlight() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, q.Cancel(handle))
}

func TestQueue_StopCancelsInFlightUnits(t *testing.T) {
	q := New(1)

	release := make(chan struct{})
	q.Start(func(ctx context.Context, _ string) error {
		select {
		case <-ctx.Done():
		case <-release:
		}
		return nil
	})

	_, err := q.Enqueue("r1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not drain workers")
	}
}
