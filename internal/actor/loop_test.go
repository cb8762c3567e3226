package actor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnsRunInOrder(t *testing.T) {
	l := New(context.Background(), 8)
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		require.True(t, l.Do(func() { got = append(got, i) }))
	}
	require.True(t, l.Call(func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestCallWaits(t *testing.T) {
	l := New(context.Background(), 1)
	defer l.Close()

	var ran atomic.Bool
	require.True(t, l.Call(func() {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	}))
	assert.True(t, ran.Load())
}

func TestClosedLoopRejectsWork(t *testing.T) {
	l := New(context.Background(), 1)
	l.Close()
	l.Close()

	assert.False(t, l.Do(func() {}))
	assert.False(t, l.Call(func() {}))
	assert.False(t, l.Go(func(context.Context) {}))
	assert.Error(t, l.Context().Err())
}

func TestCloseWaitsForGoroutines(t *testing.T) {
	l := New(context.Background(), 1)

	var finished atomic.Bool
	started := make(chan struct{})
	require.True(t, l.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
	}))
	<-started
	l.Close()
	assert.True(t, finished.Load())
}

func TestParentCancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(ctx, 1)
	defer l.Close()

	cancel()
	require.Eventually(t, func() bool { return !l.Do(func() {}) }, time.Second, time.Millisecond)
}
