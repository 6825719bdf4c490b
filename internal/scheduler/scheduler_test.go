package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_StartOncePerKind(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	defer m.Shutdown()

	block := make(chan struct{})
	started := m.Start(context.Background(), "o1", KindAuction, func(ctx context.Context) {
		<-block
	})
	require.True(t, started)

	// second start of the same kind is refused while the first runs
	assert.False(t, m.Start(context.Background(), "o1", KindAuction, func(context.Context) {}))
	// a different kind for the same order is fine
	assert.True(t, m.Start(context.Background(), "o1", KindMonitor, func(ctx context.Context) { <-ctx.Done() }))
	// same kind for a different order is fine
	assert.True(t, m.Start(context.Background(), "o2", KindAuction, func(ctx context.Context) { <-ctx.Done() }))

	assert.Equal(t, 3, m.Active())
	assert.True(t, m.Has("o1", KindAuction))
	assert.False(t, m.Has("o1", KindCompletion))
	close(block)
}

func TestManager_SlotFreedWhenRunReturns(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	defer m.Shutdown()

	done := make(chan struct{})
	require.True(t, m.Start(context.Background(), "o1", KindAuction, func(context.Context) {
		close(done)
	}))
	<-done

	require.Eventually(t, func() bool {
		return m.Start(context.Background(), "o1", KindAuction, func(ctx context.Context) { <-ctx.Done() })
	}, time.Second, time.Millisecond)
}

func TestManager_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	defer m.Shutdown()

	stopped := make(chan struct{})
	require.True(t, m.Start(context.Background(), "o1", KindMonitor, func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	}))

	m.Cancel("o1", KindMonitor)
	m.Cancel("o1", KindMonitor)
	m.Cancel("o1", KindAuction)
	m.Cancel("unknown", KindMonitor)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("timer goroutine did not observe cancellation")
	}
}

func TestManager_CancelAll(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())
	defer m.Shutdown()

	var stopped atomic.Int32
	for _, kind := range []Kind{KindAuction, KindMonitor, KindCompletion} {
		require.True(t, m.Start(context.Background(), "o1", kind, func(ctx context.Context) {
			<-ctx.Done()
			stopped.Add(1)
		}))
	}

	m.CancelAll("o1")
	require.Eventually(t, func() bool { return stopped.Load() == 3 }, time.Second, time.Millisecond)
}

func TestManager_Shutdown(t *testing.T) {
	t.Parallel()

	m := NewManager(zap.NewNop())

	var stopped atomic.Int32
	for _, id := range []string{"o1", "o2", "o3"} {
		require.True(t, m.Start(context.Background(), id, KindMonitor, func(ctx context.Context) {
			<-ctx.Done()
			stopped.Add(1)
		}))
	}

	m.Shutdown()
	assert.Equal(t, int32(3), stopped.Load())
	assert.Equal(t, 0, m.Active())

	// no new timers after shutdown
	assert.False(t, m.Start(context.Background(), "o4", KindMonitor, func(context.Context) {}))
}
