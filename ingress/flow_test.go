package ingress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlowControllerDefaults(t *testing.T) {
	flow := NewFlowController(0, 0)
	require.Equal(t, 0, flow.InFlight())
	require.NoError(t, flow.Acquire(context.Background(), 1))
	require.Equal(t, 1, flow.InFlight())
	require.Equal(t, 1, flow.InFlightBytes())
	flow.Release(1)
	require.Equal(t, 0, flow.InFlight())
}

func TestFlowControllerRejectsNegativeSize(t *testing.T) {
	flow := NewFlowController(1, 100)
	require.Error(t, flow.Acquire(context.Background(), -1))
}

func TestFlowControllerBlocksAtMessageCap(t *testing.T) {
	flow := NewFlowController(2, 1000)
	ctx := context.Background()
	require.NoError(t, flow.Acquire(ctx, 1))
	require.NoError(t, flow.Acquire(ctx, 1))

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, flow.Acquire(blocked, 1), context.DeadlineExceeded)

	// Releasing one slot unblocks the next acquire.
	flow.Release(1)
	require.NoError(t, flow.Acquire(ctx, 1))
}

func TestFlowControllerBlocksAtByteCap(t *testing.T) {
	flow := NewFlowController(10, 100)
	ctx := context.Background()
	require.NoError(t, flow.Acquire(ctx, 80))

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, flow.Acquire(blocked, 30), context.DeadlineExceeded)

	require.NoError(t, flow.Acquire(ctx, 20))
}

func TestFlowControllerOversizedMessage(t *testing.T) {
	flow := NewFlowController(10, 100)
	ctx := context.Background()

	// An oversized message waits while anything else is in flight.
	require.NoError(t, flow.Acquire(ctx, 10))
	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, flow.Acquire(blocked, 200), context.DeadlineExceeded)

	// Alone, it is admitted despite exceeding the byte cap.
	flow.Release(10)
	require.NoError(t, flow.Acquire(ctx, 200))
	flow.Release(200)
}

func TestFlowControllerAvailable(t *testing.T) {
	flow := NewFlowController(1, 100)
	ctx := context.Background()
	require.NoError(t, flow.Available(ctx))
	require.NoError(t, flow.Acquire(ctx, 10))

	// With the single slot taken, Available blocks until a release.
	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, flow.Available(blocked), context.DeadlineExceeded)

	flow.Release(10)
	require.NoError(t, flow.Available(ctx))
	require.Equal(t, 0, flow.InFlight())
}

func TestFlowControllerCapsNeverExceeded(t *testing.T) {
	const (
		maxInFlight = 4
		maxBytes    = 400
		workers     = 32
	)
	flow := NewFlowController(maxInFlight, maxBytes)
	ctx := context.Background()

	var mutex sync.Mutex
	var maxSeen, maxBytesSeen int
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, flow.Acquire(ctx, 100))
			mutex.Lock()
			if n := flow.InFlight(); n > maxSeen {
				maxSeen = n
			}
			if b := flow.InFlightBytes(); b > maxBytesSeen {
				maxBytesSeen = b
			}
			mutex.Unlock()
			time.Sleep(time.Millisecond)
			flow.Release(100)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxSeen, maxInFlight)
	require.LessOrEqual(t, maxBytesSeen, maxBytes)
	require.Equal(t, 0, flow.InFlight())
	require.Equal(t, 0, flow.InFlightBytes())
}

func TestFlowControllerOverReleasePanics(t *testing.T) {
	flow := NewFlowController(1, 100)
	require.Panics(t, func() { flow.Release(1) })
}
