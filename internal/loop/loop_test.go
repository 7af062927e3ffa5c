package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRepeatsUntilBreak(t *testing.T) {
	got, err := Start(t.Context(), 1, func(_ context.Context, v int) (int, Next) {
		v++
		if v >= 10 {
			return v, Break(nil)
		}
		return v, Continue(0)
	})
	require.NoError(t, err)
	assert.Equal(t, 10, got)
}

func TestStartBreakWithError(t *testing.T) {
	boom := errors.New("boom")
	got, err := Start(t.Context(), 0, func(_ context.Context, v int) (int, Next) {
		if v == 3 {
			return v, Break(boom)
		}
		return v + 1, Next{}
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, got)
}

func TestStartHonoursDoneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var calls atomic.Int32
	got, err := Start(ctx, 7, func(_ context.Context, v int) (int, Next) {
		calls.Add(1)
		return v + 1, Continue(0)
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 7, got)
	assert.Zero(t, calls.Load())
}

func TestStartStopsWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		_, err := Start(ctx, 0, func(_ context.Context, v int) (int, Next) {
			return v + 1, Continue(time.Hour)
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

// The interval is measured from the end of an iteration, not from its start.
func TestIntervalAnchoredOnCompletion(t *testing.T) {
	const work = 60 * time.Millisecond
	const interval = 20 * time.Millisecond

	var starts, ends []time.Time
	_, err := Start(t.Context(), 0, func(_ context.Context, v int) (int, Next) {
		starts = append(starts, time.Now())
		time.Sleep(work)
		ends = append(ends, time.Now())
		if v == 2 {
			return v, Break(nil)
		}
		return v + 1, Continue(interval)
	})
	require.NoError(t, err)
	require.Len(t, starts, 3)

	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(ends[i-1])
		assert.GreaterOrEqual(t, gap, interval, "iteration %d started before the interval elapsed", i)
	}
}

func TestWithTimeout(t *testing.T) {
	_, err := Start(t.Context(), 0, func(ctx context.Context, v int) (int, Next) {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "iteration context must carry a deadline")
		if v == 2 {
			return v, Break(nil)
		}
		return v + 1, Continue(0)
	}, WithTimeout(time.Second))
	require.NoError(t, err)
}

func TestNextString(t *testing.T) {
	assert.Equal(t, "break", Break(nil).String())
	assert.Equal(t, "continue after 1s", Continue(time.Second).String())
	assert.Contains(t, Break(errors.New("x")).String(), "x")
}
