package systems

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemRejectsBadSizes(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestCallbacksRunOnUpdate(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)

	var succeeded, failed []interface{}
	js.Submit(Job{
		Run:       func(context.Context) (interface{}, error) { return 42, nil },
		OnSuccess: func(r interface{}) { succeeded = append(succeeded, r) },
	})
	js.Submit(Job{
		Run:       func(context.Context) (interface{}, error) { return nil, errors.New("boom") },
		OnSuccess: func(r interface{}) { t.Error("success callback on a failed job") },
		OnFailure: func(err error) { failed = append(failed, err.Error()) },
	})
	// No callbacks, nothing queued for Update.
	js.Submit(Job{Run: func(context.Context) (interface{}, error) { return nil, nil }})

	ran := 0
	deadline := time.Now().Add(5 * time.Second)
	for ran < 2 && time.Now().Before(deadline) {
		ran += js.Update()
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, js.Shutdown())

	assert.Equal(t, 2, ran)
	assert.Equal(t, []interface{}{42}, succeeded)
	assert.Equal(t, []interface{}{"boom"}, failed)
}

func TestParallelFor(t *testing.T) {
	js, err := NewJobSystem(4, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	out := make([]int, 100)
	require.NoError(t, js.ParallelFor(context.Background(), len(out), func(_ context.Context, i int) error {
		out[i] = i * i
		return nil
	}))
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestParallelForStopsOnError(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	var calls atomic.Int32
	stop := errors.New("stop")
	err = js.ParallelFor(context.Background(), 1000, func(ctx context.Context, i int) error {
		calls.Add(1)
		if i == 0 {
			return stop
		}
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, stop)
	assert.Less(t, int(calls.Load()), 1000)
}

func TestParallelRangeCoversEveryIndex(t *testing.T) {
	js, err := NewJobSystem(3, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	for _, n := range []int{0, 1, 2, 10, 11} {
		hits := make([]int32, n)
		require.NoError(t, js.ParallelRange(context.Background(), n, func(begin, end int) {
			for i := begin; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		}))
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "n=%d index %d", n, i)
		}
	}
}
