package batch

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T, workers int, opts ...Option) *Runner {
	t.Helper()
	r, err := NewRunner(workers, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func TestRun_KeepsInputOrder(t *testing.T) {
	r := newRunner(t, 4)
	inputs := []string{"1", "2", "x", "4", "5"}

	results, failed := Run(context.Background(), r, inputs, func(_ context.Context, s string) (int, error) {
		return strconv.Atoi(s)
	})

	require.Len(t, results, len(inputs))
	assert.Equal(t, 1, failed)
	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, inputs[i], res.Input)
	}
	assert.Equal(t, 4, results[3].Value)
	assert.Error(t, results[2].Err)
	assert.NoError(t, results[4].Err)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	r := newRunner(t, 2)
	assert.Equal(t, 2, r.Size())

	var active, peak atomic.Int32
	inputs := make([]int, 20)
	_, failed := Run(context.Background(), r, inputs, func(_ context.Context, _ int) (struct{}, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		active.Add(-1)
		return struct{}{}, nil
	})

	assert.Zero(t, failed)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_Panic(t *testing.T) {
	r := newRunner(t, 1)
	results, failed := Run(context.Background(), r, []int{0}, func(context.Context, int) (int, error) {
		panic("boom")
	})

	assert.Equal(t, 1, failed)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "boom")
}

func TestRun_CancelledContext(t *testing.T) {
	r := newRunner(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results, failed := Run(ctx, r, []int{1, 2, 3}, func(context.Context, int) (int, error) {
		calls.Add(1)
		return 0, nil
	})

	assert.Equal(t, 3, failed)
	assert.Zero(t, calls.Load())
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestRun_FailFast(t *testing.T) {
	// one worker runs the jobs in submission order
	r := newRunner(t, 1, WithFailFast())
	errBad := errors.New("bad input")

	var calls atomic.Int32
	results, failed := Run(context.Background(), r, []int{1, 2, 3, 4}, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		if n == 1 {
			return 0, errBad
		}
		return n, nil
	})

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 4, failed)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, errBad)
	}
}
