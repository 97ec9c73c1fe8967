// Package batch runs one job per input on a bounded worker pool. The CLI
// uses it to check, format or convert many files in a single invocation.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/mcncl/typedjson/internal/logging"
)

// Result is the outcome of one job. Results keep the order of the inputs.
type Result[In, Out any] struct {
	Index int
	Input In
	Value Out
	Err   error
}

// Runner owns a worker pool that can be reused across runs.
type Runner struct {
	pool     *ants.Pool
	failFast bool
	logger   logging.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithFailFast cancels the remaining jobs after the first failure.
func WithFailFast() Option {
	return func(r *Runner) { r.failFast = true }
}

// WithLogger sets the logger used for job failures.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a pool of the given size. A size of zero or less uses
// one worker per CPU.
func NewRunner(workers int, opts ...Option) (*Runner, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	r := &Runner{pool: pool, logger: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Size returns the pool capacity
func (r *Runner) Size() int { return r.pool.Cap() }

// Release stops the pool. The Runner must not be used afterwards.
func (r *Runner) Release() { r.pool.Release() }

// Run calls fn for every input and waits for all of them. Jobs that have not
// started when ctx is done, or after a failure in fail-fast mode, report the
// cancellation cause as their error. A panicking job reports the panic as
// its error. The returned count is the number of failed jobs.
func Run[In, Out any](ctx context.Context, r *Runner, inputs []In, fn func(context.Context, In) (Out, error)) ([]Result[In, Out], int) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	results := make([]Result[In, Out], len(inputs))
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	record := func(i int, err error) {
		results[i].Err = err
		mu.Lock()
		failed++
		mu.Unlock()
		if r.failFast {
			cancel(err)
		}
	}

	for i, in := range inputs {
		results[i] = Result[In, Out]{Index: i, Input: in}
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				record(i, context.Cause(ctx))
				return
			}
			out, err := call(ctx, fn, in)
			if err != nil {
				r.logger.Debugf("job %d failed: %v", i, err)
				record(i, err)
				return
			}
			results[i].Value = out
		})
		if err != nil {
			wg.Done()
			record(i, fmt.Errorf("submitting job %d: %w", i, err))
		}
	}
	wg.Wait()
	return results, failed
}

func call[In, Out any](ctx context.Context, fn func(context.Context, In) (Out, error), in In) (out Out, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx, in)
}
