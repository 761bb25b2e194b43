package saga

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fiberline/switchyard/internal/log"
)

// ErrRunnerClosed is returned by Submit after Drain has begun.
var ErrRunnerClosed = errors.New("runner is draining")

// Runner executes workflow runs on a fixed pool of workers. Steps within a
// run stay sequential; the pool only bounds how many runs progress at once.
type Runner struct {
	jobs chan runnerJob

	// mu guards closed and orders submits against the channel close in
	// Drain: submitters hold the read side while sending.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	active   atomic.Int64
	executed atomic.Int64
}

type runnerJob struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan struct{}
}

// NewRunner starts a pool. workers <= 0 means 4; queueDepth <= 0 means 64.
func NewRunner(workers, queueDepth int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	r := &Runner{jobs: make(chan runnerJob, queueDepth)}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		log.SafeGo("saga-runner", func() {
			defer r.wg.Done()
			r.work()
		})
	}
	return r
}

func (r *Runner) work() {
	for job := range r.jobs {
		if job.ctx.Err() != nil {
			close(job.done)
			continue
		}
		r.active.Add(1)
		job.fn(job.ctx)
		r.active.Add(-1)
		r.executed.Add(1)
		close(job.done)
	}
}

// Submit enqueues a run. It blocks while the queue is full and fails once
// the runner is draining or the context expires.
func (r *Runner) Submit(ctx context.Context, fn func(context.Context)) error {
	_, err := r.submit(ctx, fn)
	return err
}

// SubmitAndWait enqueues a run and blocks until it finishes or the context
// expires. An expired wait does not abandon the run itself; the run's own
// context governs that.
func (r *Runner) SubmitAndWait(ctx context.Context, fn func(context.Context)) error {
	done, err := r.submit(ctx, fn)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) submit(ctx context.Context, fn func(context.Context)) (chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRunnerClosed
	}

	job := runnerJob{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case r.jobs <- job:
		return job.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Drain stops accepting new runs and waits for queued ones to finish.
func (r *Runner) Drain() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	r.wg.Wait()
}

// Active returns how many runs are executing right now.
func (r *Runner) Active() int64 { return r.active.Load() }

// Executed returns how many runs have finished since start.
func (r *Runner) Executed() int64 { return r.executed.Load() }

// Queued returns how many runs are waiting for a worker.
func (r *Runner) Queued() int { return len(r.jobs) }
