package runner

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/anadama/anadama/internal/dag"
)

// Pool routes tasks to one Worker, bounding concurrency to rate. TrySubmit
// never blocks: when rate tasks are already running it reports that the
// pool is full instead of waiting, so the dispatch loop's single goroutine
// (runner/dispatcher.go) can fall through to draining resultCh -- a worker
// goroutine blocked sending its TaskResult on that channel is exactly what
// frees the slot TrySubmit is waiting on, so the dispatcher must never
// block inside the pool while nothing is reading resultCh (spec.md §4.3,
// "respecting pool capacity; stall if full").
type Pool struct {
	Name     string
	worker   Worker
	sem      *semaphore.Weighted
	resultCh chan<- TaskResult
}

// NewPool builds a pool of the given name backed by worker, admitting at
// most rate concurrent tasks.
func NewPool(name string, worker Worker, rate int64, resultCh chan<- TaskResult) *Pool {
	if rate < 1 {
		rate = 1
	}
	return &Pool{Name: name, worker: worker, sem: semaphore.NewWeighted(rate), resultCh: resultCh}
}

// TrySubmit acquires a slot without blocking. If the pool is already at
// capacity it returns ok=false immediately and t is not started; the
// caller is expected to retry once a running task's result has drained.
// Otherwise it runs t in its own goroutine and posts the result to the
// pool's shared result channel.
func (p *Pool) TrySubmit(ctx context.Context, t *dag.Task, extra any) (ok bool) {
	if !p.sem.TryAcquire(1) {
		return false
	}
	go func() {
		defer p.sem.Release(1)
		p.resultCh <- p.worker.Run(ctx, t, extra)
	}()
	return true
}
