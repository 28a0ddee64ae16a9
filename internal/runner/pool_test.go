package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anadama/anadama/internal/dag"
)

type blockingWorker struct {
	release chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (w *blockingWorker) Run(ctx context.Context, t *dag.Task, extra any) TaskResult {
	n := w.inFlight.Add(1)
	for {
		old := w.maxSeen.Load()
		if n <= old || w.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	<-w.release
	w.inFlight.Add(-1)
	return TaskResult{TaskNo: t.TaskNo}
}

func TestPoolCapsConcurrency(t *testing.T) {
	worker := &blockingWorker{release: make(chan struct{})}
	resultCh := make(chan TaskResult, 3)
	pool := NewPool("local", worker, 2, resultCh)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		task := &dag.Task{TaskNo: i, Name: "t"}
		if !pool.TrySubmit(ctx, task, nil) {
			t.Fatalf("expected task %d to be admitted (rate=2)", i)
		}
	}

	// Give the two admitted goroutines time to start and block.
	time.Sleep(50 * time.Millisecond)
	if got := worker.maxSeen.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent tasks (rate=2), saw %d", got)
	}

	// A third submission must not block and must be rejected while the
	// pool is at capacity.
	if pool.TrySubmit(ctx, &dag.Task{TaskNo: 2, Name: "t"}, nil) {
		t.Fatal("expected TrySubmit to report the pool full instead of admitting a third task")
	}

	close(worker.release)
	for i := 0; i < 2; i++ {
		<-resultCh
	}

	// Now that both slots have been released, a new submission should be
	// admitted without blocking.
	worker.release = make(chan struct{})
	close(worker.release)
	if !pool.TrySubmit(ctx, &dag.Task{TaskNo: 2, Name: "t"}, nil) {
		t.Fatal("expected TrySubmit to succeed once a slot freed up")
	}
	<-resultCh
}

func TestPoolRateLessThanOneDefaultsToOne(t *testing.T) {
	worker := &blockingWorker{release: make(chan struct{})}
	close(worker.release) // don't block; just verify construction doesn't panic
	resultCh := make(chan TaskResult, 1)
	pool := NewPool("local", worker, 0, resultCh)

	if !pool.TrySubmit(context.Background(), &dag.Task{TaskNo: 0, Name: "t"}, nil) {
		t.Fatal("expected the first submission on a freshly built pool to be admitted")
	}
	<-resultCh
}
