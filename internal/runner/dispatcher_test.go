package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/anadama/anadama/internal/dag"
	"github.com/anadama/anadama/internal/store"
	"github.com/anadama/anadama/internal/tracked"
)

// recordingWorker runs a task via an optional per-task function, or
// succeeds trivially if none is supplied.
type recordingWorker struct {
	fn func(t *dag.Task) TaskResult
}

func (w *recordingWorker) Run(ctx context.Context, t *dag.Task, extra any) TaskResult {
	if w.fn != nil {
		return w.fn(t)
	}
	return TaskResult{TaskNo: t.TaskNo}
}

func newTestDispatcherBackend(t *testing.T) store.Backend {
	t.Helper()
	b, err := store.NewMemoryBackend(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func buildLinearDAG(t *testing.T) (tasks []*dag.Task, g *dag.DAG) {
	t.Helper()
	w := dag.New(dag.Options{Strict: true})
	dir := t.TempDir()
	out := dir + "/out.txt"

	if _, err := w.AddTask(nil, nil, []tracked.Object{tracked.NewFile(out)}, "producer"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.AddTask(nil, []tracked.Object{tracked.NewFile(out)}, nil, "consumer"); err != nil {
		t.Fatal(err)
	}
	return w.Tasks(), w.DAG()
}

func TestDispatcherRunsTasksToCompletion(t *testing.T) {
	tasks, g := buildLinearDAG(t)
	backend := newTestDispatcherBackend(t)

	d := NewDispatcher(Config{
		Tasks:       tasks,
		DAG:         g,
		DefaultPool: "local",
		Pools: map[string]PoolSpec{
			"local": {Worker: &recordingWorker{}, Rate: 2},
		},
		Backend: backend,
	})

	completed, failed, err := d.Run(context.Background(), []int{0, 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Fatalf("expected no failures, got %v", failed)
	}
	if len(completed) != 2 {
		t.Fatalf("expected both tasks completed, got %v", completed)
	}
}

func TestDispatcherPropagatesParentFailure(t *testing.T) {
	tasks, g := buildLinearDAG(t)
	backend := newTestDispatcherBackend(t)

	failing := &recordingWorker{fn: func(t *dag.Task) TaskResult {
		if t.TaskNo == 0 {
			return TaskResult{TaskNo: t.TaskNo, Err: errors.New("producer exploded")}
		}
		return TaskResult{TaskNo: t.TaskNo}
	}}

	d := NewDispatcher(Config{
		Tasks:       tasks,
		DAG:         g,
		DefaultPool: "local",
		Pools: map[string]PoolSpec{
			"local": {Worker: failing, Rate: 2},
		},
		Backend: backend,
	})

	completed, failed, err := d.Run(context.Background(), []int{0, 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 0 {
		t.Fatalf("expected no completions once the producer fails, got %v", completed)
	}
	if len(failed) != 2 {
		t.Fatalf("expected both the producer and the propagated consumer in failed, got %v", failed)
	}
}

func TestDispatcherQuitEarlySkipsRemainingPending(t *testing.T) {
	w := dag.New(dag.Options{Strict: true})
	// Two independent tasks with no edge between them.
	if _, err := w.AddTask([]dag.Action{{Command: "true"}}, nil, nil, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.AddTask([]dag.Action{{Command: "true"}}, nil, nil, "b"); err != nil {
		t.Fatal(err)
	}

	backend := newTestDispatcherBackend(t)
	failing := &recordingWorker{fn: func(t *dag.Task) TaskResult {
		return TaskResult{TaskNo: t.TaskNo, Err: errors.New("boom")}
	}}

	d := NewDispatcher(Config{
		Tasks:       w.Tasks(),
		DAG:         w.DAG(),
		DefaultPool: "local",
		Pools: map[string]PoolSpec{
			// rate=1 forces task b to still be pending when task a's
			// failure is observed, so quitEarly has something to skip.
			"local": {Worker: failing, Rate: 1},
		},
		Backend:   backend,
		QuitEarly: true,
	})

	_, failed, err := d.Run(context.Background(), []int{0, 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 {
		t.Fatalf("expected both tasks marked failed (one ran-and-failed, one skipped due to quit_early), got %v", failed)
	}
}

func TestDispatcherUnknownPoolErrors(t *testing.T) {
	tasks, g := buildLinearDAG(t)
	backend := newTestDispatcherBackend(t)

	d := NewDispatcher(Config{
		Tasks:       tasks,
		DAG:         g,
		DefaultPool: "nonexistent",
		Pools:       map[string]PoolSpec{"local": {Worker: &recordingWorker{}, Rate: 1}},
		Backend:     backend,
	})

	_, _, err := d.Run(context.Background(), []int{0, 1}, nil)
	if err == nil {
		t.Fatal("expected an error routing to a pool that doesn't exist")
	}
}
