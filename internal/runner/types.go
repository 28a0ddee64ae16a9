// Package runner implements the execution dispatcher: a single dispatcher
// loop that walks the topological order, routes ready tasks to named
// worker pools, and folds results back into the completed/failed sets
// (spec.md §4.3, §5).
package runner

import (
	"context"

	"github.com/anadama/anadama/internal/dag"
)

// TaskResult is what a worker posts to the dispatcher's result queue after
// running one task (spec.md §4.3, "Queues").
type TaskResult struct {
	TaskNo int
	Err    error

	// DependsCompare/TargetsCompare are parallel to the task's Depends/
	// Targets slices, computed by the worker on success per spec.md §4.4
	// ("compute compare() for all depends and targets and return them in
	// the result").
	DependsCompare [][]any
	TargetsCompare [][]any

	Stdout []byte
	Stderr []byte
}

// Route tells the dispatcher which pool a task belongs in and what
// pool-specific payload (e.g. a *dag.GridRequest) to hand the worker.
type Route struct {
	Pool  string
	Extra any
}

// Worker runs one task to completion (or failure) and returns its result.
// LocalWorker and grid.Worker both implement this.
type Worker interface {
	Run(ctx context.Context, t *dag.Task, extra any) TaskResult
}

// Reporter receives dispatch lifecycle events. A concrete implementation
// lives in internal/reporter; this interface is declared here, narrowly, so
// runner does not import that package.
type Reporter interface {
	TaskStarted(taskNo int, name string)
	TaskCompleted(taskNo int, name string)
	TaskFailed(taskNo int, name string, err error)
	TaskSkipped(taskNo int, name string)
}

// Metrics receives the same lifecycle signal as Reporter, for processes
// that want a Prometheus /metrics endpoint alongside (or instead of) a
// Reporter. Nil-safe: Dispatcher treats a nil Metrics as a no-op.
type Metrics interface {
	IncTask(status string)
	SetInFlight(n int)
}
