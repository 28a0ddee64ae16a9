package runner

import (
	"context"
	"fmt"

	"github.com/anadama/anadama/internal/dag"
	"github.com/anadama/anadama/internal/store"
)

// noopReporter and noopMetrics let Dispatcher treat a missing collaborator
// as a no-op rather than threading nil checks through the dispatch loop.
type noopReporter struct{}

func (noopReporter) TaskStarted(int, string)          {}
func (noopReporter) TaskCompleted(int, string)        {}
func (noopReporter) TaskFailed(int, string, error)     {}
func (noopReporter) TaskSkipped(int, string)          {}

type noopMetrics struct{}

func (noopMetrics) IncTask(string)    {}
func (noopMetrics) SetInFlight(int) {}

// Dispatcher is the single logical actor that owns the DAG view and
// readiness bookkeeping (spec.md §4.3, §5 -- "no shared mutable state
// between worker bodies"). All of its fields below are touched only from
// Run's goroutine, matching spec.md §5's "dispatcher-only, no locks needed".
type Dispatcher struct {
	tasks []*dag.Task
	g     *dag.DAG

	pools       map[string]*Pool
	defaultPool string
	routes      map[int]Route
	resultCh    chan TaskResult

	backend   store.Backend
	reporter  Reporter
	metrics   Metrics
	quitEarly bool
}

// PoolSpec describes one named worker pool: its worker implementation and
// its concurrency capacity ("rate" in spec.md §4.3).
type PoolSpec struct {
	Worker Worker
	Rate   int64
}

// Config gathers Dispatcher's dependencies.
type Config struct {
	Tasks       []*dag.Task
	DAG         *dag.DAG
	Pools       map[string]PoolSpec
	DefaultPool string
	Routes      map[int]Route
	Backend     store.Backend
	Reporter    Reporter
	Metrics     Metrics
	QuitEarly   bool
}

func NewDispatcher(cfg Config) *Dispatcher {
	resultCh := make(chan TaskResult)
	pools := make(map[string]*Pool, len(cfg.Pools))
	for name, spec := range cfg.Pools {
		pools[name] = NewPool(name, spec.Worker, spec.Rate, resultCh)
	}

	d := &Dispatcher{
		tasks:       cfg.Tasks,
		g:           cfg.DAG,
		pools:       pools,
		defaultPool: cfg.DefaultPool,
		routes:      cfg.Routes,
		resultCh:    resultCh,
		backend:     cfg.Backend,
		reporter:    cfg.Reporter,
		metrics:     cfg.Metrics,
		quitEarly:   cfg.QuitEarly,
	}
	if d.reporter == nil {
		d.reporter = noopReporter{}
	}
	if d.metrics == nil {
		d.metrics = noopMetrics{}
	}
	return d
}

func (d *Dispatcher) routeFor(taskNo int) Route {
	if r, ok := d.routes[taskNo]; ok {
		return r
	}
	return Route{Pool: d.defaultPool}
}

// Run executes run (a topologically valid order, typically FilterSkippable's
// run slice) and reports skipped up front. It implements the dispatch loop
// of spec.md §4.3.
func (d *Dispatcher) Run(ctx context.Context, run, skipped []int) (completed, failed []int, err error) {
	for _, taskNo := range skipped {
		d.reporter.TaskSkipped(taskNo, d.tasks[taskNo].Name)
		d.metrics.IncTask("skipped")
	}

	pending := append([]int(nil), run...)
	completedSet := make(map[int]bool, len(run))
	failedSet := make(map[int]bool)

	inFlight := 0
	quitting := false

	for len(pending) > 0 || inFlight > 0 {
		for len(pending) > 0 {
			taskNo := pending[0]
			t := d.tasks[taskNo]

			var failedParent = -1
			ready := true
			for _, parent := range d.g.Parents(taskNo) {
				if failedSet[parent] {
					failedParent = parent
					break
				}
				if !completedSet[parent] {
					ready = false
					break
				}
			}
			if failedParent == -1 && !ready {
				break
			}

			if failedParent != -1 {
				pending = pending[1:]
				cause := &ParentFailed{TaskName: t.Name, ParentNo: failedParent, ParentName: d.tasks[failedParent].Name}
				failedSet[taskNo] = true
				d.reporter.TaskFailed(taskNo, t.Name, cause)
				d.metrics.IncTask("failed")
				continue
			}

			if quitting {
				pending = pending[1:]
				failedSet[taskNo] = true
				d.reporter.TaskFailed(taskNo, t.Name, fmt.Errorf("skipped: earlier task failed and quit_early is set"))
				d.metrics.IncTask("failed")
				continue
			}

			route := d.routeFor(taskNo)
			pool, ok := d.pools[route.Pool]
			if !ok {
				return completedList(completedSet), failedList(failedSet), fmt.Errorf("task %q: no such pool %q", t.Name, route.Pool)
			}
			// TrySubmit never blocks: if the pool is already at rate, stop
			// popping pending and fall through to the select below so a
			// running task's result can drain (and free a slot) instead of
			// the dispatcher goroutine blocking here with nothing left to
			// read resultCh.
			if !pool.TrySubmit(ctx, t, route.Extra) {
				break
			}
			pending = pending[1:]
			inFlight++
			d.metrics.SetInFlight(inFlight)
			d.reporter.TaskStarted(taskNo, t.Name)
		}

		if len(pending) == 0 && inFlight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return completedList(completedSet), failedList(failedSet), ctx.Err()
		case res := <-d.resultCh:
			inFlight--
			d.metrics.SetInFlight(inFlight)
			t := d.tasks[res.TaskNo]

			if res.Err != nil {
				failedSet[res.TaskNo] = true
				d.reporter.TaskFailed(res.TaskNo, t.Name, res.Err)
				d.metrics.IncTask("failed")
				if d.quitEarly {
					quitting = true
				}
				continue
			}

			if err := d.persist(ctx, t, res); err != nil {
				return completedList(completedSet), failedList(failedSet), fmt.Errorf("persisting fingerprints for task %q: %w", t.Name, err)
			}
			completedSet[res.TaskNo] = true
			d.reporter.TaskCompleted(res.TaskNo, t.Name)
			d.metrics.IncTask("completed")
		}
	}

	return completedList(completedSet), failedList(failedSet), nil
}

// persist saves the task's depends/targets compare-sequences, computed by
// the worker, before the task is marked completed (spec.md §5 ordering
// guarantee: "fingerprint writes ... happen before t is marked completed").
// It deliberately uses the worker-reported compare values rather than
// recomputing obj.Compare() itself: for a grid job the dispatcher process
// never touches the node the action ran on, so only the worker that just
// ran the action has a trustworthy post-action view of depends/targets.
func (d *Dispatcher) persist(ctx context.Context, t *dag.Task, res TaskResult) error {
	var keys []string
	var compares [][]any

	for i, dep := range t.Depends {
		if i >= len(res.DependsCompare) {
			break
		}
		keys = append(keys, dep.Key())
		compares = append(compares, res.DependsCompare[i])
	}
	for i, targ := range t.Targets {
		if i >= len(res.TargetsCompare) {
			break
		}
		keys = append(keys, targ.Key())
		compares = append(compares, res.TargetsCompare[i])
	}

	if len(keys) == 0 {
		return nil
	}
	return d.backend.Save(ctx, keys, compares)
}

func completedList(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func failedList(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
