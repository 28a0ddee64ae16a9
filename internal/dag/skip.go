package dag

import (
	"context"
	"fmt"

	"github.com/anadama/anadama/internal/store"
	"github.com/anadama/anadama/internal/tracked"
)

// FilterSkippable decides which tasks in order (leaves-first, as returned by
// DAG.TopologicalOrder) may be skipped because their dependencies and
// targets are unchanged since the last successful run. It implements the
// three-rule algorithm from spec.md §4.2, grounded on the original's
// _filter_skipped_tasks/_aggregate_deps/_always_rerun (anadama/workflow.py).
//
// run and skip partition order; run is returned in the same relative order
// as order, guaranteeing callers still get a topologically valid sequence.
func FilterSkippable(ctx context.Context, tasks []*Task, order []int, g *DAG, backend store.Backend) (run []int, skip []int, err error) {
	mustRun := make(map[int]bool, len(order))

	for _, taskNo := range order {
		t := tasks[taskNo]

		// Rule 1: a task with nothing tracked on either side can never be
		// proven unchanged, so it always runs.
		if len(t.Depends) == 0 && len(t.Targets) == 0 {
			mustRun[taskNo] = true
			continue
		}

		// Rule 3: if any producer this task depends on must run, this task
		// must run too. order is leaves-first so every parent was already
		// visited.
		propagated := false
		for _, parent := range g.Parents(taskNo) {
			if mustRun[parent] {
				propagated = true
				break
			}
		}
		if propagated {
			mustRun[taskNo] = true
			continue
		}

		// Rule 2: compare every depend/target's current state against the
		// last recorded state. Any mismatch, any missing record, or any
		// comparison error means the task must run.
		changed, cerr := anyChanged(ctx, backend, t.Depends)
		if cerr != nil {
			return nil, nil, cerr
		}
		if !changed {
			changed, cerr = anyChanged(ctx, backend, t.Targets)
			if cerr != nil {
				return nil, nil, cerr
			}
		}
		if changed {
			mustRun[taskNo] = true
		}
	}

	run = make([]int, 0, len(order))
	skip = make([]int, 0, len(order))
	for _, taskNo := range order {
		if mustRun[taskNo] {
			run = append(run, taskNo)
		} else {
			skip = append(skip, taskNo)
		}
	}
	return run, skip, nil
}

// anyChanged reports whether any object's current Compare() output differs
// from what the backend last recorded for its Key(), treating an unrecorded
// key as changed. Objects with MustPreexist()==false and Exists()==true
// literals/functions are still compared -- only TaskAlias contributes no
// tokens and is skipped outright.
func anyChanged(ctx context.Context, backend store.Backend, objects []tracked.Object) (bool, error) {
	for _, obj := range objects {
		if tracked.IsTaskAlias(obj) {
			continue
		}

		current, err := obj.Compare()
		if err != nil {
			return false, fmt.Errorf("computing current state of %s: %w", obj.Key(), err)
		}

		recorded, ok, err := backend.Lookup(ctx, obj.Key())
		if err != nil {
			return false, fmt.Errorf("looking up recorded state of %s: %w", obj.Key(), err)
		}
		if !ok {
			return true, nil
		}
		if !store.Equal(current, recorded) {
			return true, nil
		}
	}
	return false, nil
}
