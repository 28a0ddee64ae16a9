package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/anadama/anadama/internal/dag"
	"github.com/anadama/anadama/internal/tracked"
)

// defaultShell is the interpreter Do/AddTask string actions run under. The
// child inherits the dispatcher process's environment, per spec.md §4.4.
const defaultShell = "/bin/sh"

// LocalWorker runs a task's actions in the dispatcher process (callables)
// or a child shell (command strings). It implements Worker.
type LocalWorker struct {
	Procs *ProcessManager
}

// NewLocalWorker returns a LocalWorker tracking its children in procs. procs
// may be shared with other LocalWorker instances so a single shutdown
// signal can kill every local child at once.
func NewLocalWorker(procs *ProcessManager) *LocalWorker {
	if procs == nil {
		procs = NewProcessManager()
	}
	return &LocalWorker{Procs: procs}
}

// Run implements Worker. extra is ignored; the local pool has no
// task-specific routing payload.
func (w *LocalWorker) Run(ctx context.Context, t *dag.Task, extra any) TaskResult {
	for _, action := range t.Actions {
		if action.IsCallable() {
			if err := action.Callable(t); err != nil {
				return TaskResult{TaskNo: t.TaskNo, Err: &ActionFailure{TaskName: t.Name, Err: err}}
			}
			continue
		}

		cmd := newCommand(ctx, defaultShell, action.Command)
		cmd.Env = os.Environ()
		w.Procs.Track(cmd)
		stdout, stderr, err := runCommand(cmd)
		w.Procs.Untrack(cmd)
		if err != nil {
			return TaskResult{
				TaskNo: t.TaskNo,
				Err:    &ActionFailure{TaskName: t.Name, Err: err},
				Stdout: stdout,
				Stderr: stderr,
			}
		}
	}

	for _, target := range t.Targets {
		if !target.Exists() {
			return TaskResult{TaskNo: t.TaskNo, Err: &TargetMissing{TaskName: t.Name, Key: target.Key()}}
		}
	}

	dependsCompare, err := compareAll(t.Depends)
	if err != nil {
		return TaskResult{TaskNo: t.TaskNo, Err: fmt.Errorf("task %q: %w", t.Name, err)}
	}
	targetsCompare, err := compareAll(t.Targets)
	if err != nil {
		return TaskResult{TaskNo: t.TaskNo, Err: fmt.Errorf("task %q: %w", t.Name, err)}
	}

	return TaskResult{TaskNo: t.TaskNo, DependsCompare: dependsCompare, TargetsCompare: targetsCompare}
}

func compareAll(objects []tracked.Object) ([][]any, error) {
	out := make([][]any, 0, len(objects))
	for _, o := range objects {
		c, err := o.Compare()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
