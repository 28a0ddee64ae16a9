package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/anadama/anadama/internal/dag"
	"github.com/anadama/anadama/internal/tracked"
)

func TestLocalWorkerRunsCallableAction(t *testing.T) {
	w := NewLocalWorker(nil)
	called := false
	task := &dag.Task{
		TaskNo:  0,
		Name:    "callable",
		Actions: []dag.Action{{Callable: func(t *dag.Task) error { called = true; return nil }}},
	}
	res := w.Run(context.Background(), task, nil)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if !called {
		t.Fatal("expected the callable action to run")
	}
}

func TestLocalWorkerWrapsCallableError(t *testing.T) {
	w := NewLocalWorker(nil)
	want := errors.New("boom")
	task := &dag.Task{
		TaskNo:  0,
		Name:    "failing",
		Actions: []dag.Action{{Callable: func(t *dag.Task) error { return want }}},
	}
	res := w.Run(context.Background(), task, nil)
	var af *ActionFailure
	if !errors.As(res.Err, &af) {
		t.Fatalf("expected an *ActionFailure, got %v", res.Err)
	}
	if !errors.Is(res.Err, want) {
		t.Fatal("expected ActionFailure to unwrap to the original error")
	}
}

func TestLocalWorkerRunsShellCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	w := NewLocalWorker(nil)
	task := &dag.Task{
		TaskNo:  0,
		Name:    "shell",
		Actions: []dag.Action{{Command: "echo hi > " + out}},
		Targets: []tracked.Object{tracked.NewFile(out)},
	}
	res := w.Run(context.Background(), task, nil)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected the shell command to create %s: %v", out, err)
	}
	if len(res.TargetsCompare) != 1 {
		t.Fatalf("expected one targets-compare entry, got %v", res.TargetsCompare)
	}
}

func TestLocalWorkerReportsTargetMissing(t *testing.T) {
	dir := t.TempDir()
	neverCreated := filepath.Join(dir, "never.txt")

	w := NewLocalWorker(nil)
	task := &dag.Task{
		TaskNo:  0,
		Name:    "noop-missing-target",
		Actions: []dag.Action{{Command: "true"}},
		Targets: []tracked.Object{tracked.NewFile(neverCreated)},
	}
	res := w.Run(context.Background(), task, nil)
	var tm *TargetMissing
	if !errors.As(res.Err, &tm) {
		t.Fatalf("expected a *TargetMissing error, got %v", res.Err)
	}
}

func TestLocalWorkerShellFailureWrapsActionFailure(t *testing.T) {
	w := NewLocalWorker(nil)
	task := &dag.Task{
		TaskNo:  0,
		Name:    "exit-nonzero",
		Actions: []dag.Action{{Command: "exit 3"}},
	}
	res := w.Run(context.Background(), task, nil)
	var af *ActionFailure
	if !errors.As(res.Err, &af) {
		t.Fatalf("expected an *ActionFailure for a nonzero exit, got %v", res.Err)
	}
}
