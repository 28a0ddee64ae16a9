package main

import (
	"context"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/anadama/anadama/internal/dag"
	"github.com/anadama/anadama/internal/runner"
)

func TestMax1(t *testing.T) {
	cases := map[int]int{0: 1, -3: 1, 1: 1, 5: 5}
	for in, want := range cases {
		if got := max1(in); got != want {
			t.Fatalf("max1(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestBuildSampleWorkflowRegistersSeedTask(t *testing.T) {
	wf := dag.New(dag.Options{})
	if err := buildSampleWorkflow(wf); err != nil {
		t.Fatal(err)
	}
	if len(wf.Tasks()) != 1 {
		t.Fatalf("expected exactly one registered task, got %d", len(wf.Tasks()))
	}
	if wf.Tasks()[0].Name != "seed" {
		t.Fatalf("expected the seed task's name to be \"seed\", got %q", wf.Tasks()[0].Name)
	}
}

// TestProcessManagerKillAllTerminatesTrackedProcess mirrors the teacher's
// shutdown test: a process group started and tracked under ProcessManager
// must actually die on KillAll.
func TestProcessManagerKillAllTerminatesTrackedProcess(t *testing.T) {
	pm := runner.NewProcessManager()

	cmd := exec.CommandContext(context.Background(), "sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start subprocess: %v", err)
	}
	pm.Track(cmd)

	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected the killed process to exit with a non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("process did not terminate after KillAll()")
	}
}
