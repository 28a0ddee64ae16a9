// Command anadama demonstrates wiring a Workflow end to end: build a small
// DAG, resolve a fingerprint backend and run options, dispatch it, and
// exit non-zero if any step or task fails. It is not a general
// task-definition CLI -- callers
// define their own workflow in Go and embed this package's libraries
// directly, the same way the original anadama2 expected a user pipeline
// script to import and drive it.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"github.com/anadama/anadama/internal/config"
	"github.com/anadama/anadama/internal/dag"
	"github.com/anadama/anadama/internal/metrics"
	"github.com/anadama/anadama/internal/reporter"
	"github.com/anadama/anadama/internal/runner"
	"github.com/anadama/anadama/internal/store"
	"github.com/anadama/anadama/internal/tracked"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	procs := runner.NewProcessManager()
	go func() {
		<-ctx.Done()
		if err := procs.KillAll(); err != nil {
			log.Printf("error killing tracked subprocesses: %v", err)
		}
	}()

	opts, err := config.Load(afero.NewOsFs(), globalConfigPath(), ".anadama.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	backendDir := opts.StorageBackend
	if backendDir == "" {
		backendDir, err = store.DefaultDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolving fingerprint store directory: %v\n", err)
			os.Exit(1)
		}
	}
	backend, err := store.NewSQLiteBackend(ctx, filepath.Join(backendDir, "fingerprints.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening fingerprint store: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	bus := reporter.NewBus()
	defer bus.Close()
	rep := reporter.NewReporter(bus)
	mtr := metrics.New(prometheus.NewRegistry())

	wf := dag.New(dag.Options{Strict: opts.Strict})
	if err := buildSampleWorkflow(wf); err != nil {
		fmt.Fprintf(os.Stderr, "building workflow: %v\n", err)
		os.Exit(1)
	}

	order, err := wf.DAG().TopologicalOrder()
	if err != nil {
		fmt.Fprintf(os.Stderr, "planning: %v\n", err)
		os.Exit(1)
	}

	run, skip, err := dag.FilterSkippable(ctx, wf.Tasks(), order, wf.DAG(), backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "computing skip set: %v\n", err)
		os.Exit(1)
	}

	rep.Started()
	local := runner.NewLocalWorker(procs)
	d := runner.NewDispatcher(runner.Config{
		Tasks:       wf.Tasks(),
		DAG:         wf.DAG(),
		DefaultPool: "local",
		Pools: map[string]runner.PoolSpec{
			"local": {Worker: local, Rate: int64(max1(opts.Vars.NParallel))},
		},
		Backend:   backend,
		Reporter:  rep,
		Metrics:   mtr,
		QuitEarly: opts.Vars.QuitEarly,
	})

	completed, failed, err := d.Run(ctx, run, skip)
	rep.Finished(completed, failed, skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run error: %v\n", err)
		os.Exit(1)
	}
	if len(failed) > 0 {
		os.Exit(1)
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func globalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".anadama", "config.yaml")
}

// buildSampleWorkflow registers a single-task pipeline purely to
// demonstrate the library surface; real users define their own tasks.
func buildSampleWorkflow(wf *dag.Workflow) error {
	_, err := wf.AddTask(
		[]dag.Action{{Callable: func(t *dag.Task) error { return nil }}},
		nil,
		[]tracked.Object{&tracked.Literal{Namespace: "anadama", Name: "seed", Value: "ok"}},
		"seed",
	)
	return err
}
