// Package grid ships a task to a batch scheduler (SLURM, LSF, SGE-style),
// waits for it, and recovers from resource exhaustion by resubmitting with
// escalated resources (spec.md §4.5).
package grid

import (
	"context"
	"fmt"

	"github.com/anadama/anadama/internal/dag"
)

// State is a grid job's position in spec.md §4.5's state machine.
type State int

const (
	StateNew State = iota
	StateSubmitted
	StateRunning
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSubmitted:
		return "SUBMITTED"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Resources is a resolved per-task resource request: time_min, mem_mb, and
// cores, all already-evaluated ints (formulas are resolved by ResolveRequest
// before a job is ever submitted). Mem is always MiB at this boundary; unit
// conversion to a scheduler's native unit is each Client's job.
type Resources struct {
	TimeMin   int
	MemMB     int
	Cores     int
	Partition string
	ExtraFlags []string
}

// Job is the engine-side bookkeeping record for one submitted task,
// threaded through the escalation state machine.
type Job struct {
	TaskNo    int
	TaskName  string
	State     State
	Resources Resources
	SchedJobID string
	Tries     int // number of submissions so far, including the first
	ScriptDir string
}

// Benchmark is what collectBenchmark gathers from the scheduler's
// accounting command after a job finishes (spec.md §4.5, "Result assembly").
type Benchmark struct {
	ElapsedSeconds int
	PeakMemMB      float64
	Cores          int
}

// escalationFactor resolves the Open Question in spec.md §9 ("sigmoid" is
// mathematically broken) with a concrete per-try table satisfying the
// stated "factor between 1 and 2.7" contract: try 1->2 multiplies by 1.5,
// try 2->3 by 2.7. A job is never resubmitted past try 3 (spec.md §4.5,
// "Retry up to 3 times").
func escalationFactor(priorTries int) float64 {
	switch priorTries {
	case 1:
		return 1.5
	case 2:
		return 2.7
	default:
		return 1.0
	}
}

// ResolveRequest evaluates a *dag.GridRequest's time/mem formulas (if any)
// against the task's resolved depends and its core count, producing a
// concrete Resources. Formulas reference "depends" (count of the task's
// dependencies) and "cores"; see evalFormula.
func ResolveRequest(t *dag.Task, req *dag.GridRequest) (Resources, error) {
	r := Resources{
		TimeMin:    req.TimeMin,
		MemMB:      req.MemMB,
		Cores:      req.Cores,
		Partition:  req.Partition,
		ExtraFlags: req.ExtraFlags,
	}
	if r.Cores < 1 {
		r.Cores = 1
	}

	if req.HasTimeFormula() {
		v, err := evalFormula(req.TimeFormula, t, r.Cores)
		if err != nil {
			return Resources{}, fmt.Errorf("evaluating time formula for task %q: %w", t.Name, err)
		}
		r.TimeMin = v
	}
	if req.HasMemFormula() {
		v, err := evalFormula(req.MemFormula, t, r.Cores)
		if err != nil {
			return Resources{}, fmt.Errorf("evaluating mem formula for task %q: %w", t.Name, err)
		}
		r.MemMB = v
	}
	return r, nil
}

// Client is the scheduler-client contract from spec.md §6 ("Scheduler
// client contract"). SlurmClient and LSFClient are concrete adapters.
type Client interface {
	// SubmitCommand names the scheduler's submission binary ("sbatch",
	// "bsub", "qsub").
	SubmitCommand() string

	// SubmitTemplate returns the scheduler-specific header lines (job
	// name, cpu count, wall time, memory, output/error paths) for one
	// job, before the user's extra option lines and the task body are
	// appended.
	SubmitTemplate(job *Job) []string

	// RefreshQueueStatus returns the scheduler's current view of
	// schedJobID's status string; callers cache the result for up to
	// refresh_rate seconds (spec.md §4.5).
	RefreshQueueStatus(ctx context.Context, schedJobID string) (string, error)

	JobStopped(status string) bool
	JobFailed(status string) bool
	JobTimeout(ctx context.Context, status, schedJobID string, wantedMin int) bool
	JobMemkill(ctx context.Context, status, schedJobID string, wantedMB int) bool

	// GetJobStatusFromStderr inspects a finished job's stderr for a
	// scheduler-signaled error the exit code alone would not reveal
	// (spec.md §4.5, "Result assembly").
	GetJobStatusFromStderr(stderr []byte) (status string, ok bool)

	// Benchmark queries the scheduler's accounting command for elapsed
	// time, peak memory, and core count.
	Benchmark(ctx context.Context, schedJobID string) (Benchmark, error)
}
