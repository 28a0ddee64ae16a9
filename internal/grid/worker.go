package grid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/anadama/anadama/internal/dag"
	"github.com/anadama/anadama/internal/runner"
)

// StatusReporter receives the two grid-specific reporter events from
// spec.md §8 ("task_grid_status", "task_grid_status_polling"). A nil
// StatusReporter is treated as a no-op.
type StatusReporter interface {
	TaskGridStatus(taskNo int, name string, state string)
	TaskGridStatusPolling(taskNo int, name string)
}

type noopStatusReporter struct{}

func (noopStatusReporter) TaskGridStatus(int, string, string)  {}
func (noopStatusReporter) TaskGridStatusPolling(int, string) {}

const maxTries = 3

// Worker submits and polls grid jobs. It holds the two mutexes spec.md §5
// assigns the grid queue client directly (a submission lock and a cached
// status lock), a direct port of anadama2/grid/grid.py's
// lock_submit/lock_status rather than the teacher's generalized per-file
// ResourceLockManager (see DESIGN.md).
type Worker struct {
	Client    Client
	FS        afero.Fs
	ScriptDir string

	SubmitSleep  time.Duration
	CheckJobRate time.Duration
	RefreshRate  time.Duration

	Reporter StatusReporter

	submitMu sync.Mutex

	statusMu    sync.Mutex
	statusCache map[string]statusEntry
}

type statusEntry struct {
	status string
	at     time.Time
}

// NewWorker builds a Worker with spec.md §4.5's documented defaults
// (submit_sleep=5s, check_job_rate=60s, refresh_rate=600s).
func NewWorker(client Client, fs afero.Fs, scriptDir string) *Worker {
	return &Worker{
		Client:       client,
		FS:           fs,
		ScriptDir:    scriptDir,
		SubmitSleep:  5 * time.Second,
		CheckJobRate: 60 * time.Second,
		RefreshRate:  600 * time.Second,
		Reporter:     noopStatusReporter{},
		statusCache:  make(map[string]statusEntry),
	}
}

// Run implements runner.Worker. extra must be a *dag.GridRequest.
func (w *Worker) Run(ctx context.Context, t *dag.Task, extra any) runner.TaskResult {
	if w.Reporter == nil {
		w.Reporter = noopStatusReporter{}
	}

	req, ok := extra.(*dag.GridRequest)
	if !ok || req == nil {
		return runner.TaskResult{TaskNo: t.TaskNo, Err: fmt.Errorf("task %q: routed to grid pool with no GridRequest", t.Name)}
	}

	resources, err := ResolveRequest(t, req)
	if err != nil {
		return runner.TaskResult{TaskNo: t.TaskNo, Err: err}
	}

	job := &Job{TaskNo: t.TaskNo, TaskName: t.Name, State: StateNew, Resources: resources, ScriptDir: w.ScriptDir}

	for {
		paths, err := w.submit(ctx, t, job)
		if err != nil {
			job.State = StateFailed
			w.Reporter.TaskGridStatus(t.TaskNo, t.Name, job.State.String())
			return runner.TaskResult{TaskNo: t.TaskNo, Err: err}
		}
		job.State = StateSubmitted
		w.Reporter.TaskGridStatus(t.TaskNo, t.Name, job.State.String())

		escalate, result := w.poll(ctx, t, job, paths)
		if !escalate {
			return result
		}
		// poll already bumped job.Resources; loop to resubmit.
	}
}

// submit renders and submits one grid script, holding the submit lock for
// the duration of the scheduler call plus the rate-limit sleep (spec.md
// §4.5, "Between submissions, hold a process-wide submit lock and sleep
// submit_sleep seconds").
func (w *Worker) submit(ctx context.Context, t *dag.Task, job *Job) (scriptPaths, error) {
	paths, err := buildScript(w.FS, w.ScriptDir, t, job, w.Client)
	if err != nil {
		return scriptPaths{}, err
	}

	w.submitMu.Lock()
	defer func() {
		time.Sleep(w.SubmitSleep)
		w.submitMu.Unlock()
	}()

	stdout, _, err := runSchedulerCommand(ctx, w.Client.SubmitCommand(), paths.Script)
	if err != nil {
		return scriptPaths{}, &SubmitFailure{TaskName: t.Name, Reason: err.Error()}
	}

	firstLine := strings.TrimSpace(strings.SplitN(string(stdout), "\n", 2)[0])
	id := extractJobID(firstLine)
	if id == "" {
		return scriptPaths{}, &SubmitFailure{TaskName: t.Name, Reason: fmt.Sprintf("non-numeric submission response %q", firstLine)}
	}
	job.SchedJobID = id
	job.Tries++
	return paths, nil
}

// extractJobID pulls the first run of digits out of a scheduler's
// submission response ("Submitted batch job 12345" for sbatch, "Job <123>
// is submitted..." for bsub).
func extractJobID(line string) string {
	var digits strings.Builder
	for _, r := range line {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	id := digits.String()
	if _, err := strconv.Atoi(id); err != nil {
		return ""
	}
	return id
}

// poll waits for the job to end, classifying status via the client's
// predicates (spec.md §4.5, "Status polling"/"Escalation protocol").
// escalate=true means job.Resources was bumped and the caller should
// resubmit; escalate=false means result is final.
func (w *Worker) poll(ctx context.Context, t *dag.Task, job *Job, paths scriptPaths) (escalate bool, result runner.TaskResult) {
	ticker := time.NewTicker(w.CheckJobRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, runner.TaskResult{TaskNo: t.TaskNo, Err: ctx.Err()}
		case <-ticker.C:
		}

		w.Reporter.TaskGridStatusPolling(t.TaskNo, t.Name)

		rcDone, rc := w.readRC(paths.RC)
		status, err := w.cachedStatus(ctx, job.SchedJobID)
		if err != nil && !rcDone {
			continue // transient query failure; try again next tick
		}

		switch {
		case rcDone && w.Client.JobStopped(status) && rc == 0:
			job.State = StateDone
			w.Reporter.TaskGridStatus(t.TaskNo, t.Name, job.State.String())
			return false, w.assemble(ctx, t, job, paths, rc)

		case w.Client.JobTimeout(ctx, status, job.SchedJobID, job.Resources.TimeMin) ||
			w.Client.JobMemkill(ctx, status, job.SchedJobID, job.Resources.MemMB):
			if job.Tries >= maxTries {
				job.State = StateFailed
				w.Reporter.TaskGridStatus(t.TaskNo, t.Name, job.State.String())
				return false, runner.TaskResult{TaskNo: t.TaskNo, Err: &RetriesExhausted{TaskName: t.Name, Tries: job.Tries}}
			}
			w.escalateResources(job, status)
			job.State = StateNew
			w.Reporter.TaskGridStatus(t.TaskNo, t.Name, fmt.Sprintf("resubmitting due to %s", status))
			return true, runner.TaskResult{}

		case w.Client.JobFailed(status) || (rcDone && rc != 0):
			job.State = StateFailed
			w.Reporter.TaskGridStatus(t.TaskNo, t.Name, job.State.String())
			err := error(&ReturnCodeError{TaskName: t.Name, Code: rc})
			if !rcDone {
				err = fmt.Errorf("task %q: scheduler reported failed status %q", t.Name, status)
			}
			return false, runner.TaskResult{TaskNo: t.TaskNo, Err: err}

		default:
			if job.State != StateRunning {
				job.State = StateRunning
				w.Reporter.TaskGridStatus(t.TaskNo, t.Name, job.State.String())
			}
		}
	}
}

// escalateResources applies the per-try multiplier table (see
// escalationFactor) for timeouts, or the reported-usage-based bump for
// memkills, per spec.md §4.5's "Escalation protocol".
func (w *Worker) escalateResources(job *Job, status string) {
	factor := escalationFactor(job.Tries)
	if w.Client.JobMemkill(context.Background(), status, job.SchedJobID, job.Resources.MemMB) {
		if b, err := w.Client.Benchmark(context.Background(), job.SchedJobID); err == nil && b.PeakMemMB > 0 {
			job.Resources.MemMB = int(b.PeakMemMB * 1.3)
		} else {
			job.Resources.MemMB = int(float64(job.Resources.MemMB) * 2)
		}
		return
	}
	job.Resources.TimeMin = int(float64(job.Resources.TimeMin) * factor)
}

func (w *Worker) readRC(rcPath string) (done bool, code int) {
	data, err := afero.ReadFile(w.FS, rcPath)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return false, 0
	}
	code, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}
	return true, code
}

// cachedStatus serves RefreshQueueStatus results from a shared cache for up
// to RefreshRate, bounding scheduler query volume across every task polling
// concurrently (spec.md §4.5, "cached for up to refresh_rate seconds,
// shared across all tasks under a status lock").
func (w *Worker) cachedStatus(ctx context.Context, schedJobID string) (string, error) {
	w.statusMu.Lock()
	if entry, ok := w.statusCache[schedJobID]; ok && time.Since(entry.at) < w.RefreshRate {
		w.statusMu.Unlock()
		return entry.status, nil
	}
	w.statusMu.Unlock()

	status, err := w.Client.RefreshQueueStatus(ctx, schedJobID)
	if err != nil {
		return "", err
	}

	w.statusMu.Lock()
	w.statusCache[schedJobID] = statusEntry{status: status, at: time.Now()}
	w.statusMu.Unlock()
	return status, nil
}

// collectBenchmark fetches accounting data after a job finishes and reports
// it through the same grid-status channel as state transitions. Accounting
// systems often lag job completion by one refresh interval, so a first
// empty reading is retried once after waiting (spec.md §4.5, "Result
// assembly").
func (w *Worker) collectBenchmark(ctx context.Context, t *dag.Task, job *Job) {
	bench, err := w.Client.Benchmark(ctx, job.SchedJobID)
	if err != nil || (bench.ElapsedSeconds == 0 && bench.PeakMemMB == 0) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.RefreshRate):
		}
		bench, err = w.Client.Benchmark(ctx, job.SchedJobID)
		if err != nil {
			return
		}
	}
	w.Reporter.TaskGridStatus(t.TaskNo, t.Name, fmt.Sprintf(
		"benchmark: elapsed=%s peak_mem=%s cores=%d",
		(time.Duration(bench.ElapsedSeconds) * time.Second).String(),
		humanize.IBytes(uint64(bench.PeakMemMB*1024*1024)), bench.Cores))
}

// assemble reads the finished job's stdout/stderr, fails the task on a
// scheduler error signaled in stderr, a non-zero rc, or a missing target, and
// otherwise computes the depends/targets compare-sequences for the result.
// Grid scripts run shell commands only, so there is no serialized task result
// to decode; a Compare error is reported as a DecodeFailure.
func (w *Worker) assemble(ctx context.Context, t *dag.Task, job *Job, paths scriptPaths, rc int) runner.TaskResult {
	stdout, _ := afero.ReadFile(w.FS, paths.Stdout)
	stderr, _ := afero.ReadFile(w.FS, paths.Stderr)

	if status, ok := w.Client.GetJobStatusFromStderr(stderr); ok && w.Client.JobFailed(status) {
		return runner.TaskResult{TaskNo: t.TaskNo, Err: fmt.Errorf("task %q: scheduler signaled %s in stderr", t.Name, status), Stdout: stdout, Stderr: stderr}
	}
	if rc != 0 {
		return runner.TaskResult{TaskNo: t.TaskNo, Err: &ReturnCodeError{TaskName: t.Name, Code: rc}, Stdout: stdout, Stderr: stderr}
	}

	for _, target := range t.Targets {
		if !target.Exists() {
			return runner.TaskResult{TaskNo: t.TaskNo, Err: fmt.Errorf("task %q: target %s not produced", t.Name, target.Key())}
		}
	}

	var dependsCompare, targetsCompare [][]any
	for _, d := range t.Depends {
		c, err := d.Compare()
		if err != nil {
			return runner.TaskResult{TaskNo: t.TaskNo, Err: &DecodeFailure{TaskName: t.Name, Err: err}}
		}
		dependsCompare = append(dependsCompare, c)
	}
	for _, tg := range t.Targets {
		c, err := tg.Compare()
		if err != nil {
			return runner.TaskResult{TaskNo: t.TaskNo, Err: &DecodeFailure{TaskName: t.Name, Err: err}}
		}
		targetsCompare = append(targetsCompare, c)
	}

	w.collectBenchmark(ctx, t, job)

	return runner.TaskResult{
		TaskNo:         t.TaskNo,
		DependsCompare: dependsCompare,
		TargetsCompare: targetsCompare,
		Stdout:         stdout,
		Stderr:         stderr,
	}
}
