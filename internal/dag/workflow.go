package dag

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/anadama/anadama/internal/tracked"
)

// Workflow accumulates registered tasks and grows the DAG. It replaces the
// teacher's agent-pipeline WorkflowManager with AnADAMA's registration API
// (AddTask/Do/AlreadyExists/BuildTask). Registration and the read accessors
// (Task, Tasks, TaskByName) take the same mutex.
type Workflow struct {
	mu      sync.Mutex
	tasks   []*Task
	byName  map[string]int
	dag     *DAG
	depidx  *dependencyIndex
	strict  bool
	cmdNS   string
}

// Options configures a new Workflow (spec.md §6, "Workflow construction").
type Options struct {
	// Strict: if true, an unknown dependency is a hard error. If false,
	// a dependency whose Exists() is true may be auto-registered as
	// pre-existing instead of failing registration.
	Strict bool
}

func New(opts Options) *Workflow {
	ns, err := os.Getwd()
	if err != nil {
		ns = "."
	}
	return &Workflow{
		tasks:  nil,
		byName: make(map[string]int),
		dag:    newDAG(),
		depidx: newDependencyIndex(),
		strict: opts.Strict,
		cmdNS:  filepath.Clean(ns),
	}
}

// DAG exposes the built graph for planning/running (read-only once the
// workflow starts executing).
func (w *Workflow) DAG() *DAG { return w.dag }

// Task returns the registered task with the given task number.
func (w *Workflow) Task(taskNo int) *Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tasks[taskNo]
}

// Tasks returns every registered task, in registration order.
func (w *Workflow) Tasks() []*Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Task(nil), w.tasks...)
}

// TaskByName resolves a task by its unique name.
func (w *Workflow) TaskByName(name string) (*Task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	no, ok := w.byName[name]
	if !ok {
		return nil, false
	}
	return w.tasks[no], true
}

// AddTask registers a task. See spec.md §4.1 for the full dependency
// resolution algorithm this implements.
func (w *Workflow) AddTask(actions []Action, depends, targets []tracked.Object, name string) (*Task, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addTaskLocked(actions, depends, targets, name)
}

func (w *Workflow) addTaskLocked(actions []Action, depends, targets []tracked.Object, name string) (*Task, error) {
	taskNo := len(w.tasks)
	if name == "" {
		name = fmt.Sprintf("Step %d", taskNo)
	}
	if _, dup := w.byName[name]; dup {
		return nil, &RegistrationError{TaskName: name, Reason: "duplicate task name"}
	}

	for _, targ := range targets {
		if tracked.IsTaskAlias(targ) {
			return nil, &RegistrationError{TaskName: name, Reason: "a target cannot be a task-output alias"}
		}
	}

	t := &Task{TaskNo: taskNo, Name: name, Actions: actions, Depends: depends, Targets: targets}

	w.tasks = append(w.tasks, t)
	w.dag.addNode(taskNo)

	rollback := func(cause error) (*Task, error) {
		w.tasks = w.tasks[:len(w.tasks)-1]
		w.dag.removeNode(taskNo)
		return nil, cause
	}

	for _, d := range depends {
		if alias, ok := d.(*tracked.TaskAlias); ok {
			w.dag.addEdge(alias.TaskNo, taskNo)
			continue
		}

		key := d.Key()
		if w.depidx.has(key) {
			if producer, preexisting, _ := w.depidx.lookup(key); !preexisting {
				w.dag.addEdge(producer, taskNo)
			}
			continue
		}

		if !d.MustPreexist() {
			continue
		}

		if !w.strict && d.Exists() {
			w.registerPreexistingLocked(d)
			continue
		}

		suggestion := w.closestKnownKeyLocked(key)
		return rollback(newUnknownDependencyError(name, key, suggestion))
	}

	for _, targ := range targets {
		w.depidx.link(targ.Key(), taskNo)
	}

	w.byName[name] = taskNo
	return t, nil
}

// registerPreexistingLocked records dep in the dependency index as
// pre-existing, with no producer. Unlike AlreadyExists it registers no no-op
// task, so consumers of dep get no DAG edge.
func (w *Workflow) registerPreexistingLocked(dep tracked.Object) {
	w.depidx.linkPreexisting(dep.Key())
}

// AlreadyExists declares the given objects as produced by a no-op task: no
// task creates them, they are already present before any task runs.
func (w *Workflow) AlreadyExists(objects ...tracked.Object) (*Task, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addTaskLocked(nil, nil, objects, "Track pre-existing dependencies")
}

// closestKnownKeyLocked returns the existing dependency/target key closest
// (by edit distance) to target, across every task registered so far.
func (w *Workflow) closestKnownKeyLocked(target string) string {
	var candidates []string
	for _, t := range w.tasks {
		for _, d := range t.Depends {
			if !tracked.IsTaskAlias(d) {
				candidates = append(candidates, d.Key())
			}
		}
		for _, tg := range t.Targets {
			candidates = append(candidates, tg.Key())
		}
	}
	return closestKey(target, candidates)
}

// TaskBuilder is the explicit, non-decorator alternative to a bare AddTask
// call with no actions (spec.md §9, "Decorator registration").
type TaskBuilder struct {
	w        *Workflow
	name     string
	depends  []tracked.Object
	targets  []tracked.Object
	callable func(t *Task) error
}

// BuildTask starts a fluent task registration: w.BuildTask(name).
// WithDepends(...).WithTargets(...).WithAction(fn).Register().
func (w *Workflow) BuildTask(name string) *TaskBuilder {
	return &TaskBuilder{w: w, name: name}
}

func (b *TaskBuilder) WithDepends(depends ...tracked.Object) *TaskBuilder {
	b.depends = append(b.depends, depends...)
	return b
}

func (b *TaskBuilder) WithTargets(targets ...tracked.Object) *TaskBuilder {
	b.targets = append(b.targets, targets...)
	return b
}

func (b *TaskBuilder) WithAction(fn func(t *Task) error) *TaskBuilder {
	b.callable = fn
	return b
}

func (b *TaskBuilder) Register() (*Task, error) {
	var actions []Action
	if b.callable != nil {
		actions = []Action{{Callable: b.callable}}
	}
	return b.w.AddTask(actions, b.depends, b.targets, b.name)
}

var (
	targetPattern = regexp.MustCompile(`@\{([^{}]+)\}`)
	dependPattern = regexp.MustCompile(`#\{([^{}]+)\}`)
	markerPattern = regexp.MustCompile(`[@#]\{([^{}]+)\}`)
)

// DoOptions configures Do's command/binary tracking (spec.md §4.1).
type DoOptions struct {
	TrackCommand  bool
	TrackBinaries bool
}

// DefaultDoOptions mirrors the original's defaults: both trackers on.
func DefaultDoOptions() DoOptions {
	return DoOptions{TrackCommand: true, TrackBinaries: true}
}

// Do is the shell-string sugar form of AddTask: wrap target filenames in
// @{...} and dependency filenames in #{...}.
func (w *Workflow) Do(cmd string, opts DoOptions) (*Task, error) {
	targetNames := extractWrapped(cmd, targetPattern)
	dependNames := extractWrapped(cmd, dependPattern)
	stripped := markerPattern.ReplaceAllString(cmd, "$1")

	depends := make([]tracked.Object, 0, len(dependNames))
	for _, name := range dependNames {
		depends = append(depends, tracked.NewFile(name))
	}
	targets := make([]tracked.Object, 0, len(targetNames))
	for _, name := range targetNames {
		targets = append(targets, tracked.NewFile(name))
	}

	w.mu.Lock()
	nextTaskNo := len(w.tasks)
	cmdNS := w.cmdNS
	w.mu.Unlock()

	if opts.TrackCommand {
		depends = append(depends, &tracked.Literal{
			Namespace: cmdNS,
			Name:      fmt.Sprintf("%d", nextTaskNo),
			Value:     stripped,
		})
	}

	var toPreexist []tracked.Object
	if opts.TrackBinaries {
		for _, bin := range discoverBinaries(stripped) {
			toPreexist = append(toPreexist, bin)
			depends = append(depends, bin)
		}
	}
	if len(toPreexist) > 0 {
		if _, err := w.AlreadyExists(toPreexist...); err != nil {
			return nil, err
		}
	}

	return w.AddTask([]Action{{Command: stripped}}, depends, targets, stripped)
}

func extractWrapped(s string, pattern *regexp.Regexp) []string {
	matches := pattern.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// discoverBinaries finds tokens in cmd that exist on disk or resolve via
// PATH, are executable, and are smaller than 1 MiB (spec.md §4.1,
// supplemented per SPEC_FULL.md §3.1's three-condition reading of the
// original's discover_binaries).
func discoverBinaries(cmd string) []*tracked.Executable {
	var found []*tracked.Executable
	for _, token := range strings.Fields(cmd) {
		path := token
		if _, err := os.Stat(path); err != nil {
			resolved, lookErr := exec.LookPath(token)
			if lookErr != nil {
				continue
			}
			path = resolved
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0o111 == 0 {
			continue
		}
		if info.Size() >= 1<<20 {
			continue
		}

		exe, err := tracked.NewExecutable(path)
		if err != nil {
			continue
		}
		found = append(found, exe)
	}
	return found
}
