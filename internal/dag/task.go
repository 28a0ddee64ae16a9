// Package dag builds the dependency DAG from registered tasks, resolves
// declared dependencies to their producing tasks, computes a topologically
// valid execution order, and decides per task whether its prior results may
// be reused.
package dag

import "github.com/anadama/anadama/internal/tracked"

// Action is one unit of work within a task: either a shell command string
// or a callable. Grid tasks may only use Command actions (grid's buildScript
// rejects callables -- shipping Go closures to a batch node has no safe wire
// format).
type Action struct {
	Command  string
	Callable func(t *Task) error
}

func (a Action) IsCallable() bool { return a.Callable != nil }

// GridRequest describes the resources a task needs when routed to a grid
// pool. Time and Mem may instead be given as Formula, a string referencing
// "depends" and "cores" evaluated at submission time (spec.md §4.5).
type GridRequest struct {
	TimeMin     int
	TimeFormula string
	MemMB       int
	MemFormula  string
	Cores       int
	Partition   string
	ExtraFlags  []string
}

// HasTimeFormula and HasMemFormula report whether the time or memory
// request is formula-driven.
func (r GridRequest) HasTimeFormula() bool { return r.TimeFormula != "" }
func (r GridRequest) HasMemFormula() bool  { return r.MemFormula != "" }

// Task is a named, immutable (once registered) unit of work.
type Task struct {
	TaskNo  int
	Name    string
	Actions []Action
	Depends []tracked.Object
	Targets []tracked.Object

	// Grid is nil for tasks that only ever run locally.
	Grid *GridRequest
}
