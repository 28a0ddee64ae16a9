package runner

import "fmt"

// ActionFailure wraps an error raised while running one of a task's
// actions, callable or shell (spec.md §4.4).
type ActionFailure struct {
	TaskName string
	Err      error
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("task %q: action failed: %v", e.TaskName, e.Err)
}

func (e *ActionFailure) Unwrap() error { return e.Err }

// TargetMissing is raised when a task's actions all succeed but one of its
// declared targets still reports Exists()==false (spec.md §4.4).
type TargetMissing struct {
	TaskName string
	Key      string
}

func (e *TargetMissing) Error() string {
	return fmt.Sprintf("task %q: target %s not produced", e.TaskName, e.Key)
}

// ParentFailed is synthesized by the dispatcher, never by a worker, when a
// task's parent already failed (spec.md §4.3).
type ParentFailed struct {
	TaskName   string
	ParentNo   int
	ParentName string
}

func (e *ParentFailed) Error() string {
	return fmt.Sprintf("task %q: parent task %d (%q) failed", e.TaskName, e.ParentNo, e.ParentName)
}
