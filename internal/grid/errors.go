package grid

import "fmt"

// SubmitFailure is raised when the scheduler's submission command returns a
// non-numeric or empty job id (spec.md §4.5: "a non-numeric or empty result
// means 'submission failed'").
type SubmitFailure struct {
	TaskName string
	Reason   string
}

func (e *SubmitFailure) Error() string {
	return fmt.Sprintf("task %q: unable to submit job to queue: %s", e.TaskName, e.Reason)
}

// DecodeFailure is raised when, after the grid job finishes, the compare-
// sequence of one of the task's depends or targets cannot be computed (see
// Worker.assemble).
type DecodeFailure struct {
	TaskName string
	Err      error
}

func (e *DecodeFailure) Error() string {
	return fmt.Sprintf("task %q: unable to decode task result: %v", e.TaskName, e.Err)
}

func (e *DecodeFailure) Unwrap() error { return e.Err }

// ReturnCodeError is raised when a grid job's rc file holds a non-zero exit
// status (spec.md §4.5).
type ReturnCodeError struct {
	TaskName string
	Code     int
}

func (e *ReturnCodeError) Error() string {
	return fmt.Sprintf("task %q: return code error: %d", e.TaskName, e.Code)
}

// RetriesExhausted is raised when a job has escalated through all allowed
// resubmissions and still did not complete (spec.md §4.5 state table,
// "retries exhausted").
type RetriesExhausted struct {
	TaskName string
	Tries    int
}

func (e *RetriesExhausted) Error() string {
	return fmt.Sprintf("task %q: exhausted %d submission attempts", e.TaskName, e.Tries)
}
