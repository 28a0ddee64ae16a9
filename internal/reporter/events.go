// Package reporter implements the pub-sub event sink spec.md §6 names as
// the "reporter" run option: started, task_started, task_completed,
// task_failed, task_skipped, task_grid_status, task_grid_status_polling,
// finished. Adapted from the teacher's internal/events package (channel-
// based pub-sub, non-blocking drop-on-full).
package reporter

import "time"

// EventType enumerates spec.md §6's reporter event names.
type EventType string

const (
	EventStarted               EventType = "started"
	EventTaskStarted           EventType = "task_started"
	EventTaskCompleted         EventType = "task_completed"
	EventTaskFailed            EventType = "task_failed"
	EventTaskSkipped           EventType = "task_skipped"
	EventTaskGridStatus        EventType = "task_grid_status"
	EventTaskGridStatusPolling EventType = "task_grid_status_polling"
	EventFinished              EventType = "finished"
)

// Event is one occurrence posted to the bus. TaskNo/TaskName are set for
// all task_* events and zero-valued for started/finished. Err is set only
// for task_failed. Detail carries free-form text for task_grid_status
// (job state, escalation reason, benchmark summary); task_grid_status_polling
// leaves it empty.
type Event struct {
	Type      EventType
	TaskNo    int
	TaskName  string
	Err       error
	Detail    string
	Timestamp time.Time

	// FailedTasks/CompletedTasks/SkippedTasks populate the finished event
	// with the run's final tallies (spec.md §6, "Exit status").
	FailedTasks    []int
	CompletedTasks []int
	SkippedTasks   []int
}
