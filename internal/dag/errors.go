package dag

import "fmt"

// RegistrationError is raised synchronously from AddTask/Do when a task
// cannot be legally added: unknown dependency, duplicate task name, cycle,
// or a target of kind task-alias (spec.md §7).
type RegistrationError struct {
	TaskName string
	Reason   string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registering task %q: %s", e.TaskName, e.Reason)
}

func newUnknownDependencyError(taskName, depKey, suggestion string) *RegistrationError {
	reason := fmt.Sprintf("unable to find dependency %q", depKey)
	if suggestion != "" {
		reason += fmt.Sprintf(". Perhaps you meant %q?", suggestion)
	}
	return &RegistrationError{TaskName: taskName, Reason: reason}
}
