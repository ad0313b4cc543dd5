package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrTaskTimeout   = errors.New("task attempt timed out")
	ErrResultsClosed = errors.New("pool closed its results channel")
	ErrTaskExecution = errors.New("task execution failed")
)

// TaskExecutionError reports a task that exhausted its attempts
type TaskExecutionError struct {
	TaskID      uint64
	GroupID     int
	SourceRange string
	Attempts    int
	Err         error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %d (%s) failed after %d attempt(s): %v",
		e.TaskID, e.SourceRange, e.Attempts, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrTaskExecution)
func (e *TaskExecutionError) Is(target error) bool {
	return target == ErrTaskExecution
}
