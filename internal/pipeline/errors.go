package pipeline

import (
	stderrors "errors"

	"go.trai.ch/zerr"
)

var (
	// ErrTaskAlreadyExists is returned when a task name is registered twice.
	ErrTaskAlreadyExists = zerr.New("task already exists")

	// ErrMissingDependency is returned when a task depends on a name that was never registered.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when the dependency graph contains a cycle.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrTaskNotFound is returned when a requested task is not registered.
	ErrTaskNotFound = zerr.New("task not found")

	// ErrTaskFailed wraps the error of a task whose action failed.
	ErrTaskFailed = zerr.New("task failed")

	// ErrGraphNotValidated is returned when a graph is run before Validate succeeded.
	ErrGraphNotValidated = zerr.New("graph not validated")
)

// reportedError marks an error that a task already passed to the Reporter.
type reportedError struct {
	err error
}

func (r *reportedError) Error() string { return r.err.Error() }
func (r *reportedError) Unwrap() error { return r.err }

// Reported marks err as handled. The runner records the task as
// StatusReported and the series continues.
func Reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// IsReported reports whether err was marked with Reported.
func IsReported(err error) bool {
	var r *reportedError
	return stderrors.As(err, &r)
}
