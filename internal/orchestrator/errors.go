package orchestrator

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrAlreadyRun is returned by a second call to Run.
	ErrAlreadyRun = errors.New("orchestrator: already run")
	// ErrRunFinished is returned by emits that arrive after the run ended.
	ErrRunFinished = errors.New("orchestrator: run finished")
)

// ResourceError reports a task requirement the process pool can never
// satisfy. Run returns it before any task starts.
type ResourceError struct {
	Task     string
	Resource string
	Required int
	Capacity int
	Declared bool
}

func (e *ResourceError) Error() string {
	switch {
	case !e.Declared:
		return fmt.Sprintf("task %q requires undeclared resource %q", e.Task, e.Resource)
	case e.Required < 0:
		return fmt.Sprintf("task %q requires a negative amount (%d) of resource %q", e.Task, e.Required, e.Resource)
	default:
		return fmt.Sprintf("task %q requires %d of resource %q but the pool holds %d", e.Task, e.Required, e.Resource, e.Capacity)
	}
}

// TaskExecutionError wraps the error returned by one attempt of a task.
// It is recorded in the attempt's metrics and never returned from Run.
type TaskExecutionError struct {
	Task    string
	Attempt int
	Err     error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %q attempt %d: %v", e.Task, e.Attempt, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perr *backoff.PermanentError
	return errors.As(err, &perr)
}
