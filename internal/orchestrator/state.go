package orchestrator

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/firepipe/internal/process"
)

// TaskStatus represents the scheduling state of a task within one run.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // not yet considered
	TaskBlocked                     // an upstream task has not completed, or a retry is scheduled
	TaskReady                       // every upstream completed, waiting for admission
	TaskRunning                     // admitted and executing
	TaskCompleted                   // finished successfully
	TaskFailed                      // final attempt failed
	TaskSkipped                     // an upstream task failed, will never run
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskBlocked:
		return "blocked"
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// IsTerminal reports whether s can no longer change during a run.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// TaskState is a point-in-time view of one task.
type TaskState struct {
	Task    process.Task
	Ref     process.TaskRef
	Status  TaskStatus
	Metrics *process.TaskMetrics
	reason  string
}

// Name returns the task name.
func (s TaskState) Name() string {
	return s.Task.Name()
}

// Progress counts tasks per status. It is broadcast under ProgressKey.
type Progress struct {
	Total     int
	Pending   int
	Blocked   int
	Ready     int
	Running   int
	Completed int
	Failed    int
	Skipped   int
}

// Finished returns the number of tasks in a terminal status.
func (p Progress) Finished() int {
	return p.Completed + p.Failed + p.Skipped
}

func (p *Progress) add(s TaskStatus) {
	p.Total++
	switch s {
	case TaskPending:
		p.Pending++
	case TaskBlocked:
		p.Blocked++
	case TaskReady:
		p.Ready++
	case TaskRunning:
		p.Running++
	case TaskCompleted:
		p.Completed++
	case TaskFailed:
		p.Failed++
	case TaskSkipped:
		p.Skipped++
	}
}

// nodeState is the loop-owned record of one node.
type nodeState struct {
	status  TaskStatus
	reason  string
	metrics *process.TaskMetrics // latest attempt, nil until admitted

	backoff  backoff.BackOff
	timer    *time.Timer
	retrying bool
}
