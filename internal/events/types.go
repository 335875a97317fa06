package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	// TaskID is the task ref string, empty for process-wide events.
	TaskID() string
}

// Topic constants
const (
	TopicTask      = "task"
	TopicProcess   = "process"
	TopicBroadcast = "broadcast"
)

// Event type constants
const (
	EventTypeTaskStarted     = "task.started"
	EventTypeTaskCompleted   = "task.completed"
	EventTypeTaskFailed      = "task.failed"
	EventTypeTaskSkipped     = "task.skipped"
	EventTypeTaskRetry       = "task.retry"
	EventTypeBroadcast       = "broadcast"
	EventTypeProcessProgress = "process.progress"
	EventTypeRunFinished     = "process.finished"
)

// TaskStartedEvent is published when an attempt of a task is admitted.
type TaskStartedEvent struct {
	ID        string
	Name      string
	Attempt   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	Name      string
	Result    any
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when the final attempt of a task fails.
type TaskFailedEvent struct {
	ID        string
	Name      string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published when a task will never run because an
// upstream task failed.
type TaskSkippedEvent struct {
	ID        string
	Name      string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }

// TaskRetryEvent is published when a failed attempt is scheduled to run again.
type TaskRetryEvent struct {
	ID        string
	Name      string
	Attempt   int // the attempt that failed
	Err       error
	Delay     time.Duration
	Timestamp time.Time
}

func (e TaskRetryEvent) EventType() string { return EventTypeTaskRetry }
func (e TaskRetryEvent) TaskID() string    { return e.ID }

// BroadcastEvent mirrors an applied broadcast. ID is empty for process scope.
type BroadcastEvent struct {
	ID        string
	Scope     string
	Key       string
	Mode      string
	Value     any
	Changed   bool
	Timestamp time.Time
}

func (e BroadcastEvent) EventType() string { return EventTypeBroadcast }
func (e BroadcastEvent) TaskID() string    { return e.ID }

// ProcessProgressEvent is published whenever task status counts change.
type ProcessProgressEvent struct {
	Process   string
	Total     int
	Completed int
	Running   int
	Failed    int
	Skipped   int
	Pending   int // pending, blocked and ready tasks
	Timestamp time.Time
}

func (e ProcessProgressEvent) EventType() string { return EventTypeProcessProgress }
func (e ProcessProgressEvent) TaskID() string    { return "" }

// RunFinishedEvent is published once when an orchestrator run returns.
type RunFinishedEvent struct {
	Process   string
	Success   bool
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) TaskID() string    { return "" }
