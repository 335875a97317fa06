package process

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/firepipe/internal/broadcast"
)

// Resource is a named quota unit that limits how many tasks needing it may run
// at once. Resources are compared by identity: two resources created with the
// same name are different resources.
type Resource struct {
	name string
}

// NewResource creates a resource.
func NewResource(name string) *Resource {
	return &Resource{name: name}
}

// Name returns the resource's display name.
func (r *Resource) Name() string {
	return r.name
}

func (r *Resource) String() string {
	return r.name
}

// Resources maps a resource to a unit count: a capacity in a process pool, or
// a requirement on a task.
type Resources map[*Resource]int

// Clone returns a copy of rs.
func (rs Resources) Clone() Resources {
	cp := make(Resources, len(rs))
	for r, n := range rs {
		cp[r] = n
	}
	return cp
}

// Task is a unit of work. Implementations must use pointer receivers on a
// type with at least one field: a process tells tasks apart by identity,
// never by their fields, and distinct pointers to zero-size values may be
// equal.
type Task interface {
	Name() string
	Resources() Resources
	// Execute performs the work. A returned error marks the attempt failed.
	Execute(ctx context.Context, ec ExecutionContext) (any, error)
}

// UpstreamTasks maps the name of each completed direct upstream task to the
// metrics of its successful attempt.
type UpstreamTasks map[string]*TaskMetrics

// ExecutionContext is the read-only view a task gets while executing.
type ExecutionContext interface {
	// Ref identifies the running task.
	Ref() TaskRef
	// Attempt is the 1-based attempt number.
	Attempt() int
	// Upstream exposes the metrics of every completed upstream task.
	Upstream() UpstreamTasks
	// Emit publishes a broadcast. It blocks until the orchestrator applied it.
	Emit(ctx context.Context, scope broadcast.Scope, key broadcast.Key, mode broadcast.Mode, value any) (broadcast.UpdateResult, error)
	// Broadcast reads this task's own TASK-scope value or a PROCESS-scope value.
	Broadcast(scope broadcast.Scope, key broadcast.Key) (broadcast.Value, bool)
}

// TaskRef is an opaque, comparable identifier for a task inside one process.
// It is safe to copy across goroutines or serialize across process boundaries.
type TaskRef struct {
	id uuid.UUID
}

func newTaskRef() TaskRef {
	return TaskRef{id: uuid.New()}
}

// ParseTaskRef parses the String form of a TaskRef.
func ParseTaskRef(s string) (TaskRef, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return TaskRef{}, err
	}
	return TaskRef{id: id}, nil
}

func (r TaskRef) String() string {
	return r.id.String()
}

// IsZero reports whether r was never assigned.
func (r TaskRef) IsZero() bool {
	return r.id == uuid.Nil
}

// TaskNode is the graph vertex wrapping a task. Nodes are compared by pointer.
type TaskNode struct {
	task Task
	ref  TaskRef
}

// Task returns the wrapped task.
func (n *TaskNode) Task() Task {
	return n.task
}

// Ref returns the node's task reference.
func (n *TaskNode) Ref() TaskRef {
	return n.ref
}

// Name returns the wrapped task's name.
func (n *TaskNode) Name() string {
	return n.task.Name()
}

// TaskMetrics records one execution attempt of a task.
type TaskMetrics struct {
	TaskName string
	Attempt  int // 1-based; 0 for a task that never started

	Done    bool // Success, Result and Err are meaningful only once Done
	Success bool
	Result  any
	Err     error

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Previous is the earlier attempt of the same task, nil for the first.
	Previous *TaskMetrics
}

// Clone returns a copy of m. The Previous chain is shared, finished attempts
// are never modified.
func (m *TaskMetrics) Clone() *TaskMetrics {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

// Attempts returns every attempt from the first to m.
func (m *TaskMetrics) Attempts() []*TaskMetrics {
	var chain []*TaskMetrics
	for cur := m; cur != nil; cur = cur.Previous {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
