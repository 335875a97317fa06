package orchestrator

import (
	"github.com/aristath/firepipe/internal/broadcast"
	"github.com/aristath/firepipe/internal/process"
)

// Process returns the process being orchestrated.
func (o *Orchestrator) Process() *process.Process {
	return o.process
}

// TaskStatus returns the status of task. The bool is false if task is not
// part of the process.
func (o *Orchestrator) TaskStatus(task process.Task) (TaskStatus, bool) {
	n, ok := o.process.Node(task)
	if !ok {
		return TaskPending, false
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if st, ok := o.states[n]; ok {
		return st.status, true
	}
	return TaskPending, true
}

// TaskMetrics returns a copy of the metrics of task's latest attempt. A task
// that never started reports a placeholder carrying only its name.
func (o *Orchestrator) TaskMetrics(task process.Task) (*process.TaskMetrics, bool) {
	n, ok := o.process.Node(task)
	if !ok {
		return nil, false
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.metricsOf(n), true
}

// TaskStateList returns the state of every task in topological order once
// the run started, in insertion order before that.
func (o *Orchestrator) TaskStateList() []TaskState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	order := o.order
	if order == nil {
		order = o.process.Graph().Nodes()
	}

	list := make([]TaskState, 0, len(order))
	for _, n := range order {
		s := TaskState{
			Task:    n.Task(),
			Ref:     n.Ref(),
			Status:  TaskPending,
			Metrics: o.metricsOf(n),
		}
		if st, ok := o.states[n]; ok {
			s.Status = st.status
			s.reason = st.reason
		}
		list = append(list, s)
	}
	return list
}

// BlockageReason explains why the task in s is not running. It is set for
// blocked and skipped tasks, and for ready tasks that could not be admitted.
func (o *Orchestrator) BlockageReason(s TaskState) (string, bool) {
	switch s.Status {
	case TaskBlocked, TaskSkipped, TaskReady:
		return s.reason, s.reason != ""
	default:
		return "", false
	}
}

// Progress counts tasks per status.
func (o *Orchestrator) Progress() Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var p Progress
	for _, n := range o.process.Graph().Nodes() {
		status := TaskPending
		if st, ok := o.states[n]; ok {
			status = st.status
		}
		p.add(status)
	}
	return p
}

// Broadcast reads a broadcast. ref is ignored for process scope.
func (o *Orchestrator) Broadcast(scope broadcast.Scope, ref process.TaskRef, key broadcast.Key) (broadcast.Value, bool) {
	addr := broadcast.Address{Scope: scope, Key: key}
	if scope == broadcast.ScopeTask {
		addr.Owner = ref.String()
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.store.Get(addr)
}

// Broadcasts returns a snapshot of every broadcast.
func (o *Orchestrator) Broadcasts() []broadcast.Entry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.store.Snapshot()
}

// metricsOf returns a copy of n's latest metrics. Caller holds o.mu.
func (o *Orchestrator) metricsOf(n *process.TaskNode) *process.TaskMetrics {
	if st, ok := o.states[n]; ok && st.metrics != nil {
		return st.metrics.Clone()
	}
	return &process.TaskMetrics{TaskName: n.Name()}
}
