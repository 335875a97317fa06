// Package orchestrator executes a process: it admits ready tasks against the
// resource pool, runs them in parallel and tracks their state and metrics.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/firepipe/internal/broadcast"
	"github.com/aristath/firepipe/internal/events"
	"github.com/aristath/firepipe/internal/logging"
	"github.com/aristath/firepipe/internal/process"
)

// ProgressKey is the process-scope broadcast holding the current Progress.
const ProgressKey broadcast.Key = "progress"

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Tasks find it, with task attributes attached,
// through logging.FromContext.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventBus publishes run events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithMaxWorkers caps the number of tasks running at once. 0 means the
// resource pool is the only limit.
func WithMaxWorkers(n int) Option {
	return func(o *Orchestrator) {
		o.maxWorkers = n
	}
}

// WithRetry enables retry of failed tasks.
func WithRetry(cfg RetryConfig) Option {
	return func(o *Orchestrator) {
		o.retry = cfg
	}
}

// WithCircuitBreakers runs every task through the breaker for its name.
// Distinct tasks sharing a name share a breaker, so failures of one open it
// for all of them. A registry passed to several runs carries its state over.
func WithCircuitBreakers(r *CircuitBreakerRegistry) Option {
	return func(o *Orchestrator) {
		o.breakers = r
	}
}

// completion is what a worker reports when an attempt returns.
type completion struct {
	node   *process.TaskNode
	result any
	err    error
	end    time.Time
}

// Orchestrator runs one Process once.
//
// A single coordinating loop owns every piece of run state. Workers report
// through channels; queries take a read lock and may be called at any time.
type Orchestrator struct {
	process    *process.Process
	logger     *slog.Logger
	bus        *events.EventBus
	maxWorkers int
	retry      RetryConfig
	breakers   *CircuitBreakerRegistry

	mu      sync.RWMutex
	order   []*process.TaskNode
	states  map[*process.TaskNode]*nodeState
	store   *broadcast.Store
	started bool

	// loop-owned
	pool           *ResourcePool
	running        int
	pendingRetries int
	unfinished     int
	cancelled      bool

	completions chan completion
	retries     chan *process.TaskNode
	emitCh      chan emitRequest
	done        chan struct{}
}

// New creates an orchestrator for p.
func New(p *process.Process, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		process: p,
		logger:  slog.Default(),
		retry:   DefaultRetryConfig(),
		states:  make(map[*process.TaskNode]*nodeState),
		store:   broadcast.NewStore(),
		emitCh:  make(chan emitRequest),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(logging.KeyProcess, p.Name())
	return o
}

// Run executes the process until every task reached a terminal status.
//
// It returns true iff every task completed. Task failures are reported
// through the query surface, not as errors. Errors are reserved for a cyclic
// graph, an unsatisfiable resource requirement, and cancellation of ctx.
func (o *Orchestrator) Run(ctx context.Context) (bool, error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return false, ErrAlreadyRun
	}
	o.started = true
	o.mu.Unlock()

	start := time.Now()
	ok, err := o.run(ctx)
	close(o.done)

	switch {
	case err != nil:
		o.logger.Error("run aborted", "error", err)
	case !ok:
		o.logger.Warn("run finished with failures", "duration", time.Since(start))
	default:
		o.logger.Info("run finished", "duration", time.Since(start))
	}
	o.bus.Publish(events.TopicProcess, events.RunFinishedEvent{
		Process:   o.process.Name(),
		Success:   ok,
		Err:       err,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
	return ok, err
}

func (o *Orchestrator) run(ctx context.Context) (bool, error) {
	g := o.process.Graph()

	order, err := g.TopologicalSort()
	if err != nil {
		return false, fmt.Errorf("process %q: %w", o.process.Name(), err)
	}

	o.pool = NewResourcePool(o.process.Resources())
	for _, n := range order {
		if err := o.pool.Validate(n.Name(), n.Task().Resources()); err != nil {
			return false, err
		}
	}

	o.mu.Lock()
	o.order = order
	for _, n := range order {
		st := &nodeState{status: TaskPending}
		o.states[n] = st
		if len(g.Incoming(n)) == 0 {
			st.status = TaskReady
		} else {
			st.status = TaskBlocked
			st.reason = waitingReason(g.Incoming(n), o.states)
		}
	}
	o.unfinished = len(order)
	o.mu.Unlock()

	o.completions = make(chan completion, len(order))
	o.retries = make(chan *process.TaskNode, len(order))

	o.logger.Info("run started", "tasks", len(order), "edges", g.EdgeCount())

	var workers errgroup.Group
	doneCh := ctx.Done()

	for o.unfinished > 0 {
		if ctx.Err() == nil {
			o.admitReady(ctx, &workers)
		}
		o.publishProgress()

		if o.running == 0 && o.pendingRetries == 0 {
			if ctx.Err() != nil {
				if !o.cancelled {
					o.stopRetries()
				}
				break
			}
			return false, fmt.Errorf("process %q: %d task(s) cannot make progress", o.process.Name(), o.unfinished)
		}

		select {
		case c := <-o.completions:
			// a task usually returns because ctx ended; record that first
			if ctx.Err() != nil && !o.cancelled {
				o.stopRetries()
			}
			o.handleCompletion(c)
		case req := <-o.emitCh:
			req.replyCh <- o.applyEmit(req.addr, req.mode, req.value)
		case n := <-o.retries:
			o.handleRetry(n)
		case <-doneCh:
			doneCh = nil
			if !o.cancelled {
				o.stopRetries()
			}
			o.logger.Warn("run cancelled, draining running tasks", "running", o.running)
		}
	}

	_ = workers.Wait()
	o.publishProgress()

	success := o.unfinished == 0 && o.allCompleted()
	if !success && o.cancelled {
		return false, ctx.Err()
	}
	return success, nil
}

func (o *Orchestrator) allCompleted() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, st := range o.states {
		if st.status != TaskCompleted {
			return false
		}
	}
	return true
}

// admitReady starts every ready task the pool and worker limit allow, in
// topological order.
func (o *Orchestrator) admitReady(ctx context.Context, workers *errgroup.Group) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, n := range o.order {
		st := o.states[n]
		if st.status != TaskReady {
			continue
		}
		if o.maxWorkers > 0 && o.running >= o.maxWorkers {
			st.reason = "waiting for a free worker"
			continue
		}
		req := n.Task().Resources()
		if short := o.pool.Shortfall(req); len(short) > 0 {
			st.reason = exhaustedReason(short)
			continue
		}
		o.pool.Acquire(req)
		o.start(ctx, workers, n, st)
	}
}

// start moves n to running and dispatches its attempt. Caller holds o.mu.
func (o *Orchestrator) start(ctx context.Context, workers *errgroup.Group, n *process.TaskNode, st *nodeState) {
	attempt := 1
	if st.metrics != nil {
		attempt = st.metrics.Attempt + 1
	}
	st.metrics = &process.TaskMetrics{
		TaskName:  n.Name(),
		Attempt:   attempt,
		StartTime: time.Now(),
		Previous:  st.metrics,
	}
	st.status = TaskRunning
	st.reason = ""
	o.running++

	ec := &executionContext{
		o:        o,
		ref:      n.Ref(),
		attempt:  attempt,
		upstream: o.upstreamOf(n),
	}
	logger := o.logger.With(logging.KeyTask, n.Name(), logging.KeyRef, n.Ref().String(), logging.KeyAttempt, attempt)
	logger.Debug("task admitted")

	o.bus.Publish(events.TopicTask, events.TaskStartedEvent{
		ID:        n.Ref().String(),
		Name:      n.Name(),
		Attempt:   attempt,
		Timestamp: st.metrics.StartTime,
	})

	taskCtx := logging.WithLogger(ctx, logger)
	workers.Go(func() error {
		o.execute(taskCtx, n, ec)
		return nil
	})
}

// execute runs one attempt on a worker and reports it to the loop.
func (o *Orchestrator) execute(ctx context.Context, n *process.TaskNode, ec *executionContext) {
	c := completion{node: n}
	defer func() {
		if r := recover(); r != nil {
			c.result = nil
			c.err = fmt.Errorf("task panicked: %v", r)
		}
		c.end = time.Now()
		o.completions <- c
	}()

	task := n.Task()
	if o.breakers == nil {
		c.result, c.err = task.Execute(ctx, ec)
		return
	}
	c.result, c.err = o.breakers.Get(n.Name()).Execute(func() (interface{}, error) {
		return task.Execute(ctx, ec)
	})
}

// handleCompletion records the outcome of an attempt and moves the graph on.
func (o *Orchestrator) handleCompletion(c completion) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := c.node
	st := o.states[n]
	o.running--
	o.pool.Release(n.Task().Resources())

	m := st.metrics
	m.Done = true
	m.EndTime = c.end
	m.Duration = m.EndTime.Sub(m.StartTime)

	logger := o.logger.With(logging.KeyTask, n.Name(), logging.KeyAttempt, m.Attempt)

	if c.err == nil {
		m.Success = true
		m.Result = c.result
		st.status = TaskCompleted
		o.unfinished--
		logger.Info("task completed", "duration", m.Duration)
		o.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
			ID:        n.Ref().String(),
			Name:      n.Name(),
			Result:    c.result,
			Duration:  m.Duration,
			Timestamp: m.EndTime,
		})
		o.unblockDownstream(n)
		return
	}

	m.Err = &TaskExecutionError{Task: n.Name(), Attempt: m.Attempt, Err: c.err}

	if delay, ok := o.nextRetry(st, c.err); ok {
		st.status = TaskBlocked
		st.reason = fmt.Sprintf("retrying after attempt %d failed: %v", m.Attempt, c.err)
		st.retrying = true
		st.timer = time.AfterFunc(delay, func() { o.retries <- n })
		o.pendingRetries++
		logger.Warn("task failed, retrying", "error", c.err, "delay", delay)
		o.bus.Publish(events.TopicTask, events.TaskRetryEvent{
			ID:        n.Ref().String(),
			Name:      n.Name(),
			Attempt:   m.Attempt,
			Err:       c.err,
			Delay:     delay,
			Timestamp: time.Now(),
		})
		return
	}

	st.status = TaskFailed
	o.unfinished--
	logger.Error("task failed", "error", c.err, "duration", m.Duration)
	o.bus.Publish(events.TopicTask, events.TaskFailedEvent{
		ID:        n.Ref().String(),
		Name:      n.Name(),
		Err:       m.Err,
		Duration:  m.Duration,
		Timestamp: m.EndTime,
	})
	if !o.cancelled {
		o.skipDownstream(n)
	}
}

// nextRetry returns the delay before the next attempt, or false when the
// failure is final.
func (o *Orchestrator) nextRetry(st *nodeState, err error) (time.Duration, bool) {
	if o.cancelled || !o.retry.Enabled() || !retryable(err) {
		return 0, false
	}
	if st.backoff == nil {
		st.backoff = o.retry.newBackOff()
	}
	delay := st.backoff.NextBackOff()
	if delay == backoff.Stop {
		return 0, false
	}
	return delay, true
}

func (o *Orchestrator) handleRetry(n *process.TaskNode) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.states[n]
	if o.cancelled || !st.retrying {
		return
	}
	st.retrying = false
	st.timer = nil
	o.pendingRetries--
	st.status = TaskReady
	st.reason = ""
}

// stopRetries cancels every scheduled retry. Affected tasks stay blocked.
func (o *Orchestrator) stopRetries() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cancelled = true
	for _, st := range o.states {
		if st.retrying {
			st.timer.Stop()
			st.retrying = false
		}
	}
	o.pendingRetries = 0
}

// unblockDownstream makes ready every direct downstream of n whose upstream
// tasks all completed. Caller holds o.mu.
func (o *Orchestrator) unblockDownstream(n *process.TaskNode) {
	g := o.process.Graph()
	for _, d := range g.Outgoing(n) {
		st := o.states[d]
		if st.status != TaskBlocked {
			continue
		}
		if reason := waitingReason(g.Incoming(d), o.states); reason != "" {
			st.reason = reason
			continue
		}
		st.status = TaskReady
		st.reason = ""
	}
}

// skipDownstream marks every task reachable from failed as skipped.
// Caller holds o.mu.
func (o *Orchestrator) skipDownstream(failed *process.TaskNode) {
	g := o.process.Graph()
	reason := fmt.Sprintf("upstream task %s failed", failed.Name())

	queue := append([]*process.TaskNode(nil), g.Outgoing(failed)...)
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		st := o.states[d]
		if st.status.IsTerminal() {
			continue
		}
		st.status = TaskSkipped
		st.reason = reason
		o.unfinished--
		o.logger.Info("task skipped", logging.KeyTask, d.Name(), "reason", reason)
		o.bus.Publish(events.TopicTask, events.TaskSkippedEvent{
			ID:        d.Ref().String(),
			Name:      d.Name(),
			Reason:    reason,
			Timestamp: time.Now(),
		})
		queue = append(queue, g.Outgoing(d)...)
	}
}

// upstreamOf collects the successful metrics of n's direct upstream tasks.
// Caller holds o.mu.
func (o *Orchestrator) upstreamOf(n *process.TaskNode) process.UpstreamTasks {
	incoming := o.process.Graph().Incoming(n)
	upstream := make(process.UpstreamTasks, len(incoming))
	for _, u := range incoming {
		upstream[u.Name()] = o.states[u].metrics.Clone()
	}
	return upstream
}

// applyEmit stores a broadcast and mirrors it on the event bus.
func (o *Orchestrator) applyEmit(addr broadcast.Address, mode broadcast.Mode, value any) broadcast.UpdateResult {
	o.mu.Lock()
	result := o.store.Emit(addr, mode, value)
	o.mu.Unlock()

	o.bus.Publish(events.TopicBroadcast, events.BroadcastEvent{
		ID:        addr.Owner,
		Scope:     addr.Scope.String(),
		Key:       string(addr.Key),
		Mode:      mode.String(),
		Value:     value,
		Changed:   result == broadcast.Changed,
		Timestamp: time.Now(),
	})
	return result
}

// publishProgress broadcasts the status counts when they changed.
func (o *Orchestrator) publishProgress() {
	progress := o.Progress()
	addr := broadcast.Address{Scope: broadcast.ScopeProcess, Key: ProgressKey}

	o.mu.Lock()
	result := o.store.Emit(addr, broadcast.ModeLatest, progress)
	o.mu.Unlock()
	if result == broadcast.Unchanged {
		return
	}

	o.bus.Publish(events.TopicBroadcast, events.BroadcastEvent{
		ID:        addr.Owner,
		Scope:     addr.Scope.String(),
		Key:       string(addr.Key),
		Mode:      broadcast.ModeLatest.String(),
		Value:     progress,
		Changed:   true,
		Timestamp: time.Now(),
	})
	o.bus.Publish(events.TopicProcess, events.ProcessProgressEvent{
		Process:   o.process.Name(),
		Total:     progress.Total,
		Completed: progress.Completed,
		Running:   progress.Running,
		Failed:    progress.Failed,
		Skipped:   progress.Skipped,
		Pending:   progress.Pending + progress.Blocked + progress.Ready,
		Timestamp: time.Now(),
	})
}

// waitingReason names the upstream tasks that have not completed yet, or
// returns "" when there are none.
func waitingReason(upstream []*process.TaskNode, states map[*process.TaskNode]*nodeState) string {
	var waiting []string
	for _, u := range upstream {
		if st, ok := states[u]; ok && st.status == TaskCompleted {
			continue
		}
		waiting = append(waiting, u.Name())
	}
	if len(waiting) == 0 {
		return ""
	}
	return "waiting for upstream task(s) " + strings.Join(waiting, ", ")
}

func exhaustedReason(short []*process.Resource) string {
	names := make([]string, len(short))
	for i, r := range short {
		names[i] = r.Name()
	}
	if len(names) == 1 {
		return fmt.Sprintf("resource %s exhausted", names[0])
	}
	return fmt.Sprintf("resources %s exhausted", strings.Join(names, ", "))
}

