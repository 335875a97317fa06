package orchestrator

import (
	"context"

	"github.com/aristath/firepipe/internal/broadcast"
	"github.com/aristath/firepipe/internal/process"
)

// emitRequest carries one broadcast from a worker to the loop.
type emitRequest struct {
	addr    broadcast.Address
	mode    broadcast.Mode
	value   any
	replyCh chan broadcast.UpdateResult
}

// executionContext is the process.ExecutionContext handed to a task attempt.
type executionContext struct {
	o        *Orchestrator
	ref      process.TaskRef
	attempt  int
	upstream process.UpstreamTasks
}

var _ process.ExecutionContext = (*executionContext)(nil)

func (ec *executionContext) Ref() process.TaskRef {
	return ec.ref
}

func (ec *executionContext) Attempt() int {
	return ec.attempt
}

// Upstream returns a copy so tasks cannot alter each other's view.
func (ec *executionContext) Upstream() process.UpstreamTasks {
	cp := make(process.UpstreamTasks, len(ec.upstream))
	for name, m := range ec.upstream {
		cp[name] = m.Clone()
	}
	return cp
}

// Emit sends the broadcast to the loop and waits until it was applied.
// It respects context cancellation at both the send and receive stages.
func (ec *executionContext) Emit(ctx context.Context, scope broadcast.Scope, key broadcast.Key, mode broadcast.Mode, value any) (broadcast.UpdateResult, error) {
	req := emitRequest{
		addr:    ec.address(scope, key),
		mode:    mode,
		value:   value,
		replyCh: make(chan broadcast.UpdateResult, 1),
	}

	select {
	case ec.o.emitCh <- req:
	case <-ctx.Done():
		return broadcast.Unchanged, ctx.Err()
	case <-ec.o.done:
		return broadcast.Unchanged, ErrRunFinished
	}

	select {
	case result := <-req.replyCh:
		return result, nil
	case <-ctx.Done():
		return broadcast.Unchanged, ctx.Err()
	case <-ec.o.done:
		return broadcast.Unchanged, ErrRunFinished
	}
}

func (ec *executionContext) Broadcast(scope broadcast.Scope, key broadcast.Key) (broadcast.Value, bool) {
	ec.o.mu.RLock()
	defer ec.o.mu.RUnlock()
	return ec.o.store.Get(ec.address(scope, key))
}

func (ec *executionContext) address(scope broadcast.Scope, key broadcast.Key) broadcast.Address {
	addr := broadcast.Address{Scope: scope, Key: key}
	if scope == broadcast.ScopeTask {
		addr.Owner = ec.ref.String()
	}
	return addr
}
