// Package process describes a unit of orchestration: tasks, the dependency
// graph between them, and the resource pool they draw from.
package process

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/aristath/firepipe/internal/graph"
)

// Process is a named graph of tasks plus the resources allocated to it.
// It is built once, before orchestration begins.
type Process struct {
	name      string
	graph     *graph.Graph[*TaskNode]
	resources Resources

	mu    sync.Mutex
	nodes map[Task]*TaskNode
}

// New creates an empty process. The resource pool is copied and fixed for the
// process lifetime.
func New(name string, resources Resources) *Process {
	return &Process{
		name:      name,
		graph:     graph.New[*TaskNode](),
		resources: resources.Clone(),
		nodes:     make(map[Task]*TaskNode),
	}
}

// Name returns the process name.
func (p *Process) Name() string {
	return p.name
}

// Graph returns the task graph.
func (p *Process) Graph() *graph.Graph[*TaskNode] {
	return p.graph
}

// Resources returns a copy of the resource pool.
func (p *Process) Resources() Resources {
	return p.resources.Clone()
}

// Add inserts task as an isolated node and returns its node.
func (p *Process) Add(task Task) *TaskNode {
	n := p.nodeFor(task)
	p.graph.AddNode(n)
	return n
}

// Connect makes downstream depend on upstream.
func (p *Process) Connect(upstream, downstream Task) {
	p.graph.AddEdge(p.nodeFor(upstream), p.nodeFor(downstream))
}

// Fork makes every downstream depend on upstream.
func (p *Process) Fork(upstream Task, downstreams ...Task) {
	for _, d := range downstreams {
		p.Connect(upstream, d)
	}
}

// Join makes downstream depend on every upstream.
func (p *Process) Join(upstreams []Task, downstream Task) {
	for _, u := range upstreams {
		p.Connect(u, downstream)
	}
}

// Node returns the node wrapping task, if task was added to p.
func (p *Process) Node(task Task) (*TaskNode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[task]
	return n, ok
}

// Tasks returns every task in the order it entered the graph.
func (p *Process) Tasks() []Task {
	nodes := p.graph.Nodes()
	tasks := make([]Task, len(nodes))
	for i, n := range nodes {
		tasks[i] = n.task
	}
	return tasks
}

// nodeFor returns the node for task, creating it on first use.
// Panics if task is not a pointer, since value tasks have no identity.
func (p *Process) nodeFor(task Task) *TaskNode {
	if task == nil {
		panic("process: nil task")
	}
	typ := reflect.TypeOf(task)
	if typ.Kind() != reflect.Pointer {
		panic(fmt.Sprintf("process: task %q must be a pointer, got %s", task.Name(), typ.Kind()))
	}
	// Pointers to zero-size values may share an address.
	if typ.Elem().Size() == 0 {
		panic(fmt.Sprintf("process: task %q points to zero-size type %s", task.Name(), typ.Elem()))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n, ok := p.nodes[task]; ok {
		return n
	}
	n := &TaskNode{task: task, ref: newTaskRef()}
	p.nodes[task] = n
	return n
}
