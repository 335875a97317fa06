package graph

import (
	"sync"
)

// Graph is a directed graph keyed by node identity.
// Nodes and edges are kept in insertion order so that every traversal,
// including TopologicalSort, is deterministic.
type Graph[T comparable] struct {
	mu       sync.RWMutex
	nodes    []T
	index    map[T]int // node -> position in nodes
	outgoing map[T][]T // node -> targets, insertion order
	incoming map[T][]T // node -> sources, insertion order
	edges    map[edge[T]]struct{}
}

type edge[T comparable] struct {
	from, to T
}

// New creates an empty graph.
func New[T comparable]() *Graph[T] {
	return &Graph[T]{
		index:    make(map[T]int),
		outgoing: make(map[T][]T),
		incoming: make(map[T][]T),
		edges:    make(map[edge[T]]struct{}),
	}
}

// AddNode adds a node to the graph. Adding an existing node is a no-op.
func (g *Graph[T]) AddNode(n T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNode(n)
}

func (g *Graph[T]) addNode(n T) {
	if _, exists := g.index[n]; exists {
		return
	}
	g.index[n] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

// AddEdge adds a directed edge src -> dst, adding either endpoint if missing.
// Adding the same edge twice leaves the graph unchanged.
func (g *Graph[T]) AddEdge(src, dst T) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.addNode(src)
	g.addNode(dst)

	e := edge[T]{from: src, to: dst}
	if _, exists := g.edges[e]; exists {
		return
	}
	g.edges[e] = struct{}{}
	g.outgoing[src] = append(g.outgoing[src], dst)
	g.incoming[dst] = append(g.incoming[dst], src)
}

// HasNode reports whether n is part of the graph.
func (g *Graph[T]) HasNode(n T) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[n]
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph[T]) Nodes() []T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]T(nil), g.nodes...)
}

// Outgoing returns the targets of every edge leaving n.
func (g *Graph[T]) Outgoing(n T) []T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]T(nil), g.outgoing[n]...)
}

// Incoming returns the sources of every edge entering n.
func (g *Graph[T]) Incoming(n T) []T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]T(nil), g.incoming[n]...)
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph[T]) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// TopologicalSort orders the nodes so that every edge points forward, using
// Kahn's algorithm over a working copy of the in-degree counts. Nodes that
// become ready together keep insertion order. The graph itself is not
// modified.
//
// Returns *CyclicGraphError if any edge could not be consumed.
func (g *Graph[T]) TopologicalSort() ([]T, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[T]int, len(g.nodes))
	queue := make([]T, 0, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n] = len(g.incoming[n])
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]T, 0, len(g.nodes))
	consumed := 0
	for head := 0; head < len(queue); head++ {
		n := queue[head]
		order = append(order, n)

		for _, target := range g.outgoing[n] {
			consumed++
			inDegree[target]--
			if inDegree[target] == 0 {
				queue = append(queue, target)
			}
		}
	}

	if consumed != len(g.edges) {
		return nil, &CyclicGraphError{
			Nodes: len(g.nodes) - len(order),
			Edges: len(g.edges) - consumed,
		}
	}

	return order, nil
}
