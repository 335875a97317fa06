package graph

import (
	"errors"
	"fmt"
)

// ErrCyclicGraph is the sentinel matched by every CyclicGraphError.
var ErrCyclicGraph = errors.New("graph is cyclic")

// CyclicGraphError is returned by TopologicalSort when the graph has a cycle.
type CyclicGraphError struct {
	Nodes int // nodes that could not be ordered
	Edges int // edges left unconsumed
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("graph is cyclic: %d node(s) and %d edge(s) could not be ordered", e.Nodes, e.Edges)
}

func (e *CyclicGraphError) Unwrap() error {
	return ErrCyclicGraph
}
