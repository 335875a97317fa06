// Package render draws a process graph and an orchestrator's task summary as
// plain text.
package render

import (
	"sort"
	"strings"

	"github.com/aristath/firepipe/internal/process"
)

// Layers groups the process nodes into rows. Nodes are taken in topological
// order and join the current row while every upstream sits in an earlier
// row. Each row is sorted by task name.
//
// Edges between non-adjacent rows are not drawn, so the layering only
// approximates the real dependencies.
func Layers(p *process.Process) ([][]*process.TaskNode, error) {
	g := p.Graph()
	nodes, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	committed := make(map[*process.TaskNode]bool, len(nodes))
	var layers [][]*process.TaskNode
	var layer []*process.TaskNode

	for _, n := range nodes {
		if allCommitted(g.Incoming(n), committed) {
			layer = append(layer, n)
			continue
		}
		for _, prev := range layer {
			committed[prev] = true
		}
		layers = append(layers, sortByName(layer))
		layer = []*process.TaskNode{n}
	}
	if len(layer) > 0 {
		layers = append(layers, sortByName(layer))
	}
	return layers, nil
}

// Process renders the layered graph, one string per line. Every node takes
// nodeWidth columns and every line is centred in rowWidth columns.
func Process(p *process.Process, nodeWidth, rowWidth int) ([]string, error) {
	layers, err := Layers(p)
	if err != nil {
		return nil, err
	}

	bar := centre("|", nodeWidth)
	var lines []string
	prev := 0
	for i, layer := range layers {
		var names strings.Builder
		for _, n := range layer {
			names.WriteString(centre(n.Name(), nodeWidth))
		}
		bars := strings.Repeat(bar, len(layer))

		if i > 0 && prev != len(layer) {
			split := strings.Repeat("-", nodeWidth*(max(len(layer), prev)-1))
			lines = append(lines, centre(split, rowWidth), centre(bars, rowWidth))
		}
		lines = append(lines, centre(names.String(), rowWidth))
		if i < len(layers)-1 {
			lines = append(lines, centre(bars, rowWidth))
		}
		prev = len(layer)
	}
	return append(lines, ""), nil
}

// centre pads s with spaces to width, truncating names that do not fit.
func centre(s string, width int) string {
	r := []rune(s)
	if len(r) > width-2 && width > 5 {
		r = append(r[:width-5], []rune("...")...)
	}
	space := width - len(r)
	if space <= 0 {
		return string(r)
	}
	left := space / 2
	return strings.Repeat(" ", left) + string(r) + strings.Repeat(" ", space-left)
}

func allCommitted(upstream []*process.TaskNode, committed map[*process.TaskNode]bool) bool {
	for _, u := range upstream {
		if !committed[u] {
			return false
		}
	}
	return true
}

func sortByName(layer []*process.TaskNode) []*process.TaskNode {
	sort.SliceStable(layer, func(i, j int) bool {
		return layer[i].Name() < layer[j].Name()
	})
	return layer
}
