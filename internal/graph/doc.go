// Package graph provides a generic directed graph whose nodes are compared by
// identity (Go equality on T, typically a pointer) together with a
// deterministic topological sort that doubles as the cycle check.
package graph
