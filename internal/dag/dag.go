// Package dag implements a small directed acyclic graph used to validate the
// wiring of the derivation graph: every collection must be declared before it
// is consumed, and the builder refuses to start on a cycle.
package dag

import (
	"fmt"
	"sort"
)

// Graph is a DAG over string-labeled nodes. Edges point from an input to the
// node that consumes it.
type Graph struct {
	Nodes   []string
	byLabel map[string]int
	edges   map[string]map[string]bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{byLabel: map[string]int{}, edges: map[string]map[string]bool{}}
}

// AddNode registers a node. It reports false if the label already exists.
func (g *Graph) AddNode(label string) bool {
	if _, ok := g.byLabel[label]; ok {
		return false
	}
	g.byLabel[label] = len(g.Nodes)
	g.Nodes = append(g.Nodes, label)
	g.edges[label] = map[string]bool{}
	return true
}

// HasNode reports whether the label is registered.
func (g *Graph) HasNode(label string) bool {
	_, ok := g.byLabel[label]
	return ok
}

// AddEdge adds a directed edge. Both endpoints must already be registered.
func (g *Graph) AddEdge(from, to string) error {
	if !g.HasNode(from) {
		return fmt.Errorf("unknown node %q", from)
	}
	if !g.HasNode(to) {
		return fmt.Errorf("unknown node %q", to)
	}
	g.edges[from][to] = true
	return nil
}

// HasEdge reports whether the edge from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	return g.edges[from] != nil && g.edges[from][to]
}

// Edges returns the successors of a node in registration order.
func (g *Graph) Edges(from string) []string {
	edges := make([]string, 0, len(g.edges[from]))
	for k := range g.edges[from] {
		edges = append(edges, k)
	}
	sort.Slice(edges, func(i, j int) bool { return g.byLabel[edges[i]] < g.byLabel[edges[j]] })
	return edges
}

// Roots returns the nodes without an incoming edge.
func (g *Graph) Roots() []string {
	hasIncoming := map[string]bool{}
	for _, from := range g.Nodes {
		for to := range g.edges[from] {
			hasIncoming[to] = true
		}
	}

	roots := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if !hasIncoming[n] {
			roots = append(roots, n)
		}
	}
	return roots
}

// Sort returns the nodes in topological order, ties broken by registration
// order, or an error naming one node of a cycle.
func (g *Graph) Sort() ([]string, error) {
	indegree := map[string]int{}
	for _, n := range g.Nodes {
		indegree[n] = 0
	}
	for _, from := range g.Nodes {
		for to := range g.edges[from] {
			indegree[to]++
		}
	}

	ready := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return g.byLabel[ready[i]] < g.byLabel[ready[j]] })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		for _, to := range g.Edges(n) {
			indegree[to]--
			if indegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		for _, n := range g.Nodes {
			if indegree[n] > 0 {
				return nil, fmt.Errorf("dependency cycle through node %q", n)
			}
		}
		return nil, fmt.Errorf("dependency cycle")
	}

	return order, nil
}
