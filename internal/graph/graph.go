// Package graph provides a dependency graph over quest steps.
package graph

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// ErrCycleDetected indicates a circular dependency between steps.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed graph of steps. Edges point from a step to
// the steps it depends on.
type DependencyGraph struct {
	// order keeps the steps in quest order so traversal is deterministic.
	order []string
	nodes map[string]*models.DependencyStep
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*models.DependencyStep),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from quest steps.
// Returns an error if a dependency names an unknown step or a cycle exists.
func (g *DependencyGraph) Build(steps []models.DependencyStep) error {
	for i := range steps {
		step := &steps[i]
		if _, dup := g.nodes[step.ID]; dup {
			return fmt.Errorf("duplicate step %s", step.ID)
		}
		g.order = append(g.order, step.ID)
		g.nodes[step.ID] = step
		g.edges[step.ID] = nil
	}

	for _, id := range g.order {
		for _, depID := range g.nodes[id].DependsOn {
			if _, ok := g.nodes[depID]; !ok {
				return fmt.Errorf("step %s depends on unknown step %s", id, depID)
			}
			g.edges[id] = append(g.edges[id], depID)
		}
	}

	g.debugLog("[graph.Build] %d steps, edges: %v", len(g.order), g.edges)

	if g.HasCycle() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.order))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns step IDs with every dependency before its
// dependents. Ties keep quest order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	if g.HasCycle() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.order))
	result := make([]string, 0, len(g.order))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Dependents returns the IDs of steps that directly depend on stepID,
// in quest order.
func (g *DependencyGraph) Dependents(stepID string) []string {
	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == stepID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// Blocked returns every step that can no longer run because stepID or one of
// its transitive dependencies failed.
func (g *DependencyGraph) Blocked(stepID string) []string {
	seen := map[string]bool{stepID: true}
	queue := []string{stepID}
	var blocked []string

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.Dependents(id) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			blocked = append(blocked, dep)
			queue = append(queue, dep)
		}
	}
	return blocked
}

// Size returns the number of steps in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.order)
}
