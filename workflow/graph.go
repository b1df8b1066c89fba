package workflow

import (
	"fmt"
	"strings"
)

// DependencyGraph holds the dependency relation between the subtasks of one
// decomposition.
type DependencyGraph struct {
	ids        []string            // input order
	deps       map[string][]string // subtask -> its dependencies
	dependents map[string][]string // subtask -> subtasks that depend on it
}

// NewDependencyGraph builds the graph for subtasks. It fails if a dependency
// names an unknown subtask or if the dependencies form a cycle.
func NewDependencyGraph(subtasks []SubTask) (*DependencyGraph, error) {
	g := &DependencyGraph{
		ids:        make([]string, 0, len(subtasks)),
		deps:       make(map[string][]string, len(subtasks)),
		dependents: make(map[string][]string, len(subtasks)),
	}

	for _, st := range subtasks {
		g.ids = append(g.ids, st.ID)
		g.deps[st.ID] = st.Dependencies
	}

	for _, st := range subtasks {
		for _, dep := range st.Dependencies {
			if _, ok := g.deps[dep]; !ok {
				return nil, fmt.Errorf("subtask %s depends on non-existent subtask %s", st.ID, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], st.ID)
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

// detectCycles walks the graph depth-first and reports the first cycle found
// as a path.
func (g *DependencyGraph) detectCycles() error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, dep := range g.deps[id] {
			if !visited[dep] {
				if err := visit(dep, path); err != nil {
					return err
				}
			} else if onStack[dep] {
				cycle := append(path, dep)
				return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " -> "))
			}
		}

		onStack[id] = false
		return nil
	}

	for _, id := range g.ids {
		if !visited[id] {
			if err := visit(id, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// Order returns the subtask ids so that every subtask comes after its
// dependencies. Ties keep the decomposition order.
func (g *DependencyGraph) Order() []string {
	inDegree := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		inDegree[id] = len(g.deps[id])
	}

	order := make([]string, 0, len(g.ids))
	done := make(map[string]bool, len(g.ids))
	for len(order) < len(g.ids) {
		progressed := false
		for _, id := range g.ids {
			if done[id] || inDegree[id] > 0 {
				continue
			}
			done[id] = true
			order = append(order, id)
			for _, next := range g.dependents[id] {
				inDegree[next]--
			}
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}
	return order
}
