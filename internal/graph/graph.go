// Package graph builds adjacency indices over a task collection.
//
// The graph is a read-only view: O(1) lookup by id, direct children by
// parent edges, and direct dependents by reverse dependency edges. Data
// inconsistencies (duplicate ids, dangling references, parent cycles) are
// recorded as diagnostics and skipped, never fatal.
package graph

import (
	"strings"

	"github.com/tealeaf2/taskgantt/internal/models"
)

// Diagnostic records a data inconsistency found while indexing.
type Diagnostic struct {
	// TaskID is the task carrying the bad reference.
	TaskID string `json:"task_id"`

	// Field names the offending field ("id", "parent_id", "depends").
	Field string `json:"field"`

	// Ref is the referenced id, when the problem is a reference.
	Ref string `json:"ref,omitempty"`

	// Message describes the inconsistency.
	Message string `json:"message"`
}

// Graph is an indexed, read-only view over a task collection.
type Graph struct {
	// Tasks indexes every task by id.
	Tasks map[string]*models.Task

	// Children maps a parent id to its direct children, in input order.
	Children map[string][]string

	// Dependents maps a task id to the ids of tasks that depend on it.
	Dependents map[string][]string

	// Roots are ids of tasks with no parent inside the collection.
	Roots []string

	// Order preserves input order for deterministic traversal.
	Order []string

	// Diagnostics lists inconsistencies found while indexing.
	Diagnostics []Diagnostic

	depths map[string]int
}

// Build indexes a task collection in O(tasks + edges). The input is not
// retained; tasks are copied into the graph.
func Build(tasks []models.Task) *Graph {
	g := &Graph{
		Tasks:      make(map[string]*models.Task, len(tasks)),
		Children:   make(map[string][]string),
		Dependents: make(map[string][]string),
		depths:     make(map[string]int, len(tasks)),
	}

	for i := range tasks {
		t := tasks[i].Clone()
		if t.ID == "" {
			g.note(t.ID, "id", "", "task with empty id skipped")
			continue
		}
		if _, dup := g.Tasks[t.ID]; dup {
			g.note(t.ID, "id", "", "duplicate id, earlier task kept")
			continue
		}
		g.Tasks[t.ID] = &t
		g.Order = append(g.Order, t.ID)
	}

	// Parent edges. A parent outside the collection demotes the task to a
	// root rather than failing.
	for _, id := range g.Order {
		t := g.Tasks[id]
		if t.ParentID == "" {
			g.Roots = append(g.Roots, id)
			continue
		}
		if _, ok := g.Tasks[t.ParentID]; !ok {
			g.note(id, "parent_id", t.ParentID, "parent not in collection, task treated as root")
			g.Roots = append(g.Roots, id)
			continue
		}
		g.Children[t.ParentID] = append(g.Children[t.ParentID], id)
	}

	// Reverse dependency edges, deduplicated per (from, to) pair.
	edgeSet := make(map[[2]string]bool)
	for _, id := range g.Order {
		t := g.Tasks[id]
		for _, dep := range t.Depends {
			if _, ok := g.Tasks[dep]; !ok {
				g.note(id, "depends", dep, "dependency not in collection, edge skipped")
				continue
			}
			key := [2]string{dep, id}
			if edgeSet[key] {
				continue
			}
			edgeSet[key] = true
			g.Dependents[dep] = append(g.Dependents[dep], id)
		}
	}

	g.computeDepths()
	return g
}

// Task returns the task for an id.
func (g *Graph) Task(id string) (*models.Task, bool) {
	t, ok := g.Tasks[id]
	return t, ok
}

// ChildrenOf returns the direct children of a task, in input order.
func (g *Graph) ChildrenOf(id string) []string {
	return g.Children[id]
}

// DependentsOf returns the tasks that list id in their depends set.
func (g *Graph) DependentsOf(id string) []string {
	return g.Dependents[id]
}

// SubtaskCount returns the number of direct children of a task.
func (g *Graph) SubtaskCount(id string) int {
	return len(g.Children[id])
}

// Depth returns the distance from a task to its rootmost ancestor. Roots
// have depth 0. Tasks caught in a parent cycle get a bounded depth so
// depth-ordered passes still terminate.
func (g *Graph) Depth(id string) int {
	return g.depths[id]
}

// MaxDepth returns the largest depth in the graph.
func (g *Graph) MaxDepth() int {
	max := 0
	for _, d := range g.depths {
		if d > max {
			max = d
		}
	}
	return max
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int {
	return len(g.Tasks)
}

// ResolvedDeps returns the subset of a task's depends that reference tasks
// present in the collection, in source order.
func (g *Graph) ResolvedDeps(id string) []string {
	t, ok := g.Tasks[id]
	if !ok {
		return nil
	}
	var deps []string
	for _, dep := range t.Depends {
		if _, ok := g.Tasks[dep]; ok {
			deps = append(deps, dep)
		}
	}
	return deps
}

// computeDepths walks parent chains with DFS coloring: white (unvisited),
// gray (on the current path), black (settled). Hitting a gray parent means
// a task is its own ancestor; the cycle is reported and the closing member
// is pinned at depth 0 so every depth stays finite.
func (g *Graph) computeDepths() {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(g.Tasks))
	var path []string

	var visit func(id string) int
	visit = func(id string) int {
		if color[id] == black {
			return g.depths[id]
		}
		color[id] = gray
		path = append(path, id)

		d := 0
		parentID := g.Tasks[id].ParentID
		if parentID != "" {
			if _, ok := g.Tasks[parentID]; ok {
				switch color[parentID] {
				case gray:
					cycle := cycleMembers(path, parentID)
					g.note(id, "parent_id", parentID, "parent cycle: "+strings.Join(cycle, " -> "))
				default:
					d = visit(parentID) + 1
				}
			}
		}

		color[id] = black
		path = path[:len(path)-1]
		g.depths[id] = d
		return d
	}

	for _, id := range g.Order {
		if color[id] != black {
			visit(id)
		}
	}
}

// cycleMembers extracts the path segment from the repeated id onward, with
// the repeated id appended again to close the loop.
func cycleMembers(path []string, repeated string) []string {
	for i, id := range path {
		if id == repeated {
			cycle := make([]string, 0, len(path)-i+1)
			cycle = append(cycle, path[i:]...)
			cycle = append(cycle, repeated)
			return cycle
		}
	}
	return []string{repeated, repeated}
}

func (g *Graph) note(taskID, field, ref, message string) {
	g.Diagnostics = append(g.Diagnostics, Diagnostic{
		TaskID:  taskID,
		Field:   field,
		Ref:     ref,
		Message: message,
	})
}
