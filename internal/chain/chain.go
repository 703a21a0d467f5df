// Package chain enumerates dependency chains in a task collection and
// flags the ones long or blocked enough to threaten delivery.
package chain

import (
	"github.com/rs/zerolog"

	"github.com/tealeaf2/taskgantt/internal/graph"
	"github.com/tealeaf2/taskgantt/internal/logging"
	"github.com/tealeaf2/taskgantt/internal/models"
)

// DefaultDependencyChainLength is the chain length a chain must exceed,
// together with at least one blocked member, to be reported as a
// critical-path risk.
const DefaultDependencyChainLength = 5

// Config controls chain analysis thresholds.
type Config struct {
	// DependencyChainLength is the length a chain must exceed before it
	// is considered for critical-path reporting.
	DependencyChainLength int
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		DependencyChainLength: DefaultDependencyChainLength,
	}
}

// Chain is a dependency path through the collection, listed from the task
// that waits toward the tasks it waits on. A cyclic chain ends with a
// second occurrence of the id that closed the loop.
type Chain struct {
	IDs   []string `json:"ids"`
	Cycle bool     `json:"cycle,omitempty"`
}

// Length returns the number of entries in the chain, counting the
// repeated entry of a cyclic chain.
func (c Chain) Length() int {
	return len(c.IDs)
}

// Risk describes a chain that exceeds the configured length and carries
// at least one blocked task. Duration and blocked counts cover each
// distinct member once.
type Risk struct {
	Chain         []string        `json:"chain"`
	Length        int             `json:"length"`
	BlockedTasks  int             `json:"blocked_tasks"`
	TotalDuration int             `json:"total_duration"`
	Cycle         bool            `json:"cycle,omitempty"`
	Severity      models.Severity `json:"severity"`
}

// Analysis is the result of one pass over the dependency graph.
type Analysis struct {
	Chains            []Chain `json:"chains"`
	CriticalPathRisks []Risk  `json:"critical_path_risks"`
}

// Analyzer walks dependency edges to find chains, cycles, and
// critical-path risks. It never mutates the graph it reads.
type Analyzer struct {
	cfg    Config
	logger zerolog.Logger
}

// New returns an analyzer for the given configuration. A non-positive
// threshold falls back to the default.
func New(cfg Config) *Analyzer {
	if cfg.DependencyChainLength <= 0 {
		cfg.DependencyChainLength = DefaultDependencyChainLength
	}
	return &Analyzer{
		cfg:    cfg,
		logger: logging.Component("chain"),
	}
}

// Analyze runs a depth-first search along depends edges from every task
// no earlier traversal has reached. Each start contributes at most one
// chain: the first cycle encountered, or the longest path to a task with
// no further dependencies. Chains of a single task are not reported.
// Dangling dependency edges are already absent from the graph, so the
// walk degrades to the reachable portion; Analyze never fails.
func (a *Analyzer) Analyze(g *graph.Graph) Analysis {
	var out Analysis
	visited := make(map[string]bool, g.TaskCount())

	for _, start := range g.Order {
		if visited[start] {
			continue
		}
		found := a.walk(g, start, visited)
		if found.Length() <= 1 {
			continue
		}
		if found.Cycle {
			a.logger.Warn().Strs("chain", found.IDs).Msg("dependency cycle detected")
		}
		out.Chains = append(out.Chains, found)
		if risk, ok := a.assess(g, found); ok {
			out.CriticalPathRisks = append(out.CriticalPathRisks, risk)
		}
	}

	a.logger.Debug().
		Int("chains", len(out.Chains)).
		Int("critical", len(out.CriticalPathRisks)).
		Msg("dependency chains analyzed")
	return out
}

// walk explores depends edges from start, tracking the current path so a
// repeated id is caught as a cycle rather than recursed into. The first
// cycle ends the walk immediately with the path closed by the repeated
// id; otherwise the longest start-to-leaf path wins.
func (a *Analyzer) walk(g *graph.Graph, start string, visited map[string]bool) Chain {
	onPath := make(map[string]bool)
	var path, best, cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		path = append(path, id)
		onPath[id] = true
		visited[id] = true

		deps := g.ResolvedDeps(id)
		if len(deps) == 0 && len(path) > len(best) {
			best = append([]string(nil), path...)
		}
		for _, dep := range deps {
			if onPath[dep] {
				cycle = append(append([]string(nil), path...), dep)
				return true
			}
			if visit(dep) {
				return true
			}
		}

		onPath[id] = false
		path = path[:len(path)-1]
		return false
	}

	if visit(start) {
		return Chain{IDs: cycle, Cycle: true}
	}
	return Chain{IDs: best}
}

// assess turns a chain into a critical-path risk when it exceeds the
// configured length and holds at least one blocked task. Severity is
// high past two blocked members, medium otherwise.
func (a *Analyzer) assess(g *graph.Graph, c Chain) (Risk, bool) {
	blocked := 0
	duration := 0
	seen := make(map[string]bool, len(c.IDs))
	for _, id := range c.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		task, ok := g.Task(id)
		if !ok {
			continue
		}
		if task.Status == models.StatusBlocked {
			blocked++
		}
		duration += task.Duration
	}

	if c.Length() <= a.cfg.DependencyChainLength || blocked == 0 {
		return Risk{}, false
	}

	severity := models.SeverityMedium
	if blocked > 2 {
		severity = models.SeverityHigh
	}
	return Risk{
		Chain:         c.IDs,
		Length:        c.Length(),
		BlockedTasks:  blocked,
		TotalDuration: duration,
		Cycle:         c.Cycle,
		Severity:      severity,
	}, true
}
