// Package propagator recomputes task statuses from dependency edges and
// parent/child structure until the collection reaches a fixed point.
package propagator

import (
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tealeaf2/taskgantt/internal/graph"
	"github.com/tealeaf2/taskgantt/internal/logging"
	"github.com/tealeaf2/taskgantt/internal/models"
)

// Propagator errors.
var (
	ErrPropagationDidNotConverge = errors.New("status propagation did not converge")
)

// DefaultMaxPasses caps full rollup passes over the collection.
const DefaultMaxPasses = 10

// Config contains propagation configuration.
type Config struct {
	// ParentBlockedIfAnyChildBlocked forces a parent to blocked as soon
	// as any direct child is blocked.
	// Default: true.
	ParentBlockedIfAnyChildBlocked bool

	// MaxPasses caps how many full rollup passes run before the
	// propagator gives up and reports non-convergence.
	// Default: 10.
	MaxPasses int

	// ApplyDependencyStatus enables the dependency-driven status pass
	// for tasks with depends edges.
	// Default: true.
	ApplyDependencyStatus bool
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		ParentBlockedIfAnyChildBlocked: true,
		MaxPasses:                      DefaultMaxPasses,
		ApplyDependencyStatus:          true,
	}
}

// Change records one status transition made during a propagation run.
type Change struct {
	// TaskID is the task whose status changed.
	TaskID string `json:"task_id"`

	// From is the status before the change.
	From models.Status `json:"from"`

	// To is the status after the change.
	To models.Status `json:"to"`

	// Source is the rule that produced the change, one of
	// models.ChangeSourceRollup or models.ChangeSourceDependency.
	Source string `json:"source"`
}

// Result is the outcome of one propagation run.
type Result struct {
	// Updated is the new task collection. The input is never mutated.
	// Duplicate and empty ids are dropped and noted in Diagnostics.
	Updated []models.Task `json:"updated"`

	// Changed reports whether any status changed.
	Changed bool `json:"changed"`

	// Changes lists every transition in the order it was applied. A task
	// caught in a parent cycle can appear more than once.
	Changes []Change `json:"changes,omitempty"`

	// Passes is the number of rollup passes executed.
	Passes int `json:"passes"`

	// Converged reports whether a full pass completed without changes
	// before the pass cap was hit.
	Converged bool `json:"converged"`

	// Diagnostics carries structural problems found while indexing the
	// collection (dangling references, duplicate ids, parent cycles).
	Diagnostics []graph.Diagnostic `json:"diagnostics,omitempty"`
}

// Propagator derives composite task statuses from children and leaf task
// statuses from dependencies. It works on a snapshot per invocation and
// performs no internal synchronization.
type Propagator struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a new Propagator. A non-positive pass cap falls back to
// the default; boolean options are taken as given, so callers should
// start from DefaultConfig.
func New(cfg Config) *Propagator {
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = DefaultMaxPasses
	}
	return &Propagator{
		cfg:    cfg,
		logger: logging.Component("propagator"),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Propagate recomputes every derivable status in the collection and
// returns a new collection. The dependency pass runs once over leaf
// tasks, then composite statuses are rolled up from children in
// descending depth order until a full pass changes nothing. Hitting the
// pass cap first returns the last computed state together with
// ErrPropagationDidNotConverge.
func (p *Propagator) Propagate(tasks []models.Task) (Result, error) {
	g := graph.Build(tasks)
	now := p.now()

	res := Result{Diagnostics: g.Diagnostics}
	p.reportDiagnostics(g)

	if p.cfg.ApplyDependencyStatus {
		for _, id := range g.Order {
			if ch, ok := p.applyDependencyRule(g, id, now); ok {
				res.Changes = append(res.Changes, ch)
			}
		}
	}

	order := rollupOrder(g)
	for res.Passes < p.cfg.MaxPasses {
		res.Passes++
		changedInPass := false
		for _, id := range order {
			if ch, ok := p.rollup(g, id, now); ok {
				changedInPass = true
				res.Changes = append(res.Changes, ch)
			}
		}
		if !changedInPass {
			res.Converged = true
			break
		}
	}

	res.Changed = len(res.Changes) > 0
	res.Updated = collect(g)

	if !res.Converged {
		p.logger.Error().
			Int("passes", res.Passes).
			Int("changes", len(res.Changes)).
			Msg("status propagation did not converge")
		return res, ErrPropagationDidNotConverge
	}

	p.logger.Debug().
		Int("passes", res.Passes).
		Int("changes", len(res.Changes)).
		Msg("status propagation settled")
	return res, nil
}

// PropagateFrom recomputes only the statuses a single task's mutation
// can affect: the task's own dependency-derived status, its direct
// dependents, and the parent chains above all of them. Unknown ids
// return the collection unchanged.
func (p *Propagator) PropagateFrom(tasks []models.Task, changedID string) (Result, error) {
	g := graph.Build(tasks)
	now := p.now()

	res := Result{Passes: 1, Converged: true, Diagnostics: g.Diagnostics}
	p.reportDiagnostics(g)

	if _, ok := g.Task(changedID); !ok {
		p.logger.Debug().Str("task_id", changedID).Msg("incremental propagation for unknown task")
		res.Updated = collect(g)
		return res, nil
	}

	affected := []string{changedID}
	if p.cfg.ApplyDependencyStatus {
		if ch, ok := p.applyDependencyRule(g, changedID, now); ok {
			res.Changes = append(res.Changes, ch)
		}
		for _, dep := range g.DependentsOf(changedID) {
			if ch, ok := p.applyDependencyRule(g, dep, now); ok {
				res.Changes = append(res.Changes, ch)
			}
			affected = append(affected, dep)
		}
	}

	// Climb each affected task's parent chain; the visited set bounds
	// the climb when parents form a cycle.
	visited := make(map[string]bool)
	for _, id := range affected {
		for cur := id; cur != "" && !visited[cur]; {
			visited[cur] = true
			t, ok := g.Task(cur)
			if !ok {
				break
			}
			cur = t.ParentID
		}
	}

	for _, id := range orderByDepthDesc(g, visited) {
		if ch, ok := p.rollup(g, id, now); ok {
			res.Changes = append(res.Changes, ch)
		}
	}

	res.Changed = len(res.Changes) > 0
	res.Updated = collect(g)
	return res, nil
}

// applyDependencyRule derives a leaf task's status from its resolvable
// dependencies: any blocked dependency blocks the task, any unfinished
// one sends it back to todo, and an all-done set lets a todo or blocked
// task advance to in-progress. Done tasks and composite tasks are left
// to their own rules.
func (p *Propagator) applyDependencyRule(g *graph.Graph, id string, now time.Time) (Change, bool) {
	t, ok := g.Task(id)
	if !ok || t.Status == models.StatusDone {
		return Change{}, false
	}
	if len(g.ChildrenOf(id)) > 0 {
		return Change{}, false
	}
	deps := g.ResolvedDeps(id)
	if len(deps) == 0 {
		return Change{}, false
	}

	anyBlocked := false
	anyOpen := false
	allDone := true
	for _, dep := range deps {
		depTask, ok := g.Task(dep)
		if !ok {
			continue
		}
		switch depTask.Status {
		case models.StatusBlocked:
			anyBlocked = true
			allDone = false
		case models.StatusTodo, models.StatusInProgress:
			anyOpen = true
			allDone = false
		case models.StatusDone:
		default:
			allDone = false
		}
	}

	want := t.Status
	switch {
	case anyBlocked:
		want = models.StatusBlocked
	case anyOpen:
		want = models.StatusTodo
	case allDone:
		if t.Status == models.StatusTodo || t.Status == models.StatusBlocked {
			want = models.StatusInProgress
		}
	}

	return p.setStatus(t, want, models.ChangeSourceDependency, now)
}

// rollup recomputes one composite task's status from its direct
// children. Tasks without children keep their externally-set status.
func (p *Propagator) rollup(g *graph.Graph, id string, now time.Time) (Change, bool) {
	t, ok := g.Task(id)
	if !ok {
		return Change{}, false
	}
	children := g.ChildrenOf(id)
	if len(children) == 0 {
		return Change{}, false
	}

	anyBlocked := false
	allDone := true
	var highest models.Status
	for _, child := range children {
		childTask, ok := g.Task(child)
		if !ok {
			continue
		}
		status := childTask.Status
		if status == models.StatusBlocked {
			anyBlocked = true
		}
		if status != models.StatusDone {
			allDone = false
		}
		if status.Precedence() > highest.Precedence() {
			highest = status
		}
	}

	var want models.Status
	switch {
	case p.cfg.ParentBlockedIfAnyChildBlocked && anyBlocked:
		want = models.StatusBlocked
	case allDone:
		want = models.StatusDone
	default:
		want = highest
	}
	if !want.Valid() {
		return Change{}, false
	}

	return p.setStatus(t, want, models.ChangeSourceRollup, now)
}

// setStatus applies a derived status and stamps the update time. The
// status change is the only observable side effect of propagation.
func (p *Propagator) setStatus(t *models.Task, want models.Status, source string, now time.Time) (Change, bool) {
	if want == t.Status {
		return Change{}, false
	}
	ch := Change{
		TaskID: t.ID,
		From:   t.Status,
		To:     want,
		Source: source,
	}
	t.Status = want
	t.LastStatusUpdate = now

	p.logger.Debug().
		Str("task_id", t.ID).
		Str("from", string(ch.From)).
		Str("to", string(ch.To)).
		Str("source", source).
		Msg("task status changed")
	return ch, true
}

func (p *Propagator) reportDiagnostics(g *graph.Graph) {
	for _, d := range g.Diagnostics {
		p.logger.Warn().
			Str("task_id", d.TaskID).
			Str("field", d.Field).
			Str("ref", d.Ref).
			Msg(d.Message)
	}
}

// rollupOrder lists composite task ids deepest-first so children settle
// before their parent is evaluated. Ties keep discovery order.
func rollupOrder(g *graph.Graph) []string {
	var ids []string
	for _, id := range g.Order {
		if len(g.ChildrenOf(id)) > 0 {
			ids = append(ids, id)
		}
	}
	return sortByDepthDesc(g, ids)
}

// orderByDepthDesc orders an affected id set deepest-first, keeping
// discovery order among equals.
func orderByDepthDesc(g *graph.Graph, set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for _, id := range g.Order {
		if set[id] {
			ids = append(ids, id)
		}
	}
	return sortByDepthDesc(g, ids)
}

func sortByDepthDesc(g *graph.Graph, ids []string) []string {
	sort.SliceStable(ids, func(i, j int) bool {
		return g.Depth(ids[i]) > g.Depth(ids[j])
	})
	return ids
}

// collect extracts the task collection from the graph in discovery
// order. The graph owns clones, so the caller's input stays untouched.
func collect(g *graph.Graph) []models.Task {
	out := make([]models.Task, 0, len(g.Order))
	for _, id := range g.Order {
		out = append(out, *g.Tasks[id])
	}
	return out
}
