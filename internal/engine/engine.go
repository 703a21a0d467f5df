// Package engine hosts the live task collection and coordinates graph
// indexing, propagation, and analysis over consistent snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tealeaf2/taskgantt/internal/blocker"
	"github.com/tealeaf2/taskgantt/internal/chain"
	"github.com/tealeaf2/taskgantt/internal/config"
	"github.com/tealeaf2/taskgantt/internal/events"
	"github.com/tealeaf2/taskgantt/internal/graph"
	"github.com/tealeaf2/taskgantt/internal/logging"
	"github.com/tealeaf2/taskgantt/internal/models"
	"github.com/tealeaf2/taskgantt/internal/propagator"
	"github.com/tealeaf2/taskgantt/internal/risk"
)

// Engine errors.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidTask  = errors.New("invalid task")
)

// Summary is the project-wide risk picture: blocker analysis joined
// with the critical-path risks from chain analysis.
type Summary struct {
	TotalTasks        int                      `json:"total_tasks"`
	HighRiskTasks     int                      `json:"high_risk_tasks"`
	CriticalPathRisks []chain.Risk             `json:"critical_path_risks"`
	OverallRiskLevel  models.Severity          `json:"overall_risk_level"`
	Recommendations   []blocker.Recommendation `json:"recommendations,omitempty"`
}

// Engine owns the live task collection. Writes hold the write lock,
// re-propagate statuses, and invalidate the cached chain analysis;
// reads hand out copies so callers never alias engine state. The
// analyzers themselves are pure and hold no locks.
type Engine struct {
	mu     sync.RWMutex
	tasks  []models.Task
	graph  *graph.Graph
	chains *chain.Analysis // nil when invalidated by a write

	propagator *propagator.Propagator
	chainer    *chain.Analyzer
	scorer     *risk.Scorer
	blockers   *blocker.Analyzer

	eventRepo events.Repository
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates an engine from configuration. eventRepo may be nil, in
// which case no events are recorded.
func New(cfg *config.Config, eventRepo events.Repository) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &Engine{
		graph: graph.Build(nil),
		propagator: propagator.New(propagator.Config{
			ParentBlockedIfAnyChildBlocked: cfg.Propagation.ParentBlockedIfAnyChildBlocked,
			MaxPasses:                      cfg.Propagation.MaxPasses,
			ApplyDependencyStatus:          cfg.Propagation.ApplyDependencyStatus,
		}),
		chainer: chain.New(chain.Config{
			DependencyChainLength: cfg.Analysis.DependencyChainLength,
		}),
		scorer: risk.New(risk.Config{
			InactivityThresholdDays: cfg.Analysis.InactivityThresholdDays,
			MaxSubtasksForLog:       cfg.Analysis.MaxSubtasksForLog,
		}),
		blockers: blocker.New(blocker.Config{
			BlockerAgeDays: cfg.Analysis.BlockerAgeDays,
		}),
		eventRepo: eventRepo,
		logger:    logging.Component("engine"),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Replace swaps the whole collection for a new one, runs a full
// propagation, and adopts the propagated state. On non-convergence the
// last computed state is still adopted and the error returned. The
// source labels where the snapshot came from in the event log.
func (e *Engine) Replace(ctx context.Context, tasks []models.Task, source string) (propagator.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.propagator.Propagate(tasks)
	e.adopt(result.Updated)

	e.logger.Info().
		Int("tasks", len(result.Updated)).
		Int("changes", len(result.Changes)).
		Str("source", source).
		Msg("collection replaced")

	e.recordSnapshot(ctx, len(result.Updated), source)
	e.recordChanges(ctx, result.Changes)
	e.recordPropagation(ctx, result)

	return result, err
}

// Load adopts a previously propagated collection as-is. Unlike
// Replace it neither re-propagates nor records events; it is how a
// stored snapshot is rehydrated on startup.
func (e *Engine) Load(tasks []models.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.adopt(models.CloneTasks(tasks))
	e.logger.Debug().Int("tasks", len(tasks)).Msg("collection loaded")
}

// Propagate recomputes every derivable status over the current
// collection and adopts the outcome.
func (e *Engine) Propagate(ctx context.Context) (propagator.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.propagator.Propagate(e.tasks)
	e.adopt(result.Updated)

	e.recordChanges(ctx, result.Changes)
	e.recordPropagation(ctx, result)

	return result, err
}

// UpsertTask inserts or replaces a single task, then propagates
// incrementally from it. A manual status edit stamps the task's last
// status update and is recorded as an edit-sourced change.
func (e *Engine) UpsertTask(ctx context.Context, task models.Task) (propagator.Result, error) {
	if task.ID == "" {
		return propagator.Result{}, fmt.Errorf("%w: id is required", ErrInvalidTask)
	}
	if err := task.Validate(); err != nil {
		return propagator.Result{}, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	incoming := task.Clone()
	if incoming.Status == "" {
		incoming.Status = models.StatusTodo
	}

	next := models.CloneTasks(e.tasks)
	var oldStatus models.Status
	edited := false
	idx := -1
	for i := range next {
		if next[i].ID == incoming.ID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		oldStatus = next[idx].Status
		edited = incoming.Status != oldStatus
		if edited && incoming.LastStatusUpdate.IsZero() {
			incoming.LastStatusUpdate = e.now()
		}
		next[idx] = incoming
	} else {
		next = append(next, incoming)
	}

	result, err := e.propagator.PropagateFrom(next, incoming.ID)
	e.adopt(result.Updated)

	e.recordUpsert(ctx, incoming.ID)
	if edited {
		e.recordStatusChange(ctx, incoming.ID, oldStatus, incoming.Status, models.ChangeSourceEdit)
	}
	e.recordChanges(ctx, result.Changes)

	return result, err
}

// RemoveTask deletes a task and re-propagates the remaining collection.
// Edges that referenced the task become dangling and are dropped by the
// rebuild.
func (e *Engine) RemoveTask(ctx context.Context, id string) (propagator.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	found := false
	next := make([]models.Task, 0, len(e.tasks))
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			found = true
			continue
		}
		next = append(next, e.tasks[i].Clone())
	}
	if !found {
		return propagator.Result{}, ErrTaskNotFound
	}

	result, err := e.propagator.Propagate(next)
	e.adopt(result.Updated)

	e.recordRemove(ctx, id)
	e.recordChanges(ctx, result.Changes)

	return result, err
}

// Tasks returns a copy of the current collection in its stable order.
func (e *Engine) Tasks() []models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.CloneTasks(e.tasks)
}

// Task returns a copy of one task.
func (e *Engine) Task(id string) (models.Task, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.graph.Task(id)
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// TaskCount returns the number of tasks in the collection.
func (e *Engine) TaskCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tasks)
}

// Diagnostics returns the structural problems found while indexing the
// current collection.
func (e *Engine) Diagnostics() []graph.Diagnostic {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]graph.Diagnostic, len(e.graph.Diagnostics))
	copy(out, e.graph.Diagnostics)
	return out
}

// Chains returns the chain analysis for the current collection. The
// analysis is cached until a write invalidates it.
func (e *Engine) Chains() chain.Analysis {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chainsLocked()
}

// Risk scores one task against the current collection.
func (e *Engine) Risk(id string) (risk.Assessment, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.graph.Task(id)
	if !ok {
		return risk.Assessment{}, ErrTaskNotFound
	}
	return e.scorer.Assess(*t, e.graph), nil
}

// Blockers returns one task's active blockers.
func (e *Engine) Blockers(id string) ([]blocker.Blocker, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.graph.Task(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	return e.blockers.Blockers(*t, e.graph), nil
}

// Recommendations returns the escalation recommendations derived from
// one task's blockers.
func (e *Engine) Recommendations(id string) ([]blocker.Recommendation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.graph.Task(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	return e.blockers.Recommendations(*t, e.graph), nil
}

// Summary returns the project-wide risk picture. Blocker aggregation
// and the cached chain analysis are read under one lock so both cover
// the same snapshot.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	analysis := e.chainsLocked()
	s := e.blockers.Summarize(e.graph)

	return Summary{
		TotalTasks:        s.TotalTasks,
		HighRiskTasks:     s.HighRiskTasks,
		CriticalPathRisks: analysis.CriticalPathRisks,
		OverallRiskLevel:  s.OverallRiskLevel,
		Recommendations:   s.Recommendations,
	}
}

// adopt installs a propagated collection and rebuilds the graph index.
// Callers must hold the write lock.
func (e *Engine) adopt(tasks []models.Task) {
	e.tasks = tasks
	e.graph = graph.Build(tasks)
	e.chains = nil
}

// chainsLocked fills the chain cache if needed. Callers must hold the
// write lock.
func (e *Engine) chainsLocked() chain.Analysis {
	if e.chains == nil {
		analysis := e.chainer.Analyze(e.graph)
		e.chains = &analysis
	}
	return *e.chains
}

func (e *Engine) recordSnapshot(ctx context.Context, count int, source string) {
	if e.eventRepo == nil {
		return
	}
	if err := events.LogSnapshotReplaced(ctx, e.eventRepo, count, source); err != nil {
		e.logger.Warn().Err(err).Msg("failed to record snapshot event")
	}
}

func (e *Engine) recordUpsert(ctx context.Context, taskID string) {
	if e.eventRepo == nil {
		return
	}
	if err := events.LogTaskUpserted(ctx, e.eventRepo, taskID); err != nil {
		e.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to record upsert event")
	}
}

func (e *Engine) recordRemove(ctx context.Context, taskID string) {
	if e.eventRepo == nil {
		return
	}
	if err := events.LogTaskRemoved(ctx, e.eventRepo, taskID); err != nil {
		e.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to record remove event")
	}
}

func (e *Engine) recordStatusChange(ctx context.Context, taskID string, from, to models.Status, source string) {
	if e.eventRepo == nil {
		return
	}
	if err := events.LogTaskStatusChanged(ctx, e.eventRepo, taskID, from, to, source); err != nil {
		e.logger.Warn().Err(err).Str("task_id", taskID).Msg("failed to record status change event")
	}
}

func (e *Engine) recordChanges(ctx context.Context, changes []propagator.Change) {
	for _, ch := range changes {
		e.recordStatusChange(ctx, ch.TaskID, ch.From, ch.To, ch.Source)
	}
}

func (e *Engine) recordPropagation(ctx context.Context, result propagator.Result) {
	if e.eventRepo == nil {
		return
	}
	if err := events.LogPropagationCompleted(ctx, e.eventRepo, result.Passes, len(result.Changes), result.Converged); err != nil {
		e.logger.Warn().Err(err).Msg("failed to record propagation event")
	}
}
