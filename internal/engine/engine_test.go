package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tealeaf2/taskgantt/internal/config"
	"github.com/tealeaf2/taskgantt/internal/models"
)

// fakeEventRepo collects events across engine operations.
type fakeEventRepo struct {
	mu     sync.Mutex
	events []*models.Event
}

func (r *fakeEventRepo) Create(ctx context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeEventRepo) byType(eventType models.EventType) []*models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(config.DefaultConfig(), nil)
}

func familyTasks() []models.Task {
	return []models.Task{
		{ID: "root", Name: "Release", Status: models.StatusTodo},
		{ID: "a1", ParentID: "root", Status: models.StatusTodo},
		{ID: "a2", ParentID: "root", Status: models.StatusBlocked},
	}
}

func TestEngineReplacePropagates(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Replace(context.Background(), familyTasks(), "test")
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if !result.Changed {
		t.Fatal("expected propagation to change the root")
	}

	root, err := eng.Task("root")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if root.Status != models.StatusBlocked {
		t.Errorf("expected root blocked after rollup, got %q", root.Status)
	}
	if eng.TaskCount() != 3 {
		t.Errorf("expected 3 tasks, got %d", eng.TaskCount())
	}
}

func TestEngineUpsertTaskIncremental(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Replace(context.Background(), familyTasks(), "test"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	a2, err := eng.Task("a2")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	a2.Status = models.StatusInProgress

	result, err := eng.UpsertTask(context.Background(), a2)
	if err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}
	if !result.Changed {
		t.Fatal("expected parent rollup to fire")
	}

	root, err := eng.Task("root")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if root.Status != models.StatusInProgress {
		t.Errorf("expected root in-progress, got %q", root.Status)
	}
}

func TestEngineUpsertNewTaskAppends(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Replace(context.Background(), familyTasks(), "test"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if _, err := eng.UpsertTask(context.Background(), models.Task{ID: "late"}); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	tasks := eng.Tasks()
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}
	last := tasks[len(tasks)-1]
	if last.ID != "late" {
		t.Errorf("expected new task appended last, got %q", last.ID)
	}
	if last.Status != models.StatusTodo {
		t.Errorf("expected default status todo, got %q", last.Status)
	}
}

func TestEngineUpsertRejectsInvalid(t *testing.T) {
	eng := newTestEngine(t)

	if _, err := eng.UpsertTask(context.Background(), models.Task{}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("expected ErrInvalidTask for missing id, got %v", err)
	}

	bad := models.Task{ID: "x", Status: models.Status("archived")}
	if _, err := eng.UpsertTask(context.Background(), bad); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("expected ErrInvalidTask for unknown status, got %v", err)
	}
}

func TestEngineUpsertStampsManualStatusEdit(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Replace(context.Background(), familyTasks(), "test"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	edited := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return edited }

	a1, err := eng.Task("a1")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	a1.Status = models.StatusDone
	a1.LastStatusUpdate = time.Time{}

	if _, err := eng.UpsertTask(context.Background(), a1); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	got, err := eng.Task("a1")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if !got.LastStatusUpdate.Equal(edited) {
		t.Errorf("expected edit stamp %v, got %v", edited, got.LastStatusUpdate)
	}
}

func TestEngineRemoveTask(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Replace(context.Background(), familyTasks(), "test"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if _, err := eng.RemoveTask(context.Background(), "a2"); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}
	if _, err := eng.Task("a2"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected removed task gone, got %v", err)
	}

	// With the blocked child gone the root rolls up from what remains.
	root, err := eng.Task("root")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if root.Status != models.StatusTodo {
		t.Errorf("expected root todo after removal, got %q", root.Status)
	}

	if _, err := eng.RemoveTask(context.Background(), "a2"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on second removal, got %v", err)
	}
}

func TestEngineReadsMissFreshCollection(t *testing.T) {
	eng := newTestEngine(t)

	if _, err := eng.Task("anything"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Task: expected ErrTaskNotFound, got %v", err)
	}
	if _, err := eng.Risk("anything"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Risk: expected ErrTaskNotFound, got %v", err)
	}
	if _, err := eng.Blockers("anything"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Blockers: expected ErrTaskNotFound, got %v", err)
	}
	if got := eng.Tasks(); len(got) != 0 {
		t.Errorf("expected empty collection, got %d tasks", len(got))
	}
	if analysis := eng.Chains(); len(analysis.Chains) != 0 {
		t.Errorf("expected no chains, got %d", len(analysis.Chains))
	}
}

func TestEngineTasksReturnsCopies(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Replace(context.Background(), familyTasks(), "test"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	tasks := eng.Tasks()
	tasks[0].Name = "mutated"
	tasks[0].Status = models.StatusDone

	fresh, err := eng.Task(tasks[0].ID)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if fresh.Name == "mutated" || fresh.Status == models.StatusDone {
		t.Error("mutating a returned task leaked into engine state")
	}
}

func TestEngineChainCacheInvalidatedByEdits(t *testing.T) {
	eng := newTestEngine(t)
	tasks := []models.Task{
		{ID: "z", Status: models.StatusTodo},
		{ID: "x", Status: models.StatusTodo, Depends: []string{"y"}},
		{ID: "y", Status: models.StatusTodo},
	}
	if _, err := eng.Replace(context.Background(), tasks, "test"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	first := eng.Chains()
	if len(first.Chains) != 1 || first.Chains[0].Length() != 2 {
		t.Fatalf("unexpected initial chains: %+v", first.Chains)
	}

	z, err := eng.Task("z")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	z.Depends = []string{"x"}
	if _, err := eng.UpsertTask(context.Background(), z); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	second := eng.Chains()
	if len(second.Chains) != 1 {
		t.Fatalf("expected one chain after edit, got %d", len(second.Chains))
	}
	if second.Chains[0].Length() != 3 {
		t.Errorf("expected chain of 3 after new edge, got %d", second.Chains[0].Length())
	}
}

func TestEngineSummaryJoinsChainAndBlockerViews(t *testing.T) {
	eng := newTestEngine(t)

	stale := time.Now().UTC().Add(-5 * 24 * time.Hour)
	tasks := []models.Task{
		{ID: "c1", Status: models.StatusTodo, Depends: []string{"c2"}},
		{ID: "c2", Status: models.StatusBlocked, Depends: []string{"c3"}, LastStatusUpdate: stale},
		{ID: "c3", Status: models.StatusBlocked, Depends: []string{"c4"}, LastStatusUpdate: stale},
		{ID: "c4", Status: models.StatusBlocked, Depends: []string{"c5"}, LastStatusUpdate: stale},
		{ID: "c5", Status: models.StatusTodo, Depends: []string{"c6"}},
		{ID: "c6", Status: models.StatusTodo},
	}
	// No parent edges, so rollup never fires. After the dependency pass
	// the chain still carries three blocked tasks, enough to trip the
	// critical-path threshold.
	if _, err := eng.Replace(context.Background(), tasks, "test"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	summary := eng.Summary()
	if summary.TotalTasks != 6 {
		t.Errorf("expected 6 total tasks, got %d", summary.TotalTasks)
	}
	if len(summary.CriticalPathRisks) != 1 {
		t.Fatalf("expected exactly one critical path risk, got %d", len(summary.CriticalPathRisks))
	}
	if summary.CriticalPathRisks[0].Severity != models.SeverityHigh {
		t.Errorf("expected high severity risk, got %q", summary.CriticalPathRisks[0].Severity)
	}
	if summary.HighRiskTasks == 0 {
		t.Error("expected stale blocked dependencies to produce high-risk tasks")
	}
	if summary.OverallRiskLevel != models.SeverityHigh {
		t.Errorf("expected overall high risk, got %q", summary.OverallRiskLevel)
	}
	if len(summary.Recommendations) == 0 {
		t.Error("expected escalation recommendations")
	}
}

func TestEngineRecordsEvents(t *testing.T) {
	repo := &fakeEventRepo{}
	eng := New(config.DefaultConfig(), repo)

	if _, err := eng.Replace(context.Background(), familyTasks(), "clickup"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if got := repo.byType(models.EventTypeSnapshotReplaced); len(got) != 1 {
		t.Errorf("expected 1 snapshot event, got %d", len(got))
	}
	if got := repo.byType(models.EventTypePropagationCompleted); len(got) != 1 {
		t.Errorf("expected 1 propagation event, got %d", len(got))
	}
	rollups := repo.byType(models.EventTypeTaskStatusChanged)
	if len(rollups) == 0 {
		t.Fatal("expected status change events from rollup")
	}

	a1, err := eng.Task("a1")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	a1.Status = models.StatusDone
	if _, err := eng.UpsertTask(context.Background(), a1); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}

	if got := repo.byType(models.EventTypeTaskUpserted); len(got) != 1 {
		t.Errorf("expected 1 upsert event, got %d", len(got))
	}

	if _, err := eng.RemoveTask(context.Background(), "a1"); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}
	if got := repo.byType(models.EventTypeTaskRemoved); len(got) != 1 {
		t.Errorf("expected 1 remove event, got %d", len(got))
	}
}

func TestEngineLoadSkipsPropagationAndEvents(t *testing.T) {
	repo := &fakeEventRepo{}
	eng := New(config.DefaultConfig(), repo)

	eng.Load(familyTasks())

	if eng.TaskCount() != 3 {
		t.Fatalf("TaskCount = %d, want 3", eng.TaskCount())
	}
	root, err := eng.Task("root")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if root.Status != models.StatusTodo {
		t.Errorf("root status = %s, want the stored todo untouched", root.Status)
	}

	repo.mu.Lock()
	recorded := len(repo.events)
	repo.mu.Unlock()
	if recorded != 0 {
		t.Errorf("expected no events from a load, got %d", recorded)
	}
}
