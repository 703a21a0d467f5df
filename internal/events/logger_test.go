package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tealeaf2/taskgantt/internal/models"
)

type fakeRepo struct {
	last *models.Event
}

func (r *fakeRepo) Create(ctx context.Context, event *models.Event) error {
	r.last = event
	return nil
}

func TestLogTaskStatusChanged(t *testing.T) {
	repo := &fakeRepo{}

	err := LogTaskStatusChanged(context.Background(), repo, "task-1", models.StatusTodo, models.StatusBlocked, models.ChangeSourceRollup)
	if err != nil {
		t.Fatalf("LogTaskStatusChanged failed: %v", err)
	}

	if repo.last == nil {
		t.Fatal("expected event to be created")
	}
	if repo.last.Type != models.EventTypeTaskStatusChanged {
		t.Fatalf("unexpected event type: %q", repo.last.Type)
	}
	if repo.last.EntityID != "task-1" {
		t.Fatalf("unexpected entity id: %q", repo.last.EntityID)
	}

	var payload models.StatusChangedPayload
	if err := json.Unmarshal(repo.last.Payload, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if payload.OldStatus != models.StatusTodo || payload.NewStatus != models.StatusBlocked {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Source != models.ChangeSourceRollup {
		t.Fatalf("unexpected source: %q", payload.Source)
	}
}

func TestLogTaskStatusChangedRequiresRepo(t *testing.T) {
	err := LogTaskStatusChanged(context.Background(), nil, "task-1", models.StatusTodo, models.StatusDone, models.ChangeSourceEdit)
	if err == nil {
		t.Fatal("expected error for nil repository")
	}
}

func TestLogTaskStatusChangedRequiresTaskID(t *testing.T) {
	repo := &fakeRepo{}
	err := LogTaskStatusChanged(context.Background(), repo, "", models.StatusTodo, models.StatusDone, models.ChangeSourceEdit)
	if err == nil {
		t.Fatal("expected error for empty task id")
	}
}

func TestLogSnapshotReplaced(t *testing.T) {
	repo := &fakeRepo{}

	if err := LogSnapshotReplaced(context.Background(), repo, 42, "clickup"); err != nil {
		t.Fatalf("LogSnapshotReplaced failed: %v", err)
	}

	if repo.last.Type != models.EventTypeSnapshotReplaced {
		t.Fatalf("unexpected event type: %q", repo.last.Type)
	}

	var payload models.SnapshotReplacedPayload
	if err := json.Unmarshal(repo.last.Payload, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if payload.TaskCount != 42 || payload.Source != "clickup" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestLogPropagationCompleted(t *testing.T) {
	repo := &fakeRepo{}

	if err := LogPropagationCompleted(context.Background(), repo, 2, 5, true); err != nil {
		t.Fatalf("LogPropagationCompleted failed: %v", err)
	}
	if repo.last.Type != models.EventTypePropagationCompleted {
		t.Fatalf("unexpected event type: %q", repo.last.Type)
	}

	if err := LogPropagationCompleted(context.Background(), repo, 10, 3, false); err != nil {
		t.Fatalf("LogPropagationCompleted failed: %v", err)
	}
	if repo.last.Type != models.EventTypePropagationDiverged {
		t.Fatalf("expected diverged event type, got %q", repo.last.Type)
	}
}

func TestLogTaskRemoved(t *testing.T) {
	repo := &fakeRepo{}

	if err := LogTaskRemoved(context.Background(), repo, "task-9"); err != nil {
		t.Fatalf("LogTaskRemoved failed: %v", err)
	}
	if repo.last.Type != models.EventTypeTaskRemoved || repo.last.EntityID != "task-9" {
		t.Fatalf("unexpected event: %+v", repo.last)
	}
}
