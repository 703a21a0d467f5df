// Package events provides helper functions for recording task engine
// events.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tealeaf2/taskgantt/internal/models"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// LogTaskStatusChanged records a status transition for a task.
func LogTaskStatusChanged(ctx context.Context, repo Repository, taskID string, oldStatus, newStatus models.Status, source string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if taskID == "" {
		return fmt.Errorf("task id is required")
	}

	payload, err := json.Marshal(models.StatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Source:    source,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status change payload: %w", err)
	}

	event := &models.Event{
		Type:       models.EventTypeTaskStatusChanged,
		EntityType: models.EntityTypeTask,
		EntityID:   taskID,
		Payload:    payload,
	}

	return repo.Create(ctx, event)
}

// LogTaskUpserted records that a task was created or edited.
func LogTaskUpserted(ctx context.Context, repo Repository, taskID string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if taskID == "" {
		return fmt.Errorf("task id is required")
	}

	event := &models.Event{
		Type:       models.EventTypeTaskUpserted,
		EntityType: models.EntityTypeTask,
		EntityID:   taskID,
	}

	return repo.Create(ctx, event)
}

// LogTaskRemoved records that a task was removed from the collection.
func LogTaskRemoved(ctx context.Context, repo Repository, taskID string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if taskID == "" {
		return fmt.Errorf("task id is required")
	}

	event := &models.Event{
		Type:       models.EventTypeTaskRemoved,
		EntityType: models.EntityTypeTask,
		EntityID:   taskID,
	}

	return repo.Create(ctx, event)
}

// LogSnapshotReplaced records a wholesale replacement of the task
// collection, typically after a tracker fetch.
func LogSnapshotReplaced(ctx context.Context, repo Repository, taskCount int, source string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.SnapshotReplacedPayload{
		TaskCount: taskCount,
		Source:    source,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}

	event := &models.Event{
		Type:       models.EventTypeSnapshotReplaced,
		EntityType: models.EntityTypeSnapshot,
		EntityID:   "current",
		Payload:    payload,
	}

	return repo.Create(ctx, event)
}

// LogPropagationCompleted records the outcome of a propagation run. A
// run that hit the pass cap is recorded as diverged.
func LogPropagationCompleted(ctx context.Context, repo Repository, passes, changed int, converged bool) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.PropagationCompletedPayload{
		Passes:    passes,
		Changed:   changed,
		Converged: converged,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal propagation payload: %w", err)
	}

	eventType := models.EventTypePropagationCompleted
	if !converged {
		eventType = models.EventTypePropagationDiverged
	}

	event := &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeSnapshot,
		EntityID:   "current",
		Payload:    payload,
	}

	return repo.Create(ctx, event)
}
