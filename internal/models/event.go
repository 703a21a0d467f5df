package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes events in the system.
type EventType string

const (
	// Task events
	EventTypeTaskStatusChanged EventType = "task.status_changed"
	EventTypeTaskUpserted      EventType = "task.upserted"
	EventTypeTaskRemoved       EventType = "task.removed"

	// Snapshot events
	EventTypeSnapshotReplaced EventType = "snapshot.replaced"

	// Propagation events
	EventTypePropagationCompleted EventType = "propagation.completed"
	EventTypePropagationDiverged  EventType = "propagation.diverged"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeTask     EntityType = "task"
	EntityTypeSnapshot EntityType = "snapshot"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// ChangeSource values recorded on status change events.
const (
	ChangeSourceRollup     = "rollup"
	ChangeSourceDependency = "dependency"
	ChangeSourceEdit       = "edit"
)

// StatusChangedPayload is the payload for task.status_changed events.
type StatusChangedPayload struct {
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
	Source    string `json:"source"`
}

// SnapshotReplacedPayload is the payload for snapshot.replaced events.
type SnapshotReplacedPayload struct {
	TaskCount int    `json:"task_count"`
	Source    string `json:"source,omitempty"`
}

// PropagationCompletedPayload is the payload for propagation.completed and
// propagation.diverged events.
type PropagationCompletedPayload struct {
	Passes    int  `json:"passes"`
	Changed   int  `json:"changed"`
	Converged bool `json:"converged"`
}
