package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Status is the scheduling state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// Precedence returns the roll-up precedence of the status. When a parent
// aggregates children in mixed states, the highest precedence wins.
func (s Status) Precedence() int {
	switch s {
	case StatusBlocked:
		return 4
	case StatusInProgress:
		return 3
	case StatusDone:
		return 2
	case StatusTodo:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	return s.Precedence() > 0
}

// Priority is the tracker priority band for a task.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

// Blocker is an explicit blocker record attached to a task, independent of
// the dependency graph.
type Blocker struct {
	// ID identifies what is blocking (a task id, a person, an external ref).
	ID string `json:"id"`

	// Owner is who is responsible for clearing the blocker.
	Owner string `json:"owner,omitempty"`

	// Since is when the blocker was raised.
	Since time.Time `json:"since"`

	// Type is a free-form label from the source ("approval", "vendor", ...).
	Type string `json:"type,omitempty"`
}

// Task is the core entity analyzed by the engine.
type Task struct {
	// ID is the unique identifier, stable for the task's lifetime.
	ID string `json:"id"`

	// Name is the human-readable title.
	Name string `json:"name,omitempty"`

	// ParentID references the parent task, if any. Tasks with no parent are
	// roots; the parent relation forms a forest, never a containment.
	ParentID string `json:"parent_id,omitempty"`

	// Depends lists ids of tasks this one requires before it can start or
	// complete. Source order is preserved.
	Depends []string `json:"depends,omitempty"`

	// Status is the scheduling state. Composite tasks are recomputed by the
	// propagator; leaf statuses come from external edits.
	Status Status `json:"status"`

	// Duration is the planned length in days. Values below 1 are treated
	// as 1 wherever duration divides something.
	Duration int `json:"duration,omitempty"`

	// DueDate is when the task is due, if set.
	DueDate *time.Time `json:"due_date,omitempty"`

	// CreatedAt is when the task was created in the source tracker. It
	// backs age calculations for tasks whose status never changed.
	CreatedAt time.Time `json:"created_at,omitempty"`

	// LastStatusUpdate is when the status last changed.
	LastStatusUpdate time.Time `json:"last_status_update,omitempty"`

	// Priority is the tracker priority band.
	Priority Priority `json:"priority,omitempty"`

	// Owner is the assignee responsible for the task.
	Owner string `json:"owner,omitempty"`

	// Blockers are explicit blocker records attached to the task.
	Blockers []Blocker `json:"blockers,omitempty"`

	// Tags are opaque labels carried through from the source.
	Tags []string `json:"tags,omitempty"`

	// URL links back to the task in the source tracker.
	URL string `json:"url,omitempty"`

	// Raw holds source fields the engine never inspects.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Validate checks if the task is valid.
func (t *Task) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(t.ID) == "" {
		validation.AddMessage("id", "id is required")
	}
	if t.Status != "" && !t.Status.Valid() {
		validation.AddMessage("status", "unknown status "+string(t.Status))
	}
	if t.Duration < 0 {
		validation.AddMessage("duration", "duration must be non-negative")
	}
	for i, b := range t.Blockers {
		if strings.TrimSpace(b.ID) == "" {
			validation.AddMessage("blockers", "blocker "+strconv.Itoa(i)+" is missing an id")
		}
	}
	return validation.Err()
}

// Done reports whether the task has reached its terminal state.
func (t *Task) Done() bool {
	return t.Status == StatusDone
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	out := t
	if t.Depends != nil {
		out.Depends = make([]string, len(t.Depends))
		copy(out.Depends, t.Depends)
	}
	if t.Blockers != nil {
		out.Blockers = make([]Blocker, len(t.Blockers))
		copy(out.Blockers, t.Blockers)
	}
	if t.Tags != nil {
		out.Tags = make([]string, len(t.Tags))
		copy(out.Tags, t.Tags)
	}
	if t.DueDate != nil {
		due := *t.DueDate
		out.DueDate = &due
	}
	if t.Raw != nil {
		out.Raw = make(json.RawMessage, len(t.Raw))
		copy(out.Raw, t.Raw)
	}
	return out
}

// CloneTasks returns a deep copy of a task collection.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}
