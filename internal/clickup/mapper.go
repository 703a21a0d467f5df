package clickup

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tealeaf2/taskgantt/internal/models"
)

const millisPerDay = 24 * 60 * 60 * 1000

// mapTask converts one ClickUp task object into a models.Task. The
// source shape varies by workspace configuration; missing or oddly
// shaped fields map to zero values, and the full payload is kept in
// Raw.
func mapTask(item gjson.Result) models.Task {
	id := item.Get("id").String()

	task := models.Task{
		ID:               id,
		Name:             item.Get("name").String(),
		ParentID:         item.Get("parent").String(),
		Status:           mapStatus(item.Get("status.status").String(), item.Get("status.type").String()),
		Duration:         mapDuration(item.Get("time_estimate")),
		CreatedAt:        parseStamp(item.Get("date_created")),
		LastStatusUpdate: parseStamp(item.Get("date_updated")),
		Priority:         mapPriority(item.Get("priority.priority").String()),
		Owner:            item.Get("assignees.0.username").String(),
		URL:              item.Get("url").String(),
		Raw:              json.RawMessage(item.Raw),
	}

	if due := parseStamp(item.Get("due_date")); !due.IsZero() {
		task.DueDate = &due
	}
	task.Depends = mapDependencies(id, item.Get("dependencies"))
	task.Tags = mapTags(item.Get("tags"))
	task.Blockers = mapBlockers(item.Get("blockers"))

	return task
}

// mapStatus folds ClickUp's open-ended status space into the four core
// states: closed-type statuses are done, a status named blocked is
// blocked, in-progress names and custom-type statuses are in-progress,
// and everything else is todo.
func mapStatus(status, statusType string) models.Status {
	status = strings.ToLower(strings.TrimSpace(status))
	statusType = strings.ToLower(strings.TrimSpace(statusType))

	if statusType == "closed" || statusType == "done" {
		return models.StatusDone
	}
	switch status {
	case "blocked":
		return models.StatusBlocked
	case "in progress", "in-progress", "in_progress":
		return models.StatusInProgress
	}
	if statusType == "custom" {
		return models.StatusInProgress
	}
	return models.StatusTodo
}

// mapPriority passes the priority word through lowercased. Words
// outside the usual band set (such as "medium") are kept as-is; the
// risk scorer knows how to weigh them.
func mapPriority(word string) models.Priority {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return models.PriorityNone
	}
	return models.Priority(word)
}

// mapDuration converts a millisecond time estimate into whole days,
// at least one day for any positive estimate.
func mapDuration(estimate gjson.Result) int {
	ms := estimate.Int()
	if ms <= 0 {
		return 0
	}
	days := int(math.Ceil(float64(ms) / float64(millisPerDay)))
	if days < 1 {
		days = 1
	}
	return days
}

// mapDependencies accepts both dependency encodings: bare id strings
// and {task_id, depends_on} edge objects. Edge objects belonging to a
// different task, and self references, are dropped.
func mapDependencies(taskID string, deps gjson.Result) []string {
	var out []string
	seen := make(map[string]bool)
	deps.ForEach(func(_, d gjson.Result) bool {
		var target string
		if d.Type == gjson.String {
			target = d.String()
		} else {
			target = d.Get("depends_on").String()
			if owner := d.Get("task_id").String(); owner != "" && owner != taskID {
				return true
			}
		}
		if target == "" || target == taskID || seen[target] {
			return true
		}
		seen[target] = true
		out = append(out, target)
		return true
	})
	return out
}

// mapTags reads tag names from either {name} objects or bare strings.
func mapTags(tags gjson.Result) []string {
	var out []string
	tags.ForEach(func(_, t gjson.Result) bool {
		name := t.Get("name").String()
		if name == "" && t.Type == gjson.String {
			name = t.String()
		}
		if name != "" {
			out = append(out, name)
		}
		return true
	})
	return out
}

// mapBlockers reads explicit blocker records when the source carries
// them.
func mapBlockers(blockers gjson.Result) []models.Blocker {
	var out []models.Blocker
	blockers.ForEach(func(_, b gjson.Result) bool {
		id := b.Get("id").String()
		if id == "" {
			id = b.Get("task_id").String()
		}
		if id == "" {
			return true
		}

		owner := b.Get("owner")
		ownerName := owner.String()
		if owner.IsObject() {
			ownerName = owner.Get("username").String()
		}

		out = append(out, models.Blocker{
			ID:    id,
			Owner: ownerName,
			Since: parseStamp(b.Get("since")),
			Type:  b.Get("type").String(),
		})
		return true
	})
	return out
}

// parseStamp reads a timestamp that may arrive as epoch milliseconds
// (number or numeric string, ClickUp's usual form) or as RFC 3339.
func parseStamp(v gjson.Result) time.Time {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms <= 0 {
			return time.Time{}
		}
		return time.UnixMilli(ms).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
