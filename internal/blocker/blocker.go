// Package blocker derives active blockers per task and turns them into
// escalation recommendations and a project-wide risk summary.
package blocker

import (
	"fmt"
	"time"

	"github.com/tealeaf2/taskgantt/internal/graph"
	"github.com/tealeaf2/taskgantt/internal/models"
)

// Blocker types.
const (
	TypeDependency = "dependency"
	TypeExplicit   = "explicit"
)

// Recommendation actions.
const (
	ActionEscalate    = "escalate"
	ActionInvestigate = "investigate"
)

// UnassignedOwner labels recommendations for blockers nobody owns.
const UnassignedOwner = "Unassigned"

// DefaultBlockerAgeDays is the age above which a blocker is high
// severity.
const DefaultBlockerAgeDays = 3

// Config contains blocker analysis thresholds.
type Config struct {
	// BlockerAgeDays is the age in days past which a blocker escalates
	// from medium to high severity.
	// Default: 3.
	BlockerAgeDays int
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		BlockerAgeDays: DefaultBlockerAgeDays,
	}
}

// Blocker is one active blocker on a task, either implied by an
// unfinished dependency or carried as an explicit record.
type Blocker struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Status   models.Status   `json:"status,omitempty"`
	Owner    string          `json:"owner,omitempty"`
	AgeDays  float64         `json:"age_days"`
	Severity models.Severity `json:"severity"`
}

// Recommendation is a suggested next step derived from a blocker. A
// single blocker can yield both an escalation and an investigation.
type Recommendation struct {
	Action    string          `json:"action"`
	TaskID    string          `json:"task_id"`
	BlockerID string          `json:"blocker_id"`
	Priority  models.Severity `json:"priority"`
	Assignee  string          `json:"assignee"`
	Reason    string          `json:"reason"`
}

// Summary is the project-wide blocker picture.
type Summary struct {
	TotalTasks       int              `json:"total_tasks"`
	HighRiskTasks    int              `json:"high_risk_tasks"`
	OverallRiskLevel models.Severity  `json:"overall_risk_level"`
	Recommendations  []Recommendation `json:"recommendations,omitempty"`
}

// Analyzer derives blockers and recommendations. It reads the snapshot
// it is given and never mutates tasks.
type Analyzer struct {
	cfg Config
	now func() time.Time
}

// New creates a new Analyzer. A non-positive age threshold falls back
// to the default.
func New(cfg Config) *Analyzer {
	if cfg.BlockerAgeDays <= 0 {
		cfg.BlockerAgeDays = DefaultBlockerAgeDays
	}
	return &Analyzer{
		cfg: cfg,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Blockers collects a task's active blockers. Every resolvable
// dependency whose target is not done yields a dependency blocker aged
// by the target's last status change; every explicit record yields an
// explicit blocker aged by its own since timestamp.
func (a *Analyzer) Blockers(task models.Task, g *graph.Graph) []Blocker {
	now := a.now()
	var out []Blocker

	for _, dep := range g.ResolvedDeps(task.ID) {
		target, ok := g.Task(dep)
		if !ok || target.Done() {
			continue
		}
		age := a.ageDays(now, target.LastStatusUpdate, target.CreatedAt)
		out = append(out, Blocker{
			Type:     TypeDependency,
			ID:       target.ID,
			Name:     target.Name,
			Status:   target.Status,
			Owner:    target.Owner,
			AgeDays:  age,
			Severity: a.severity(age),
		})
	}

	for _, rec := range task.Blockers {
		age := a.ageDays(now, rec.Since, time.Time{})
		out = append(out, Blocker{
			Type:     TypeExplicit,
			ID:       rec.ID,
			Owner:    rec.Owner,
			AgeDays:  age,
			Severity: a.severity(age),
		})
	}

	return out
}

// Recommendations derives next steps from a task's active blockers.
func (a *Analyzer) Recommendations(task models.Task, g *graph.Graph) []Recommendation {
	return a.recommend(task, a.Blockers(task, g))
}

// Summarize walks the whole collection, counts tasks carrying at least
// one high-severity blocker, and aggregates those tasks'
// recommendations. The overall level is high past 30% high-risk tasks,
// medium past 10%, low otherwise.
func (a *Analyzer) Summarize(g *graph.Graph) Summary {
	sum := Summary{
		TotalTasks:       g.TaskCount(),
		OverallRiskLevel: models.SeverityLow,
	}

	for _, id := range g.Order {
		task, ok := g.Task(id)
		if !ok {
			continue
		}
		blockers := a.Blockers(*task, g)
		high := false
		for _, b := range blockers {
			if b.Severity == models.SeverityHigh {
				high = true
				break
			}
		}
		if !high {
			continue
		}
		sum.HighRiskTasks++
		sum.Recommendations = append(sum.Recommendations, a.recommend(*task, blockers)...)
	}

	if sum.TotalTasks > 0 {
		share := float64(sum.HighRiskTasks) / float64(sum.TotalTasks)
		switch {
		case share > 0.3:
			sum.OverallRiskLevel = models.SeverityHigh
		case share > 0.1:
			sum.OverallRiskLevel = models.SeverityMedium
		}
	}
	return sum
}

func (a *Analyzer) recommend(task models.Task, blockers []Blocker) []Recommendation {
	var out []Recommendation
	for _, b := range blockers {
		assignee := b.Owner
		if assignee == "" {
			assignee = UnassignedOwner
		}
		if b.Severity == models.SeverityHigh {
			out = append(out, Recommendation{
				Action:    ActionEscalate,
				TaskID:    task.ID,
				BlockerID: b.ID,
				Priority:  models.SeverityHigh,
				Assignee:  assignee,
				Reason:    fmt.Sprintf("%s has blocked %s for %.0f days", a.describe(b), task.ID, b.AgeDays),
			})
		}
		if b.Type == TypeDependency && b.Status == models.StatusBlocked {
			out = append(out, Recommendation{
				Action:    ActionInvestigate,
				TaskID:    task.ID,
				BlockerID: b.ID,
				Priority:  models.SeverityMedium,
				Assignee:  assignee,
				Reason:    fmt.Sprintf("dependency %s is itself blocked", a.describe(b)),
			})
		}
	}
	return out
}

func (a *Analyzer) describe(b Blocker) string {
	if b.Name != "" {
		return fmt.Sprintf("%s (%s)", b.Name, b.ID)
	}
	return b.ID
}

func (a *Analyzer) severity(ageDays float64) models.Severity {
	if ageDays > float64(a.cfg.BlockerAgeDays) {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// ageDays measures days since the primary timestamp, falling back to
// the secondary and finally to zero for unstamped records.
func (a *Analyzer) ageDays(now, primary, fallback time.Time) float64 {
	at := primary
	if at.IsZero() {
		at = fallback
	}
	if at.IsZero() {
		return 0
	}
	days := now.Sub(at).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}
