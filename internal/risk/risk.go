// Package risk computes a bounded 0-100 risk score per task from five
// weighted factors.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/tealeaf2/taskgantt/internal/graph"
	"github.com/tealeaf2/taskgantt/internal/models"
)

// Factor names reported in assessments.
const (
	FactorOverdue    = "overdue"
	FactorDependency = "dependency"
	FactorInactivity = "inactivity"
	FactorComplexity = "complexity"
	FactorPriority   = "priority"
)

// Factor weights. They sum to 1.0, so the weighted sum stays in [0,1].
const (
	weightOverdue    = 0.25
	weightDependency = 0.25
	weightInactivity = 0.20
	weightComplexity = 0.15
	weightPriority   = 0.15
)

// Default thresholds.
const (
	DefaultInactivityThresholdDays = 7
	DefaultMaxSubtasksForLog       = 20
)

// Config contains scoring thresholds.
type Config struct {
	// InactivityThresholdDays is the staleness horizon: a task untouched
	// for this many days scores full inactivity risk.
	// Default: 7.
	InactivityThresholdDays int

	// MaxSubtasksForLog caps the subtask count fed into the complexity
	// factor's log normalization.
	// Default: 20.
	MaxSubtasksForLog int
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		InactivityThresholdDays: DefaultInactivityThresholdDays,
		MaxSubtasksForLog:       DefaultMaxSubtasksForLog,
	}
}

// Factor is one weighted risk component, its value clamped to [0,1].
type Factor struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description,omitempty"`
}

// Assessment is the full scoring breakdown for one task.
type Assessment struct {
	TaskID  string   `json:"task_id"`
	Score   int      `json:"score"`
	Factors []Factor `json:"factors,omitempty"`
}

// Scorer computes risk scores. Scoring is a pure read of the snapshot;
// the scorer never mutates tasks.
type Scorer struct {
	cfg Config
	now func() time.Time
}

// New creates a new Scorer. Non-positive thresholds fall back to
// defaults.
func New(cfg Config) *Scorer {
	if cfg.InactivityThresholdDays <= 0 {
		cfg.InactivityThresholdDays = DefaultInactivityThresholdDays
	}
	if cfg.MaxSubtasksForLog <= 0 {
		cfg.MaxSubtasksForLog = DefaultMaxSubtasksForLog
	}
	return &Scorer{
		cfg: cfg,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Score returns the task's risk in [0,100]. A done task scores zero.
func (s *Scorer) Score(task models.Task, g *graph.Graph) int {
	return s.Assess(task, g).Score
}

// Assess scores a task and returns the factor breakdown. The weighted
// sum is scaled to 100 and rounded half up.
func (s *Scorer) Assess(task models.Task, g *graph.Graph) Assessment {
	if task.Done() {
		return Assessment{TaskID: task.ID}
	}

	now := s.now()
	factors := []Factor{
		s.overdueFactor(task, now),
		s.dependencyFactor(task, g),
		s.inactivityFactor(task, now),
		s.complexityFactor(task, g),
		s.priorityFactor(task),
	}

	sum := 0.0
	for _, f := range factors {
		sum += f.Value * f.Weight
	}
	return Assessment{
		TaskID:  task.ID,
		Score:   int(math.Round(sum * 100)),
		Factors: factors,
	}
}

// overdueFactor is days late over planned duration. Without a due date
// there is nothing to be late against; durations below one day divide
// as one.
func (s *Scorer) overdueFactor(task models.Task, now time.Time) Factor {
	f := Factor{Name: FactorOverdue, Weight: weightOverdue}
	if task.DueDate == nil {
		f.Description = "no due date"
		return f
	}
	duration := task.Duration
	if duration < 1 {
		duration = 1
	}
	daysLate := now.Sub(*task.DueDate).Hours() / 24
	if daysLate < 0 {
		daysLate = 0
	}
	f.Value = clamp01(daysLate / float64(duration))
	f.Description = fmt.Sprintf("%.1f days past due over %d planned", daysLate, duration)
	return f
}

// dependencyFactor is the share of resolvable dependencies that are not
// done yet.
func (s *Scorer) dependencyFactor(task models.Task, g *graph.Graph) Factor {
	f := Factor{Name: FactorDependency, Weight: weightDependency}
	deps := g.ResolvedDeps(task.ID)
	if len(deps) == 0 {
		f.Description = "no dependencies"
		return f
	}
	unfinished := 0
	for _, dep := range deps {
		if t, ok := g.Task(dep); ok && !t.Done() {
			unfinished++
		}
	}
	f.Value = float64(unfinished) / float64(len(deps))
	f.Description = fmt.Sprintf("%d of %d dependencies unfinished", unfinished, len(deps))
	return f
}

func (s *Scorer) inactivityFactor(task models.Task, now time.Time) Factor {
	f := Factor{Name: FactorInactivity, Weight: weightInactivity}
	days := now.Sub(task.LastStatusUpdate).Hours() / 24
	if days < 0 {
		days = 0
	}
	f.Value = clamp01(days / float64(s.cfg.InactivityThresholdDays))
	f.Description = fmt.Sprintf("%.1f days since last update", days)
	return f
}

// complexityFactor normalizes the subtask count on a log scale so the
// first few subtasks weigh more than the twentieth.
func (s *Scorer) complexityFactor(task models.Task, g *graph.Graph) Factor {
	f := Factor{Name: FactorComplexity, Weight: weightComplexity}
	n := g.SubtaskCount(task.ID)
	if n > s.cfg.MaxSubtasksForLog {
		n = s.cfg.MaxSubtasksForLog
	}
	f.Value = math.Log(float64(n)+1) / math.Log(float64(s.cfg.MaxSubtasksForLog)+1)
	f.Description = fmt.Sprintf("%d subtasks", g.SubtaskCount(task.ID))
	return f
}

func (s *Scorer) priorityFactor(task models.Task) Factor {
	f := Factor{
		Name:        FactorPriority,
		Weight:      weightPriority,
		Description: "priority " + string(task.Priority),
	}
	switch task.Priority {
	case models.PriorityUrgent, models.PriorityHigh:
		f.Value = 1.0
	case models.PriorityNormal, "medium":
		f.Value = 0.6
	default:
		// low, none, and anything unrecognized
		f.Value = 0.3
	}
	return f
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
