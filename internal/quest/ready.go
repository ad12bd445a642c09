package quest

import (
	"fmt"

	"github.com/ShayCichocki/dungeonmaster/internal/graph"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// IsStepReady reports whether step is pending and every step it depends
// on is complete. A dependency missing from steps is never satisfied.
func IsStepReady(step models.DependencyStep, steps []models.DependencyStep) bool {
	if step.Status != models.StepStatusPending {
		return false
	}
	for _, dep := range step.DependsOn {
		satisfied := false
		for _, s := range steps {
			if s.ID == dep {
				satisfied = s.Status == models.StepStatusComplete
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// ReadySteps returns the steps that can start now, in quest order.
func ReadySteps(q *models.Quest) []models.DependencyStep {
	var ready []models.DependencyStep
	for _, s := range q.Steps {
		if IsStepReady(s, q.Steps) {
			ready = append(ready, s)
		}
	}
	return ready
}

// IncompleteSteps returns every step not yet complete.
func IncompleteSteps(q *models.Quest) []models.DependencyStep {
	var out []models.DependencyStep
	for _, s := range q.Steps {
		if s.Status != models.StepStatusComplete {
			out = append(out, s)
		}
	}
	return out
}

// Verify reports structural problems in q. An empty result means the
// quest can be executed.
func Verify(q *models.Quest) []string {
	var problems []string

	seen := make(map[string]bool, len(q.Steps))
	for _, s := range q.Steps {
		if seen[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate step id %s", s.ID))
		}
		seen[s.ID] = true
	}
	for _, s := range q.Steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				problems = append(problems, fmt.Sprintf("step %s depends on unknown step %s", s.ID, dep))
			}
		}
	}

	// Only a clean id set can be checked for cycles.
	if len(problems) == 0 {
		if err := graph.New().Build(q.Steps); err != nil {
			problems = append(problems, err.Error())
		}
	}

	contexts := make(map[string]bool, len(q.Contexts))
	for _, c := range q.Contexts {
		contexts[c.ID] = true
	}
	for _, o := range q.Observables {
		if o.ContextID != "" && !contexts[o.ContextID] {
			problems = append(problems, fmt.Sprintf("observable %s references unknown context %s", o.ID, o.ContextID))
		}
	}
	return problems
}
