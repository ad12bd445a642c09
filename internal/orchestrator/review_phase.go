package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/ShayCichocki/dungeonmaster/internal/agent"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/slot"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

type reviewUnit struct {
	id   string
	data agent.PromptData
}

// runSiegemaster verifies every observable. Observables that keep failing
// are skipped.
func (p *Pipeline) runSiegemaster(ctx context.Context) error {
	q, err := quest.Load(p.QuestFilePath)
	if err != nil {
		return err
	}
	units := make([]reviewUnit, 0, len(q.Observables))
	for _, o := range q.Observables {
		units = append(units, reviewUnit{id: o.ID, data: agent.PromptData{
			QuestID:      q.ID,
			QuestPath:    p.QuestFilePath,
			ObservableID: o.ID,
			Observable:   describeObservable(q, o),
		}})
	}
	return p.runReview(ctx, agent.RoleSiegemaster, units)
}

// runLawbringer reviews each implementation file of a completed step
// together with its test. Pairs that keep failing are skipped.
func (p *Pipeline) runLawbringer(ctx context.Context) error {
	q, err := quest.Load(p.QuestFilePath)
	if err != nil {
		return err
	}
	var units []reviewUnit
	for _, pair := range filePairs(q) {
		units = append(units, reviewUnit{id: pair[0], data: agent.PromptData{
			QuestID:   q.ID,
			QuestPath: p.QuestFilePath,
			Files:     pair,
		}})
	}
	return p.runReview(ctx, agent.RoleLawbringer, units)
}

// runReview runs units in parallel, retrying failed ones up to
// ReviewAttempts times in total.
func (p *Pipeline) runReview(ctx context.Context, role agent.Role, units []reviewUnit) error {
	attempts := p.ReviewAttempts
	if attempts <= 0 {
		attempts = DefaultReviewAttempts
	}

	pending := units
	for round := 1; round <= attempts && len(pending) > 0; round++ {
		work := make([]agent.WorkUnit, len(pending))
		for i, u := range pending {
			opts, err := agent.Options(role, p.WorkDir, u.data)
			if err != nil {
				return err
			}
			work[i] = p.slotted(agent.WorkUnit{ID: u.id, Options: opts})
		}

		results := agent.RunParallel(ctx, p.Spawner, work, p.Slots.Count(), p.AgentTimeout)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var failed []reviewUnit
		for i, res := range results {
			if !succeeded(res) {
				failed = append(failed, pending[i])
			}
		}
		debugLog("[%s] round %d: %d of %d failed", role, round, len(failed), len(pending))
		pending = failed
	}

	for _, u := range pending {
		debugLog("[%s] skipping %s after %d attempts", role, u.id, attempts)
	}
	return nil
}

// slotted makes a review unit occupy a slot and report its attempt like
// every other agent of the process.
func (p *Pipeline) slotted(unit agent.WorkUnit) agent.WorkUnit {
	role := unit.Options.Role
	a := Attempt{SlotIndex: -1, Role: role}

	unit.OnStart = func() error {
		acquired, ok := p.Slots.Acquire("")
		if !ok {
			return fmt.Errorf("no free slot for %s", role)
		}
		a.SlotIndex = acquired.Index
		if p.Hooks.OnAttemptStart != nil {
			p.Hooks.OnAttemptStart(a)
		}
		return nil
	}
	unit.OnSpawn = func(proc agent.Process) {
		p.Slots.Assign(a.SlotIndex, slot.Agent{Role: string(role), Process: proc})
	}
	unit.OnLine = func(line string) {
		if p.Hooks.OnAgentLine != nil {
			p.Hooks.OnAgentLine(a.SlotIndex, line)
		}
	}
	unit.OnDone = func(res agent.MonitorResult) {
		if a.SlotIndex < 0 {
			return
		}
		p.Slots.MarkDone(a.SlotIndex)
		if p.Hooks.OnAttemptEnd != nil {
			p.Hooks.OnAttemptEnd(a, res)
		}
		p.Slots.Release(a.SlotIndex)
	}
	return unit
}

func succeeded(res agent.MonitorResult) bool {
	return !res.Crashed && !res.TimedOut && res.ExitCode != nil && *res.ExitCode == 0
}

func describeObservable(q *models.Quest, o models.Observable) string {
	var b strings.Builder
	for _, c := range q.Contexts {
		if c.ID == o.ContextID {
			fmt.Fprintf(&b, "Context: %s", c.Name)
			if c.Description != "" {
				fmt.Fprintf(&b, " (%s)", c.Description)
			}
			b.WriteString("\n")
			break
		}
	}
	fmt.Fprintf(&b, "Trigger: %s", o.Trigger)
	if len(o.Outcomes) > 0 {
		if outcomes, err := json.MarshalIndent(o.Outcomes, "", "  "); err == nil {
			fmt.Fprintf(&b, "\nExpected outcomes:\n%s", outcomes)
		}
	}
	return b.String()
}

// isTestFile reports names like foo.test.ts or foo.spec.ts.
func isTestFile(file string) bool {
	base := path.Base(file)
	return strings.Contains(base, ".test.") || strings.Contains(base, ".spec.")
}

// testFileFor returns foo.test.ts for foo.ts.
func testFileFor(file string) string {
	ext := path.Ext(file)
	return strings.TrimSuffix(file, ext) + ".test" + ext
}

// filePairs lists [implementation, test] pairs, or single files without a
// test, for every completed step. Each file appears once.
func filePairs(q *models.Quest) [][]string {
	seen := make(map[string]bool)
	var pairs [][]string
	for i := range q.Steps {
		step := &q.Steps[i]
		if step.Status != models.StepStatusComplete {
			continue
		}
		files := step.Files()
		inStep := make(map[string]bool, len(files))
		for _, f := range files {
			inStep[f] = true
		}
		for _, f := range files {
			if isTestFile(f) || seen[f] {
				continue
			}
			seen[f] = true
			pair := []string{f}
			if test := testFileFor(f); inStep[test] {
				seen[test] = true
				pair = append(pair, test)
			}
			pairs = append(pairs, pair)
		}
	}
	return pairs
}
