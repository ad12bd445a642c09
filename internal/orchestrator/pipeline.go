package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/dungeonmaster/internal/agent"
	"github.com/ShayCichocki/dungeonmaster/internal/exec"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/slot"
	"github.com/ShayCichocki/dungeonmaster/internal/ward"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// Phase is the pipeline stage a process is in.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePathseeker  Phase = "pathseeker"
	PhaseCodeweaver  Phase = "codeweaver"
	PhaseWard        Phase = "ward"
	PhaseSiegemaster Phase = "siegemaster"
	PhaseLawbringer  Phase = "lawbringer"
	PhaseComplete    Phase = "complete"
	PhaseFailed      Phase = "failed"
)

// questPhase maps pipeline phases onto the phases stored in the quest.
var questPhase = map[Phase]quest.PhaseName{
	PhasePathseeker:  quest.PhaseDiscovery,
	PhaseCodeweaver:  quest.PhaseImplementation,
	PhaseWard:        quest.PhaseTesting,
	PhaseSiegemaster: quest.PhaseTesting,
	PhaseLawbringer:  quest.PhaseReview,
}

// DefaultReviewAttempts is how often siegemaster and lawbringer retry one
// unit of work before skipping it.
const DefaultReviewAttempts = 3

// WardRunner runs the verification command. *ward.Runner implements it.
type WardRunner interface {
	Run(ctx context.Context, workDir string, files ...string) (ward.Outcome, error)
	Detail(ctx context.Context, workDir, runID string) (*ward.Result, error)
	Raw(ctx context.Context, workDir string, args ...string) (exec.Result, error)
}

var _ WardRunner = (*ward.Runner)(nil)

// Pipeline drives one quest through every phase.
type Pipeline struct {
	QuestFilePath string
	WorkDir       string
	Slots         *slot.Manager
	Spawner       agent.Spawner
	Ward          WardRunner

	AgentTimeout     time.Duration
	WardTimeout      time.Duration
	WardMaxRetries   int
	MaxFollowupDepth int
	ReviewAttempts   int

	Hooks LoopHooks
	// OnPhaseChange is called when a phase starts and with complete or
	// failed at the end.
	OnPhaseChange func(phase Phase)
}

type layer struct {
	phase Phase
	run   func(ctx context.Context) error
}

// Run executes pathseeker (only for a quest without steps), codeweaver,
// ward, siegemaster and lawbringer in order. The first failing layer ends
// the run with PhaseFailed.
func (p *Pipeline) Run(ctx context.Context) error {
	q, err := quest.Load(p.QuestFilePath)
	if err != nil {
		p.phaseChanged(PhaseFailed)
		return err
	}

	var layers []layer
	if len(q.Steps) == 0 {
		layers = append(layers, layer{PhasePathseeker, p.runPathseeker})
	}
	layers = append(layers,
		layer{PhaseCodeweaver, p.runCodeweaver},
		layer{PhaseWard, p.runWard},
		layer{PhaseSiegemaster, p.runSiegemaster},
		layer{PhaseLawbringer, p.runLawbringer},
	)

	for _, l := range layers {
		p.phaseChanged(l.phase)
		p.markQuestPhase(l.phase, models.PhaseStatusInProgress)
		if err := l.run(ctx); err != nil {
			debugLog("[pipeline] %s failed: %v", l.phase, err)
			p.markQuestPhase(l.phase, models.PhaseStatusBlocked)
			p.phaseChanged(PhaseFailed)
			return err
		}
		p.markQuestPhase(l.phase, models.PhaseStatusComplete)
	}
	p.phaseChanged(PhaseComplete)
	return nil
}

func (p *Pipeline) phaseChanged(phase Phase) {
	if p.OnPhaseChange != nil {
		p.OnPhaseChange(phase)
	}
}

func (p *Pipeline) markQuestPhase(phase Phase, status models.PhaseStatus) {
	name, ok := questPhase[phase]
	if !ok {
		return
	}
	if err := quest.SetPhase(p.QuestFilePath, name, status); err != nil {
		debugLog("[pipeline] record %s phase %s: %v", name, status, err)
	}
}

// runOne runs a single agent outside the step loop, still occupying a
// slot so it shows up in status reports.
func (p *Pipeline) runOne(ctx context.Context, role agent.Role, data agent.PromptData) (agent.MonitorResult, error) {
	opts, err := agent.Options(role, p.WorkDir, data)
	if err != nil {
		return agent.MonitorResult{}, err
	}

	acquired, ok := p.Slots.Acquire("")
	if !ok {
		return agent.MonitorResult{}, fmt.Errorf("no free slot for %s", role)
	}
	index := acquired.Index
	defer p.Slots.Release(index)
	a := Attempt{SlotIndex: index, Role: role, StepID: data.StepID}
	if p.Hooks.OnAttemptStart != nil {
		p.Hooks.OnAttemptStart(a)
	}

	proc, err := p.Spawner.Spawn(ctx, opts)
	if err != nil {
		res := agent.MonitorResult{Crashed: true, CapturedOutput: []string{}}
		if p.Hooks.OnAttemptEnd != nil {
			p.Hooks.OnAttemptEnd(a, res)
		}
		return res, fmt.Errorf("spawn %s: %w", role, err)
	}
	p.Slots.Assign(index, slot.Agent{StepID: data.StepID, Role: string(role), Process: proc})

	res := agent.Monitor(ctx, proc, p.AgentTimeout, func(line string) {
		if p.Hooks.OnAgentLine != nil {
			p.Hooks.OnAgentLine(index, line)
		}
	})
	p.Slots.MarkDone(index)
	if p.Hooks.OnAttemptEnd != nil {
		p.Hooks.OnAttemptEnd(a, res)
	}
	return res, nil
}

func (p *Pipeline) runPathseeker(ctx context.Context) error {
	q, err := quest.Load(p.QuestFilePath)
	if err != nil {
		return err
	}
	res, err := p.runOne(ctx, agent.RolePathseeker, agent.PromptData{
		QuestID:     q.ID,
		QuestPath:   p.QuestFilePath,
		UserRequest: q.UserRequest,
	})
	if err != nil {
		return err
	}
	if res.Crashed || res.TimedOut {
		return fmt.Errorf("pathseeker did not finish (crashed=%v, timedOut=%v)", res.Crashed, res.TimedOut)
	}

	q, err = quest.Load(p.QuestFilePath)
	if err != nil {
		return err
	}
	if len(q.Steps) == 0 {
		return errors.New("pathseeker produced no steps")
	}
	if problems := quest.Verify(q); len(problems) > 0 {
		return fmt.Errorf("pathseeker plan is invalid: %v", problems)
	}
	return nil
}

func (p *Pipeline) runCodeweaver(ctx context.Context) error {
	res, err := RunLoop(ctx, LoopInput{
		QuestFilePath:    p.QuestFilePath,
		WorkDir:          p.WorkDir,
		Role:             agent.RoleCodeweaver,
		Slots:            p.Slots,
		Spawner:          p.Spawner,
		Timeout:          p.AgentTimeout,
		MaxFollowupDepth: p.MaxFollowupDepth,
		Hooks:            p.Hooks,
	})
	if err != nil {
		return err
	}
	if !res.Completed {
		return &IncompleteStepsError{Steps: res.IncompleteSteps}
	}
	return nil
}
