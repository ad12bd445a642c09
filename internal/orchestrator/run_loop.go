package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/dungeonmaster/internal/agent"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/slot"
	"github.com/ShayCichocki/dungeonmaster/internal/stream"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// DefaultMaxRespawns caps how often one step is respawned after a crash,
// a timeout or a partial completion before it is marked failed.
const DefaultMaxRespawns = 5

// maxContinuationLen bounds the captured output replayed as continuation
// context.
const maxContinuationLen = 2000

// Attempt identifies one agent run inside the loop.
type Attempt struct {
	SlotIndex       int
	StepID          string
	Role            agent.Role
	ResumeSessionID string
}

// LoopHooks observe the loop. Every hook is optional. OnAgentLine is
// called from agent goroutines; the others run on the loop goroutine,
// except during review where the attempt hooks run per agent.
type LoopHooks struct {
	OnAttemptStart func(a Attempt)
	OnAttemptEnd   func(a Attempt, result agent.MonitorResult)
	OnStepUpdated  func(stepID string, status models.StepStatus)
	OnAgentLine    func(slotIndex int, line string)
	OnProgress     func(done, total int)
}

// LoopInput configures RunLoop.
type LoopInput struct {
	QuestFilePath string
	WorkDir       string
	// Role runs ready steps. Empty means codeweaver.
	Role    agent.Role
	Slots   *slot.Manager
	Spawner agent.Spawner
	// Timeout limits each agent attempt. Zero disables the limit.
	Timeout time.Duration
	// MaxFollowupDepth limits followup agents per step.
	MaxFollowupDepth int
	// MaxRespawns limits respawns per step. Zero means DefaultMaxRespawns.
	MaxRespawns int
	Hooks       LoopHooks
}

// LoopResult is how the loop ended.
type LoopResult struct {
	Completed       bool
	IncompleteSteps []models.DependencyStep
}

// IncompleteStepsError reports steps left unfinished by the loop.
type IncompleteStepsError struct {
	Steps []models.DependencyStep
}

func (e *IncompleteStepsError) Error() string {
	names := make([]string, len(e.Steps))
	for i, s := range e.Steps {
		names[i] = fmt.Sprintf("%s (%s)", s.Name, s.Status)
	}
	return fmt.Sprintf("%d steps not complete: %s", len(e.Steps), strings.Join(names, ", "))
}

type finished struct {
	attempt Attempt
	result  agent.MonitorResult
}

type loop struct {
	in       LoopInput
	results  chan finished
	active   int
	depth    map[string]int
	respawns map[string]int
}

// RunLoop assigns ready steps to free slots until every step is complete
// or nothing can make progress. It returns early with ctx's error after
// killing and draining running agents.
func RunLoop(ctx context.Context, in LoopInput) (LoopResult, error) {
	if in.Role == "" {
		in.Role = agent.RoleCodeweaver
	}
	if in.MaxRespawns <= 0 {
		in.MaxRespawns = DefaultMaxRespawns
	}
	l := &loop{
		in:       in,
		results:  make(chan finished, in.Slots.Count()),
		depth:    make(map[string]int),
		respawns: make(map[string]int),
	}
	defer l.drain()

	for {
		if err := ctx.Err(); err != nil {
			return LoopResult{}, err
		}
		q, err := quest.Load(in.QuestFilePath)
		if err != nil {
			return LoopResult{}, err
		}
		if in.Hooks.OnProgress != nil {
			in.Hooks.OnProgress(q.StepProgress())
		}

		if allComplete(q) && l.active == 0 {
			return LoopResult{Completed: true}, nil
		}

		ready := quest.ReadySteps(q)
		started := 0
		for _, step := range ready {
			acquired, ok := in.Slots.Acquire("")
			if !ok {
				break
			}
			index := acquired.Index
			now := time.Now().UTC()
			status := models.StepStatusInProgress
			if err := l.updateStep(step.ID, quest.StepUpdate{Status: &status, StartedAt: &now}); err != nil {
				in.Slots.Release(index)
				return LoopResult{}, err
			}
			a := Attempt{SlotIndex: index, StepID: step.ID, Role: in.Role}
			if err := l.start(ctx, q, step, a, ""); err != nil {
				return LoopResult{}, err
			}
			started++
		}
		debugLog("[loop] %d ready, %d started, %d active", len(ready), started, l.active)

		if l.active == 0 {
			return LoopResult{Completed: false, IncompleteSteps: quest.IncompleteSteps(q)}, nil
		}

		select {
		case <-ctx.Done():
			return LoopResult{}, ctx.Err()
		case f := <-l.results:
			l.active--
			if err := l.handle(ctx, f); err != nil {
				return LoopResult{}, err
			}
		}
	}
}

func allComplete(q *models.Quest) bool {
	for _, s := range q.Steps {
		if s.Status != models.StepStatusComplete {
			return false
		}
	}
	return true
}

// start spawns a for step in its already acquired slot.
func (l *loop) start(ctx context.Context, q *models.Quest, step models.DependencyStep, a Attempt, continuation string) error {
	opts, err := agent.Options(a.Role, l.in.WorkDir, promptData(q, l.in.QuestFilePath, step, continuation))
	if err != nil {
		l.in.Slots.Release(a.SlotIndex)
		return fmt.Errorf("build %s work unit for step %s: %w", a.Role, step.ID, err)
	}
	opts.ResumeSessionID = a.ResumeSessionID
	if a.ResumeSessionID != "" {
		l.in.Slots.SetSessionID(a.SlotIndex, a.ResumeSessionID)
	}

	l.active++
	if l.in.Hooks.OnAttemptStart != nil {
		l.in.Hooks.OnAttemptStart(a)
	}
	debugLog("[loop] slot %d: %s on step %s (resume %q)", a.SlotIndex, a.Role, a.StepID, a.ResumeSessionID)

	go func() {
		proc, err := l.in.Spawner.Spawn(ctx, opts)
		if err != nil {
			debugLog("[loop] slot %d: spawn %s failed: %v", a.SlotIndex, a.Role, err)
			l.results <- finished{attempt: a, result: agent.MonitorResult{Crashed: true, CapturedOutput: []string{}}}
			return
		}
		l.in.Slots.Assign(a.SlotIndex, slot.Agent{StepID: a.StepID, Role: string(a.Role), Process: proc})

		res := agent.Monitor(ctx, proc, l.in.Timeout, func(line string) {
			if sid, ok := stream.SessionID(line); ok {
				l.in.Slots.SetSessionID(a.SlotIndex, sid)
			}
			if l.in.Hooks.OnAgentLine != nil {
				l.in.Hooks.OnAgentLine(a.SlotIndex, line)
			}
		})
		l.results <- finished{attempt: a, result: res}
	}()
	return nil
}

// respawn runs role on stepID again in a freshly acquired slot. The step
// goes back to pending when no slot is free so the loop picks it up.
func (l *loop) respawn(ctx context.Context, stepID string, role agent.Role, resume, continuation string) error {
	q, err := quest.Load(l.in.QuestFilePath)
	if err != nil {
		return err
	}
	step := q.Step(stepID)
	if step == nil {
		return fmt.Errorf("respawn: %w", &quest.NotFoundError{What: "step", ID: stepID})
	}
	acquired, ok := l.in.Slots.Acquire(resume)
	if !ok {
		status := models.StepStatusPending
		return l.updateStep(stepID, quest.StepUpdate{Status: &status})
	}
	return l.start(ctx, q, *step, Attempt{SlotIndex: acquired.Index, StepID: stepID, Role: role, ResumeSessionID: resume}, continuation)
}

func (l *loop) handle(ctx context.Context, f finished) error {
	a, res := f.attempt, f.result
	l.in.Slots.MarkDone(a.SlotIndex)
	l.in.Slots.Release(a.SlotIndex)
	if l.in.Hooks.OnAttemptEnd != nil {
		l.in.Hooks.OnAttemptEnd(a, res)
	}

	if res.Crashed || res.TimedOut {
		if ctx.Err() != nil {
			return nil
		}
		debugLog("[loop] step %s: %s crashed=%v timedOut=%v", a.StepID, a.Role, res.Crashed, res.TimedOut)
		if l.exhausted(a.StepID) {
			return l.fail(a.StepID, fmt.Sprintf("%s did not finish after %d respawns", a.Role, l.in.MaxRespawns))
		}
		return l.respawn(ctx, a.StepID, a.Role, res.SessionID, "")
	}

	if a.Role != l.in.Role {
		return l.handleFollowup(ctx, a, res)
	}

	if res.Signal == nil {
		status := models.StepStatusPartiallyComplete
		return l.updateStep(a.StepID, quest.StepUpdate{Status: &status})
	}

	sig := res.Signal
	switch sig.Signal {
	case stream.SignalComplete:
		now := time.Now().UTC()
		status := models.StepStatusComplete
		if err := l.updateStep(a.StepID, quest.StepUpdate{Status: &status, CompletedAt: &now}); err != nil {
			return err
		}
		if sig.Summary != "" {
			return quest.AppendLog(l.in.QuestFilePath, models.ExecutionLogEntry{
				Report: sig.Summary, StepID: a.StepID, AgentType: string(a.Role),
			})
		}
		return nil

	case stream.SignalPartiallyComplete:
		if l.exhausted(a.StepID) {
			return l.fail(a.StepID, fmt.Sprintf("step still partially complete after %d respawns", l.in.MaxRespawns))
		}
		return l.respawn(ctx, a.StepID, a.Role, res.SessionID, continuationContext(sig.ContinuationPoint, res.CapturedOutput))

	case stream.SignalNeedsRoleFollowup:
		return l.followup(ctx, a.StepID, sig)
	}
	return fmt.Errorf("unhandled signal %q", sig.Signal)
}

// followup blocks the step and hands it to the requested role.
func (l *loop) followup(ctx context.Context, stepID string, sig *stream.Signal) error {
	status := models.StepStatusBlocked
	reason := sig.Reason
	blockingType := models.BlockingTypeNeedsRoleFollowup
	if err := l.updateStep(stepID, quest.StepUpdate{Status: &status, BlockingReason: &reason, BlockingType: &blockingType}); err != nil {
		return err
	}

	target := agent.Role(sig.TargetRole)
	if !target.Valid() {
		debugLog("[loop] step %s: unknown followup role %q, leaving blocked", stepID, sig.TargetRole)
		return nil
	}
	if l.depth[stepID] >= l.in.MaxFollowupDepth {
		debugLog("[loop] step %s: followup depth %d reached, leaving blocked", stepID, l.depth[stepID])
		return nil
	}
	l.depth[stepID]++
	return l.respawn(ctx, stepID, target, "", sig.Context)
}

// handleFollowup settles a finished followup agent. Unless it asks for yet
// another role, the step goes back to pending for the loop role.
func (l *loop) handleFollowup(ctx context.Context, a Attempt, res agent.MonitorResult) error {
	if res.Signal != nil && res.Signal.Signal == stream.SignalNeedsRoleFollowup {
		return l.followup(ctx, a.StepID, res.Signal)
	}
	if res.Signal != nil && res.Signal.Summary != "" {
		if err := quest.AppendLog(l.in.QuestFilePath, models.ExecutionLogEntry{
			Report: res.Signal.Summary, StepID: a.StepID, AgentType: string(a.Role),
		}); err != nil {
			return err
		}
	}
	status := models.StepStatusPending
	empty := ""
	return l.updateStep(a.StepID, quest.StepUpdate{Status: &status, BlockingReason: &empty, BlockingType: &empty})
}

func (l *loop) exhausted(stepID string) bool {
	l.respawns[stepID]++
	return l.respawns[stepID] > l.in.MaxRespawns
}

func (l *loop) fail(stepID, msg string) error {
	status := models.StepStatusFailed
	return l.updateStep(stepID, quest.StepUpdate{Status: &status, ErrorMessage: &msg})
}

func (l *loop) updateStep(stepID string, u quest.StepUpdate) error {
	if err := quest.UpdateStep(l.in.QuestFilePath, stepID, u); err != nil {
		return err
	}
	if u.Status != nil && l.in.Hooks.OnStepUpdated != nil {
		l.in.Hooks.OnStepUpdated(stepID, *u.Status)
	}
	return nil
}

// drain kills what is still running and waits for the agent goroutines.
func (l *loop) drain() {
	if l.active == 0 {
		return
	}
	if err := l.in.Slots.KillAll(); err != nil {
		debugLog("[loop] kill agents: %v", err)
	}
	for ; l.active > 0; l.active-- {
		f := <-l.results
		l.in.Slots.Release(f.attempt.SlotIndex)
		if l.in.Hooks.OnAttemptEnd != nil {
			l.in.Hooks.OnAttemptEnd(f.attempt, f.result)
		}
	}
}

// continuationContext prefers the agent's own continuation point and falls
// back to the tail of what it said.
func continuationContext(point string, captured []string) string {
	if point = strings.TrimSpace(point); point != "" {
		return point
	}
	text := strings.TrimSpace(strings.Join(captured, "\n"))
	if len(text) > maxContinuationLen {
		text = text[len(text)-maxContinuationLen:]
	}
	return text
}

func promptData(q *models.Quest, questPath string, step models.DependencyStep, continuation string) agent.PromptData {
	return agent.PromptData{
		QuestID:           q.ID,
		QuestPath:         questPath,
		UserRequest:       q.UserRequest,
		StepID:            step.ID,
		StepName:          step.Name,
		StepDescription:   step.Description,
		Files:             step.Files(),
		ContinuationPoint: continuation,
	}
}
