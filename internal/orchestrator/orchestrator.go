package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ShayCichocki/dungeonmaster/internal/agent"
	"github.com/ShayCichocki/dungeonmaster/internal/config"
	"github.com/ShayCichocki/dungeonmaster/internal/exec"
	"github.com/ShayCichocki/dungeonmaster/internal/project"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/slot"
	"github.com/ShayCichocki/dungeonmaster/internal/state"
	"github.com/ShayCichocki/dungeonmaster/internal/ward"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

var (
	// ErrQuestNotStartable is returned by StartQuest for a quest that is
	// neither approved nor already in progress.
	ErrQuestNotStartable = errors.New("quest cannot be started")
	// ErrQuestRunning is returned by StartQuest while the same quest is
	// still being orchestrated.
	ErrQuestRunning = errors.New("quest is already running")
)

// Orchestrator is the single entry point the CLI, the MCP server and the
// TUI use for quests, projects, guilds and running processes.
type Orchestrator struct {
	cfg      *config.Config
	workDir  string
	store    *project.Store
	spawner  agent.Spawner
	ward     WardRunner
	history  state.History
	logger   *DebugLogger
	registry *ProcessRegistry
	emitter  *EventEmitter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Orchestrator. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &orchestratorOptions{eventBuffer: DefaultEventBuffer}
	for _, opt := range opts {
		opt(o)
	}

	if o.workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			o.workDir = wd
		}
	}
	if o.home == "" {
		o.home = cfg.Paths.Home
	}
	if o.spawner == nil {
		o.spawner = &agent.ClaudeSpawner{Binary: cfg.Claude.Binary, Model: cfg.Claude.Model}
	}
	if o.ward == nil {
		o.ward = ward.NewRunner(exec.NewRunner(), cfg.Ward.Command)
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}
	setPackageLogger(o.logger)

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		workDir:  o.workDir,
		store:    project.NewStore(o.home),
		spawner:  o.spawner,
		ward:     o.ward,
		history:  o.history,
		logger:   o.logger,
		registry: NewProcessRegistry(),
		emitter:  NewEventEmitter(o.eventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events returns the channel every orchestrator event is sent on.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// resolveQuest finds questID in the project containing the work dir, then
// in the guilds and finally in the registered projects. It returns the
// quest file path and the directory agents work in.
func (o *Orchestrator) resolveQuest(questID string) (path, workDir string, err error) {
	if root, err := quest.FindProjectRoot(o.workDir); err == nil {
		if p, err := quest.FindInFolder(filepath.Join(root, quest.FolderName), questID); err == nil {
			return p, root, nil
		}
	}

	if p, guildID, err := quest.FindPath(o.store.Home(), questID); err == nil {
		g, err := o.store.Guilds().Get(guildID)
		if err != nil {
			return "", "", fmt.Errorf("quest %s belongs to %w", questID, err)
		}
		return p, g.Path, nil
	}

	projects, err := o.store.Projects().List()
	if err != nil {
		return "", "", err
	}
	for _, item := range projects {
		if p, err := quest.FindInFolder(o.store.Projects().QuestsDir(item.ID), questID); err == nil {
			return p, item.Path, nil
		}
	}
	return "", "", &quest.NotFoundError{What: "quest", ID: questID}
}

// StartQuest starts orchestrating an approved or in-progress quest in the
// background and returns the new process id.
func (o *Orchestrator) StartQuest(questID string) (string, error) {
	path, workDir, err := o.resolveQuest(questID)
	if err != nil {
		return "", err
	}
	q, err := quest.Load(path)
	if err != nil {
		return "", err
	}
	if q.Status != models.QuestStatusApproved && q.Status != models.QuestStatusInProgress {
		return "", fmt.Errorf("%w: quest %s is %s", ErrQuestNotStartable, questID, q.Status)
	}

	ctx, cancel := context.WithCancel(o.ctx)
	proc := newProcess(q.ID, path, slot.NewManager(o.cfg.Orchestration.SlotCount), cancel)
	proc.setProgress(q.StepProgress())
	if running, ok := o.registry.RegisterIfIdle(proc); !ok {
		cancel()
		return "", fmt.Errorf("%w: %s (process %s)", ErrQuestRunning, questID, running.ID)
	}
	if err := quest.SetStatus(path, models.QuestStatusInProgress); err != nil {
		o.registry.Remove(proc.ID)
		cancel()
		return "", err
	}
	o.recordProcessStart(proc)
	o.logger.Log("[orchestrator] %s started quest %s at %s", proc.ID, q.ID, path)

	pipeline := o.newPipeline(proc, workDir)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.finish(proc, pipeline.Run(ctx))
	}()
	return proc.ID, nil
}

func (o *Orchestrator) newPipeline(proc *Process, workDir string) *Pipeline {
	attempts := newAttemptLog()
	emit := func(e Event) {
		e.ProcessID = proc.ID
		e.QuestID = proc.QuestID
		o.emitter.Emit(e)
	}

	return &Pipeline{
		QuestFilePath:    proc.QuestFilePath,
		WorkDir:          workDir,
		Slots:            proc.Slots,
		Spawner:          o.spawner,
		Ward:             o.ward,
		AgentTimeout:     o.cfg.Timeouts.Agent,
		WardTimeout:      o.cfg.Timeouts.Ward,
		WardMaxRetries:   o.cfg.Ward.MaxRetries,
		MaxFollowupDepth: o.cfg.Orchestration.MaxFollowupDepth,
		Hooks: LoopHooks{
			OnAttemptStart: func(a Attempt) {
				emit(Event{Type: EventSlotAcquired, SlotIndex: a.SlotIndex, StepID: a.StepID, Role: a.Role})
				o.recordAttemptStart(proc, attempts, a)
			},
			OnAttemptEnd: func(a Attempt, res agent.MonitorResult) {
				emit(Event{Type: EventSlotReleased, SlotIndex: a.SlotIndex, StepID: a.StepID, Role: a.Role})
				o.recordAttemptEnd(attempts, a, res)
			},
			OnStepUpdated: func(stepID string, status models.StepStatus) {
				emit(Event{Type: EventStepUpdated, SlotIndex: -1, StepID: stepID, StepStatus: status})
			},
			OnAgentLine: func(slotIndex int, line string) {
				emit(Event{Type: EventAgentLine, SlotIndex: slotIndex, Line: line})
			},
			OnProgress: proc.setProgress,
		},
		OnPhaseChange: func(phase Phase) {
			proc.setPhase(phase)
			o.logger.Log("[orchestrator] %s phase %s", proc.ID, phase)
			emit(Event{Type: EventPhaseChanged, SlotIndex: -1, Phase: phase})
			o.recordPhase(proc, phase)
		},
	}
}

func (o *Orchestrator) finish(proc *Process, err error) {
	if err == nil {
		if serr := quest.SetStatus(proc.QuestFilePath, models.QuestStatusComplete); serr != nil {
			err = serr
		}
	}
	proc.finish(err)
	o.recordProcessEnd(proc, err)

	event := Event{Type: EventProcessCompleted, ProcessID: proc.ID, QuestID: proc.QuestID, SlotIndex: -1}
	if err != nil {
		event.Type = EventProcessFailed
		event.Error = err
		o.logger.Log("[orchestrator] %s failed: %v", proc.ID, err)
	} else {
		o.logger.Log("[orchestrator] %s completed", proc.ID)
	}
	o.emitter.Emit(event)
}

// GetQuestStatus returns a snapshot of a process.
func (o *Orchestrator) GetQuestStatus(processID string) (ProcessStatus, error) {
	p, err := o.registry.Get(processID)
	if err != nil {
		return ProcessStatus{}, err
	}
	return p.Status(), nil
}

// Processes returns a snapshot of every process, oldest first.
func (o *Orchestrator) Processes() []ProcessStatus {
	procs := o.registry.List()
	out := make([]ProcessStatus, len(procs))
	for i, p := range procs {
		out[i] = p.Status()
	}
	return out
}

// Wait blocks until the process has finished or ctx is done and returns
// the process error.
func (o *Orchestrator) Wait(ctx context.Context, processID string) error {
	p, err := o.registry.Get(processID)
	if err != nil {
		return err
	}
	select {
	case <-p.Done():
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll cancels every process, kills their agents and waits for the
// pipelines to return.
func (o *Orchestrator) StopAll() {
	for _, p := range o.registry.List() {
		p.Stop()
	}
	o.wg.Wait()
}

// Close stops everything and releases the event channel and the logger.
func (o *Orchestrator) Close() error {
	o.cancel()
	o.StopAll()
	o.emitter.Close()
	return o.logger.Close()
}

// ListQuests lists the quests of the project containing startPath.
func (o *Orchestrator) ListQuests(startPath string) ([]models.QuestListItem, error) {
	return quest.List(startPath)
}

// LoadQuest reads a quest file.
func (o *Orchestrator) LoadQuest(path string) (*models.Quest, error) {
	return quest.Load(path)
}

// AddQuest creates a pending quest in the project containing startPath.
func (o *Orchestrator) AddQuest(startPath, title, userRequest string) (*models.Quest, error) {
	dir, err := quest.QuestsFolder(startPath)
	if err != nil {
		return nil, err
	}
	return quest.Add(dir, title, userRequest)
}

// GetQuest loads a quest by id.
func (o *Orchestrator) GetQuest(questID string) (*models.Quest, error) {
	path, _, err := o.resolveQuest(questID)
	if err != nil {
		return nil, err
	}
	return quest.Load(path)
}

// QuestPath returns the file a quest is stored in.
func (o *Orchestrator) QuestPath(questID string) (string, error) {
	path, _, err := o.resolveQuest(questID)
	return path, err
}

// ModifyQuest upserts the collections in input into the quest.
func (o *Orchestrator) ModifyQuest(input quest.ModifyInput) error {
	path, _, err := o.resolveQuest(input.QuestID)
	if err != nil {
		return err
	}
	return quest.ModifyFile(path, input)
}

// VerifyQuest returns the structural problems of a quest; none means the
// plan can run.
func (o *Orchestrator) VerifyQuest(questID string) ([]string, error) {
	q, err := o.GetQuest(questID)
	if err != nil {
		return nil, err
	}
	return quest.Verify(q), nil
}

// UpdateStep changes fields of one step.
func (o *Orchestrator) UpdateStep(questID, stepID string, update quest.StepUpdate) error {
	path, _, err := o.resolveQuest(questID)
	if err != nil {
		return err
	}
	return quest.UpdateStep(path, stepID, update)
}

// WardRaw runs the ward command with arbitrary arguments in dir.
func (o *Orchestrator) WardRaw(ctx context.Context, dir string, args ...string) (exec.Result, error) {
	if dir == "" {
		dir = o.workDir
	}
	return o.ward.Raw(ctx, dir, args...)
}

// ListProjects lists registered projects.
func (o *Orchestrator) ListProjects() ([]models.ProjectListItem, error) {
	return o.store.Projects().List()
}

// AddProject registers a project directory.
func (o *Orchestrator) AddProject(name, path string) (models.Project, error) {
	return o.store.Projects().Add(name, path)
}

// GetProject returns a registered project.
func (o *Orchestrator) GetProject(id string) (models.Project, error) {
	return o.store.Projects().Get(id)
}

// UpdateProject renames or moves a project. Nil fields are unchanged.
func (o *Orchestrator) UpdateProject(id string, name, path *string) (models.Project, error) {
	return o.store.Projects().Update(id, name, path)
}

// RemoveProject unregisters a project.
func (o *Orchestrator) RemoveProject(id string) error {
	return o.store.Projects().Remove(id)
}

// ListGuilds lists registered guilds.
func (o *Orchestrator) ListGuilds() ([]models.GuildListItem, error) {
	return o.store.Guilds().List()
}

// AddGuild registers a guild directory.
func (o *Orchestrator) AddGuild(name, path string) (models.Guild, error) {
	return o.store.Guilds().Add(name, path)
}

// GetGuild returns a registered guild.
func (o *Orchestrator) GetGuild(id string) (models.Guild, error) {
	return o.store.Guilds().Get(id)
}

// UpdateGuild renames or moves a guild. Nil fields are unchanged.
func (o *Orchestrator) UpdateGuild(id string, name, path *string) (models.Guild, error) {
	return o.store.Guilds().Update(id, name, path)
}

// RemoveGuild unregisters a guild.
func (o *Orchestrator) RemoveGuild(id string) error {
	return o.store.Guilds().Remove(id)
}

// attemptLog maps slots to their open history rows.
type attemptLog struct {
	mu  sync.Mutex
	ids map[int]int64
}

func newAttemptLog() *attemptLog {
	return &attemptLog{ids: make(map[int]int64)}
}

func (o *Orchestrator) recordProcessStart(proc *Process) {
	if o.history == nil {
		return
	}
	err := o.history.CreateProcess(&state.Process{
		ID:        proc.ID,
		QuestID:   proc.QuestID,
		QuestPath: proc.QuestFilePath,
		Phase:     string(PhaseIdle),
		Status:    state.ProcessRunning,
		OwnerPID:  os.Getpid(),
		StartedAt: proc.StartedAt,
	})
	if err != nil {
		log.Printf("[orchestrator] record process %s: %v", proc.ID, err)
	}
}

func (o *Orchestrator) recordPhase(proc *Process, phase Phase) {
	if o.history == nil || phase == PhaseComplete || phase == PhaseFailed {
		return
	}
	p, err := o.history.GetProcess(proc.ID)
	if err != nil || p == nil {
		return
	}
	p.Phase = string(phase)
	if err := o.history.UpdateProcess(p); err != nil {
		log.Printf("[orchestrator] record phase of %s: %v", proc.ID, err)
	}
}

func (o *Orchestrator) recordProcessEnd(proc *Process, runErr error) {
	if o.history == nil {
		return
	}
	p, err := o.history.GetProcess(proc.ID)
	if err != nil || p == nil {
		return
	}
	now := time.Now()
	p.EndedAt = &now
	p.Status = state.ProcessComplete
	if runErr != nil {
		p.Status = state.ProcessFailed
		p.Error = runErr.Error()
		if errors.Is(runErr, context.Canceled) {
			p.Status = state.ProcessInterrupted
		}
	}
	if err := o.history.UpdateProcess(p); err != nil {
		log.Printf("[orchestrator] record end of %s: %v", proc.ID, err)
	}
}

func (o *Orchestrator) recordAttemptStart(proc *Process, open *attemptLog, a Attempt) {
	if o.history == nil {
		return
	}
	row := &state.Attempt{
		ProcessID: proc.ID,
		StepID:    a.StepID,
		Role:      string(a.Role),
		SlotIndex: a.SlotIndex,
		SessionID: a.ResumeSessionID,
		StartedAt: time.Now(),
	}
	if err := o.history.RecordAttemptStart(row); err != nil {
		log.Printf("[orchestrator] record attempt: %v", err)
		return
	}
	open.mu.Lock()
	open.ids[a.SlotIndex] = row.ID
	open.mu.Unlock()
}

func (o *Orchestrator) recordAttemptEnd(open *attemptLog, a Attempt, res agent.MonitorResult) {
	if o.history == nil {
		return
	}
	open.mu.Lock()
	id, ok := open.ids[a.SlotIndex]
	delete(open.ids, a.SlotIndex)
	open.mu.Unlock()
	if !ok {
		return
	}
	if err := o.history.RecordAttemptEnd(id, res.SessionID, Outcome(res), res.ExitCode, time.Now()); err != nil {
		log.Printf("[orchestrator] record attempt end: %v", err)
	}
}

// Outcome names how an agent run ended for status reports.
func Outcome(res agent.MonitorResult) string {
	switch {
	case res.TimedOut:
		return "timed-out"
	case res.Crashed:
		return "crashed"
	case res.Signal != nil:
		return string(res.Signal.Signal)
	default:
		return "no-signal"
	}
}
