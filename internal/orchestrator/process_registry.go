package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/dungeonmaster/internal/slot"
)

// ErrProcessNotFound is returned for an unknown process id.
var ErrProcessNotFound = errors.New("process not found")

// NewProcessID returns a fresh "proc-<uuid>" id.
func NewProcessID() string {
	return "proc-" + uuid.NewString()
}

// SlotStatus is the public view of one slot of a process.
type SlotStatus struct {
	Index     int         `json:"index"`
	Status    slot.Status `json:"status"`
	StepID    string      `json:"stepId,omitempty"`
	Role      string      `json:"role,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	StartedAt *time.Time  `json:"startedAt,omitempty"`
}

// ProcessStatus is a snapshot of one orchestration process.
type ProcessStatus struct {
	ProcessID      string       `json:"processId"`
	QuestID        string       `json:"questId"`
	QuestFilePath  string       `json:"questFilePath"`
	Phase          Phase        `json:"phase"`
	CompletedSteps int          `json:"completedSteps"`
	TotalSteps     int          `json:"totalSteps"`
	StartedAt      time.Time    `json:"startedAt"`
	Slots          []SlotStatus `json:"slots"`
	Error          string       `json:"error,omitempty"`
}

// Process is one running or finished orchestration of a quest.
type Process struct {
	ID            string
	QuestID       string
	QuestFilePath string
	StartedAt     time.Time
	Slots         *slot.Manager

	cancel context.CancelFunc
	done   chan struct{}

	mu             sync.Mutex
	phase          Phase
	completedSteps int
	totalSteps     int
	err            error
}

func newProcess(questID, questFilePath string, slots *slot.Manager, cancel context.CancelFunc) *Process {
	return &Process{
		ID:            NewProcessID(),
		QuestID:       questID,
		QuestFilePath: questFilePath,
		StartedAt:     time.Now(),
		Slots:         slots,
		cancel:        cancel,
		done:          make(chan struct{}),
		phase:         PhaseIdle,
	}
}

func (p *Process) setPhase(phase Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = phase
}

func (p *Process) setProgress(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completedSteps, p.totalSteps = done, total
}

func (p *Process) finish(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

// Done is closed when the process has finished.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the error the process failed with, if any.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop cancels the process and kills its agents.
func (p *Process) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if err := p.Slots.KillAll(); err != nil {
		debugLog("[process %s] kill agents: %v", p.ID, err)
	}
}

// Status returns a snapshot of the process.
func (p *Process) Status() ProcessStatus {
	p.mu.Lock()
	st := ProcessStatus{
		ProcessID:      p.ID,
		QuestID:        p.QuestID,
		QuestFilePath:  p.QuestFilePath,
		Phase:          p.phase,
		CompletedSteps: p.completedSteps,
		TotalSteps:     p.totalSteps,
		StartedAt:      p.StartedAt,
	}
	if p.err != nil {
		st.Error = p.err.Error()
	}
	p.mu.Unlock()

	for _, s := range p.Slots.Snapshot() {
		ss := SlotStatus{Index: s.Index, Status: s.Status, SessionID: s.SessionID}
		if !s.StartedAt.IsZero() {
			t := s.StartedAt
			ss.StartedAt = &t
		}
		if s.Agent != nil {
			ss.StepID = s.Agent.StepID
			ss.Role = s.Agent.Role
		}
		st.Slots = append(st.Slots, ss)
	}
	return st
}

// ProcessRegistry tracks orchestration processes by id.
type ProcessRegistry struct {
	mu        sync.RWMutex
	processes map[string]*Process
}

// NewProcessRegistry creates an empty registry.
func NewProcessRegistry() *ProcessRegistry {
	return &ProcessRegistry{processes: make(map[string]*Process)}
}

// Register adds a process.
func (r *ProcessRegistry) Register(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processes[p.ID] = p
}

// RegisterIfIdle adds p unless an unfinished process already drives the
// same quest file. It returns that process and false in that case.
func (r *ProcessRegistry) RegisterIfIdle(p *Process) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.processes {
		if other.QuestFilePath != p.QuestFilePath {
			continue
		}
		select {
		case <-other.Done():
		default:
			return other, false
		}
	}
	r.processes[p.ID] = p
	return p, true
}

// Get returns the process with id.
func (r *ProcessRegistry) Get(id string) (*Process, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, id)
	}
	return p, nil
}

// Remove forgets a process. Removing an unknown id is a no-op.
func (r *ProcessRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processes, id)
}

// List returns every process, oldest first.
func (r *ProcessRegistry) List() []*Process {
	r.mu.RLock()
	out := make([]*Process, 0, len(r.processes))
	for _, p := range r.processes {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
