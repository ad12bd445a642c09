// Package slot tracks a fixed number of concurrent agent attempts.
package slot

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrIndexOutOfRange is returned for slot indexes outside 0..Count()-1.
var ErrIndexOutOfRange = errors.New("slot index out of range")

// Status is the lifecycle state of a slot.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// Killer stops the process occupying a slot.
type Killer interface {
	Kill() error
}

// Agent describes the work occupying a slot.
type Agent struct {
	StepID  string
	Role    string
	Process Killer
}

// Slot is a snapshot of one slot.
type Slot struct {
	Index     int
	Status    Status
	SessionID string
	StartedAt time.Time
	Agent     *Agent
}

// Manager owns a fixed-size arena of slots. A slot index is held by at most
// one running attempt at a time.
type Manager struct {
	mu    sync.Mutex
	slots []Slot
	now   func() time.Time
}

// NewManager creates a manager with count idle slots.
func NewManager(count int) *Manager {
	if count < 0 {
		count = 0
	}
	slots := make([]Slot, count)
	for i := range slots {
		slots[i] = Slot{Index: i, Status: StatusIdle}
	}
	return &Manager{slots: slots, now: time.Now}
}

// Count returns the number of slots.
func (m *Manager) Count() int {
	return len(m.slots)
}

// Available returns the lowest idle index.
func (m *Manager) Available() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked()
}

func (m *Manager) availableLocked() (int, bool) {
	for i := range m.slots {
		if m.slots[i].Status == StatusIdle {
			return i, true
		}
	}
	return 0, false
}

// Acquire claims the lowest idle slot and marks it running.
// It returns false without changing anything when no slot is idle.
func (m *Manager) Acquire(sessionID string) (Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.availableLocked()
	if !ok {
		return Slot{}, false
	}
	m.slots[i] = Slot{
		Index:     i,
		Status:    StatusRunning,
		SessionID: sessionID,
		StartedAt: m.now(),
	}
	return m.copyLocked(i), true
}

// Assign attaches agent details to an acquired slot.
func (m *Manager) Assign(index int, agent Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(index); err != nil {
		return err
	}
	if m.slots[index].Status == StatusIdle {
		return fmt.Errorf("slot %d is idle", index)
	}
	a := agent
	m.slots[index].Agent = &a
	return nil
}

// SetSessionID records the session id once the agent reports it.
func (m *Manager) SetSessionID(index int, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(index); err != nil {
		return err
	}
	if m.slots[index].Status != StatusIdle {
		m.slots[index].SessionID = sessionID
	}
	return nil
}

// MarkDone records that the attempt in a slot has finished but has not yet
// been released.
func (m *Manager) MarkDone(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(index); err != nil {
		return err
	}
	if m.slots[index].Status == StatusRunning {
		m.slots[index].Status = StatusDone
	}
	return nil
}

// Release returns a slot to idle. Releasing an idle slot is a no-op.
func (m *Manager) Release(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(index); err != nil {
		return err
	}
	m.slots[index] = Slot{Index: index, Status: StatusIdle}
	return nil
}

// Query returns a snapshot of a slot.
func (m *Manager) Query(index int) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(index); err != nil {
		return Slot{}, err
	}
	return m.copyLocked(index), nil
}

// Active returns the occupied slots in index order.
func (m *Manager) Active() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []Slot
	for i := range m.slots {
		if m.slots[i].Status != StatusIdle {
			active = append(active, m.copyLocked(i))
		}
	}
	return active
}

// Snapshot returns every slot in index order.
func (m *Manager) Snapshot() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Slot, len(m.slots))
	for i := range m.slots {
		out[i] = m.copyLocked(i)
	}
	return out
}

// KillAll kills every process attached to an occupied slot and returns the
// first error encountered.
func (m *Manager) KillAll() error {
	var firstErr error
	for _, s := range m.Active() {
		if s.Agent == nil || s.Agent.Process == nil {
			continue
		}
		if err := s.Agent.Process.Kill(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("kill slot %d: %w", s.Index, err)
		}
	}
	return firstErr
}

func (m *Manager) checkLocked(index int) error {
	if index < 0 || index >= len(m.slots) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(m.slots))
	}
	return nil
}

func (m *Manager) copyLocked(index int) Slot {
	s := m.slots[index]
	if s.Agent != nil {
		a := *s.Agent
		s.Agent = &a
	}
	return s
}
