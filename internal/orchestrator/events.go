package orchestrator

import (
	"time"

	"github.com/ShayCichocki/dungeonmaster/internal/agent"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventPhaseChanged is emitted when a process enters a pipeline phase.
	EventPhaseChanged EventType = "phase-changed"
	// EventSlotAcquired is emitted when an agent attempt claims a slot.
	EventSlotAcquired EventType = "slot-acquired"
	// EventSlotReleased is emitted when an attempt ends and frees its slot.
	EventSlotReleased EventType = "slot-released"
	// EventStepUpdated is emitted after the loop writes a step status.
	EventStepUpdated EventType = "step-updated"
	// EventAgentLine carries one raw stdout line of an agent.
	EventAgentLine EventType = "agent-line"
	EventProcessCompleted EventType = "process-completed"
	EventProcessFailed    EventType = "process-failed"
)

// Event is emitted by the orchestrator to subscribers such as the TUI.
type Event struct {
	Type      EventType
	ProcessID string
	QuestID   string
	// Phase is set for phase-changed events.
	Phase Phase
	// SlotIndex is -1 when the event is not tied to a slot.
	SlotIndex int
	StepID    string
	Role      agent.Role
	// StepStatus is set for step-updated events.
	StepStatus models.StepStatus
	// Line is the raw stream-json line for agent-line events.
	Line      string
	Error     error
	Timestamp time.Time
}
