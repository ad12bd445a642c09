package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuestStatus represents the lifecycle state of a quest.
type QuestStatus string

const (
	// QuestStatusPending indicates the quest is still being planned.
	QuestStatusPending QuestStatus = "pending"
	// QuestStatusApproved indicates the quest may be started.
	QuestStatusApproved QuestStatus = "approved"
	// QuestStatusInProgress indicates an orchestration process owns the quest.
	QuestStatusInProgress QuestStatus = "in_progress"
	// QuestStatusBlocked indicates the quest cannot proceed without input.
	QuestStatusBlocked QuestStatus = "blocked"
	// QuestStatusComplete indicates every phase finished.
	QuestStatusComplete QuestStatus = "complete"
	// QuestStatusAbandoned indicates the quest was given up.
	QuestStatusAbandoned QuestStatus = "abandoned"
)

// Valid returns true if the status is a known value.
func (s QuestStatus) Valid() bool {
	switch s {
	case QuestStatusPending, QuestStatusApproved, QuestStatusInProgress,
		QuestStatusBlocked, QuestStatusComplete, QuestStatusAbandoned:
		return true
	default:
		return false
	}
}

// PhaseStatus represents the state of one quest phase.
type PhaseStatus string

const (
	PhaseStatusPending    PhaseStatus = "pending"
	PhaseStatusInProgress PhaseStatus = "in_progress"
	PhaseStatusComplete   PhaseStatus = "complete"
	PhaseStatusBlocked    PhaseStatus = "blocked"
	PhaseStatusSkipped    PhaseStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s PhaseStatus) Valid() bool {
	switch s {
	case PhaseStatusPending, PhaseStatusInProgress, PhaseStatusComplete,
		PhaseStatusBlocked, PhaseStatusSkipped:
		return true
	default:
		return false
	}
}

// StepStatus represents the state of a dependency step.
type StepStatus string

const (
	StepStatusPending           StepStatus = "pending"
	StepStatusInProgress        StepStatus = "in_progress"
	StepStatusComplete          StepStatus = "complete"
	StepStatusFailed            StepStatus = "failed"
	StepStatusBlocked           StepStatus = "blocked"
	StepStatusPartiallyComplete StepStatus = "partially_complete"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusInProgress, StepStatusComplete,
		StepStatusFailed, StepStatusBlocked, StepStatusPartiallyComplete:
		return true
	default:
		return false
	}
}

// BlockingTypeNeedsRoleFollowup marks a step waiting on another agent role.
const BlockingTypeNeedsRoleFollowup = "needs_role_followup"

// Phase is one of the four fixed quest phases.
type Phase struct {
	Status      PhaseStatus `json:"status"`
	Report      string      `json:"report,omitempty"`
	Progress    string      `json:"progress,omitempty"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Phases groups the quest phases by name.
type Phases struct {
	Discovery      Phase `json:"discovery"`
	Implementation Phase `json:"implementation"`
	Testing        Phase `json:"testing"`
	Review         Phase `json:"review"`
}

// DependencyStep is a single dependency-ordered unit of quest work.
type DependencyStep struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	DependsOn            []string   `json:"dependsOn"`
	FilesToCreate        []string   `json:"filesToCreate"`
	FilesToModify        []string   `json:"filesToModify"`
	ObservablesSatisfied []string   `json:"observablesSatisfied"`
	InputContracts       []string   `json:"inputContracts"`
	OutputContracts      []string   `json:"outputContracts"`
	Status               StepStatus `json:"status"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	BlockingReason       string     `json:"blockingReason,omitempty"`
	BlockingType         string     `json:"blockingType,omitempty"`
	ErrorMessage         string     `json:"errorMessage,omitempty"`
}

// Files returns the files the step creates followed by the files it modifies.
func (s *DependencyStep) Files() []string {
	files := make([]string, 0, len(s.FilesToCreate)+len(s.FilesToModify))
	files = append(files, s.FilesToCreate...)
	return append(files, s.FilesToModify...)
}

// ExecutionLogEntry records an agent attempt against a quest.
type ExecutionLogEntry struct {
	Report    string    `json:"report"`
	Timestamp time.Time `json:"timestamp"`
	StepID    string    `json:"stepId,omitempty"`
	AgentType string    `json:"agentType,omitempty"`
}

// Context describes a place in the product that observables refer to.
type Context struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Locator     map[string]string `json:"locator"`
}

// Observable is a user-visible behavior that siegemaster verifies.
type Observable struct {
	ID        string   `json:"id"`
	ContextID string   `json:"contextId"`
	Trigger   string   `json:"trigger"`
	DependsOn []string `json:"dependsOn"`
	Outcomes  []any    `json:"outcomes"`
}

// Requirement is a scoped statement of what the quest must deliver.
type Requirement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Scope       string `json:"scope,omitempty"`
	Status      string `json:"status,omitempty"`
}

// DesignDecision records a choice made while planning the quest.
type DesignDecision struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Rationale           string   `json:"rationale"`
	RelatedRequirements []string `json:"relatedRequirements"`
}

// ContractProperty is one field of a Contract.
type ContractProperty struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Contract is a data or interface shape steps produce or consume.
type Contract struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Kind       string             `json:"kind"`
	Status     string             `json:"status"`
	Properties []ContractProperty `json:"properties"`
}

// ToolingRequirement names a package or tool the quest needs installed.
type ToolingRequirement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PackageName string `json:"packageName,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Quest is the persisted JSON document describing multi-phase work.
type Quest struct {
	ID                  string               `json:"id"`
	Folder              string               `json:"folder"`
	Title               string               `json:"title"`
	Status              QuestStatus          `json:"status"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           *time.Time           `json:"updatedAt,omitempty"`
	CompletedAt         *time.Time           `json:"completedAt,omitempty"`
	UserRequest         string               `json:"userRequest,omitempty"`
	Phases              *Phases              `json:"phases,omitempty"`
	ExecutionLog        []ExecutionLogEntry  `json:"executionLog"`
	Contexts            []Context            `json:"contexts"`
	Observables         []Observable         `json:"observables"`
	Requirements        []Requirement        `json:"requirements"`
	DesignDecisions     []DesignDecision     `json:"designDecisions"`
	Contracts           []Contract           `json:"contracts"`
	ToolingRequirements []ToolingRequirement `json:"toolingRequirements"`
	Steps               []DependencyStep     `json:"steps"`
}

// Step returns the step with the given id, or nil.
func (q *Quest) Step(id string) *DependencyStep {
	for i := range q.Steps {
		if q.Steps[i].ID == id {
			return &q.Steps[i]
		}
	}
	return nil
}

// StepProgress returns the number of complete steps and the total.
func (q *Quest) StepProgress() (done, total int) {
	for _, s := range q.Steps {
		if s.Status == StepStatusComplete {
			done++
		}
	}
	return done, len(q.Steps)
}

// Validate checks the fields every quest file must carry.
func (q *Quest) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("quest id is required")
	}
	if q.Folder == "" {
		return fmt.Errorf("quest %s: folder is required", q.ID)
	}
	if q.Title == "" {
		return fmt.Errorf("quest %s: title is required", q.ID)
	}
	if !q.Status.Valid() {
		return fmt.Errorf("quest %s: invalid status %q", q.ID, q.Status)
	}
	seen := make(map[string]bool, len(q.Steps))
	for _, s := range q.Steps {
		if _, err := uuid.Parse(s.ID); err != nil {
			return fmt.Errorf("quest %s: step id %q is not a uuid", q.ID, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("quest %s: duplicate step id %s", q.ID, s.ID)
		}
		seen[s.ID] = true
		if !s.Status.Valid() {
			return fmt.Errorf("quest %s: step %s has invalid status %q", q.ID, s.ID, s.Status)
		}
	}
	return nil
}

// QuestListItem is the summary of a quest shown in listings.
type QuestListItem struct {
	ID           string      `json:"id"`
	Folder       string      `json:"folder"`
	Title        string      `json:"title"`
	Status       QuestStatus `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
	StepProgress string      `json:"stepProgress,omitempty"`
}
