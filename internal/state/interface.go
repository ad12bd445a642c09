package state

import (
	"io"
	"time"
)

// ProcessStore persists orchestration processes.
type ProcessStore interface {
	CreateProcess(p *Process) error
	UpdateProcess(p *Process) error
	GetProcess(id string) (*Process, error)
	ListProcesses(status *ProcessStatus) ([]Process, error)
}

// AttemptStore persists agent attempts.
type AttemptStore interface {
	RecordAttemptStart(a *Attempt) error
	RecordAttemptEnd(id int64, sessionID, outcome string, exitCode *int, endedAt time.Time) error
	ListAttempts(processID string) ([]Attempt, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// History is what the orchestrator records runs into. The orchestrator
// works without one; the CLI reads it back for status reports.
type History interface {
	ProcessStore
	AttemptStore
}

// Store is the full history database.
type Store interface {
	io.Closer
	Migrator
	History
}

var (
	_ Store        = (*DB)(nil)
	_ History      = (*DB)(nil)
	_ ProcessStore = (*DB)(nil)
	_ AttemptStore = (*DB)(nil)
)
