package state

import (
	"database/sql"
	"fmt"
	"time"
)

// ProcessStatus is the lifecycle state of an orchestration process.
type ProcessStatus string

const (
	ProcessRunning     ProcessStatus = "running"
	ProcessComplete    ProcessStatus = "complete"
	ProcessFailed      ProcessStatus = "failed"
	ProcessInterrupted ProcessStatus = "interrupted"
)

// Finished reports whether the process reached a terminal state.
func (s ProcessStatus) Finished() bool {
	return s != ProcessRunning
}

// Process is one orchestration run of a quest.
type Process struct {
	ID        string        `json:"id"`
	QuestID   string        `json:"questId"`
	QuestPath string        `json:"questPath"`
	Phase     string        `json:"phase"`
	Status    ProcessStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	OwnerPID  int           `json:"ownerPid"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
}

// Attempt is one agent run inside a process.
type Attempt struct {
	ID        int64      `json:"id"`
	ProcessID string     `json:"processId"`
	StepID    string     `json:"stepId,omitempty"`
	Role      string     `json:"role"`
	SlotIndex int        `json:"slotIndex"`
	SessionID string     `json:"sessionId,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	ExitCode  *int       `json:"exitCode,omitempty"`
}

const processColumns = `id, quest_id, quest_path, phase, status, error, owner_pid, started_at, ended_at`

// CreateProcess records a new process.
func (db *DB) CreateProcess(p *Process) error {
	if p.Status == "" {
		p.Status = ProcessRunning
	}
	_, err := db.Exec(`
		INSERT INTO processes (`+processColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.QuestID, p.QuestPath, p.Phase, string(p.Status), p.Error, p.OwnerPID,
		formatTime(p.StartedAt), nullableTime(p.EndedAt))
	if err != nil {
		return fmt.Errorf("create process: %w", err)
	}
	return nil
}

// UpdateProcess writes the mutable fields of a process.
func (db *DB) UpdateProcess(p *Process) error {
	_, err := db.Exec(`
		UPDATE processes SET phase = ?, status = ?, error = ?, ended_at = ?
		WHERE id = ?
	`, p.Phase, string(p.Status), p.Error, nullableTime(p.EndedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProcess(s scanner) (*Process, error) {
	var p Process
	var startedAt string
	var endedAt sql.NullString
	if err := s.Scan(&p.ID, &p.QuestID, &p.QuestPath, &p.Phase, &p.Status, &p.Error, &p.OwnerPID, &startedAt, &endedAt); err != nil {
		return nil, err
	}
	p.StartedAt, _ = parseTime(startedAt)
	p.EndedAt = parseNullableTime(endedAt)
	return &p, nil
}

// GetProcess retrieves a process by ID. It returns nil when none exists.
func (db *DB) GetProcess(id string) (*Process, error) {
	row := db.QueryRow(`SELECT `+processColumns+` FROM processes WHERE id = ?`, id)
	p, err := scanProcess(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}
	return p, nil
}

// ListProcesses lists processes newest first, optionally filtered by status.
func (db *DB) ListProcesses(status *ProcessStatus) ([]Process, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT `+processColumns+` FROM processes WHERE status = ? ORDER BY started_at DESC
		`, string(*status))
	} else {
		rows, err = db.Query(`SELECT ` + processColumns + ` FROM processes ORDER BY started_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	var processes []Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		processes = append(processes, *p)
	}
	return processes, rows.Err()
}

// RecordAttemptStart inserts an attempt and sets its ID.
func (db *DB) RecordAttemptStart(a *Attempt) error {
	res, err := db.Exec(`
		INSERT INTO attempts (process_id, step_id, role, slot_index, session_id, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ProcessID, a.StepID, a.Role, a.SlotIndex, a.SessionID, formatTime(a.StartedAt))
	if err != nil {
		return fmt.Errorf("record attempt start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get attempt id: %w", err)
	}
	a.ID = id
	return nil
}

// RecordAttemptEnd stores how an attempt finished.
func (db *DB) RecordAttemptEnd(id int64, sessionID, outcome string, exitCode *int, endedAt time.Time) error {
	_, err := db.Exec(`
		UPDATE attempts SET session_id = CASE WHEN ? = '' THEN session_id ELSE ? END,
			outcome = ?, exit_code = ?, ended_at = ?
		WHERE id = ?
	`, sessionID, sessionID, outcome, exitCode, formatTime(endedAt), id)
	if err != nil {
		return fmt.Errorf("record attempt end: %w", err)
	}
	return nil
}

// ListAttempts lists the attempts of a process in start order.
func (db *DB) ListAttempts(processID string) ([]Attempt, error) {
	rows, err := db.Query(`
		SELECT id, process_id, step_id, role, slot_index, session_id, started_at, ended_at, outcome, exit_code
		FROM attempts WHERE process_id = ? ORDER BY id
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var startedAt string
		var endedAt sql.NullString
		var exitCode sql.NullInt64
		if err := rows.Scan(&a.ID, &a.ProcessID, &a.StepID, &a.Role, &a.SlotIndex, &a.SessionID,
			&startedAt, &endedAt, &a.Outcome, &exitCode); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.StartedAt, _ = parseTime(startedAt)
		a.EndedAt = parseNullableTime(endedAt)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			a.ExitCode = &code
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
