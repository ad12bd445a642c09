package state

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"
)

// RecoveryManager finds processes left running by an orchestrator that
// exited without recording an end.
type RecoveryManager struct {
	db    *DB
	alive func(pid int) bool
	now   func() time.Time
}

// NewRecoveryManager creates a new RecoveryManager with the given database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db, alive: isProcessAlive, now: time.Now}
}

// Orphaned returns running processes whose owner is gone.
func (rm *RecoveryManager) Orphaned() ([]Process, error) {
	status := ProcessRunning
	running, err := rm.db.ListProcesses(&status)
	if err != nil {
		return nil, err
	}

	var orphaned []Process
	for _, p := range running {
		if p.OwnerPID == os.Getpid() || rm.alive(p.OwnerPID) {
			continue
		}
		orphaned = append(orphaned, p)
	}
	return orphaned, nil
}

// MarkInterrupted moves every orphaned process to interrupted and closes
// its open attempts. It returns the processes it changed.
func (rm *RecoveryManager) MarkInterrupted() ([]Process, error) {
	orphaned, err := rm.Orphaned()
	if err != nil {
		return nil, err
	}

	now := rm.now()
	for i := range orphaned {
		p := &orphaned[i]
		p.Status = ProcessInterrupted
		p.Error = fmt.Sprintf("owner process %d exited", p.OwnerPID)
		p.EndedAt = &now
		err := rm.db.Transaction(func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				UPDATE processes SET status = ?, error = ?, ended_at = ? WHERE id = ?
			`, string(p.Status), p.Error, formatTime(now), p.ID); err != nil {
				return err
			}
			_, err := tx.Exec(`
				UPDATE attempts SET outcome = ?, ended_at = ?
				WHERE process_id = ? AND ended_at IS NULL
			`, string(ProcessInterrupted), formatTime(now), p.ID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("mark process %s interrupted: %w", p.ID, err)
		}
		log.Printf("[state] marked process %s interrupted (owner pid %d)", p.ID, p.OwnerPID)
	}
	return orphaned, nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 only checks for existence.
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
