package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/dungeonmaster/internal/config"
	"github.com/ShayCichocki/dungeonmaster/internal/orchestrator"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/state"
)

// env bundles what a command needs: config, the project it runs in and
// an orchestrator wired to them.
type env struct {
	cfg     *config.Config
	workDir string
	// root is the project root, empty outside a project.
	root string
	db   *state.DB
	orch *orchestrator.Orchestrator
}

func resolveWorkDir() (string, error) {
	dir := workDirFlag
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Abs(dir)
}

// openEnv loads config and builds the orchestrator. With history set and
// a project root found, processes are recorded in the project database
// and processes orphaned by a previous run are marked interrupted.
func openEnv(history bool) (*env, error) {
	workDir, err := resolveWorkDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	e := &env{cfg: cfg, workDir: workDir}
	if root, err := quest.FindProjectRoot(workDir); err == nil {
		e.root = root
	}

	opts := []orchestrator.Option{orchestrator.WithWorkDir(workDir)}
	if e.root != "" {
		opts = append(opts, orchestrator.WithLogger(orchestrator.NewDebugLoggerForProject(e.root)))
	}
	if history && e.root != "" {
		db, err := openHistory(e.root)
		if err != nil {
			return nil, err
		}
		e.db = db
		opts = append(opts, orchestrator.WithHistory(db))
	}
	e.orch = orchestrator.New(cfg, opts...)
	return e, nil
}

// openHistory opens the project database and recovers orphaned processes.
func openHistory(root string) (*state.DB, error) {
	db, err := state.OpenProject(root)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if _, err := state.NewRecoveryManager(db).MarkInterrupted(); err != nil {
		log.Printf("[cli] recovery failed: %v", err)
	}
	return db, nil
}

// Close stops running processes before the database goes away.
func (e *env) Close() {
	if err := e.orch.Close(); err != nil {
		log.Printf("[cli] close orchestrator: %v", err)
	}
	if e.db != nil {
		e.db.Close()
	}
}
