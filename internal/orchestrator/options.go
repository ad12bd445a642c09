package orchestrator

import (
	"github.com/ShayCichocki/dungeonmaster/internal/agent"
	"github.com/ShayCichocki/dungeonmaster/internal/state"
)

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds the optional collaborators. Anything left nil
// is built from the config.
type orchestratorOptions struct {
	workDir     string
	home        string
	spawner     agent.Spawner
	ward        WardRunner
	history     state.History
	logger      *DebugLogger
	eventBuffer int
}

// WithWorkDir sets the directory project-local quests are resolved from.
// It defaults to the current directory.
func WithWorkDir(dir string) Option {
	return func(o *orchestratorOptions) { o.workDir = dir }
}

// WithHome overrides paths.home, the directory holding config.json and
// the guild and project quest folders.
func WithHome(dir string) Option {
	return func(o *orchestratorOptions) { o.home = dir }
}

// WithSpawner sets how agents are started.
func WithSpawner(s agent.Spawner) Option {
	return func(o *orchestratorOptions) { o.spawner = s }
}

// WithWardRunner sets the verification runner.
func WithWardRunner(w WardRunner) Option {
	return func(o *orchestratorOptions) { o.ward = w }
}

// WithHistory records processes and attempts into h.
func WithHistory(h state.History) Option {
	return func(o *orchestratorOptions) { o.history = h }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) { o.eventBuffer = n }
}
