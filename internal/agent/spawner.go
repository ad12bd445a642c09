package agent

import (
	"context"
	"log"
)

// SpawnOptions describes one agent run.
type SpawnOptions struct {
	Role    Role
	Prompt  string
	WorkDir string
	// ResumeSessionID continues an earlier Claude session when set.
	ResumeSessionID string
	Model           string
	AllowedTools    []string
}

// Spawner starts agent processes.
type Spawner interface {
	Spawn(ctx context.Context, opts SpawnOptions) (Process, error)
}

// ClaudeSpawner starts agents through the Claude CLI.
type ClaudeSpawner struct {
	// Binary overrides the CLI executable. Empty means "claude".
	Binary string
	// Model is used when SpawnOptions leaves Model empty.
	Model string
}

// Verify ClaudeSpawner implements Spawner at compile time.
var _ Spawner = (*ClaudeSpawner)(nil)

// Spawn starts a ClaudeProcess for opts.
func (s *ClaudeSpawner) Spawn(ctx context.Context, opts SpawnOptions) (Process, error) {
	if opts.Model == "" {
		opts.Model = s.Model
	}
	proc, err := StartClaude(ctx, s.Binary, opts)
	if err != nil {
		return nil, err
	}
	if opts.ResumeSessionID != "" {
		log.Printf("[agent] %s resumed session %s (pid %d)", opts.Role, opts.ResumeSessionID, proc.PID())
	} else {
		log.Printf("[agent] %s started (pid %d)", opts.Role, proc.PID())
	}
	return proc, nil
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(ctx context.Context, opts SpawnOptions) (Process, error)

// Spawn calls f.
func (f SpawnerFunc) Spawn(ctx context.Context, opts SpawnOptions) (Process, error) {
	return f(ctx, opts)
}
