// Package exec runs external commands behind an interface so callers can be
// tested without spawning processes.
package exec

import (
	"context"
)

// Result is the outcome of a command that ran to completion.
type Result struct {
	// Output is the combined stdout and stderr.
	Output []byte
	// ExitCode is the process exit code. A non-zero code is not an error.
	ExitCode int
}

// CommandRunner runs external commands.
type CommandRunner interface {
	// Run executes name in workDir. The error is non-nil only when the
	// command could not be started or was interrupted.
	Run(ctx context.Context, workDir string, name string, args ...string) (Result, error)

	// LookPath reports the resolved path of an executable on PATH.
	LookPath(name string) (string, error)
}
