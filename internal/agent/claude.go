// Package agent runs Claude CLI subprocesses for the dungeonmaster roles and
// collects their stream-json output.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/ShayCichocki/dungeonmaster/internal/stream"
)

// ExitStatus describes how a process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was terminated by a
	// signal.
	Code int
	// Stderr holds whatever the process wrote to stderr.
	Stderr string
}

// Process is one running agent subprocess.
type Process interface {
	// Lines delivers stdout one line at a time. It is closed when stdout
	// ends.
	Lines() <-chan string
	// Done is closed once the process has exited and Lines is closed.
	Done() <-chan struct{}
	// Wait blocks until the process exits. The error is non-nil only when
	// the exit status could not be determined.
	Wait() (ExitStatus, error)
	// Kill terminates the process. It is safe to call more than once.
	Kill() error
}

// Verify ClaudeProcess implements Process at compile time.
var _ Process = (*ClaudeProcess)(nil)

// DefaultBinary is the Claude CLI executable looked up on PATH.
const DefaultBinary = "claude"

// ClaudeProcess manages a Claude CLI subprocess.
type ClaudeProcess struct {
	cmd   *exec.Cmd
	lines chan string
	done  chan struct{}
	stop  chan struct{}

	mu     sync.Mutex
	stderr bytes.Buffer

	killOnce sync.Once
	status   ExitStatus
	waitErr  error
}

// claudeArgs builds the CLI arguments for opts.
func claudeArgs(opts SpawnOptions) []string {
	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}
	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	// Prompt goes last.
	return append(args, "-p", opts.Prompt)
}

// StartClaude launches the Claude CLI for opts. Cancelling ctx kills the
// process.
func StartClaude(ctx context.Context, binary string, opts SpawnOptions) (*ClaudeProcess, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	cmd := exec.CommandContext(ctx, binary, claudeArgs(opts)...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	p := &ClaudeProcess{
		cmd:   cmd,
		lines: make(chan string, 100),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = &lockedWriter{mu: &p.mu, buf: &p.stderr}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	go p.run(stdout)
	return p, nil
}

// lockedWriter lets the stderr copy goroutine share the buffer with readers.
type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(b)
}

// run forwards stdout lines, then reaps the process.
func (p *ClaudeProcess) run(stdout io.Reader) {
	scanner := stream.NewScanner(stdout)
	forwarding := true
	for scanner.Scan() {
		if !forwarding {
			// Keep draining so the child never blocks on a full pipe.
			continue
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case p.lines <- line:
		case <-p.stop:
			forwarding = false
		}
	}
	close(p.lines)

	err := p.cmd.Wait()

	p.mu.Lock()
	p.status.Stderr = p.stderr.String()
	p.mu.Unlock()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.status.Code = 0
	case errors.As(err, &exitErr):
		p.status.Code = exitErr.ExitCode()
	default:
		p.status.Code = -1
		p.waitErr = fmt.Errorf("process exited with error: %v; stderr: %s", err, p.status.Stderr)
	}
	close(p.done)
}

// Lines returns the stdout line channel.
func (p *ClaudeProcess) Lines() <-chan string {
	return p.lines
}

// Done is closed after the process has been reaped.
func (p *ClaudeProcess) Done() <-chan struct{} {
	return p.done
}

// Wait waits for the process to exit.
func (p *ClaudeProcess) Wait() (ExitStatus, error) {
	<-p.done
	return p.status, p.waitErr
}

// Kill terminates the process immediately.
func (p *ClaudeProcess) Kill() error {
	var err error
	p.killOnce.Do(func() {
		close(p.stop)
		if p.cmd.Process != nil {
			err = p.cmd.Process.Kill()
			if errors.Is(err, os.ErrProcessDone) {
				err = nil
			}
		}
	})
	return err
}

// Stderr returns the stderr captured so far.
func (p *ClaudeProcess) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr.String()
}

// PID returns the process ID of the subprocess.
func (p *ClaudeProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
