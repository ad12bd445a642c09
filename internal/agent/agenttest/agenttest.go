// Package agenttest provides scripted agent processes for tests.
package agenttest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ShayCichocki/dungeonmaster/internal/agent"
	"github.com/ShayCichocki/dungeonmaster/internal/stream"
)

// Process is a scripted agent.Process. Its lines are queued up front.
type Process struct {
	lines chan string
	done  chan struct{}

	mu       sync.Mutex
	finished bool
	status   agent.ExitStatus
	kills    int
}

var _ agent.Process = (*Process)(nil)

// NewProcess returns a process that emits lines and exits with code.
func NewProcess(code int, lines ...string) *Process {
	p := NewBlockingProcess(lines...)
	p.Finish(code)
	return p
}

// NewBlockingProcess returns a process that emits lines and then stays
// alive until Finish or Kill.
func NewBlockingProcess(lines ...string) *Process {
	p := &Process{
		lines: make(chan string, len(lines)),
		done:  make(chan struct{}),
	}
	for _, l := range lines {
		p.lines <- l
	}
	return p
}

// Finish ends the process with code. Later calls are ignored.
func (p *Process) Finish(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.status = agent.ExitStatus{Code: code}
	close(p.lines)
	close(p.done)
}

func (p *Process) Lines() <-chan string { return p.lines }
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Wait() (agent.ExitStatus, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, nil
}

func (p *Process) Kill() error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	p.Finish(-1)
	return nil
}

// Kills returns how often Kill was called.
func (p *Process) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

// ScriptFunc decides what the n-th spawn (zero based) returns.
type ScriptFunc func(n int, opts agent.SpawnOptions) (agent.Process, error)

// Spawner records spawn calls and answers them from a script.
type Spawner struct {
	mu     sync.Mutex
	calls  []agent.SpawnOptions
	script ScriptFunc
}

var _ agent.Spawner = (*Spawner)(nil)

// NewSpawner returns a spawner driven by script.
func NewSpawner(script ScriptFunc) *Spawner {
	return &Spawner{script: script}
}

func (s *Spawner) Spawn(_ context.Context, opts agent.SpawnOptions) (agent.Process, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, opts)
	s.mu.Unlock()
	return s.script(n, opts)
}

// Calls returns a copy of the recorded spawn options.
func (s *Spawner) Calls() []agent.SpawnOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.SpawnOptions(nil), s.calls...)
}

// CallsFor returns the recorded spawns of one role.
func (s *Spawner) CallsFor(role agent.Role) []agent.SpawnOptions {
	var out []agent.SpawnOptions
	for _, c := range s.Calls() {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// InitLine returns a system init line carrying sessionID.
func InitLine(sessionID string) string {
	return mustJSON(map[string]any{"type": "system", "subtype": "init", "session_id": sessionID})
}

// TextLine returns an assistant line with a single text block.
func TextLine(text string) string {
	return mustJSON(map[string]any{
		"type":    "assistant",
		"message": map[string]any{"role": "assistant", "content": []any{map[string]any{"type": "text", "text": text}}},
	})
}

// SignalLine returns an assistant line calling signal-back. extra adds
// optional payload fields such as summary or targetRole.
func SignalLine(kind stream.SignalKind, stepID string, extra map[string]any) string {
	input := map[string]any{"signal": string(kind), "stepId": stepID}
	for k, v := range extra {
		input[k] = v
	}
	return mustJSON(map[string]any{
		"type": "assistant",
		"message": map[string]any{"role": "assistant", "content": []any{
			map[string]any{"type": "tool_use", "id": "toolu_1", "name": stream.SignalBackTool, "input": input},
		}},
	})
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
