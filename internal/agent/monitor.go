package agent

import (
	"context"
	"time"

	"github.com/ShayCichocki/dungeonmaster/internal/stream"
)

// MonitorResult summarises one finished agent run.
type MonitorResult struct {
	SessionID string `json:"sessionId,omitempty"`
	// ExitCode is nil when the process did not exit on its own.
	ExitCode       *int           `json:"exitCode"`
	Signal         *stream.Signal `json:"signal"`
	Crashed        bool           `json:"crashed"`
	TimedOut       bool           `json:"timedOut"`
	CapturedOutput []string       `json:"capturedOutput"`
}

// LineFunc observes every raw stdout line of a monitored process.
type LineFunc func(line string)

// Monitor consumes proc until it exits, the timeout elapses or ctx is
// done. The first session id seen wins, the last signal-back wins and
// assistant text is kept in CapturedOutput. Malformed lines are skipped.
//
// On timeout the process is killed once and the result is TimedOut with no
// exit code. A zero timeout disables the limit. onLine may be nil.
func Monitor(ctx context.Context, proc Process, timeout time.Duration, onLine LineFunc) MonitorResult {
	result := MonitorResult{CapturedOutput: []string{}}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	lines := proc.Lines()
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if onLine != nil {
				onLine(line)
			}
			observe(&result, line)
		case <-expired:
			proc.Kill()
			result.TimedOut = true
			return result
		case <-ctx.Done():
			proc.Kill()
			result.Crashed = true
			return result
		}
	}

	status, err := proc.Wait()
	if err != nil {
		result.Crashed = true
		return result
	}
	code := status.Code
	result.ExitCode = &code
	result.Crashed = code != 0
	return result
}

func observe(result *MonitorResult, raw string) {
	if result.SessionID == "" {
		if id, ok := stream.SessionID(raw); ok {
			result.SessionID = id
		}
	}
	if sig, ok := stream.SignalFrom(raw); ok {
		result.Signal = sig
	}
	if text, ok := stream.Text(raw); ok {
		result.CapturedOutput = append(result.CapturedOutput, text)
	}
}
