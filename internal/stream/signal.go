package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SignalBackTool is the tool name agents call to report back to the
// orchestrator.
const SignalBackTool = "mcp__dungeonmaster__signal-back"

// SignalKind names the outcome an agent reports.
type SignalKind string

const (
	SignalComplete          SignalKind = "complete"
	SignalPartiallyComplete SignalKind = "partially-complete"
	SignalNeedsRoleFollowup SignalKind = "needs-role-followup"
)

// Valid returns true if the kind is a known value.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalComplete, SignalPartiallyComplete, SignalNeedsRoleFollowup:
		return true
	default:
		return false
	}
}

// Signal is the payload of a signal-back tool call.
type Signal struct {
	Signal            SignalKind `json:"signal"`
	StepID            string     `json:"stepId"`
	Summary           string     `json:"summary,omitempty"`
	Progress          string     `json:"progress,omitempty"`
	ContinuationPoint string     `json:"continuationPoint,omitempty"`
	TargetRole        string     `json:"targetRole,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	Context           string     `json:"context,omitempty"`
	Resume            *bool      `json:"resume,omitempty"`
}

// wireSignal distinguishes absent optional strings from empty ones.
type wireSignal struct {
	Signal            *string `json:"signal"`
	StepID            *string `json:"stepId"`
	Summary           *string `json:"summary"`
	Progress          *string `json:"progress"`
	ContinuationPoint *string `json:"continuationPoint"`
	TargetRole        *string `json:"targetRole"`
	Reason            *string `json:"reason"`
	Context           *string `json:"context"`
	Resume            *bool   `json:"resume"`
}

// ParseSignal decodes and validates a signal-back payload.
func ParseSignal(raw json.RawMessage) (*Signal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("signal input must be an object")
	}

	var w wireSignal
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode signal: %w", err)
	}

	if w.Signal == nil {
		return nil, fmt.Errorf("signal is required")
	}
	kind := SignalKind(*w.Signal)
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid signal %q", *w.Signal)
	}
	if w.StepID == nil {
		return nil, fmt.Errorf("stepId is required")
	}
	if _, err := uuid.Parse(*w.StepID); err != nil {
		return nil, fmt.Errorf("stepId %q is not a uuid", *w.StepID)
	}

	sig := &Signal{Signal: kind, StepID: *w.StepID, Resume: w.Resume}
	optional := []struct {
		name string
		src  *string
		dst  *string
	}{
		{"summary", w.Summary, &sig.Summary},
		{"progress", w.Progress, &sig.Progress},
		{"continuationPoint", w.ContinuationPoint, &sig.ContinuationPoint},
		{"targetRole", w.TargetRole, &sig.TargetRole},
		{"reason", w.Reason, &sig.Reason},
		{"context", w.Context, &sig.Context},
	}
	for _, f := range optional {
		if f.src == nil {
			continue
		}
		if *f.src == "" {
			return nil, fmt.Errorf("%s must not be empty", f.name)
		}
		*f.dst = *f.src
	}

	return sig, nil
}

// SignalFrom returns the first valid signal-back call in an assistant line.
func SignalFrom(raw string) (*Signal, bool) {
	line, err := Parse(raw)
	if err != nil {
		return nil, false
	}
	return signalOf(line)
}

func signalOf(line Line) (*Signal, bool) {
	if line.Kind != KindAssistant || line.Message == nil {
		return nil, false
	}
	for _, item := range line.Message.Content {
		block, ok := decodeBlock(item)
		if !ok || block.Type != ContentBlockToolUse {
			continue
		}
		if block.Name == nil || *block.Name != SignalBackTool {
			continue
		}
		sig, err := ParseSignal(block.Input)
		if err != nil {
			continue
		}
		return sig, true
	}
	return nil, false
}

// SessionID returns the top-level session_id of any JSON line.
func SessionID(raw string) (string, bool) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 || data[0] != '{' {
		return "", false
	}
	var probe struct {
		SessionID *string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", false
	}
	if probe.SessionID == nil || *probe.SessionID == "" {
		return "", false
	}
	return *probe.SessionID, true
}
