// Package stream parses the newline-delimited JSON emitted by
// `claude --output-format stream-json` and extracts text, tool use,
// session ids and agent signals from it.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnrecognizedLine is returned when a line is not JSON or matches none
// of the known shapes.
var ErrUnrecognizedLine = errors.New("unrecognized stream line")

// Kind discriminates the shape of a Line.
type Kind string

const (
	KindUnrecognized   Kind = "unrecognized"
	KindSystemInit     Kind = "system-init"
	KindAssistant      Kind = "assistant"
	KindUserToolResult Kind = "user-tool-result"
	KindResult         Kind = "result"
	KindSummary        Kind = "summary"
)

// Valid returns true if the kind is one of the recognized shapes.
func (k Kind) Valid() bool {
	switch k {
	case KindSystemInit, KindAssistant, KindUserToolResult, KindResult, KindSummary:
		return true
	default:
		return false
	}
}

// Message is the message body carried by assistant and user lines.
// Content items are kept raw so transformers can reject malformed blocks.
type Message struct {
	ID      string            `json:"id,omitempty"`
	Role    string            `json:"role,omitempty"`
	Model   string            `json:"model,omitempty"`
	Content []json.RawMessage `json:"content"`
}

// Line is one parsed line of subprocess output.
// Only the fields belonging to Kind are populated.
type Line struct {
	Kind Kind

	// SessionID is set for system-init and result lines.
	SessionID string
	// Message is set for assistant and user-tool-result lines.
	Message *Message

	// Result metadata; nil when absent.
	CostUSD    *float64
	DurationMS *int64
	NumTurns   *int

	// Summary is set for summary lines.
	Summary string

	raw []byte
}

// Raw returns the bytes the line was parsed from.
func (l Line) Raw() []byte {
	return l.raw
}

// MarshalJSON re-emits the original line.
func (l Line) MarshalJSON() ([]byte, error) {
	if l.raw == nil {
		return []byte("null"), nil
	}
	return l.raw, nil
}

// wireLine is the union of every field any line shape may carry.
type wireLine struct {
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	SessionID    *string         `json:"session_id"`
	Message      json.RawMessage `json:"message"`
	CostUSD      *float64        `json:"cost_usd"`
	TotalCostUSD *float64        `json:"total_cost_usd"`
	DurationMS   *int64          `json:"duration_ms"`
	NumTurns     *int            `json:"num_turns"`
	Summary      *string         `json:"summary"`
}

// Parse decodes one line of stream-json output.
// Lines that are not JSON objects or match no shape return an error wrapping
// ErrUnrecognizedLine; the returned Line then has KindUnrecognized.
func Parse(raw string) (Line, error) {
	data := bytes.TrimSpace([]byte(raw))
	line := Line{Kind: KindUnrecognized, raw: data}

	if len(data) == 0 || data[0] != '{' {
		return line, fmt.Errorf("%w: not a JSON object", ErrUnrecognizedLine)
	}

	var w wireLine
	if err := json.Unmarshal(data, &w); err != nil {
		return line, fmt.Errorf("%w: %v", ErrUnrecognizedLine, err)
	}

	switch w.Type {
	case "system":
		if w.Subtype == "init" && w.SessionID != nil && *w.SessionID != "" {
			line.Kind = KindSystemInit
			line.SessionID = *w.SessionID
			return line, nil
		}
	case "assistant", "user":
		msg, ok := decodeMessage(w.Message)
		if !ok {
			break
		}
		line.Message = msg
		if w.Type == "assistant" {
			line.Kind = KindAssistant
		} else {
			line.Kind = KindUserToolResult
		}
		return line, nil
	case "result":
		if w.SessionID == nil {
			break
		}
		line.Kind = KindResult
		line.SessionID = *w.SessionID
		line.CostUSD = w.CostUSD
		if line.CostUSD == nil {
			line.CostUSD = w.TotalCostUSD
		}
		line.DurationMS = w.DurationMS
		line.NumTurns = w.NumTurns
		return line, nil
	case "summary":
		if w.Summary != nil {
			line.Kind = KindSummary
			line.Summary = *w.Summary
			return line, nil
		}
	}

	return line, fmt.Errorf("%w: type %q", ErrUnrecognizedLine, w.Type)
}

// decodeMessage accepts only an object whose content is an array.
func decodeMessage(raw json.RawMessage) (*Message, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}

	var probe struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false
	}
	content := bytes.TrimSpace(probe.Content)
	if len(content) == 0 || content[0] != '[' {
		return nil, false
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, false
	}
	return &msg, true
}

// ContentBlockType names the kind of a message content block.
type ContentBlockType string

const (
	ContentBlockText       ContentBlockType = "text"
	ContentBlockToolUse    ContentBlockType = "tool_use"
	ContentBlockToolResult ContentBlockType = "tool_result"
	ContentBlockThinking   ContentBlockType = "thinking"
)

// ContentBlock is one decoded item of Message.Content.
type ContentBlock struct {
	Type      ContentBlockType `json:"type"`
	ID        string           `json:"id,omitempty"`
	Name      *string          `json:"name,omitempty"`
	Text      *string          `json:"text,omitempty"`
	Input     json.RawMessage  `json:"input,omitempty"`
	ToolUseID string           `json:"tool_use_id,omitempty"`
	Content   json.RawMessage  `json:"content,omitempty"`
	IsError   bool             `json:"is_error,omitempty"`
}

// decodeBlock decodes a content item. Non-object items and items whose
// fields have the wrong JSON type are rejected.
func decodeBlock(raw json.RawMessage) (ContentBlock, bool) {
	var block ContentBlock
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return block, false
	}
	if err := json.Unmarshal(raw, &block); err != nil {
		return block, false
	}
	return block, true
}
