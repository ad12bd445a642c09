package stream

import (
	"bufio"
	"io"
	"strings"
)

// EventType names a normalized occurrence derived from a Line.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventAssistantText  EventType = "assistant_text"
	EventToolUse        EventType = "tool_use"
	EventToolResult     EventType = "tool_result"
	EventTurnComplete   EventType = "turn_complete"
	EventSummary        EventType = "summary"
	EventAgentSignal    EventType = "agent_signal"
)

// Event is one normalized occurrence extracted from a stream line.
type Event struct {
	Type      EventType
	SessionID string
	// Text holds assistant text, the formatted tool use, or the summary.
	Text   string
	Signal *Signal
	// IsError is set on tool results the tool reported as failed.
	IsError  bool
	CostUSD  float64
	NumTurns int
}

// Events interprets a raw line. Unrecognized or malformed lines yield no
// events.
func Events(raw string) []Event {
	line, err := Parse(raw)
	if err != nil {
		return nil
	}
	return EventsFor(line)
}

// EventsFor interprets an already parsed line.
func EventsFor(line Line) []Event {
	switch line.Kind {
	case KindSystemInit:
		return []Event{{Type: EventSessionStarted, SessionID: line.SessionID}}
	case KindResult:
		ev := Event{Type: EventTurnComplete, SessionID: line.SessionID}
		if line.CostUSD != nil {
			ev.CostUSD = *line.CostUSD
		}
		if line.NumTurns != nil {
			ev.NumTurns = *line.NumTurns
		}
		return []Event{ev}
	case KindSummary:
		return []Event{{Type: EventSummary, Text: line.Summary}}
	case KindUserToolResult:
		var events []Event
		for _, item := range line.Message.Content {
			block, ok := decodeBlock(item)
			if !ok || block.Type != ContentBlockToolResult {
				continue
			}
			events = append(events, Event{Type: EventToolResult, IsError: block.IsError})
		}
		return events
	case KindAssistant:
		var events []Event
		if text, ok := textOf(line.Message); ok {
			events = append(events, Event{Type: EventAssistantText, Text: text})
		}
		if tool, ok := ToolUse(string(line.raw)); ok {
			events = append(events, Event{Type: EventToolUse, Text: strings.TrimSuffix(tool, "\n")})
		}
		if sig, ok := signalOf(line); ok {
			events = append(events, Event{Type: EventAgentSignal, Signal: sig})
		}
		return events
	}
	return nil
}

const (
	scanInitialBuffer = 64 * 1024
	scanMaxToken      = 1024 * 1024
)

// NewScanner returns a line scanner sized for stream-json output.
func NewScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanInitialBuffer), scanMaxToken)
	return scanner
}
