package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxDisplayParams = 3
	maxDisplayValue  = 200
)

// priorityKeys are shown before all other tool parameters.
var priorityKeys = []string{"file_path", "path", "pattern"}

// ToolUse formats every tool_use block of an assistant line as
// `[Name] key="value" ...`, space separated and terminated by a newline.
// It reports false when the line has no tool_use block or one has no name.
func ToolUse(raw string) (string, bool) {
	line, err := Parse(raw)
	if err != nil || line.Kind != KindAssistant {
		return "", false
	}

	var parts []string
	for _, item := range line.Message.Content {
		block, ok := decodeBlock(item)
		if !ok {
			return "", false
		}
		if block.Type != ContentBlockToolUse {
			continue
		}
		if block.Name == nil || *block.Name == "" {
			return "", false
		}

		part := "[" + *block.Name + "]"
		if input, ok := decodeInput(block.Input); ok {
			if display := ToolInputDisplay(input); display != "" {
				part += " " + display
			}
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " ") + "\n", true
}

// decodeInput decodes a tool input object, keeping numbers as written.
func decodeInput(raw json.RawMessage) (map[string]any, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var input map[string]any
	if err := dec.Decode(&input); err != nil {
		return nil, false
	}
	return input, true
}

// ToolInputDisplay renders tool parameters as `key="value"` pairs.
// Priority keys come first, the rest alphabetically; at most three pairs
// are shown, followed by " ..." when more exist.
func ToolInputDisplay(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}

	keys := make([]string, 0, len(input))
	seen := make(map[string]bool, len(priorityKeys))
	for _, k := range priorityKeys {
		if _, ok := input[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(input))
	for k := range input {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	shown := keys
	if len(shown) > maxDisplayParams {
		shown = shown[:maxDisplayParams]
	}

	pairs := make([]string, 0, len(shown))
	for _, k := range shown {
		pairs = append(pairs, k+`="`+displayValue(input[k])+`"`)
	}

	out := strings.Join(pairs, " ")
	if len(keys) > maxDisplayParams {
		out += " ..."
	}
	return out
}

func displayValue(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "null"
	case string:
		s = val
	case bool:
		if val {
			s = "true"
		} else {
			s = "false"
		}
	case json.Number:
		s = val.String()
	case float64:
		s = fmt.Sprintf("%v", val)
	case []any:
		s = fmt.Sprintf("[%d items]", len(val))
	case map[string]any:
		s = "{...}"
	default:
		s = fmt.Sprintf("%v", val)
	}
	return truncate(s, maxDisplayValue)
}

// truncate shortens s to max runes, ending with "..." when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
