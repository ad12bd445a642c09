package stream

import "strings"

// Text returns the text of an assistant line, concatenating every text
// block in order. It reports false for anything else, including assistant
// lines without text blocks and lines with malformed content items.
func Text(raw string) (string, bool) {
	line, err := Parse(raw)
	if err != nil || line.Kind != KindAssistant {
		return "", false
	}
	return textOf(line.Message)
}

func textOf(msg *Message) (string, bool) {
	if msg == nil {
		return "", false
	}

	var b strings.Builder
	found := false
	for _, item := range msg.Content {
		block, ok := decodeBlock(item)
		if !ok {
			return "", false
		}
		if block.Type != ContentBlockText {
			continue
		}
		if block.Text == nil {
			return "", false
		}
		b.WriteString(*block.Text)
		found = true
	}

	if !found {
		return "", false
	}
	return b.String(), true
}
