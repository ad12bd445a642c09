package tui

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// QuestBrowser lists the quests of a project and tracks the cursor.
type QuestBrowser struct {
	quests []models.QuestListItem
	cursor int
	st     styles
}

// NewQuestBrowser creates an empty browser.
func NewQuestBrowser() *QuestBrowser {
	return &QuestBrowser{st: newStyles()}
}

// SetQuests replaces the listed quests, keeping the cursor in range.
func (b *QuestBrowser) SetQuests(quests []models.QuestListItem) {
	b.quests = quests
	if b.cursor >= len(quests) {
		b.cursor = len(quests) - 1
	}
	if b.cursor < 0 {
		b.cursor = 0
	}
}

// Up moves the cursor up.
func (b *QuestBrowser) Up() {
	if b.cursor > 0 {
		b.cursor--
	}
}

// Down moves the cursor down.
func (b *QuestBrowser) Down() {
	if b.cursor < len(b.quests)-1 {
		b.cursor++
	}
}

// Selected returns the quest under the cursor.
func (b *QuestBrowser) Selected() (models.QuestListItem, bool) {
	if len(b.quests) == 0 {
		return models.QuestListItem{}, false
	}
	return b.quests[b.cursor], true
}

// View renders the list.
func (b *QuestBrowser) View() string {
	s := b.st
	var out strings.Builder
	out.WriteString(s.header.Render("Quests"))
	out.WriteString("\n")

	if len(b.quests) == 0 {
		out.WriteString(s.hint.Render("  No quests found."))
		out.WriteString("\n")
	}
	for i, q := range b.quests {
		cursor := "  "
		title := q.Title
		if i == b.cursor {
			cursor = s.selected.Render("> ")
			title = s.selected.Render(title)
		}
		progress := ""
		if q.StepProgress != "" {
			progress = s.hint.Render(" [" + q.StepProgress + "]")
		}
		fmt.Fprintf(&out, "%s%s  %s%s\n", cursor, title, b.st.questStatus(q.Status), progress)
	}
	out.WriteString("\n")
	out.WriteString(s.hint.Render("↑/k ↓/j move • enter start • r reload • q quit"))
	return out.String()
}
