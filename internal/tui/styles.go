package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/dungeonmaster/internal/orchestrator"
	"github.com/ShayCichocki/dungeonmaster/internal/slot"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// styles shared by the views.
type styles struct {
	header        lipgloss.Style
	label         lipgloss.Style
	value         lipgloss.Style
	phase         lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	running       lipgloss.Style
	idle          lipgloss.Style
	done          lipgloss.Style
	failed        lipgloss.Style
	selected      lipgloss.Style
	hint          lipgloss.Style
	border        lipgloss.Style
}

func newStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),
		label:         lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10),
		value:         lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true),
		phase:         lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		progressFull:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		progressEmpty: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		running:       lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		idle:          lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		done:          lipgloss.NewStyle().Foreground(lipgloss.Color("28")).Bold(true),
		failed:        lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		selected:      lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		hint:          lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")),
	}
}

// progressBar renders done/total as a bar of width cells.
func (s styles) progressBar(done, total, width int) string {
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	bar := s.progressFull.Render(strings.Repeat("█", filled)) +
		s.progressEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %d/%d (%.0f%%)", bar, done, total, pct)
}

func (s styles) slotStatus(st slot.Status) string {
	switch st {
	case slot.StatusRunning:
		return s.running.Render(string(st))
	case slot.StatusDone:
		return s.done.Render(string(st))
	default:
		return s.idle.Render(string(st))
	}
}

func (s styles) phaseName(p orchestrator.Phase) string {
	switch p {
	case orchestrator.PhaseComplete:
		return s.done.Render(string(p))
	case orchestrator.PhaseFailed:
		return s.failed.Render(string(p))
	case "":
		return s.idle.Render("none")
	default:
		return s.phase.Render(string(p))
	}
}

func (s styles) questStatus(st models.QuestStatus) string {
	switch st {
	case models.QuestStatusComplete:
		return s.done.Render(string(st))
	case models.QuestStatusInProgress:
		return s.running.Render(string(st))
	case models.QuestStatusBlocked, models.QuestStatusAbandoned:
		return s.failed.Render(string(st))
	default:
		return s.value.Render(string(st))
	}
}

// shorten keeps the first n runes of s.
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
