package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/dungeonmaster/internal/orchestrator"
	"github.com/ShayCichocki/dungeonmaster/internal/state"
	"github.com/ShayCichocki/dungeonmaster/internal/stream"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// printStatus prints a status line with color
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func questStatusColor(s models.QuestStatus) *color.Color {
	switch s {
	case models.QuestStatusComplete:
		return color.New(color.FgGreen)
	case models.QuestStatusInProgress:
		return color.New(color.FgCyan)
	case models.QuestStatusApproved:
		return color.New(color.FgBlue)
	case models.QuestStatusBlocked, models.QuestStatusAbandoned:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func stepStatusColor(s models.StepStatus) *color.Color {
	switch s {
	case models.StepStatusComplete:
		return color.New(color.FgGreen)
	case models.StepStatusInProgress:
		return color.New(color.FgCyan)
	case models.StepStatusFailed, models.StepStatusBlocked:
		return color.New(color.FgRed)
	case models.StepStatusPartiallyComplete:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Faint)
	}
}

func processStatusColor(s state.ProcessStatus) *color.Color {
	switch s {
	case state.ProcessComplete:
		return color.New(color.FgGreen)
	case state.ProcessRunning:
		return color.New(color.FgCyan)
	case state.ProcessInterrupted:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}

// short trims ids for table output.
func short(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// printEvent writes one orchestrator event as a progress line. Agent
// output is only printed when verbose is set.
func printEvent(w io.Writer, e orchestrator.Event, verbose bool) {
	switch e.Type {
	case orchestrator.EventPhaseChanged:
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgMagenta, color.Bold).Sprint("▸"), e.Phase)
	case orchestrator.EventSlotAcquired:
		fmt.Fprintf(w, "  [slot %d] %s started step %s\n", e.SlotIndex, e.Role, short(e.StepID, 8))
	case orchestrator.EventStepUpdated:
		fmt.Fprintf(w, "  step %s → %s\n", short(e.StepID, 8), stepStatusColor(e.StepStatus).Sprint(e.StepStatus))
	case orchestrator.EventAgentLine:
		if !verbose {
			return
		}
		text, ok := stream.Text(e.Line)
		if !ok {
			text, ok = stream.ToolUse(e.Line)
		}
		text = strings.TrimSpace(text)
		if ok && text != "" {
			fmt.Fprintf(w, "  [slot %d] %s\n", e.SlotIndex, text)
		}
	case orchestrator.EventProcessCompleted:
		printStatus(w, "✓", fmt.Sprintf("Quest %s complete", e.QuestID), color.FgGreen)
	case orchestrator.EventProcessFailed:
		printStatus(w, "✗", fmt.Sprintf("Quest %s failed: %v", e.QuestID, e.Error), color.FgRed)
	}
}
