package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/dungeonmaster/internal/orchestrator"
	"github.com/ShayCichocki/dungeonmaster/internal/stream"
)

// maxOutputLines bounds the agent output kept for the viewport.
const maxOutputLines = 1000

// MonitorView shows one orchestration process: phase, step progress, the
// slot table and a scrolling log of agent output.
type MonitorView struct {
	status orchestrator.ProcessStatus
	output []string
	done   bool
	err    string

	viewport viewport.Model
	width    int
	height   int
	st       styles
}

// NewMonitorView creates an empty monitor for processID.
func NewMonitorView(processID string) *MonitorView {
	return &MonitorView{
		status:   orchestrator.ProcessStatus{ProcessID: processID},
		viewport: viewport.New(80, 10),
		st:       newStyles(),
	}
}

// ProcessID returns the monitored process.
func (v *MonitorView) ProcessID() string {
	return v.status.ProcessID
}

// Done reports whether the process has finished.
func (v *MonitorView) Done() bool {
	return v.done
}

// SetSize lays the view out for a terminal of width x height.
func (v *MonitorView) SetSize(width, height int) {
	v.width, v.height = width, height
	slots := len(v.status.Slots)
	if slots == 0 {
		slots = 3
	}
	// header, phase, progress, blank, table header, slots, blank, border
	vh := height - (7 + slots + 2)
	if vh < 3 {
		vh = 3
	}
	v.viewport.Width = width - 2
	v.viewport.Height = vh
	v.refreshOutput()
}

// SetStatus replaces the polled process snapshot.
func (v *MonitorView) SetStatus(st orchestrator.ProcessStatus) {
	resize := len(st.Slots) != len(v.status.Slots)
	v.status = st
	if st.Phase == orchestrator.PhaseComplete || st.Phase == orchestrator.PhaseFailed {
		v.done = true
	}
	if st.Error != "" {
		v.err = st.Error
	}
	if resize && v.width > 0 {
		v.SetSize(v.width, v.height)
	}
}

// HandleEvent applies one orchestrator event.
func (v *MonitorView) HandleEvent(e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventPhaseChanged:
		v.status.Phase = e.Phase
		v.appendOutput(fmt.Sprintf("── %s ──", e.Phase))
	case orchestrator.EventAgentLine:
		if text, ok := displayLine(e.Line); ok {
			v.appendOutput(fmt.Sprintf("[%d] %s", e.SlotIndex, text))
		}
	case orchestrator.EventSlotAcquired:
		v.appendOutput(fmt.Sprintf("[%d] %s on step %s", e.SlotIndex, e.Role, shorten(e.StepID, 8)))
	case orchestrator.EventStepUpdated:
		v.appendOutput(fmt.Sprintf("step %s → %s", shorten(e.StepID, 8), e.StepStatus))
	case orchestrator.EventProcessCompleted:
		v.done = true
		v.status.Phase = orchestrator.PhaseComplete
		v.appendOutput("quest complete")
	case orchestrator.EventProcessFailed:
		v.done = true
		v.status.Phase = orchestrator.PhaseFailed
		if e.Error != nil {
			v.err = e.Error.Error()
		}
		v.appendOutput("quest failed: " + v.err)
	}
}

// displayLine turns a raw stream line into text worth showing.
func displayLine(raw string) (string, bool) {
	if text, ok := stream.Text(raw); ok {
		text = strings.TrimSpace(text)
		return text, text != ""
	}
	if tool, ok := stream.ToolUse(raw); ok {
		return strings.TrimSpace(tool), true
	}
	return "", false
}

func (v *MonitorView) appendOutput(line string) {
	for _, l := range strings.Split(line, "\n") {
		v.output = append(v.output, l)
	}
	if over := len(v.output) - maxOutputLines; over > 0 {
		v.output = v.output[over:]
	}
	v.refreshOutput()
}

func (v *MonitorView) refreshOutput() {
	atBottom := v.viewport.AtBottom()
	v.viewport.SetContent(strings.Join(v.output, "\n"))
	if atBottom {
		v.viewport.GotoBottom()
	}
}

// Update forwards scrolling keys to the viewport.
func (v *MonitorView) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	return cmd
}

// View renders the monitor.
func (v *MonitorView) View() string {
	s := v.st
	var b strings.Builder

	title := "Quest " + v.status.QuestID
	if v.status.QuestID == "" {
		title = "Process " + v.status.ProcessID
	}
	b.WriteString(s.header.Render(title))
	b.WriteString("\n")

	b.WriteString(s.label.Render("Phase:"))
	b.WriteString(s.phaseName(v.status.Phase))
	b.WriteString("\n")

	b.WriteString(s.label.Render("Steps:"))
	b.WriteString(s.progressBar(v.status.CompletedSteps, v.status.TotalSteps, 30))
	b.WriteString("\n\n")

	b.WriteString(s.hint.Render(fmt.Sprintf("  %-4s %-8s %-13s %-10s %s", "SLOT", "STATUS", "ROLE", "STEP", "SESSION")))
	b.WriteString("\n")
	for _, sl := range v.status.Slots {
		status := s.slotStatus(sl.Status)
		pad := 8 - len(sl.Status)
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(&b, "  %-4d %s%s %-13s %-10s %s\n",
			sl.Index, status, strings.Repeat(" ", pad),
			shorten(sl.Role, 13), shorten(sl.StepID, 10), shorten(sl.SessionID, 12))
	}
	b.WriteString("\n")

	b.WriteString(s.border.Render(v.viewport.View()))
	b.WriteString("\n")

	switch {
	case v.done && v.err != "":
		b.WriteString(s.failed.Render("✗ " + v.err))
	case v.done:
		b.WriteString(s.done.Render("✓ quest complete"))
	default:
		b.WriteString(s.hint.Render("↑/↓ scroll • q quit"))
	}
	return b.String()
}
