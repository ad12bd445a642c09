package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/dungeonmaster/internal/orchestrator"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// Source is the orchestrator surface the TUI drives.
type Source interface {
	ListQuests(startPath string) ([]models.QuestListItem, error)
	StartQuest(questID string) (string, error)
	GetQuestStatus(processID string) (orchestrator.ProcessStatus, error)
	Events() <-chan orchestrator.Event
}

// EventMsg carries one orchestrator event.
type EventMsg struct {
	Event orchestrator.Event
}

// StatusMsg carries a polled process snapshot.
type StatusMsg struct {
	Status orchestrator.ProcessStatus
}

// QuestsMsg carries the result of listing quests.
type QuestsMsg struct {
	Quests []models.QuestListItem
}

// StartedMsg reports that a quest process was started.
type StartedMsg struct {
	ProcessID string
}

// ErrMsg reports a failed command.
type ErrMsg struct {
	Err error
}

type tickMsg time.Time

type eventsClosedMsg struct{}

type questChangedMsg quest.QuestChanged

type screen int

const (
	screenBrowser screen = iota
	screenMonitor
)

// App is the root bubbletea model: a quest browser that hands off to a
// process monitor once a quest is started.
type App struct {
	src     Source
	workDir string
	refresh time.Duration

	screen  screen
	browser *QuestBrowser
	monitor *MonitorView
	changes <-chan quest.QuestChanged

	err      error
	width    int
	height   int
	quitting bool
}

// New creates an App that starts at the quest browser for workDir.
func New(src Source, workDir string, refresh time.Duration) *App {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	return &App{
		src:     src,
		workDir: workDir,
		refresh: refresh,
		screen:  screenBrowser,
		browser: NewQuestBrowser(),
	}
}

// NewMonitorApp creates an App that follows an already started process.
func NewMonitorApp(src Source, processID string, refresh time.Duration) *App {
	a := New(src, "", refresh)
	a.screen = screenMonitor
	a.monitor = NewMonitorView(processID)
	return a
}

// WatchQuests reloads the browser whenever a quest file changes.
func (a *App) WatchQuests(changes <-chan quest.QuestChanged) {
	a.changes = changes
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	if a.screen == screenMonitor {
		return tea.Batch(a.waitForEvent(), a.tick(), a.pollStatus())
	}
	if a.changes == nil {
		return a.loadQuests()
	}
	return tea.Batch(a.loadQuests(), a.waitForChange())
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		if a.monitor != nil {
			a.monitor.SetSize(msg.Width, msg.Height)
		}
		return a, nil

	case QuestsMsg:
		a.err = nil
		a.browser.SetQuests(msg.Quests)
		return a, nil

	case StartedMsg:
		a.err = nil
		a.screen = screenMonitor
		a.monitor = NewMonitorView(msg.ProcessID)
		if a.width > 0 {
			a.monitor.SetSize(a.width, a.height)
		}
		return a, tea.Batch(a.waitForEvent(), a.tick(), a.pollStatus())

	case EventMsg:
		if a.monitor != nil && msg.Event.ProcessID == a.monitor.ProcessID() {
			a.monitor.HandleEvent(msg.Event)
		}
		return a, a.waitForEvent()

	case eventsClosedMsg:
		return a, nil

	case questChangedMsg:
		if a.screen != screenBrowser {
			return a, a.waitForChange()
		}
		return a, tea.Batch(a.loadQuests(), a.waitForChange())

	case tickMsg:
		if a.monitor == nil || a.monitor.Done() {
			return a, nil
		}
		return a, tea.Batch(a.pollStatus(), a.tick())

	case StatusMsg:
		if a.monitor != nil && msg.Status.ProcessID == a.monitor.ProcessID() {
			a.monitor.SetStatus(msg.Status)
		}
		return a, nil

	case ErrMsg:
		a.err = msg.Err
		return a, nil
	}

	if a.screen == screenMonitor && a.monitor != nil {
		return a, a.monitor.Update(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		a.quitting = true
		return a, tea.Quit
	}

	if a.screen == screenMonitor {
		return a, a.monitor.Update(msg)
	}

	switch msg.String() {
	case "up", "k":
		a.browser.Up()
	case "down", "j":
		a.browser.Down()
	case "r":
		return a, a.loadQuests()
	case "enter":
		q, ok := a.browser.Selected()
		if !ok {
			return a, nil
		}
		return a, a.startQuest(q.ID)
	}
	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	var view string
	if a.screen == screenMonitor && a.monitor != nil {
		view = a.monitor.View()
	} else {
		view = a.browser.View()
	}
	if a.err != nil {
		view += "\n" + a.browser.st.failed.Render("Error: "+a.err.Error())
	}
	return view
}

func (a *App) loadQuests() tea.Cmd {
	src, dir := a.src, a.workDir
	return func() tea.Msg {
		quests, err := src.ListQuests(dir)
		if err != nil {
			return ErrMsg{Err: err}
		}
		return QuestsMsg{Quests: quests}
	}
}

func (a *App) startQuest(questID string) tea.Cmd {
	src := a.src
	return func() tea.Msg {
		id, err := src.StartQuest(questID)
		if err != nil {
			return ErrMsg{Err: err}
		}
		return StartedMsg{ProcessID: id}
	}
}

func (a *App) waitForEvent() tea.Cmd {
	events := a.src.Events()
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg{Event: e}
	}
}

// waitForChange returns nil when no watcher is attached or it has closed.
func (a *App) waitForChange() tea.Cmd {
	if a.changes == nil {
		return nil
	}
	changes := a.changes
	return func() tea.Msg {
		c, ok := <-changes
		if !ok {
			return nil
		}
		return questChangedMsg(c)
	}
}

func (a *App) pollStatus() tea.Cmd {
	src, id := a.src, a.monitor.ProcessID()
	return func() tea.Msg {
		st, err := src.GetQuestStatus(id)
		if err != nil {
			return ErrMsg{Err: err}
		}
		return StatusMsg{Status: st}
	}
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run starts the quest browser. changes may be nil.
func Run(src Source, workDir string, refresh time.Duration, changes <-chan quest.QuestChanged) error {
	app := New(src, workDir, refresh)
	app.WatchQuests(changes)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunMonitor follows an already started process until the user quits.
func RunMonitor(src Source, processID string, refresh time.Duration) error {
	p := tea.NewProgram(NewMonitorApp(src, processID, refresh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
