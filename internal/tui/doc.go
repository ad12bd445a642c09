// Package tui provides the terminal user interface for dungeonmaster.
//
// The App model opens on a quest browser listing the quests of the current
// project. Starting a quest switches to a monitor that shows:
//   - the current pipeline phase
//   - step progress (completed/total)
//   - the slot table with role, step and session per slot
//   - a scrolling log of agent output
//
// The monitor consumes orchestrator events and polls GetQuestStatus at the
// configured refresh rate. Users quit with 'q' or Ctrl+C; quitting does not
// stop the running process.
//
// Usage:
//
//	err := tui.Run(orch, workDir, cfg.TUI.RefreshRate, watcher.Changes())
//
// or, to follow a process started elsewhere:
//
//	err := tui.RunMonitor(orch, processID, cfg.TUI.RefreshRate)
package tui
