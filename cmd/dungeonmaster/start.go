package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/dungeonmaster/internal/orchestrator"
	"github.com/ShayCichocki/dungeonmaster/internal/tui"
)

var (
	startNoTUI   bool
	startVerbose bool
)

var startCmd = &cobra.Command{
	Use:   "start <questId>",
	Short: "Start a quest and follow its progress",
	Long: `Start orchestrating an approved or in-progress quest and follow it
until it completes or fails.

In a terminal the progress monitor is shown; otherwise phase and step
changes are printed line by line. Interrupting stops every agent and
records the process as interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startNoTUI, "no-tui", false, "Print progress lines instead of the monitor")
	startCmd.Flags().BoolVarP(&startVerbose, "verbose", "v", false, "Print agent output (without the monitor)")
}

func runStart(cmd *cobra.Command, args []string) error {
	e, err := openEnv(true)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := CheckClaudeCLI(e.cfg.Claude.Binary); err != nil {
		return err
	}

	processID, err := e.orch.StartQuest(args[0])
	if err != nil {
		return err
	}

	if !startNoTUI && isTerminal() {
		out := log.Writer()
		log.SetOutput(io.Discard)
		err := tui.RunMonitor(e.orch, processID, e.cfg.TUI.RefreshRate)
		log.SetOutput(out)
		if err != nil {
			return err
		}
		return reportFinal(cmd.OutOrStdout(), e.orch, processID)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Started quest %s as process %s\n", args[0], processID)
	err = follow(ctx, w, e.orch, processID, startVerbose)
	if errors.Is(err, context.Canceled) {
		printStatus(w, "⚠", "Interrupted, stopping agents", color.FgYellow)
	}
	return err
}

// follow prints the events of processID until it finishes or ctx is done.
func follow(ctx context.Context, w io.Writer, orch *orchestrator.Orchestrator, processID string, verbose bool) error {
	done := make(chan error, 1)
	go func() { done <- orch.Wait(ctx, processID) }()

	events := orch.Events()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if e.ProcessID == processID {
				printEvent(w, e, verbose)
			}
		case err := <-done:
			drain(w, events, processID, verbose)
			return err
		}
	}
}

// drain prints events already buffered when the process finished.
func drain(w io.Writer, events <-chan orchestrator.Event, processID string, verbose bool) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.ProcessID == processID {
				printEvent(w, e, verbose)
			}
		default:
			return
		}
	}
}

// reportFinal prints how a process monitored in the TUI ended. A process
// still running when the monitor is closed is stopped with the CLI.
func reportFinal(w io.Writer, orch *orchestrator.Orchestrator, processID string) error {
	st, err := orch.GetQuestStatus(processID)
	if err != nil {
		return err
	}
	switch st.Phase {
	case orchestrator.PhaseComplete:
		printStatus(w, "✓", fmt.Sprintf("Quest %s complete", st.QuestID), color.FgGreen)
		return nil
	case orchestrator.PhaseFailed:
		return fmt.Errorf("quest %s failed: %s", st.QuestID, st.Error)
	default:
		printStatus(w, "⚠", fmt.Sprintf("Quest %s stopped during %s (%d/%d steps)", st.QuestID, st.Phase, st.CompletedSteps, st.TotalSteps), color.FgYellow)
		return nil
	}
}
