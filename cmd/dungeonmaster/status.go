package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/state"
)

var statusPurge time.Duration

var statusCmd = &cobra.Command{
	Use:   "status [processId]",
	Short: "Show orchestration history",
	Long: `Display the orchestration processes recorded for the current project.

Without arguments, lists processes newest first. With a process id, shows
that process and every agent attempt it made.

Processes left running by an orchestrator that has exited are marked
interrupted first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().DurationVar(&statusPurge, "purge", 0, "Delete finished processes older than this (e.g. 720h)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	workDir, err := resolveWorkDir()
	if err != nil {
		return err
	}
	root, err := quest.FindProjectRoot(workDir)
	if err != nil {
		return err
	}
	db, err := openHistory(root)
	if err != nil {
		return err
	}
	defer db.Close()

	w := cmd.OutOrStdout()
	if statusPurge > 0 {
		n, err := db.PurgeOldProcesses(statusPurge)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Purged %d processes\n\n", n)
	}

	if len(args) == 1 {
		return showProcess(w, db, args[0], time.Now())
	}
	procs, err := db.ListProcesses(nil)
	if err != nil {
		return err
	}
	printProcesses(w, procs, time.Now())
	return nil
}

func printProcesses(w io.Writer, procs []state.Process, now time.Time) {
	if len(procs) == 0 {
		fmt.Fprintln(w, "No processes recorded. Run 'dungeonmaster start <questId>' to start one.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-24s  %-12s  %-11s  %s\n", "PROCESS", "QUEST", "PHASE", "STATUS", "STARTED")
	for _, p := range procs {
		status := processStatusColor(p.Status).Sprintf("%-11s", p.Status)
		fmt.Fprintf(w, "%-36s  %-24s  %-12s  %s  %s ago\n",
			p.ID, short(p.QuestID, 24), p.Phase, status, formatDuration(now.Sub(p.StartedAt)))
		if p.Error != "" {
			fmt.Fprintf(w, "    %s\n", color.RedString(p.Error))
		}
	}
}

func showProcess(w io.Writer, db *state.DB, id string, now time.Time) error {
	p, err := db.GetProcess(id)
	if err != nil {
		return err
	}
	if p == nil {
		return errors.New("process " + id + " not found")
	}

	fmt.Fprintf(w, "Process: %s\n", p.ID)
	fmt.Fprintf(w, "  Quest:   %s\n", p.QuestID)
	fmt.Fprintf(w, "  File:    %s\n", p.QuestPath)
	fmt.Fprintf(w, "  Phase:   %s\n", p.Phase)
	fmt.Fprintf(w, "  Status:  %s\n", processStatusColor(p.Status).Sprint(p.Status))
	end := now
	if p.EndedAt != nil {
		end = *p.EndedAt
	}
	fmt.Fprintf(w, "  Elapsed: %s\n", formatDuration(end.Sub(p.StartedAt)))
	if p.Error != "" {
		fmt.Fprintf(w, "  Error:   %s\n", color.RedString(p.Error))
	}

	attempts, err := db.ListAttempts(p.ID)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nAttempts (%d):\n", len(attempts))
	for _, a := range attempts {
		outcome := a.Outcome
		if outcome == "" {
			outcome = "running"
		}
		step := "-"
		if a.StepID != "" {
			step = short(a.StepID, 8)
		}
		fmt.Fprintf(w, "  [slot %d] %-12s step %-8s  %-20s session %s\n",
			a.SlotIndex, a.Role, step, outcome, short(a.SessionID, 12))
	}
	return nil
}
