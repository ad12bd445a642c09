package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/internal/tui"
)

var workDirFlag string

// errNotTerminal is returned when the TUI is requested without a terminal.
var errNotTerminal = errors.New("dungeonmaster needs a terminal for the quest browser; use a subcommand such as 'quests list' or 'start <questId>'")

// CheckClaudeCLI verifies that the claude binary is available in PATH.
func CheckClaudeCLI(binary string) error {
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"dungeonmaster runs agents through the Claude Code CLI.\n\n"+
			"Install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code", binary)
	}
	return nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var rootCmd = &cobra.Command{
	Use:   "dungeonmaster",
	Short: "Quest orchestrator for Claude CLI agents",
	Long: `dungeonmaster drives Claude CLI agents through quests: JSON plans of
dependency-ordered steps stored under .dungeonmaster-quests.

With no arguments, opens a quest browser. Starting a quest runs:
- pathseeker to plan steps when the quest has none
- codeweaver agents on every ready step, one per slot
- ward verification with spiritmender repairs
- siegemaster and lawbringer review`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBrowser()
	},
}

func runBrowser() error {
	if !isTerminal() {
		return errNotTerminal
	}
	e, err := openEnv(true)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := CheckClaudeCLI(e.cfg.Claude.Binary); err != nil {
		return err
	}

	// Log output corrupts the alt screen.
	out := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(out)

	var changes <-chan quest.QuestChanged
	if dir, err := quest.QuestsFolder(e.workDir); err == nil {
		if w, err := quest.NewWatcher(dir); err == nil {
			defer w.Close()
			changes = w.Changes()
		}
	}

	return tui.Run(e.orch, e.workDir, e.cfg.TUI.RefreshRate, changes)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workDirFlag, "dir", "C", "", "Project directory (default: current directory)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(questsCmd)
	rootCmd.AddCommand(newRegistryCmd(kindProjects))
	rootCmd.AddCommand(newRegistryCmd(kindGuilds))
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
