package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

var questsCmd = &cobra.Command{
	Use:   "quests",
	Short: "Manage quests",
	Long:  `List, create, inspect and verify the quests of the current project.`,
}

var questsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the quests of the current project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()
		quests, err := e.orch.ListQuests(e.workDir)
		if err != nil {
			return err
		}
		printQuests(cmd.OutOrStdout(), quests)
		return nil
	},
}

var questsAddRequest string

var questsAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a pending quest",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()
		q, err := e.orch.AddQuest(e.workDir, strings.Join(args, " "), questsAddRequest)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Created quest %s in %s", q.ID, q.Folder), color.FgGreen)
		return nil
	},
}

var questsShowCmd = &cobra.Command{
	Use:   "show <questId>",
	Short: "Show a quest and its steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()
		q, err := e.orch.GetQuest(args[0])
		if err != nil {
			return err
		}
		printQuest(cmd.OutOrStdout(), q)
		return nil
	},
}

// errQuestInvalid makes verify exit non-zero after listing problems.
var errQuestInvalid = errors.New("quest is not valid")

var questsVerifyCmd = &cobra.Command{
	Use:   "verify <questId>",
	Short: "Check that a quest's plan can run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()
		problems, err := e.orch.VerifyQuest(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(problems) == 0 {
			printStatus(w, "✓", fmt.Sprintf("Quest %s is valid", args[0]), color.FgGreen)
			return nil
		}
		for _, p := range problems {
			printStatus(w, "✗", p, color.FgRed)
		}
		return errQuestInvalid
	},
}

func init() {
	questsAddCmd.Flags().StringVarP(&questsAddRequest, "request", "r", "", "The user request the quest implements")

	questsCmd.AddCommand(questsListCmd)
	questsCmd.AddCommand(questsAddCmd)
	questsCmd.AddCommand(questsShowCmd)
	questsCmd.AddCommand(questsVerifyCmd)
}

func printQuests(w io.Writer, quests []models.QuestListItem) {
	if len(quests) == 0 {
		fmt.Fprintln(w, "No quests. Create one with 'dungeonmaster quests add <title>'.")
		return
	}
	fmt.Fprintf(w, "%-28s  %-12s  %-7s  %s\n", "ID", "STATUS", "STEPS", "TITLE")
	for _, q := range quests {
		progress := q.StepProgress
		if progress == "" {
			progress = "-"
		}
		status := questStatusColor(q.Status).Sprintf("%-12s", q.Status)
		fmt.Fprintf(w, "%-28s  %s  %-7s  %s\n", q.ID, status, progress, q.Title)
	}
}

func printQuest(w io.Writer, q *models.Quest) {
	done, total := q.StepProgress()
	fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint(q.Title), color.New(color.Faint).Sprintf("(%s)", q.ID))
	fmt.Fprintf(w, "  Status:  %s\n", questStatusColor(q.Status).Sprint(q.Status))
	fmt.Fprintf(w, "  Folder:  %s\n", q.Folder)
	fmt.Fprintf(w, "  Steps:   %d/%d complete\n", done, total)
	if q.UserRequest != "" {
		fmt.Fprintf(w, "  Request: %s\n", q.UserRequest)
	}

	if len(q.Steps) == 0 {
		return
	}
	fmt.Fprintln(w)
	names := make(map[string]string, len(q.Steps))
	for _, s := range q.Steps {
		names[s.ID] = s.Name
	}
	for _, s := range q.Steps {
		fmt.Fprintf(w, "  %s %s\n", stepStatusColor(s.Status).Sprintf("%-18s", s.Status), s.Name)
		if len(s.DependsOn) > 0 {
			deps := make([]string, len(s.DependsOn))
			for i, id := range s.DependsOn {
				deps[i] = names[id]
				if deps[i] == "" {
					deps[i] = short(id, 8)
				}
			}
			fmt.Fprintf(w, "    after: %s\n", strings.Join(deps, ", "))
		}
		if files := s.Files(); len(files) > 0 {
			fmt.Fprintf(w, "    files: %s\n", strings.Join(files, ", "))
		}
		if s.BlockingReason != "" {
			fmt.Fprintf(w, "    blocked: %s\n", s.BlockingReason)
		}
		if s.ErrorMessage != "" {
			fmt.Fprintf(w, "    error: %s\n", color.RedString(s.ErrorMessage))
		}
	}
}
