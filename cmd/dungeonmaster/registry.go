package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/dungeonmaster/internal/orchestrator"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// registryKind describes one of the two registries in config.json.
type registryKind struct {
	name     string
	singular string
	list     func(*orchestrator.Orchestrator) ([]models.ProjectListItem, error)
	add      func(o *orchestrator.Orchestrator, name, path string) (models.Project, error)
	get      func(o *orchestrator.Orchestrator, id string) (models.Project, error)
	remove   func(o *orchestrator.Orchestrator, id string) error
}

var kindProjects = registryKind{
	name:     "projects",
	singular: "project",
	list:     (*orchestrator.Orchestrator).ListProjects,
	add:      (*orchestrator.Orchestrator).AddProject,
	get:      (*orchestrator.Orchestrator).GetProject,
	remove:   (*orchestrator.Orchestrator).RemoveProject,
}

var kindGuilds = registryKind{
	name:     "guilds",
	singular: "guild",
	list:     (*orchestrator.Orchestrator).ListGuilds,
	add:      (*orchestrator.Orchestrator).AddGuild,
	get:      (*orchestrator.Orchestrator).GetGuild,
	remove:   (*orchestrator.Orchestrator).RemoveGuild,
}

// newRegistryCmd builds the list/add/remove/show command tree for k.
func newRegistryCmd(k registryKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   k.name,
		Short: fmt.Sprintf("Manage registered %s", k.name),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List registered %s", k.name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *orchestrator.Orchestrator) error {
				items, err := k.list(o)
				if err != nil {
					return err
				}
				printRegistry(cmd.OutOrStdout(), k, items)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <path>",
		Short: fmt.Sprintf("Register a %s directory", k.singular),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			return withOrchestrator(func(o *orchestrator.Orchestrator) error {
				p, err := k.add(o, args[0], path)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Registered %s %s (%s)", k.singular, p.Name, p.ID), color.FgGreen)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: fmt.Sprintf("Unregister a %s", k.singular),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *orchestrator.Orchestrator) error {
				if err := k.remove(o, args[0]); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Removed %s %s", k.singular, args[0]), color.FgGreen)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: fmt.Sprintf("Show a %s", k.singular),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *orchestrator.Orchestrator) error {
				p, err := k.get(o, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint(p.Name), color.New(color.Faint).Sprintf("(%s)", p.ID))
				fmt.Fprintf(w, "  Path:    %s\n", p.Path)
				fmt.Fprintf(w, "  Created: %s\n", p.CreatedAt.Format("2006-01-02 15:04"))
				return nil
			})
		},
	})
	return cmd
}

func withOrchestrator(fn func(*orchestrator.Orchestrator) error) error {
	e, err := openEnv(false)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e.orch)
}

func printRegistry(w io.Writer, k registryKind, items []models.ProjectListItem) {
	if len(items) == 0 {
		fmt.Fprintf(w, "No %s registered. Add one with 'dungeonmaster %s add <name> <path>'.\n", k.name, k.name)
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-6s  %s\n", "ID", "NAME", "QUESTS", "PATH")
	for _, it := range items {
		path := it.Path
		if !it.Valid {
			path = color.RedString("%s (missing)", it.Path)
		}
		fmt.Fprintf(w, "%-36s  %-20s  %-6d  %s\n", it.ID, short(it.Name, 20), it.QuestCount, path)
	}
}
