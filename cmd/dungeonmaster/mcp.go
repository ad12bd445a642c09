package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/dungeonmaster/internal/mcpserver"
	"github.com/ShayCichocki/dungeonmaster/internal/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout exposing quest, registry, ward and
signal-back tools. Agents started by dungeonmaster call signal-back to
report the outcome of their step.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(true)
		if err != nil {
			return err
		}
		defer e.Close()
		return mcpserver.Serve(mcpserver.New(e.orch, e.workDir, version.Get()))
	},
}
