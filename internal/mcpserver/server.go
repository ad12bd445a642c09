// Package mcpserver exposes the orchestrator to agents and editors as MCP
// tools over stdio.
//
// Each tool follows the same shape:
//   - a struct holding its dependencies, built by a New*Tool constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() validates arguments and calls the orchestrator
//
// Tool failures are reported as error results, never as protocol errors,
// so agents can read and react to them.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ShayCichocki/dungeonmaster/internal/exec"
	"github.com/ShayCichocki/dungeonmaster/internal/orchestrator"
	"github.com/ShayCichocki/dungeonmaster/internal/quest"
	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// ServerName is the MCP server name. Agents see its tools as
// mcp__dungeonmaster__<tool>.
const ServerName = "dungeonmaster"

// Orchestrator is the part of *orchestrator.Orchestrator the tools use.
type Orchestrator interface {
	StartQuest(questID string) (string, error)
	GetQuestStatus(processID string) (orchestrator.ProcessStatus, error)
	ListQuests(startPath string) ([]models.QuestListItem, error)
	ModifyQuest(input quest.ModifyInput) error
	VerifyQuest(questID string) ([]string, error)
	ListProjects() ([]models.ProjectListItem, error)
	ListGuilds() ([]models.GuildListItem, error)
	AddProject(name, path string) (models.Project, error)
	WardRaw(ctx context.Context, dir string, args ...string) (exec.Result, error)
}

var _ Orchestrator = (*orchestrator.Orchestrator)(nil)

// Tool is one registered MCP tool.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Tools returns every tool backed by o. workDir is the default start path
// for quest listings.
func Tools(o Orchestrator, workDir string) []Tool {
	return []Tool{
		NewStartQuestTool(o),
		NewGetQuestStatusTool(o),
		NewListQuestsTool(o, workDir),
		NewModifyQuestTool(o),
		NewVerifyQuestTool(o),
		NewListProjectsTool(o),
		NewListGuildsTool(o),
		NewAddProjectTool(o),
		NewWardRawTool(o, workDir),
		NewSignalBackTool(),
	}
}

// New builds the MCP server with every tool registered.
func New(o Orchestrator, workDir, version string) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range Tools(o, workDir) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Serve runs s on stdin and stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `dungeonmaster orchestrates quests: multi-step plans executed by Claude agents.
Use list-quests and start-quest to run a quest, get-quest-status to follow it.
Agents working on a step must finish with signal-back.`

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// decodeArgs re-decodes the raw tool arguments into v.
func decodeArgs(req mcp.CallToolRequest, v any) error {
	data, err := json.Marshal(req.GetArguments())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
