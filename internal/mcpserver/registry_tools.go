package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ListProjectsTool handles list-projects.
type ListProjectsTool struct {
	o Orchestrator
}

// NewListProjectsTool creates a ListProjectsTool.
func NewListProjectsTool(o Orchestrator) *ListProjectsTool {
	return &ListProjectsTool{o: o}
}

// Definition returns the list-projects schema.
func (t *ListProjectsTool) Definition() mcp.Tool {
	return mcp.NewTool("list-projects",
		mcp.WithDescription("List registered projects with their quest counts."),
	)
}

// Handle lists projects.
func (t *ListProjectsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := t.o.ListProjects()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list projects: %v", err)), nil
	}
	return jsonResult(items)
}

// ListGuildsTool handles list-guilds.
type ListGuildsTool struct {
	o Orchestrator
}

// NewListGuildsTool creates a ListGuildsTool.
func NewListGuildsTool(o Orchestrator) *ListGuildsTool {
	return &ListGuildsTool{o: o}
}

// Definition returns the list-guilds schema.
func (t *ListGuildsTool) Definition() mcp.Tool {
	return mcp.NewTool("list-guilds",
		mcp.WithDescription("List registered guilds with their quest counts."),
	)
}

// Handle lists guilds.
func (t *ListGuildsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := t.o.ListGuilds()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list guilds: %v", err)), nil
	}
	return jsonResult(items)
}

// AddProjectTool handles add-project.
type AddProjectTool struct {
	o Orchestrator
}

// NewAddProjectTool creates an AddProjectTool.
func NewAddProjectTool(o Orchestrator) *AddProjectTool {
	return &AddProjectTool{o: o}
}

// Definition returns the add-project schema.
func (t *AddProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("add-project",
		mcp.WithDescription("Register a project directory."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute project directory")),
	)
}

// Handle registers the project.
func (t *AddProjectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	path := req.GetString("path", "")
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	p, err := t.o.AddProject(name, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("add project: %v", err)), nil
	}
	return jsonResult(p)
}
