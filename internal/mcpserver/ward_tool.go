package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// WardRawTool handles ward-raw.
type WardRawTool struct {
	o       Orchestrator
	workDir string
}

// NewWardRawTool creates a WardRawTool that runs in workDir by default.
func NewWardRawTool(o Orchestrator, workDir string) *WardRawTool {
	return &WardRawTool{o: o, workDir: workDir}
}

// Definition returns the ward-raw schema.
func (t *WardRawTool) Definition() mcp.Tool {
	return mcp.NewTool("ward-raw",
		mcp.WithDescription("Run the ward verification CLI with arbitrary arguments and return its combined output, e.g. [\"detail\", \"<runId>\"]."),
		mcp.WithArray("args", mcp.Required(), mcp.Description("Arguments passed to ward"), mcp.WithStringItems()),
		mcp.WithString("cwd", mcp.Description("Directory to run in (default: server working directory)")),
	)
}

// Handle runs ward.
func (t *WardRawTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetStringSlice("args", nil)
	if len(args) == 0 {
		return mcp.NewToolResultError("'args' is required"), nil
	}
	res, err := t.o.WardRaw(ctx, req.GetString("cwd", t.workDir), args...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ward: %v", err)), nil
	}
	text := fmt.Sprintf("exit code %d\n%s", res.ExitCode, res.Output)
	if res.ExitCode != 0 {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}
