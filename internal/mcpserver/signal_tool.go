package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ShayCichocki/dungeonmaster/internal/stream"
)

// SignalBackTool handles signal-back. The orchestrator reads the signal
// from the agent's stream; the tool only validates and acknowledges it.
type SignalBackTool struct{}

// NewSignalBackTool creates a SignalBackTool.
func NewSignalBackTool() *SignalBackTool {
	return &SignalBackTool{}
}

// Definition returns the signal-back schema.
func (t *SignalBackTool) Definition() mcp.Tool {
	return mcp.NewTool("signal-back",
		mcp.WithDescription("Report the outcome of your step to the orchestrator. Call it exactly once, as your last action."),
		mcp.WithString("signal",
			mcp.Required(),
			mcp.Enum(string(stream.SignalComplete), string(stream.SignalPartiallyComplete), string(stream.SignalNeedsRoleFollowup)),
			mcp.Description("complete, partially-complete or needs-role-followup"),
		),
		mcp.WithString("stepId", mcp.Required(), mcp.Description("Uuid of the step you worked on")),
		mcp.WithString("summary", mcp.Description("What you did")),
		mcp.WithString("progress", mcp.Description("partially-complete: what is done so far")),
		mcp.WithString("continuationPoint", mcp.Description("partially-complete: where the next session should resume")),
		mcp.WithString("targetRole", mcp.Description("needs-role-followup: role that must act, e.g. spiritmender")),
		mcp.WithString("reason", mcp.Description("needs-role-followup: why the step is blocked")),
		mcp.WithString("context", mcp.Description("needs-role-followup: what the followup agent needs to know")),
		mcp.WithBoolean("resume", mcp.Description("needs-role-followup: whether work should resume afterwards")),
	)
}

// Handle validates the signal.
func (t *SignalBackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	sig, err := stream.ParseSignal(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Signal %s received for step %s.", sig.Signal, sig.StepID)), nil
}
