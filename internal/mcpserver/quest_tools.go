package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ShayCichocki/dungeonmaster/internal/quest"
)

// StartQuestTool handles start-quest.
type StartQuestTool struct {
	o Orchestrator
}

// NewStartQuestTool creates a StartQuestTool.
func NewStartQuestTool(o Orchestrator) *StartQuestTool {
	return &StartQuestTool{o: o}
}

// Definition returns the start-quest schema.
func (t *StartQuestTool) Definition() mcp.Tool {
	return mcp.NewTool("start-quest",
		mcp.WithDescription("Start orchestrating an approved quest in the background. Returns the process id to poll with get-quest-status."),
		mcp.WithString("questId", mcp.Required(), mcp.Description("Quest id, e.g. add-auth")),
	)
}

// Handle starts the quest.
func (t *StartQuestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	questID := req.GetString("questId", "")
	if questID == "" {
		return mcp.NewToolResultError("'questId' is required"), nil
	}
	processID, err := t.o.StartQuest(questID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start quest %s: %v", questID, err)), nil
	}
	return jsonResult(map[string]string{"processId": processID})
}

// GetQuestStatusTool handles get-quest-status.
type GetQuestStatusTool struct {
	o Orchestrator
}

// NewGetQuestStatusTool creates a GetQuestStatusTool.
func NewGetQuestStatusTool(o Orchestrator) *GetQuestStatusTool {
	return &GetQuestStatusTool{o: o}
}

// Definition returns the get-quest-status schema.
func (t *GetQuestStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("get-quest-status",
		mcp.WithDescription("Report phase, step progress and slot activity of an orchestration process."),
		mcp.WithString("processId", mcp.Required(), mcp.Description("Id returned by start-quest")),
	)
}

// Handle returns the process status.
func (t *GetQuestStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	processID := req.GetString("processId", "")
	if processID == "" {
		return mcp.NewToolResultError("'processId' is required"), nil
	}
	st, err := t.o.GetQuestStatus(processID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

// ListQuestsTool handles list-quests.
type ListQuestsTool struct {
	o       Orchestrator
	workDir string
}

// NewListQuestsTool creates a ListQuestsTool that lists from workDir by
// default.
func NewListQuestsTool(o Orchestrator, workDir string) *ListQuestsTool {
	return &ListQuestsTool{o: o, workDir: workDir}
}

// Definition returns the list-quests schema.
func (t *ListQuestsTool) Definition() mcp.Tool {
	return mcp.NewTool("list-quests",
		mcp.WithDescription("List the quests of the project containing startPath."),
		mcp.WithString("startPath", mcp.Description("Any path inside the project (default: server working directory)")),
	)
}

// Handle lists quests.
func (t *ListQuestsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := t.o.ListQuests(req.GetString("startPath", t.workDir))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list quests: %v", err)), nil
	}
	return jsonResult(items)
}

// ModifyQuestTool handles modify-quest.
type ModifyQuestTool struct {
	o Orchestrator
}

// NewModifyQuestTool creates a ModifyQuestTool.
func NewModifyQuestTool(o Orchestrator) *ModifyQuestTool {
	return &ModifyQuestTool{o: o}
}

// Definition returns the modify-quest schema.
func (t *ModifyQuestTool) Definition() mcp.Tool {
	collection := func(name, what string) mcp.ToolOption {
		return mcp.WithArray(name, mcp.Description(what+" to upsert by id"), mcp.Items(map[string]any{"type": "object"}))
	}
	return mcp.NewTool("modify-quest",
		mcp.WithDescription("Upsert collections into a quest. Items whose id exists are replaced, new ids are appended."),
		mcp.WithString("questId", mcp.Required(), mcp.Description("Quest id")),
		collection("contexts", "Contexts"),
		collection("observables", "Observables"),
		collection("requirements", "Requirements"),
		collection("designDecisions", "Design decisions"),
		collection("contracts", "Contracts"),
		collection("toolingRequirements", "Tooling requirements"),
		collection("steps", "Dependency steps (uuid ids)"),
	)
}

// Handle applies the modification.
func (t *ModifyQuestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input quest.ModifyInput
	if err := decodeArgs(req, &input); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if input.QuestID == "" {
		return mcp.NewToolResultError("'questId' is required"), nil
	}
	if err := t.o.ModifyQuest(input); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("modify quest %s: %v", input.QuestID, err)), nil
	}
	return jsonResult(map[string]bool{"success": true})
}

// VerifyQuestTool handles verify-quest.
type VerifyQuestTool struct {
	o Orchestrator
}

// NewVerifyQuestTool creates a VerifyQuestTool.
func NewVerifyQuestTool(o Orchestrator) *VerifyQuestTool {
	return &VerifyQuestTool{o: o}
}

// Definition returns the verify-quest schema.
func (t *VerifyQuestTool) Definition() mcp.Tool {
	return mcp.NewTool("verify-quest",
		mcp.WithDescription("Check a quest plan for duplicate ids, unknown dependencies, cycles and dangling context references."),
		mcp.WithString("questId", mcp.Required(), mcp.Description("Quest id")),
	)
}

// Handle verifies the quest.
func (t *VerifyQuestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	questID := req.GetString("questId", "")
	if questID == "" {
		return mcp.NewToolResultError("'questId' is required"), nil
	}
	problems, err := t.o.VerifyQuest(questID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("verify quest %s: %v", questID, err)), nil
	}
	if len(problems) == 0 {
		return mcp.NewToolResultText("Quest " + questID + " is valid."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Quest %s has %d problems:\n- %s", questID, len(problems), strings.Join(problems, "\n- "))), nil
}
