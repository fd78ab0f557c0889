package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// TasksTool handles the larvling_tasks MCP tool.
type TasksTool struct {
	store *memory.Store
}

// NewTasksTool creates a TasksTool.
func NewTasksTool(store *memory.Store) *TasksTool {
	return &TasksTool{store: store}
}

// Definition returns the MCP tool definition for larvling_tasks.
func (t *TasksTool) Definition() mcp.Tool {
	return mcp.NewTool("larvling_tasks",
		mcp.WithDescription(
			"List tracked tasks, highest priority and nearest horizon first, optionally with their progress updates.",
		),
		mcp.WithString("status",
			mcp.Description("open (default), done, dropped or all"),
			mcp.Enum("open", "done", "dropped", "all"),
		),
		mcp.WithBoolean("include_updates",
			mcp.Description("Include progress updates under each task (default: false)"),
		),
		mcp.WithString("detail_level",
			mcp.Description("standard truncates update text (default); full shows it all"),
			mcp.Enum(detailLevels()...),
		),
	)
}

// Handle processes the larvling_tasks tool call.
func (t *TasksTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("status", string(memory.StatusOpen))
	var status memory.Status
	if raw != "all" {
		s, ok := memory.ParseStatus(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", raw)), nil
		}
		status = s
	}
	withUpdates := boolArg(req, "include_updates", false)
	detail := parseDetailLevel(req.GetString("detail_level", ""))

	tasks, err := t.store.ListTasks(status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No %s tasks.", raw)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Tasks: %s (%d)\n\n", raw, len(tasks))
	for _, tk := range tasks {
		fmt.Fprintf(&b, "- #%d [%s/%s] %s (%s, %s)\n", tk.ID, tk.Priority, tk.Horizon, tk.Title, tk.Domain, tk.Status)
		if !withUpdates {
			continue
		}
		ups, err := t.store.TaskUpdates(tk.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list updates: %v", err)), nil
		}
		for _, u := range ups {
			content := u.Content
			if detail != DetailFull {
				content = memory.Truncate(content, snippetLen)
			}
			fmt.Fprintf(&b, "  - %s: %s\n", u.Timestamp, content)
		}
	}
	return mcp.NewToolResultText(withFooter(b.String())), nil
}
