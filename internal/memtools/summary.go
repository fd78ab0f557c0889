package memtools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// SummaryTool handles the larvling_summary MCP tool.
type SummaryTool struct {
	store *memory.Store
}

// NewSummaryTool creates a SummaryTool.
func NewSummaryTool(store *memory.Store) *SummaryTool {
	return &SummaryTool{store: store}
}

// Definition returns the MCP tool definition for larvling_summary.
func (t *SummaryTool) Definition() mcp.Tool {
	return mcp.NewTool("larvling_summary",
		mcp.WithDescription(
			"Get or store the summary of a session. With 'summary' set the text is stored "+
				"along with the current message count; without it the stored summary is returned.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id or a unique prefix of it (8 characters is usually enough)"),
		),
		mcp.WithString("summary",
			mcp.Description("Summary text to store"),
		),
	)
}

// Handle processes the larvling_summary tool call.
func (t *SummaryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("session_id", ""))
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	if text := strings.TrimSpace(req.GetString("summary", "")); text != "" {
		res, err := t.store.StoreSummary(id, text)
		if errors.Is(err, memory.ErrSessionNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("No session found matching '%s'", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to store summary: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Session summary stored for session %s (%d messages)",
			memory.ShortID(res.SessionID), res.MessageCount)), nil
	}

	sess, err := t.store.GetSummary(id)
	if err != nil && !errors.Is(err, memory.ErrSessionNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get summary: %v", err)), nil
	}
	if sess == nil || sess.AgentSummary == nil {
		return mcp.NewToolResultText(fmt.Sprintf("No session summary found for session matching '%s'", id)), nil
	}
	return mcp.NewToolResultText(*sess.AgentSummary), nil
}
