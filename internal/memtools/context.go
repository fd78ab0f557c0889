package memtools

import (
	"context"

	"github.com/HendryAvila/larvling/internal/sessionctx"
	"github.com/mark3labs/mcp-go/mcp"
)

// ContextTool handles the larvling_context MCP tool.
type ContextTool struct {
	builder *sessionctx.Builder
}

// NewContextTool creates a ContextTool.
func NewContextTool(builder *sessionctx.Builder) *ContextTool {
	return &ContextTool{builder: builder}
}

// Definition returns the MCP tool definition for larvling_context.
func (t *ContextTool) Definition() mcp.Tool {
	return mcp.NewTool("larvling_context",
		mcp.WithDescription(
			"Get the session context Larvling injects at startup: recent and relevant sessions, "+
				"stored knowledge and open tasks. Useful after a compaction.",
		),
	)
}

// Handle processes the larvling_context tool call.
func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(withFooter(t.builder.Context(ctx))), nil
}
