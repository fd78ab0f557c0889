package memtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultQueryRows = 100

// QueryTool handles the larvling_query MCP tool.
type QueryTool struct {
	store *memory.Store
}

// NewQueryTool creates a QueryTool.
func NewQueryTool(store *memory.Store) *QueryTool {
	return &QueryTool{store: store}
}

// Definition returns the MCP tool definition for larvling_query.
func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("larvling_query",
		mcp.WithDescription(
			"Run a read-only SQL query against the Larvling store. Tables: "+
				"topics(id, title, domain, tags, created, updated), "+
				"statements(id, topic_id, claim, created, updated), "+
				"tasks(id, title, domain, status, priority, horizon, metadata, created), "+
				"updates(id, task_id, content, timestamp), "+
				"sessions(id, started_at, ended_at, duration_min, title, agent_summary, exchange_count, summary_at, summary_msg_count, tags, summary_offered), "+
				"messages(id, session_id, timestamp, role, content, metadata). Writes are rejected.",
		),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("A single SELECT (or other row-returning) statement"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max rows returned (default: 100)"),
		),
	)
}

// Handle processes the larvling_query tool call.
func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sql := strings.TrimSpace(req.GetString("sql", ""))
	if sql == "" {
		return mcp.NewToolResultError("'sql' is required"), nil
	}
	limit := intArg(req, "limit", defaultQueryRows)
	if limit <= 0 {
		limit = defaultQueryRows
	}

	res, err := t.store.QueryReadOnly(ctx, sql)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	total := len(res.Rows)
	rows := res.Rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []memory.Row{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding rows: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d row(s) | columns: %s\n\n", total, strings.Join(res.Columns, ", "))
	b.Write(data)
	b.WriteString(navigationHint(len(rows), total))
	return mcp.NewToolResultText(withFooter(b.String())), nil
}
