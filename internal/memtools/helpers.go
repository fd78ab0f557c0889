// Package memtools provides the MCP tool handlers that expose the larvling
// store to the agent.
//
// Each tool follows the same pattern:
// - A struct with its dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Every tool reads; only larvling_summary writes, and only the summary
// columns of one session.
package memtools

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
)

// Detail levels for read-heavy tools.
const (
	DetailSummary  = "summary"
	DetailStandard = "standard"
	DetailFull     = "full"
)

// snippetLen bounds statement and update text at standard detail.
const snippetLen = 200

// detailLevels lists the enum values used in tool definitions.
func detailLevels() []string {
	return []string{DetailSummary, DetailStandard, DetailFull}
}

// parseDetailLevel defaults empty or unknown values to standard.
func parseDetailLevel(s string) string {
	switch s {
	case DetailSummary, DetailFull:
		return s
	default:
		return DetailStandard
	}
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// estimateTokens approximates tokens as chars/4, at least 1 for non-empty
// text.
func estimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	if n < 4 {
		return 1
	}
	return n / 4
}

// withFooter appends the estimated token cost of text.
func withFooter(text string) string {
	return text + fmt.Sprintf("\n---\n~%s tokens", humanize.Comma(int64(estimateTokens(text))))
}

// navigationHint returns a one-line footer when results were capped.
func navigationHint(showing, total int) string {
	if total <= 0 || showing >= total {
		return ""
	}
	return fmt.Sprintf("\nShowing %d of %d. Raise limit to see more.", showing, total)
}
