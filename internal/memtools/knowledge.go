package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultTopicLimit = 50

// KnowledgeTool handles the larvling_knowledge MCP tool.
type KnowledgeTool struct {
	store *memory.Store
}

// NewKnowledgeTool creates a KnowledgeTool.
func NewKnowledgeTool(store *memory.Store) *KnowledgeTool {
	return &KnowledgeTool{store: store}
}

// Definition returns the MCP tool definition for larvling_knowledge.
func (t *KnowledgeTool) Definition() mcp.Tool {
	domains := make([]string, 0, len(memory.Domains))
	for _, d := range memory.Domains {
		domains = append(domains, string(d))
	}
	return mcp.NewTool("larvling_knowledge",
		mcp.WithDescription(
			"List stored knowledge: topics with their statements. Use before answering questions "+
				"about the user's preferences, projects or past decisions.",
		),
		mcp.WithString("domain",
			mcp.Description("Only topics in this domain"),
			mcp.Enum(domains...),
		),
		mcp.WithString("detail_level",
			mcp.Description("summary: topic titles only; standard: statements truncated (default); full: everything"),
			mcp.Enum(detailLevels()...),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max topics (default: 50)"),
		),
	)
}

// Handle processes the larvling_knowledge tool call.
func (t *KnowledgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var domain memory.Domain
	if raw := req.GetString("domain", ""); raw != "" {
		d, ok := memory.ParseDomain(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown domain %q", raw)), nil
		}
		domain = d
	}
	detail := parseDetailLevel(req.GetString("detail_level", ""))
	limit := intArg(req, "limit", defaultTopicLimit)
	if limit <= 0 {
		limit = defaultTopicLimit
	}

	topics, err := t.store.ListTopics(domain)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list topics: %v", err)), nil
	}
	if len(topics) == 0 {
		return mcp.NewToolResultText("No knowledge stored yet."), nil
	}

	total := len(topics)
	if len(topics) > limit {
		topics = topics[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Knowledge (%d topics)\n\n", total)
	for _, tp := range topics {
		fmt.Fprintf(&b, "### #%d %s [%s]", tp.ID, tp.Title, tp.Domain)
		if tp.Tags != "" {
			fmt.Fprintf(&b, " (%s)", tp.Tags)
		}
		b.WriteString("\n")
		if detail == DetailSummary {
			continue
		}

		stmts, err := t.store.TopicStatements(tp.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list statements: %v", err)), nil
		}
		for _, s := range stmts {
			claim := s.Claim
			if detail == DetailStandard {
				claim = memory.Truncate(claim, snippetLen)
			}
			fmt.Fprintf(&b, "- %d: %s\n", s.ID, claim)
		}
		b.WriteString("\n")
	}
	b.WriteString(navigationHint(len(topics), total))
	return mcp.NewToolResultText(withFooter(b.String())), nil
}
