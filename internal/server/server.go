// Package server wires the MCP tools, prompts and resources around one
// larvling store.
//
// This is the composition root for `larvling serve`: it creates concrete
// implementations and injects them. No business logic lives here.
package server

import (
	"fmt"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/HendryAvila/larvling/internal/memtools"
	"github.com/HendryAvila/larvling/internal/prompts"
	"github.com/HendryAvila/larvling/internal/resources"
	"github.com/HendryAvila/larvling/internal/sessionctx"
	"github.com/HendryAvila/larvling/internal/templates"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with every tool, prompt and resource
// registered. The caller owns store and builder.
func New(store *memory.Store, builder *sessionctx.Builder) (*server.MCPServer, error) {
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("creating template renderer: %w", err)
	}

	s := server.NewMCPServer(
		"larvling",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Tools ---

	queryTool := memtools.NewQueryTool(store)
	s.AddTool(queryTool.Definition(), queryTool.Handle)

	knowledgeTool := memtools.NewKnowledgeTool(store)
	s.AddTool(knowledgeTool.Definition(), knowledgeTool.Handle)

	tasksTool := memtools.NewTasksTool(store)
	s.AddTool(tasksTool.Definition(), tasksTool.Handle)

	contextTool := memtools.NewContextTool(builder)
	s.AddTool(contextTool.Definition(), contextTool.Handle)

	summaryTool := memtools.NewSummaryTool(store)
	s.AddTool(summaryTool.Definition(), summaryTool.Handle)

	// --- Prompts ---

	summarizePrompt := prompts.NewSummarizePrompt(store, renderer)
	s.AddPrompt(summarizePrompt.Definition(), summarizePrompt.Handle)

	maintainPrompt := prompts.NewMaintainPrompt(store, renderer)
	s.AddPrompt(maintainPrompt.Definition(), maintainPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(store)
	s.AddResource(resourceHandler.StatsResource(), resourceHandler.HandleStats)
	s.AddResource(resourceHandler.TasksResource(), resourceHandler.HandleTasks)

	return s, nil
}

// serverInstructions tells the AI how to use the larvling tools.
func serverInstructions() string {
	return `You have access to Larvling, the persistent memory of this project.

Larvling records every session, extracts durable knowledge (topics with
statements) and tracks tasks between sessions. Use it instead of asking the
user to repeat themselves.

## Tools

- larvling_context: the context injected at session start. Call it after a
  compaction or when you need to re-orient.
- larvling_knowledge: topics and statements, optionally by domain.
- larvling_tasks: open (or done/dropped) tasks with optional updates.
- larvling_query: read-only SQL for anything the other tools do not cover.
- larvling_summary: read or store a session summary.

## Rules

- Weave stored knowledge into answers naturally; do not recite it.
- Never claim to remember something the store does not contain.
- When asked to summarize a session, write 3-6 sentences and store them with
  larvling_summary.`
}
