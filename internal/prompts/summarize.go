// Package prompts implements the MCP prompts larvling offers.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"errors"
	"fmt"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/HendryAvila/larvling/internal/templates"
	"github.com/mark3labs/mcp-go/mcp"
)

// SummarizePrompt handles the larvling-summarize MCP prompt.
type SummarizePrompt struct {
	store    *memory.Store
	renderer *templates.Renderer
}

// NewSummarizePrompt creates a SummarizePrompt.
func NewSummarizePrompt(store *memory.Store, renderer *templates.Renderer) *SummarizePrompt {
	return &SummarizePrompt{store: store, renderer: renderer}
}

// Definition returns the MCP prompt definition for registration.
func (p *SummarizePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("larvling-summarize",
		mcp.WithPromptDescription(
			"Summarize a session and store the summary so future sessions start with it.",
		),
		mcp.WithArgument("session_id",
			mcp.ArgumentDescription("Session id or prefix"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the larvling-summarize prompt request.
func (p *SummarizePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id := req.Params.Arguments["session_id"]
	if id == "" {
		return nil, errors.New("session_id is required")
	}

	sess, err := p.store.GetSummary(id)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", id, err)
	}
	n, err := p.store.CountMessages(sess.ID, memory.RoleUser, memory.RoleAssistant)
	if err != nil {
		return nil, err
	}

	short := memory.ShortID(sess.ID)
	text, err := p.renderer.Render(templates.Summarize, templates.SummarizeData{
		SessionID:    short,
		MessageCount: n,
		Stale:        sess.AgentSummary != nil,
	})
	if err != nil {
		return nil, err
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Summarize session %s", short),
		Messages: []mcp.PromptMessage{
			{Role: mcp.RoleUser, Content: mcp.NewTextContent(text)},
		},
	}, nil
}
