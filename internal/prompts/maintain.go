package prompts

import (
	"context"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/HendryAvila/larvling/internal/templates"
	"github.com/mark3labs/mcp-go/mcp"
)

// MaintainPrompt handles the larvling-maintain MCP prompt. It walks the AI
// through consolidating a grown knowledge base.
type MaintainPrompt struct {
	store    *memory.Store
	renderer *templates.Renderer
}

// NewMaintainPrompt creates a MaintainPrompt.
func NewMaintainPrompt(store *memory.Store, renderer *templates.Renderer) *MaintainPrompt {
	return &MaintainPrompt{store: store, renderer: renderer}
}

// Definition returns the MCP prompt definition for registration.
func (p *MaintainPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("larvling-maintain",
		mcp.WithPromptDescription(
			"Review stored knowledge for duplicate topics, repeated statements and stale claims, "+
				"then consolidate with your approval.",
		),
	)
}

// Handle processes the larvling-maintain prompt request.
func (p *MaintainPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	st, err := p.store.KnowledgeStats()
	if err != nil {
		return nil, err
	}
	text, err := p.renderer.Render(templates.Maintain, templates.MaintainData{
		Topics:     st.Topics,
		Statements: st.Statements,
	})
	if err != nil {
		return nil, err
	}
	return &mcp.GetPromptResult{
		Description: "Larvling knowledge maintenance",
		Messages: []mcp.PromptMessage{
			{Role: mcp.RoleUser, Content: mcp.NewTextContent(text)},
		},
	}, nil
}
