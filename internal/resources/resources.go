// Package resources implements MCP resource handlers for the larvling store.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (larvling://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// Resource URIs.
const (
	StatsURI = "larvling://knowledge/stats"
	TasksURI = "larvling://tasks/open"
)

// Handler serves store resources.
type Handler struct {
	store *memory.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(store *memory.Store) *Handler {
	return &Handler{store: store}
}

// StatsResource returns the MCP resource definition for knowledge stats.
func (h *Handler) StatsResource() mcp.Resource {
	return mcp.NewResource(
		StatsURI,
		"Larvling Knowledge Stats",
		mcp.WithResourceDescription("Topic and statement counts with the per-domain breakdown"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStats returns the knowledge stats as JSON.
func (h *Handler) HandleStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	st, err := h.store.KnowledgeStats()
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, st)
}

// TasksResource returns the MCP resource definition for open tasks.
func (h *Handler) TasksResource() mcp.Resource {
	return mcp.NewResource(
		TasksURI,
		"Larvling Open Tasks",
		mcp.WithResourceDescription("Open tasks, highest priority and nearest horizon first"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleTasks returns the open tasks as JSON.
func (h *Handler) HandleTasks(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	tasks, err := h.store.OpenTasks()
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	if tasks == nil {
		tasks = []memory.Task{}
	}
	return jsonResource(req.Params.URI, tasks)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
