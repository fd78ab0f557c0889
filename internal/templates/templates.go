// Package templates renders the prompts larvling sends to models.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed *.md.tmpl
var files embed.FS

// Template names.
const (
	Extraction = "extraction.md.tmpl"
	Summarize  = "summarize.md.tmpl"
	Maintain   = "maintain.md.tmpl"
)

// ExtractionData fills the extraction prompt.
type ExtractionData struct {
	UserText  string
	AgentText string
	SessionID string
	// QueryCommand is the shell command the model runs to read the store,
	// with <SQL> as the placeholder.
	QueryCommand string
	// QueryTool is the MCP or function tool offering the same access.
	QueryTool string
}

// SummarizeData fills the summarize prompt.
type SummarizeData struct {
	SessionID    string
	MessageCount int
	// Stale is set when an older summary exists.
	Stale bool
}

// MaintainData fills the maintain prompt.
type MaintainData struct {
	Topics     int
	Statements int
}

// Renderer executes the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	t, err := template.New("larvling").ParseFS(files, "*.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data any) (string, error) {
	if r.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
