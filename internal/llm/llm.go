// Package llm is the boundary to the model that performs extraction.
//
// A Caller takes a prompt plus a JSON schema and returns the structured
// object the model produced. Two implementations exist: ClaudeCLI drives the
// local claude binary, OpenAI talks to any chat-completions endpoint.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HendryAvila/larvling/internal/config"
	"github.com/HendryAvila/larvling/internal/memory"
)

// InternalEnv marks processes spawned by larvling itself. Hooks fired by
// such a process must do nothing.
const InternalEnv = "LARVLING_INTERNAL"

// ErrNoStructuredOutput is returned when a schema was requested but the
// model finished without producing a structured object.
var ErrNoStructuredOutput = errors.New("structured output not returned")

// Caller performs one model call.
type Caller interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// Request is a single prompt with optional tool access and output schema.
type Request struct {
	Prompt       string
	AllowedTools []string
	Schema       map[string]any
	// MaxTurns bounds agentic tool loops. Zero means the caller's default.
	MaxTurns int
}

// Response is what the model returned.
type Response struct {
	// Structured is the schema-conforming object, nil when no schema was set.
	Structured json.RawMessage
	Text       string
	Usage      Usage
}

// Usage reports token accounting when the provider exposes it.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// QueryFunc runs a read-only SQL query for the model and returns the rows
// rendered as text.
type QueryFunc func(ctx context.Context, query string) (string, error)

// Querier is the read-only slice of the store a QueryFunc needs.
type Querier interface {
	QueryReadOnly(ctx context.Context, query string, args ...any) (*memory.QueryResult, error)
}

// StoreQuery adapts a store to a QueryFunc. Rows are returned as JSON.
func StoreQuery(q Querier) QueryFunc {
	return func(ctx context.Context, query string) (string, error) {
		res, err := q.QueryReadOnly(ctx, query)
		if err != nil {
			return "", err
		}
		if res.Rows == nil {
			res.Rows = []memory.Row{}
		}
		b, err := json.Marshal(res.Rows)
		if err != nil {
			return "", fmt.Errorf("encoding rows: %w", err)
		}
		return string(b), nil
	}
}

// New returns the Caller selected by cfg. query backs the OpenAI store
// tool and may be nil.
func New(cfg config.LLMConfig, query QueryFunc) (Caller, error) {
	switch cfg.Provider {
	case "", config.ProviderClaude:
		return NewClaudeCLI(cfg), nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg, query)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
