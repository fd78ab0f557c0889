package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/HendryAvila/larvling/internal/config"
)

const (
	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"

	// QueryToolName is the function tool through which the model reads the
	// store.
	QueryToolName = "query_store"

	defaultOpenAITurns = 5
)

// OpenAI calls an OpenAI-compatible chat completions endpoint. When a query
// function is configured the model may call QueryToolName before answering.
type OpenAI struct {
	client   openai.Client
	model    string
	maxTurns int
	timeout  time.Duration
	query    QueryFunc
}

// NewOpenAI builds an OpenAI caller. The API key comes from cfg or, failing
// that, OPENAI_API_KEY.
func NewOpenAI(cfg config.LLMConfig, query QueryFunc) (*OpenAI, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("openai: API key is required (llm.api_key or OPENAI_API_KEY)")
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	o := &OpenAI{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		maxTurns: cfg.MaxTurns,
		timeout:  cfg.Timeout,
		query:    query,
	}
	if o.model == "" {
		o.model = DefaultOpenAIModel
	}
	if o.maxTurns <= 0 {
		o.maxTurns = defaultOpenAITurns
	}
	return o, nil
}

// Call sends the prompt and follows tool calls until the model answers or
// the turn budget runs out.
func (o *OpenAI) Call(ctx context.Context, req Request) (*Response, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "extraction",
					Schema: req.Schema,
				},
			},
		}
	}
	if o.query != nil {
		params.Tools = []openai.ChatCompletionToolParam{queryTool()}
	}

	turns := req.MaxTurns
	if turns <= 0 {
		turns = o.maxTurns
	}

	resp := &Response{}
	for turn := 0; turn < turns; turn++ {
		completion, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai: chat completion: %w", err)
		}
		resp.Usage.InputTokens += completion.Usage.PromptTokens
		resp.Usage.OutputTokens += completion.Usage.CompletionTokens
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("openai: empty choices")
		}

		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return finish(resp, msg.Content, req.Schema != nil)
		}

		params.Messages = append(params.Messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			params.Messages = append(params.Messages,
				openai.ToolMessage(o.runTool(ctx, call.Function.Name, call.Function.Arguments), call.ID))
		}
	}
	return nil, fmt.Errorf("openai: no answer after %d turns", turns)
}

func (o *OpenAI) runTool(ctx context.Context, name, arguments string) string {
	if name != QueryToolName || o.query == nil {
		return fmt.Sprintf("error: unknown tool %q", name)
	}
	var args struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || strings.TrimSpace(args.SQL) == "" {
		return "error: expected arguments {\"sql\": \"SELECT ...\"}"
	}
	out, err := o.query(ctx, args.SQL)
	if err != nil {
		return "error: " + err.Error()
	}
	return out
}

func finish(resp *Response, content string, wantStructured bool) (*Response, error) {
	resp.Text = strings.TrimSpace(content)
	if !wantStructured {
		return resp, nil
	}
	raw := json.RawMessage(resp.Text)
	if !json.Valid(raw) || !hasValue(raw) {
		return resp, ErrNoStructuredOutput
	}
	resp.Structured = raw
	return resp, nil
}

func queryTool() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Function: shared.FunctionDefinitionParam{
			Name:        QueryToolName,
			Description: openai.String("Run one read-only SQL SELECT against the larvling SQLite store and return the rows as JSON."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"sql": map[string]any{
						"type":        "string",
						"description": "A single SELECT statement.",
					},
				},
				"required": []string{"sql"},
			},
		},
	}
}
