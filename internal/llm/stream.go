package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Stream message types emitted by `claude --output-format stream-json`.
const (
	EventAssistant = "assistant"
	EventResult    = "result"
)

// Event is one line of the CLI's stream-json output. Exactly one of
// Assistant, Result and Unknown is set.
type Event struct {
	Type      string
	Assistant *AssistantEvent
	Result    *ResultEvent
	// Unknown holds lines of any other type (system, user, rate limit
	// notices, ...). They are ignored.
	Unknown json.RawMessage
}

// AssistantEvent carries a model turn.
type AssistantEvent struct {
	Message struct {
		Content []ContentBlock `json:"content"`
	} `json:"message"`
}

// ContentBlock is one block of an assistant turn.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ResultEvent is the final line of a run.
type ResultEvent struct {
	Subtype          string          `json:"subtype"`
	IsError          bool            `json:"is_error"`
	Result           string          `json:"result"`
	StructuredOutput json.RawMessage `json:"structured_output"`
	TotalCostUSD     float64         `json:"total_cost_usd"`
	Usage            struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// UnmarshalJSON selects the variant from the "type" field.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*e = Event{Type: head.Type}
	switch head.Type {
	case EventAssistant:
		e.Assistant = &AssistantEvent{}
		return json.Unmarshal(data, e.Assistant)
	case EventResult:
		e.Result = &ResultEvent{}
		return json.Unmarshal(data, e.Result)
	default:
		e.Unknown = append(json.RawMessage(nil), data...)
		return nil
	}
}

// ParseStream folds a stream-json transcript into a Response. Lines that
// are not JSON or fail to decode are skipped. When wantStructured is set, a
// missing structured_output yields ErrNoStructuredOutput.
func ParseStream(r io.Reader, wantStructured bool) (*Response, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		text   strings.Builder
		result *ResultEvent
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		switch {
		case ev.Assistant != nil:
			for _, b := range ev.Assistant.Message.Content {
				if b.Type == "text" {
					text.WriteString(b.Text)
				}
			}
		case ev.Result != nil:
			result = ev.Result
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	resp := &Response{Text: strings.TrimSpace(text.String())}
	subtype := ""
	if result != nil {
		subtype = result.Subtype
		resp.Usage = Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			CostUSD:      result.TotalCostUSD,
		}
		if hasValue(result.StructuredOutput) {
			resp.Structured = result.StructuredOutput
		}
		if resp.Text == "" {
			resp.Text = strings.TrimSpace(result.Result)
		}
	}
	if wantStructured && resp.Structured == nil {
		return resp, fmt.Errorf("%w (subtype=%s)", ErrNoStructuredOutput, subtype)
	}
	return resp, nil
}

func hasValue(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}
