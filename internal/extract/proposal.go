package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/larvling/internal/reconcile"
)

// ErrNotAnObject is returned when the model's structured output is not a
// JSON object.
var ErrNotAnObject = errors.New("structured output is not an object")

// Proposal is the model's structured answer. Items stay raw so each one is
// decoded and validated on its own.
type Proposal struct {
	Knowledge []json.RawMessage
	Tasks     []json.RawMessage
	// SessionTags is nil when the model sent no list.
	SessionTags []string
	// TagsProposed is set when session_tags was present and a list.
	TagsProposed bool
}

// ParseProposal decodes structured output. Sections that are absent or not
// lists read as empty.
func ParseProposal(raw json.RawMessage) (*Proposal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotAnObject
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnObject, err)
	}

	p := &Proposal{
		Knowledge: list(top["knowledge"]),
		Tasks:     list(top["tasks"]),
	}
	if tags, ok := tagList(top["session_tags"]); ok {
		p.SessionTags, p.TagsProposed = tags, true
	}
	return p, nil
}

func list(raw json.RawMessage) []json.RawMessage {
	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// tagList reads a JSON list, stringifying non-string entries.
func tagList(raw json.RawMessage) ([]string, bool) {
	var items []any
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil || items == nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case nil:
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, true
}

// MergeTags trims tags, drops empties and removes case-insensitive repeats,
// keeping the first spelling and the given order. The result is joined with
// ", " and is empty when nothing survives.
func MergeTags(tags []string) string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return strings.Join(out, ", ")
}

// SummaryMessage renders the system message recorded after an extraction,
// e.g. "Extraction: knowledge=1 topics, 1 statements, 1 tasks".
func SummaryMessage(k reconcile.KnowledgeResult, t reconcile.TaskResult) string {
	var kp []string
	if k.TopicsInserted > 0 {
		kp = append(kp, fmt.Sprintf("%d topics", k.TopicsInserted))
	}
	if k.StatementsInserted > 0 {
		kp = append(kp, fmt.Sprintf("%d statements", k.StatementsInserted))
	}
	if n := k.StatementsUpdated + k.TopicsUpdated; n > 0 {
		kp = append(kp, fmt.Sprintf("%d updated", n))
	}
	ks := "no changes"
	if len(kp) > 0 {
		ks = strings.Join(kp, ", ")
	}

	var tp []string
	if t.TasksInserted > 0 {
		tp = append(tp, fmt.Sprintf("%d tasks", t.TasksInserted))
	}
	if t.UpdatesInserted > 0 {
		tp = append(tp, fmt.Sprintf("%d updates", t.UpdatesInserted))
	}
	if t.TasksUpdated > 0 {
		tp = append(tp, fmt.Sprintf("%d modified", t.TasksUpdated))
	}
	ts := "no tasks"
	if len(tp) > 0 {
		ts = strings.Join(tp, ", ")
	}
	return "Extraction: knowledge=" + ks + ", " + ts
}
