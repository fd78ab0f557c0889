package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Action names understood by the engine.
const (
	ActionAddTopic        = "add_topic"
	ActionAddStatement    = "add_statement"
	ActionUpdateStatement = "update_statement"
	ActionUpdateTopic     = "update_topic"

	ActionAddTask    = "add_task"
	ActionAddUpdate  = "add_update"
	ActionUpdateTask = "update_task"
)

// ─── Knowledge actions ───────────────────────────────────────────────────────

// KnowledgeAction is one proposed change to topics or statements. The
// concrete types are AddTopic, AddStatement, UpdateStatement, UpdateTopic
// and UnknownKnowledge.
type KnowledgeAction interface {
	knowledgeAction()
}

// AddTopic creates a topic together with its first statement.
type AddTopic struct {
	Title  string
	Domain string
	Tags   string
	Claim  string
}

// AddStatement adds a claim under an existing topic.
type AddStatement struct {
	TopicID ID
	Claim   string
}

// UpdateStatement rewrites the claim of an existing statement.
type UpdateStatement struct {
	StatementID ID
	Claim       string
}

// UpdateTopic retitles a topic and optionally changes its domain and tags.
type UpdateTopic struct {
	TopicID ID
	Title   string
	Domain  string
	Tags    string
}

// UnknownKnowledge is any item whose action is missing or unrecognized
// (including "skip"). It is ignored.
type UnknownKnowledge struct {
	Action string
}

func (AddTopic) knowledgeAction()         {}
func (AddStatement) knowledgeAction()     {}
func (UpdateStatement) knowledgeAction()  {}
func (UpdateTopic) knowledgeAction()      {}
func (UnknownKnowledge) knowledgeAction() {}

// ─── Task actions ────────────────────────────────────────────────────────────

// TaskAction is one proposed change to tasks or their updates. The concrete
// types are AddTask, AddUpdate, UpdateTask and UnknownTask.
type TaskAction interface {
	taskAction()
}

// AddTask creates an open task.
type AddTask struct {
	Title    string
	Domain   string
	Priority string
	Horizon  string
}

// AddUpdate appends a progress note to a task.
type AddUpdate struct {
	TaskID  ID
	Content string
}

// UpdateTask changes the supplied fields of a task and, when Content is
// set, records it as an update.
type UpdateTask struct {
	TaskID   ID
	Status   string
	Priority string
	Horizon  string
	Title    string
	Content  string
}

// UnknownTask is any item whose action is missing or unrecognized.
type UnknownTask struct {
	Action string
}

func (AddTask) taskAction()     {}
func (AddUpdate) taskAction()   {}
func (UpdateTask) taskAction()  {}
func (UnknownTask) taskAction() {}

// ─── IDs ─────────────────────────────────────────────────────────────────────

// ID is a row id as supplied by the model. It accepts integers, integral
// floats and numeric strings.
type ID struct {
	Value   int64
	Present bool
	Valid   bool
	// Raw is the value as received, kept for rejection reports.
	Raw any
}

func parseID(v any) ID {
	if v == nil {
		return ID{}
	}
	id := ID{Present: true, Raw: v}
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			id.Value, id.Valid = n, true
		} else if f, err := x.Float64(); err == nil {
			id.Value, id.Valid = integral(f)
		}
	case float64:
		id.Value, id.Valid = integral(x)
	case int:
		id.Value, id.Valid = int64(x), true
	case int64:
		id.Value, id.Valid = x, true
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			id.Value, id.Valid = n, true
		}
	}
	return id
}

func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// ─── Decoding ────────────────────────────────────────────────────────────────

// item is a loosely typed proposal object.
type item map[string]any

func decodeItem(raw json.RawMessage) item {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}

// str returns a trimmed string field. Non-string values read as empty,
// except lists of strings which are joined with ", ".
func (it item) str(key string) string {
	switch v := it[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		var parts []string
		for _, e := range v {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func (it item) enum(key string) string {
	return strings.ToLower(it.str(key))
}

func (it item) action() string {
	return strings.ToLower(it.str("action"))
}

// DecodeKnowledge turns raw proposal items into knowledge actions. Items
// that are not JSON objects decode to UnknownKnowledge.
func DecodeKnowledge(raw []json.RawMessage) []KnowledgeAction {
	out := make([]KnowledgeAction, 0, len(raw))
	for _, r := range raw {
		it := decodeItem(r)
		switch a := it.action(); a {
		case ActionAddTopic:
			out = append(out, AddTopic{
				Title:  it.str("topic_title"),
				Domain: it.enum("domain"),
				Tags:   it.str("tags"),
				Claim:  it.str("claim"),
			})
		case ActionAddStatement:
			out = append(out, AddStatement{
				TopicID: parseID(it["topic_id"]),
				Claim:   it.str("claim"),
			})
		case ActionUpdateStatement:
			out = append(out, UpdateStatement{
				StatementID: parseID(it["statement_id"]),
				Claim:       it.str("claim"),
			})
		case ActionUpdateTopic:
			out = append(out, UpdateTopic{
				TopicID: parseID(it["topic_id"]),
				Title:   it.str("topic_title"),
				Domain:  it.enum("domain"),
				Tags:    it.str("tags"),
			})
		default:
			out = append(out, UnknownKnowledge{Action: a})
		}
	}
	return out
}

// DecodeTasks turns raw proposal items into task actions. Items that are
// not JSON objects decode to UnknownTask.
func DecodeTasks(raw []json.RawMessage) []TaskAction {
	out := make([]TaskAction, 0, len(raw))
	for _, r := range raw {
		it := decodeItem(r)
		switch a := it.action(); a {
		case ActionAddTask:
			out = append(out, AddTask{
				Title:    it.str("title"),
				Domain:   it.enum("domain"),
				Priority: it.enum("priority"),
				Horizon:  it.enum("horizon"),
			})
		case ActionAddUpdate:
			out = append(out, AddUpdate{
				TaskID:  parseID(it["task_id"]),
				Content: it.str("content"),
			})
		case ActionUpdateTask:
			out = append(out, UpdateTask{
				TaskID:   parseID(it["task_id"]),
				Status:   it.enum("status"),
				Priority: it.enum("priority"),
				Horizon:  it.enum("horizon"),
				Title:    it.str("title"),
				Content:  it.str("content"),
			})
		default:
			out = append(out, UnknownTask{Action: a})
		}
	}
	return out
}

// RawItems converts already-decoded values (for example from a
// map[string]any payload) into raw items.
func RawItems(v any) ([]json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]json.RawMessage, 0, len(list))
	for _, e := range list {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
