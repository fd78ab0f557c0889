// Package reconcile merges model-proposed knowledge and task changes into
// the store.
//
// Each proposal item is validated on its own. An invalid item is recorded
// as a Rejection and skipped; the rest of the batch still applies. Exact
// duplicates are skipped silently. Nothing is ever deleted. Store failures
// are returned as errors so the caller can roll back the whole unit.
package reconcile

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/HendryAvila/larvling/internal/memory"
)

// KnowledgeStore is the transactional view of topics and statements the
// engine needs. *memory.Tx satisfies it.
type KnowledgeStore interface {
	TopicExists(id int64) (bool, error)
	StatementExists(id int64) (bool, error)
	ClaimExists(claim string) (bool, error)
	ClaimExistsInTopic(topicID int64, claim string) (bool, error)
	InsertTopic(title string, domain memory.Domain, tags string) (int64, error)
	InsertStatement(topicID int64, claim string) (int64, error)
	UpdateStatementClaim(id int64, claim string) error
	UpdateTopic(id int64, title string, domain memory.Domain, tags string) error
}

// TaskStore is the transactional view of tasks and updates the engine
// needs. *memory.Tx satisfies it.
type TaskStore interface {
	TaskExists(id int64) (bool, error)
	OpenTaskWithTitle(title string) (bool, error)
	InsertTask(title string, domain memory.Domain, priority memory.Priority, horizon memory.Horizon) (int64, error)
	UpdateTaskFields(id int64, f memory.TaskFields) (bool, error)
	UpdateExists(taskID int64, content string) (bool, error)
	InsertUpdate(taskID int64, content string) (int64, error)
}

// Rejection records why a proposal item was not applied.
type Rejection struct {
	Category string         `json:"category"`
	Action   string         `json:"action"`
	Reason   string         `json:"reason"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// KnowledgeResult counts what a knowledge batch changed.
type KnowledgeResult struct {
	TopicsInserted     int
	StatementsInserted int
	StatementsUpdated  int
	TopicsUpdated      int
	// Skipped counts exact duplicates that were not re-inserted.
	Skipped    int
	Rejections []Rejection
}

// Changed reports whether any row was written.
func (r KnowledgeResult) Changed() bool {
	return r.TopicsInserted+r.StatementsInserted+r.StatementsUpdated+r.TopicsUpdated > 0
}

// TaskResult counts what a task batch changed.
type TaskResult struct {
	TasksInserted   int
	UpdatesInserted int
	TasksUpdated    int
	Skipped         int
	Rejections      []Rejection
}

// Changed reports whether any row was written.
func (r TaskResult) Changed() bool {
	return r.TasksInserted+r.UpdatesInserted+r.TasksUpdated > 0
}

// Engine applies decoded proposals. It holds no state between calls.
type Engine struct {
	logger *slog.Logger
}

// New returns an Engine that reports rejections to logger.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

// batch collects rejections for one call and logs them as they happen.
type batch struct {
	logger     *slog.Logger
	category   string
	rejections []Rejection
}

func (e *Engine) newBatch(category, sessionID string) *batch {
	return &batch{
		logger:   e.logger.With("sid", memory.ShortID(sessionID)),
		category: category,
	}
}

// reject records a rejection. kv are alternating field names and values.
func (b *batch) reject(action, reason string, kv ...any) {
	r := Rejection{Category: b.category, Action: action, Reason: reason}
	attrs := []any{"action", action, "reason", reason}
	if len(kv) > 0 {
		r.Fields = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			name := fmt.Sprint(kv[i])
			r.Fields[name] = kv[i+1]
			attrs = append(attrs, name, kv[i+1])
		}
	}
	b.rejections = append(b.rejections, r)
	b.logger.Info("extraction_skipped", attrs...)
}

// id checks an id field, rejecting it as missing or invalid.
func (b *batch) id(action, field string, id ID) (int64, bool) {
	if !id.Present {
		b.reject(action, "missing "+field)
		return 0, false
	}
	if !id.Valid {
		b.reject(action, "invalid "+field, "value", fmt.Sprint(id.Raw))
		return 0, false
	}
	return id.Value, true
}

// ─── Knowledge ───────────────────────────────────────────────────────────────

// Knowledge decodes and applies knowledge items.
func (e *Engine) Knowledge(ks KnowledgeStore, items []json.RawMessage, sessionID string) (KnowledgeResult, error) {
	return e.ApplyKnowledge(ks, DecodeKnowledge(items), sessionID)
}

// ApplyKnowledge applies already decoded knowledge actions in order.
func (e *Engine) ApplyKnowledge(ks KnowledgeStore, actions []KnowledgeAction, sessionID string) (KnowledgeResult, error) {
	var res KnowledgeResult
	b := e.newBatch("knowledge", sessionID)
	for _, a := range actions {
		var err error
		switch a := a.(type) {
		case AddTopic:
			err = e.addTopic(ks, b, a, &res)
		case AddStatement:
			err = e.addStatement(ks, b, a, &res)
		case UpdateStatement:
			err = e.updateStatement(ks, b, a, &res)
		case UpdateTopic:
			err = e.updateTopic(ks, b, a, &res)
		case UnknownKnowledge:
			continue
		}
		if err != nil {
			res.Rejections = b.rejections
			return res, err
		}
	}
	res.Rejections = b.rejections
	return res, nil
}

func (e *Engine) addTopic(ks KnowledgeStore, b *batch, a AddTopic, res *KnowledgeResult) error {
	const action = ActionAddTopic
	if a.Claim == "" {
		b.reject(action, "missing claim")
		return nil
	}
	if a.Title == "" {
		b.reject(action, "missing topic_title")
		return nil
	}
	domain, ok := memory.ParseDomain(a.Domain)
	if !ok {
		b.reject(action, "invalid domain", "domain", a.Domain)
		return nil
	}
	if a.Tags == "" {
		b.reject(action, "missing tags")
		return nil
	}

	dup, err := ks.ClaimExists(a.Claim)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if dup {
		res.Skipped++
		return nil
	}

	topicID, err := ks.InsertTopic(a.Title, domain, a.Tags)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if _, err := ks.InsertStatement(topicID, a.Claim); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	res.TopicsInserted++
	res.StatementsInserted++
	return nil
}

func (e *Engine) addStatement(ks KnowledgeStore, b *batch, a AddStatement, res *KnowledgeResult) error {
	const action = ActionAddStatement
	topicID, ok := b.id(action, "topic_id", a.TopicID)
	if !ok {
		return nil
	}
	if a.Claim == "" {
		b.reject(action, "missing claim")
		return nil
	}
	found, err := ks.TopicExists(topicID)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !found {
		b.reject(action, "topic not found", "topic_id", topicID)
		return nil
	}

	dup, err := ks.ClaimExistsInTopic(topicID, a.Claim)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if dup {
		res.Skipped++
		return nil
	}
	if _, err := ks.InsertStatement(topicID, a.Claim); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	res.StatementsInserted++
	return nil
}

func (e *Engine) updateStatement(ks KnowledgeStore, b *batch, a UpdateStatement, res *KnowledgeResult) error {
	const action = ActionUpdateStatement
	stmtID, ok := b.id(action, "statement_id", a.StatementID)
	if !ok {
		return nil
	}
	if a.Claim == "" {
		b.reject(action, "missing claim")
		return nil
	}
	found, err := ks.StatementExists(stmtID)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !found {
		b.reject(action, "statement not found", "statement_id", stmtID)
		return nil
	}
	if err := ks.UpdateStatementClaim(stmtID, a.Claim); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	res.StatementsUpdated++
	return nil
}

func (e *Engine) updateTopic(ks KnowledgeStore, b *batch, a UpdateTopic, res *KnowledgeResult) error {
	const action = ActionUpdateTopic
	topicID, ok := b.id(action, "topic_id", a.TopicID)
	if !ok {
		return nil
	}
	found, err := ks.TopicExists(topicID)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !found {
		b.reject(action, "topic not found", "topic_id", topicID)
		return nil
	}

	var domain memory.Domain
	if a.Domain != "" {
		d, ok := memory.ParseDomain(a.Domain)
		if !ok {
			b.reject(action, "invalid domain", "domain", a.Domain)
			return nil
		}
		domain = d
	}
	if a.Title == "" {
		b.reject(action, "missing topic_title", "topic_id", topicID)
		return nil
	}

	if err := ks.UpdateTopic(topicID, a.Title, domain, a.Tags); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	res.TopicsUpdated++
	return nil
}

// ─── Tasks ───────────────────────────────────────────────────────────────────

// Tasks decodes and applies task items.
func (e *Engine) Tasks(ts TaskStore, items []json.RawMessage, sessionID string) (TaskResult, error) {
	return e.ApplyTasks(ts, DecodeTasks(items), sessionID)
}

// ApplyTasks applies already decoded task actions in order.
func (e *Engine) ApplyTasks(ts TaskStore, actions []TaskAction, sessionID string) (TaskResult, error) {
	var res TaskResult
	b := e.newBatch("tasks", sessionID)
	for _, a := range actions {
		var err error
		switch a := a.(type) {
		case AddTask:
			err = e.addTask(ts, b, a, &res)
		case AddUpdate:
			err = e.addUpdate(ts, b, a, &res)
		case UpdateTask:
			err = e.updateTask(ts, b, a, &res)
		case UnknownTask:
			continue
		}
		if err != nil {
			res.Rejections = b.rejections
			return res, err
		}
	}
	res.Rejections = b.rejections
	return res, nil
}

func (e *Engine) addTask(ts TaskStore, b *batch, a AddTask, res *TaskResult) error {
	const action = ActionAddTask
	if a.Title == "" {
		b.reject(action, "missing title")
		return nil
	}
	domain, ok := memory.ParseDomain(a.Domain)
	if !ok {
		b.reject(action, "invalid domain", "domain", a.Domain)
		return nil
	}
	priority, ok := memory.ParsePriority(a.Priority)
	if !ok {
		b.reject(action, "invalid priority", "priority", a.Priority)
		return nil
	}
	horizon, ok := memory.ParseHorizon(a.Horizon)
	if !ok {
		b.reject(action, "invalid horizon", "horizon", a.Horizon)
		return nil
	}

	dup, err := ts.OpenTaskWithTitle(a.Title)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if dup {
		res.Skipped++
		return nil
	}
	if _, err := ts.InsertTask(a.Title, domain, priority, horizon); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	res.TasksInserted++
	return nil
}

func (e *Engine) addUpdate(ts TaskStore, b *batch, a AddUpdate, res *TaskResult) error {
	const action = ActionAddUpdate
	taskID, ok := b.id(action, "task_id", a.TaskID)
	if !ok {
		return nil
	}
	if a.Content == "" {
		b.reject(action, "missing content")
		return nil
	}
	found, err := ts.TaskExists(taskID)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !found {
		b.reject(action, "task not found", "task_id", taskID)
		return nil
	}

	inserted, err := appendUpdate(ts, taskID, a.Content)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if inserted {
		res.UpdatesInserted++
	} else {
		res.Skipped++
	}
	return nil
}

func (e *Engine) updateTask(ts TaskStore, b *batch, a UpdateTask, res *TaskResult) error {
	const action = ActionUpdateTask
	taskID, ok := b.id(action, "task_id", a.TaskID)
	if !ok {
		return nil
	}
	found, err := ts.TaskExists(taskID)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !found {
		b.reject(action, "task not found", "task_id", taskID)
		return nil
	}

	// Every supplied enum is validated before anything is written.
	var f memory.TaskFields
	if a.Status != "" {
		v, ok := memory.ParseStatus(a.Status)
		if !ok {
			b.reject(action, "invalid status", "task_id", taskID, "status", a.Status)
			return nil
		}
		f.Status = v
	}
	if a.Priority != "" {
		v, ok := memory.ParsePriority(a.Priority)
		if !ok {
			b.reject(action, "invalid priority", "task_id", taskID, "priority", a.Priority)
			return nil
		}
		f.Priority = v
	}
	if a.Horizon != "" {
		v, ok := memory.ParseHorizon(a.Horizon)
		if !ok {
			b.reject(action, "invalid horizon", "task_id", taskID, "horizon", a.Horizon)
			return nil
		}
		f.Horizon = v
	}
	f.Title = a.Title

	wrote, err := ts.UpdateTaskFields(taskID, f)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if wrote {
		res.TasksUpdated++
	}

	if a.Content == "" {
		return nil
	}
	inserted, err := appendUpdate(ts, taskID, a.Content)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if inserted {
		res.UpdatesInserted++
	} else {
		res.Skipped++
	}
	return nil
}

// appendUpdate inserts content unless the task already has it verbatim.
func appendUpdate(ts TaskStore, taskID int64, content string) (bool, error) {
	dup, err := ts.UpdateExists(taskID, content)
	if err != nil || dup {
		return false, err
	}
	if _, err := ts.InsertUpdate(taskID, content); err != nil {
		return false, err
	}
	return true, nil
}
