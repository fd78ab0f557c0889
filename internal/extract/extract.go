// Package extract turns one finished exchange into knowledge, task and tag
// changes.
//
// A single structured model call proposes all three. The proposal is then
// reconciled inside one transaction, so either the whole exchange lands or
// none of it does. A failed or malformed model call changes nothing.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/HendryAvila/larvling/internal/config"
	"github.com/HendryAvila/larvling/internal/llm"
	"github.com/HendryAvila/larvling/internal/logging"
	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/HendryAvila/larvling/internal/reconcile"
	"github.com/HendryAvila/larvling/internal/templates"
)

// DefaultQueryCommand is the shell command the model is told to use for
// read-only store access.
const DefaultQueryCommand = `larvling query "<SQL>" --read-only`

// Exchange is one user prompt and the agent's reply.
type Exchange struct {
	SessionID string
	UserText  string
	AgentText string
}

// Outcome reports what an extraction did. Skipped is non-empty when the
// exchange was not processed.
type Outcome struct {
	Skipped   string
	Knowledge reconcile.KnowledgeResult
	Tasks     reconcile.TaskResult
	Tags      string
	Summary   string
	Usage     llm.Usage
}

// Options tune how the prompt describes store access.
type Options struct {
	// QueryCommand defaults to DefaultQueryCommand.
	QueryCommand string
	// QueryTool names a tool the model can call instead, if any.
	QueryTool string
	// AllowedTools defaults to Bash.
	AllowedTools []string
}

// Orchestrator runs extractions against one store.
type Orchestrator struct {
	store    *memory.Store
	engine   *reconcile.Engine
	caller   llm.Caller
	renderer *templates.Renderer
	cfg      *config.Config
	opts     Options
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(store *memory.Store, caller llm.Caller, cfg *config.Config, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	r, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}
	if opts.QueryCommand == "" {
		opts.QueryCommand = DefaultQueryCommand
	}
	if opts.AllowedTools == nil {
		opts.AllowedTools = []string{"Bash"}
	}
	return &Orchestrator{
		store:    store,
		engine:   reconcile.New(logger),
		caller:   caller,
		renderer: r,
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
	}, nil
}

// BuildPrompt renders the extraction prompt for ex.
func (o *Orchestrator) BuildPrompt(ex Exchange) (string, error) {
	return o.renderer.Render(templates.Extraction, templates.ExtractionData{
		UserText:     ex.UserText,
		AgentText:    ex.AgentText,
		SessionID:    ex.SessionID,
		QueryCommand: o.opts.QueryCommand,
		QueryTool:    o.opts.QueryTool,
	})
}

// Run extracts from ex. Model and payload failures are logged as
// extraction_error and returned; the store is untouched in that case.
func (o *Orchestrator) Run(ctx context.Context, ex Exchange) (*Outcome, error) {
	log := logging.ForSession(o.logger, ex.SessionID)

	if !o.cfg.Analysis {
		return &Outcome{Skipped: "analysis disabled"}, nil
	}
	if ex.UserText == "" && ex.AgentText == "" {
		log.Info("extraction_skipped", "reason", "no text found")
		return &Outcome{Skipped: "no text found"}, nil
	}

	v, err := o.store.SchemaVersion()
	if err != nil {
		return nil, err
	}
	if v != memory.SchemaVersion {
		log.Info("extraction_skipped", "reason", "schema not current", "version", v)
		return &Outcome{Skipped: "schema not current"}, nil
	}

	prompt, err := o.BuildPrompt(ex)
	if err != nil {
		log.Error("extraction_error", "context", "prompt", "error", err.Error())
		return nil, err
	}

	resp, err := o.caller.Call(ctx, llm.Request{
		Prompt:       prompt,
		AllowedTools: o.opts.AllowedTools,
		Schema:       OutputSchema(),
	})
	if err != nil {
		log.Error("extraction_error", "context", "model call", "error", err.Error())
		return nil, fmt.Errorf("model call: %w", err)
	}

	p, err := ParseProposal(resp.Structured)
	if err != nil {
		log.Error("extraction_error", "context", "unexpected type", "error", err.Error())
		return nil, err
	}

	out, err := o.apply(ex.SessionID, p)
	if err != nil {
		log.Error("extraction_error", "context", "store", "error", err.Error())
		return nil, err
	}
	out.Usage = resp.Usage
	o.logOutcome(log, p, out)
	return out, nil
}

// Apply reconciles an already-decoded proposal in one transaction.
func (o *Orchestrator) Apply(sessionID string, p *Proposal) (*Outcome, error) {
	if p == nil {
		return nil, errors.New("nil proposal")
	}
	return o.apply(sessionID, p)
}

func (o *Orchestrator) apply(sessionID string, p *Proposal) (*Outcome, error) {
	tx, err := o.store.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := &Outcome{}
	if sessionID != "" {
		if err := tx.EnsureSession(sessionID); err != nil {
			return nil, err
		}
	}

	if o.cfg.KnowledgeExtraction {
		if out.Knowledge, err = o.engine.Knowledge(tx, p.Knowledge, sessionID); err != nil {
			return nil, err
		}
	}
	if o.cfg.TaskTracking {
		if out.Tasks, err = o.engine.Tasks(tx, p.Tasks, sessionID); err != nil {
			return nil, err
		}
	}
	if o.cfg.SessionTags && sessionID != "" && p.TagsProposed {
		// An empty merge keeps whatever tags the session already has.
		if tags := MergeTags(p.SessionTags); tags != "" {
			if err := tx.SetSessionTags(sessionID, tags); err != nil {
				return nil, err
			}
			out.Tags = tags
		}
	}

	if sessionID != "" {
		out.Summary = SummaryMessage(out.Knowledge, out.Tasks)
		if err := tx.RecordMessage(sessionID, memory.RoleSystem, out.Summary, nil); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) logOutcome(log *slog.Logger, p *Proposal, out *Outcome) {
	if k := out.Knowledge; k.Changed() {
		var attrs []any
		attrs = appendCount(attrs, "topics_inserted", k.TopicsInserted)
		attrs = appendCount(attrs, "stmts_inserted", k.StatementsInserted)
		attrs = appendCount(attrs, "stmts_updated", k.StatementsUpdated)
		attrs = appendCount(attrs, "topics_updated", k.TopicsUpdated)
		log.Info("knowledge", attrs...)
	}
	if t := out.Tasks; t.Changed() {
		var attrs []any
		attrs = appendCount(attrs, "inserted", t.TasksInserted)
		attrs = appendCount(attrs, "updates_inserted", t.UpdatesInserted)
		attrs = appendCount(attrs, "tasks_updated", t.TasksUpdated)
		log.Info("tasks", attrs...)
	}

	var attrs []any
	if len(p.SessionTags) > 0 {
		attrs = append(attrs, "session_tags", p.SessionTags)
	}
	attrs = appendCount(attrs, "tasks", len(p.Tasks))
	attrs = appendCount(attrs, "input_tokens", int(out.Usage.InputTokens))
	attrs = appendCount(attrs, "output_tokens", int(out.Usage.OutputTokens))
	log.Info("analysis", attrs...)
}

func appendCount(attrs []any, key string, n int) []any {
	if n == 0 {
		return attrs
	}
	return append(attrs, key, n)
}
