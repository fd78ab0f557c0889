// Package hooks implements the agent lifecycle hooks: preflight, session
// start, prompt submit, stop, analysis and session end.
//
// Hooks never fail the agent. Every handler error is logged and Run always
// returns normally, so the process exits 0.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/HendryAvila/larvling/internal/config"
	"github.com/HendryAvila/larvling/internal/extract"
	"github.com/HendryAvila/larvling/internal/logging"
	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/HendryAvila/larvling/internal/sessionctx"
	"github.com/HendryAvila/larvling/internal/transcript"
)

// Extractor runs knowledge extraction for one exchange.
type Extractor interface {
	Run(ctx context.Context, ex extract.Exchange) (*extract.Outcome, error)
}

// Deps are the collaborators of the hook handlers. Extractor and Offloader
// are only needed by the analysis hook.
type Deps struct {
	Store     *memory.Store
	Config    *config.Config
	Logger    *slog.Logger
	Out       io.Writer
	Context   *sessionctx.Builder
	Extractor Extractor
	Offloader Offloader
}

// Hooks dispatches hook events.
type Hooks struct {
	store     *memory.Store
	cfg       *config.Config
	logger    *slog.Logger
	out       io.Writer
	ctx       *sessionctx.Builder
	extractor Extractor
	offloader Offloader

	// wait blocks until the transcript is no longer being written.
	wait func(ctx context.Context, path string)
}

// New builds the handlers.
func New(d Deps) *Hooks {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	out := d.Out
	if out == nil {
		out = io.Discard
	}
	return &Hooks{
		store:     d.Store,
		cfg:       d.Config,
		logger:    logger,
		out:       out,
		ctx:       d.Context,
		extractor: d.Extractor,
		offloader: d.Offloader,
		wait: func(ctx context.Context, path string) {
			transcript.WaitStable(ctx, path, transcript.DefaultQuietInterval, transcript.DefaultMaxWait)
		},
	}
}

// HandlerFunc handles one decoded payload.
type HandlerFunc func(ctx context.Context, p *Payload) error

// Run reads the payload from r and hands it to fn. Blank input and the
// internal guard make it a no-op; read, decode and handler errors are
// logged and swallowed.
func (h *Hooks) Run(ctx context.Context, event string, r io.Reader, fn HandlerFunc) {
	if Internal() {
		return
	}
	defer h.recoverPanic(event)
	p, err := ReadPayload(r)
	var perr *PayloadError
	switch {
	case errors.As(err, &perr):
		h.logger.Warn("payload_error", "hook", event, "size", perr.Size, "error", perr.Err)
		return
	case err != nil:
		h.logger.Warn("stdin_error", "hook", event, "error", err)
		return
	case p == nil:
		return
	}
	if err := fn(ctx, p); err != nil {
		logging.ForSession(h.logger, p.SessionID).Error("hook_error", "hook", event, "error", err)
	}
}

// recoverPanic turns a handler panic into a logged event so the hook
// process still exits 0.
func (h *Hooks) recoverPanic(event string) {
	if r := recover(); r != nil {
		h.logger.Error("hook_panic", "hook", event, "error", fmt.Sprint(r))
	}
}

// ─── Preflight ───────────────────────────────────────────────────────────────

// Preflight creates or checks the store schema. A fresh store gets a
// first-run notice; a version mismatch prints the migration report.
func (h *Hooks) Preflight(context.Context) error {
	if Internal() {
		return nil
	}
	st, err := h.store.EnsureSchema()
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	switch st.Result {
	case memory.SchemaFresh:
		_, _ = fmt.Fprint(h.out, "# Larvling - First Run\n\nDatabase created at `.claude/larvling.db`.\n")
	case memory.SchemaMigrate:
		_, _ = fmt.Fprintln(h.out, st.Report.Markdown())
	}
	h.logger.Info("preflight", "result", string(st.Result), "version", st.Version)
	return nil
}

// ─── SessionStart ────────────────────────────────────────────────────────────

// SessionStart prints the session context.
func (h *Hooks) SessionStart(ctx context.Context, p *Payload) error {
	out := h.ctx.SessionStart(ctx, p.Trigger())
	if out != "" {
		_, _ = fmt.Fprintln(h.out, out)
	}
	logging.ForSession(h.logger, p.SessionID).Info("session_start", "trigger", p.Trigger(), "chars", len(out))
	return nil
}

// ─── Prompt ──────────────────────────────────────────────────────────────────

// Prompt records the user's prompt, titles the session on its first
// prompt, logs skill invocations and prints context hints.
func (h *Hooks) Prompt(_ context.Context, p *Payload) error {
	if p.SessionID == "" {
		return nil
	}
	prompt := StripIDETags(p.Prompt)
	if prompt == "" {
		return nil
	}
	log := logging.ForSession(h.logger, p.SessionID)

	if err := h.store.EnsureSession(p.SessionID); err != nil {
		return err
	}
	meta := map[string]any{"cwd": p.Cwd, "permission_mode": p.PermissionMode}
	if err := h.store.RecordMessage(p.SessionID, memory.RoleUser, prompt, meta); err != nil {
		return err
	}
	n, err := h.store.CountMessages(p.SessionID, memory.RoleUser)
	if err != nil {
		return err
	}
	if n == 1 {
		if err := h.store.RecordSummary(p.SessionID, memory.SummaryFields{Title: &prompt}); err != nil {
			return err
		}
	}

	if name, ok := DetectSkill(prompt); ok {
		log.Info("skill", "name", name)
	} else {
		log.Info("prompt", "n", n)
	}

	if hints := h.ctx.PromptHints(p.SessionID); hints != "" {
		_, _ = fmt.Fprintln(h.out, hints)
	}
	return nil
}

// ─── Stop ────────────────────────────────────────────────────────────────────

// Stop records the agent's last reply with its tool-call counts. A reply
// identical to the previous assistant message is not recorded again.
func (h *Hooks) Stop(ctx context.Context, p *Payload) error {
	if p.StopHookActive || p.SessionID == "" {
		return nil
	}
	h.wait(ctx, p.TranscriptPath)

	turn, err := transcript.LastTurn(p.TranscriptPath)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	if err := h.store.EnsureSession(p.SessionID); err != nil {
		return err
	}

	dup := false
	if turn.Text != "" {
		last, err := h.store.LastAssistantMessage(p.SessionID)
		if err != nil {
			return err
		}
		dup = last == turn.Text
		if !dup {
			var meta map[string]any
			if len(turn.Tools) > 0 {
				meta = map[string]any{"tool_calls": turn.Tools}
			}
			if err := h.store.RecordMessage(p.SessionID, memory.RoleAssistant, turn.Text, meta); err != nil {
				return err
			}
		}
	}

	attrs := []any{"chars", len(turn.Text), "is_dup", dup}
	if len(turn.Tools) > 0 {
		total := 0
		for _, c := range turn.Tools {
			total += c
		}
		attrs = append(attrs, "tools", total)
	}
	logging.ForSession(h.logger, p.SessionID).Info("response", attrs...)
	return nil
}

// ─── Analysis ────────────────────────────────────────────────────────────────

// Offload hands the raw payload to the background worker and returns
// without waiting for it.
func (h *Hooks) Offload(_ context.Context, p *Payload) error {
	if p.StopHookActive || !h.cfg.Analysis {
		return nil
	}
	if h.offloader == nil {
		return errors.New("no offloader configured")
	}
	return h.offloader.Offload(p.Raw)
}

// Analyze extracts knowledge, tasks and tags from the last exchange.
func (h *Hooks) Analyze(ctx context.Context, p *Payload) error {
	if p.StopHookActive || !h.cfg.Analysis {
		return nil
	}
	if h.extractor == nil {
		return errors.New("no extractor configured")
	}
	h.wait(ctx, p.TranscriptPath)

	user, err := transcript.LastUserText(p.TranscriptPath)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	turn, err := transcript.LastTurn(p.TranscriptPath)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	// Run logs its own failures.
	_, _ = h.extractor.Run(ctx, extract.Exchange{
		SessionID: p.SessionID,
		UserText:  user,
		AgentText: turn.Text,
	})
	return nil
}

// ─── SessionEnd ──────────────────────────────────────────────────────────────

// SessionEnd stamps the end time and exchange count. Sessions that never
// recorded a message are logged as ghosts and left alone.
func (h *Hooks) SessionEnd(_ context.Context, p *Payload) error {
	if p.SessionID == "" {
		return nil
	}
	log := logging.ForSession(h.logger, p.SessionID)

	total, err := h.store.CountMessages(p.SessionID)
	if err != nil {
		return err
	}
	if total == 0 {
		log.Info("session_end", "ghost", true)
		return nil
	}

	if err := h.store.EnsureSession(p.SessionID); err != nil {
		return err
	}
	if err := h.store.FinalizeSession(p.SessionID); err != nil {
		return err
	}
	exchanges, err := h.store.CountMessages(p.SessionID, memory.RoleUser)
	if err != nil {
		return err
	}
	if exchanges > 0 {
		if err := h.store.RecordSummary(p.SessionID, memory.SummaryFields{ExchangeCount: &exchanges}); err != nil {
			return err
		}
	}

	attrs := []any{"exchanges", exchanges}
	if sess, err := h.store.GetSession(p.SessionID); err == nil && sess.DurationMin != nil && *sess.DurationMin != 0 {
		attrs = append(attrs, "duration", math.Round(*sess.DurationMin*10)/10)
	}
	if p.Reason != "" {
		attrs = append(attrs, "reason", p.Reason)
	}
	log.Info("session_end", attrs...)
	return nil
}
