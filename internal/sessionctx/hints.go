package sessionctx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/larvling/internal/logging"
	"github.com/HendryAvila/larvling/internal/memory"
)

// Summary hint thresholds: offer a first summary after this many
// user/assistant messages, and a refresh once this many more arrived after
// the last one.
const (
	summaryMinMessages = 10
	summaryStaleAfter  = 4
)

// PromptHints returns the hints appended after a user prompt, or "" when
// there are none. The summary hint is offered at most once per session.
func (b *Builder) PromptHints(sessionID string) string {
	var (
		texts    []string
		injected []string
	)

	if b.cfg.ContextHints {
		if st, err := b.store.KnowledgeStats(); err == nil {
			texts = append(texts, fmt.Sprintf(
				"\n## Knowledge Context\n%d topic(s), %d statement(s). query: %s\n"+
					"Search for relevant knowledge and weave it into your response naturally.",
				st.Topics, st.Statements, b.query))
			injected = append(injected, fmt.Sprintf("%d topics, %d statements", st.Topics, st.Statements))
		}
	}

	if b.cfg.SummaryHints {
		text, label, err := b.summaryHint(sessionID)
		if err != nil {
			b.logger.Warn("context_error", logging.SessionKey, memory.ShortID(sessionID),
				"section", "summary hint", "error", err)
		}
		if text != "" {
			texts = append(texts, text)
			injected = append(injected, label)
		}
	}

	if len(injected) > 0 {
		logging.ForSession(b.logger, sessionID).Info("context", "injected", injected)
	}
	return strings.Join(texts, "\n")
}

func (b *Builder) summaryHint(sessionID string) (text, label string, err error) {
	sess, err := b.store.GetSession(sessionID)
	if errors.Is(err, memory.ErrSessionNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	if sess.SummaryOffered {
		return "", "", nil
	}

	n, err := b.store.CountMessages(sessionID, memory.RoleUser, memory.RoleAssistant)
	if err != nil {
		return "", "", err
	}
	summarized := 0
	if sess.SummaryMsgCount != nil {
		summarized = *sess.SummaryMsgCount
	}
	hasSummary := sess.AgentSummary != nil && *sess.AgentSummary != ""

	switch {
	case !hasSummary && n >= summaryMinMessages:
		text = fmt.Sprintf("\n## Summary\nNo summary yet (%d messages). Offer /summarize via AskUserQuestion.", n)
		label = "summary hint"
	case hasSummary && n > summarized+summaryStaleAfter:
		text = fmt.Sprintf("\n## Summary\nStale summary (covers %d/%d messages). Offer /summarize via AskUserQuestion.",
			summarized, n)
		label = "stale summary hint"
	default:
		return "", "", nil
	}

	if err := b.store.MarkSummaryOffered(sessionID); err != nil {
		return "", "", err
	}
	return text, label, nil
}
