package memory

import (
	"fmt"
	"sort"
	"strings"
)

// ─── Export ──────────────────────────────────────────────────────────────────

// SessionExport is a session with its full message log.
type SessionExport struct {
	Session  Session   `json:"session"`
	Messages []Message `json:"messages"`
}

// ExportSession resolves shortID and loads the session and its messages.
// It returns ErrSessionNotFound when the id does not resolve or the session
// has no messages.
func (s *Store) ExportSession(shortID string) (*SessionExport, error) {
	id, err := s.ResolveSession(shortID)
	if err != nil {
		return nil, err
	}
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.SessionMessages(id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrSessionNotFound
	}
	return &SessionExport{Session: *sess, Messages: msgs}, nil
}

// SessionIDs returns every session id, oldest first.
func (s *Store) SessionIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("session ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Markdown renders the session as a readable transcript. System messages
// are omitted.
func (e *SessionExport) Markdown() string {
	var b strings.Builder
	sess := e.Session

	fmt.Fprintf(&b, "# Session %s\n\n", ShortID(sess.ID))
	if sess.StartedAt != "" {
		fmt.Fprintf(&b, "**Started:** %s\n", sess.StartedAt)
	}
	if sess.EndedAt != nil {
		fmt.Fprintf(&b, "**Ended:** %s\n", *sess.EndedAt)
	}
	if sess.DurationMin != nil && *sess.DurationMin > 0 {
		fmt.Fprintf(&b, "**Duration:** %g minutes\n", *sess.DurationMin)
	}
	if sess.Title != nil && *sess.Title != "" {
		fmt.Fprintf(&b, "**Title:** %s\n", *sess.Title)
	}
	if sess.AgentSummary != nil && *sess.AgentSummary != "" {
		fmt.Fprintf(&b, "**Summary:** %s\n", *sess.AgentSummary)
	}
	if sess.Tags != "" {
		fmt.Fprintf(&b, "**Tags:** %s\n", sess.Tags)
	}
	b.WriteString("\n---\n\n")

	for _, m := range e.Messages {
		switch m.Role {
		case RoleUser:
			fmt.Fprintf(&b, "### You  `%s`\n\n%s\n\n", m.Timestamp, m.Content)
		case RoleAssistant:
			fmt.Fprintf(&b, "### Agent  `%s`\n", m.Timestamp)
			if tools := formatToolCalls(m.Metadata); tools != "" {
				fmt.Fprintf(&b, "  *Tools: %s*\n", tools)
			}
			fmt.Fprintf(&b, "\n%s\n\n", m.Content)
		}
	}
	return b.String()
}

// formatToolCalls renders {"tool_calls": {"Bash": 2}} as "Bash (2x)".
func formatToolCalls(meta map[string]any) string {
	calls, ok := meta["tool_calls"].(map[string]any)
	if !ok || len(calls) == 0 {
		return ""
	}
	names := make([]string, 0, len(calls))
	for name := range calls {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%vx)", name, calls[name]))
	}
	return strings.Join(parts, ", ")
}

// TopicExport is a topic with its statements.
type TopicExport struct {
	Topic      `yaml:",inline"`
	Statements []Statement `json:"statements" yaml:"statements"`
}

// TaskExport is a task with its updates.
type TaskExport struct {
	Task    `yaml:",inline"`
	Updates []Update `json:"updates" yaml:"updates"`
}

// KnowledgeExport is the serializable dump of topics and tasks.
type KnowledgeExport struct {
	ExportedAt    string        `json:"exported_at" yaml:"exported_at"`
	SchemaVersion int           `json:"schema_version" yaml:"schema_version"`
	Topics        []TopicExport `json:"topics" yaml:"topics"`
	Tasks         []TaskExport  `json:"tasks" yaml:"tasks"`
}

// ExportKnowledge dumps every topic with its statements and every task with
// its updates.
func (s *Store) ExportKnowledge() (*KnowledgeExport, error) {
	data := &KnowledgeExport{ExportedAt: Now(), SchemaVersion: SchemaVersion}

	topics, err := s.ListTopics("")
	if err != nil {
		return nil, fmt.Errorf("export knowledge: %w", err)
	}
	for _, tp := range topics {
		stmts, err := s.TopicStatements(tp.ID)
		if err != nil {
			return nil, fmt.Errorf("export knowledge: %w", err)
		}
		data.Topics = append(data.Topics, TopicExport{Topic: tp, Statements: stmts})
	}

	tasks, err := s.ListTasks("")
	if err != nil {
		return nil, fmt.Errorf("export knowledge: %w", err)
	}
	for _, tk := range tasks {
		updates, err := s.TaskUpdates(tk.ID)
		if err != nil {
			return nil, fmt.Errorf("export knowledge: %w", err)
		}
		data.Tasks = append(data.Tasks, TaskExport{Task: tk, Updates: updates})
	}
	return data, nil
}
