package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const sessionColumns = `id, started_at, ended_at, duration_min, title, agent_summary,
	exchange_count, summary_at, summary_msg_count, tags, summary_offered`

// ─── Sessions ────────────────────────────────────────────────────────────────

// EnsureSession creates the session row, or touches ended_at when it already
// exists so resumed sessions sort to the top of listings.
func (s *Store) EnsureSession(id string) error {
	return ensureSession(s.db, id)
}

// EnsureSession is the transactional form used by the extraction unit.
func (t *Tx) EnsureSession(id string) error {
	return ensureSession(t.tx, id)
}

func ensureSession(c conn, id string) error {
	_, err := c.Exec(
		`INSERT INTO sessions (id, started_at) VALUES (?, datetime('now'))
		 ON CONFLICT(id) DO UPDATE SET ended_at = datetime('now')`,
		id,
	)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// FinalizeSession stamps ended_at and computes duration_min (minutes, one
// decimal) from started_at.
func (s *Store) FinalizeSession(id string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET
			ended_at = datetime('now'),
			duration_min = ROUND((julianday(datetime('now')) - julianday(started_at)) * 1440, 1)
		 WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	return nil
}

// SummaryFields are the independently updatable summary columns of a
// session. Nil fields leave the stored value untouched.
type SummaryFields struct {
	Title           *string
	AgentSummary    *string
	ExchangeCount   *int
	SummaryAt       *string
	SummaryMsgCount *int
}

// RecordSummary merges f into the session row: only non-nil fields overwrite.
func (s *Store) RecordSummary(id string, f SummaryFields) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET
			title = COALESCE(?, title),
			agent_summary = COALESCE(?, agent_summary),
			exchange_count = COALESCE(?, exchange_count),
			summary_at = COALESCE(?, summary_at),
			summary_msg_count = COALESCE(?, summary_msg_count)
		 WHERE id = ?`,
		f.Title, f.AgentSummary, f.ExchangeCount, f.SummaryAt, f.SummaryMsgCount, id,
	)
	if err != nil {
		return fmt.Errorf("record summary: %w", err)
	}
	return nil
}

// GetSession returns the session with the exact id, or ErrSessionNotFound.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ResolveSession expands a short session id prefix to the full id. Ids of
// 36 characters or more are returned unchanged.
func (s *Store) ResolveSession(shortID string) (string, error) {
	if len(shortID) >= 36 {
		return shortID, nil
	}
	if shortID == "" {
		return "", ErrSessionNotFound
	}
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM sessions WHERE id LIKE ? ESCAPE '\' ORDER BY started_at DESC LIMIT 1`,
		escapeLike(shortID)+"%",
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	return id, nil
}

// SessionTags returns the comma-joined tag string of a session ("" if none).
func (s *Store) SessionTags(id string) (string, error) {
	return sessionTags(s.db, id)
}

// SessionTags is the transactional form of Store.SessionTags.
func (t *Tx) SessionTags(id string) (string, error) {
	return sessionTags(t.tx, id)
}

func sessionTags(c conn, id string) (string, error) {
	var tags sql.NullString
	err := c.QueryRow(`SELECT tags FROM sessions WHERE id = ?`, id).Scan(&tags)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session tags: %w", err)
	}
	return tags.String, nil
}

// SetSessionTags replaces the tag string of a session.
func (t *Tx) SetSessionTags(id, tags string) error {
	if _, err := t.tx.Exec(`UPDATE sessions SET tags = ? WHERE id = ?`, tags, id); err != nil {
		return fmt.Errorf("set session tags: %w", err)
	}
	return nil
}

// MarkSummaryOffered records that the summary hint was shown this session.
func (s *Store) MarkSummaryOffered(id string) error {
	if _, err := s.db.Exec(`UPDATE sessions SET summary_offered = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark summary offered: %w", err)
	}
	return nil
}

// SessionListing is one row of ListSessions.
type SessionListing struct {
	Session
	// MessageCount counts user and assistant messages only.
	MessageCount int `json:"message_count"`
}

// ListSessions returns all sessions, newest first, with their current
// user/assistant message count.
func (s *Store) ListSessions() ([]SessionListing, error) {
	rows, err := s.db.Query(
		`SELECT ` + sessionColumns + `,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.session_id = sessions.id AND m.role IN ('user', 'assistant'))
		 FROM sessions
		 ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionListing
	for rows.Next() {
		var l SessionListing
		if err := scanSessionInto(rows, &l.Session, &l.MessageCount); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ─── Summaries ───────────────────────────────────────────────────────────────

// StoredSummary is the result of StoreSummary.
type StoredSummary struct {
	SessionID    string
	MessageCount int
}

// StoreSummary resolves shortID, then stores text as the agent summary along
// with the current user/assistant message count and a UTC timestamp.
func (s *Store) StoreSummary(shortID, text string) (*StoredSummary, error) {
	id, err := s.ResolveSession(shortID)
	if err != nil {
		return nil, err
	}
	n, err := s.CountMessages(id, RoleUser, RoleAssistant)
	if err != nil {
		return nil, err
	}
	now := Now()
	if err := s.RecordSummary(id, SummaryFields{
		AgentSummary:    &text,
		SummaryAt:       &now,
		SummaryMsgCount: &n,
	}); err != nil {
		return nil, err
	}
	return &StoredSummary{SessionID: id, MessageCount: n}, nil
}

// GetSummary resolves shortID and returns the session carrying its summary
// fields. AgentSummary is nil when no summary has been stored.
func (s *Store) GetSummary(shortID string) (*Session, error) {
	id, err := s.ResolveSession(shortID)
	if err != nil {
		return nil, err
	}
	return s.GetSession(id)
}

// ─── Messages ────────────────────────────────────────────────────────────────

// RecordMessage appends a conversation turn. Empty metadata is stored as NULL.
func (s *Store) RecordMessage(sessionID string, role Role, content string, metadata map[string]any) error {
	return recordMessage(s.db, sessionID, role, content, metadata)
}

// RecordMessage is the transactional form of Store.RecordMessage.
func (t *Tx) RecordMessage(sessionID string, role Role, content string, metadata map[string]any) error {
	return recordMessage(t.tx, sessionID, role, content, metadata)
}

func recordMessage(c conn, sessionID string, role Role, content string, metadata map[string]any) error {
	var meta *string
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode message metadata: %w", err)
		}
		meta = nullableString(string(b))
	}
	_, err := c.Exec(
		`INSERT INTO messages (session_id, role, content, metadata) VALUES (?, ?, ?, ?)`,
		sessionID, string(role), content, meta,
	)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// LastAssistantMessage returns the content of the latest assistant message
// in the session, or "" when there is none.
func (s *Store) LastAssistantMessage(sessionID string) (string, error) {
	var content sql.NullString
	err := s.db.QueryRow(
		`SELECT content FROM messages WHERE session_id = ? AND role = 'assistant'
		 ORDER BY id DESC LIMIT 1`,
		sessionID,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last assistant message: %w", err)
	}
	return content.String, nil
}

// CountMessages counts messages in a session, optionally restricted to roles.
func (s *Store) CountMessages(sessionID string, roles ...Role) (int, error) {
	q := `SELECT COUNT(*) FROM messages WHERE session_id = ?`
	args := []any{sessionID}
	if len(roles) > 0 {
		q += ` AND role IN (?` + strings.Repeat(`, ?`, len(roles)-1) + `)`
		for _, r := range roles {
			args = append(args, string(r))
		}
	}
	n, err := count(s.db, q, args...)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// SessionMessages returns every message of a session in insertion order.
func (s *Store) SessionMessages(sessionID string) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, timestamp, role, content, metadata
		 FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("session messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// ─── Scanning ────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	if err := scanSessionInto(row, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func scanSessionInto(row scanner, sess *Session, extra ...any) error {
	var (
		ended, title, summary, summaryAt, tags sql.NullString
		duration                               sql.NullFloat64
		exchanges, summaryCount, offered       sql.NullInt64
	)
	dest := []any{
		&sess.ID, &sess.StartedAt, &ended, &duration, &title, &summary,
		&exchanges, &summaryAt, &summaryCount, &tags, &offered,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	sess.EndedAt = fromNullString(ended)
	sess.Title = fromNullString(title)
	sess.AgentSummary = fromNullString(summary)
	sess.SummaryAt = fromNullString(summaryAt)
	sess.Tags = tags.String
	sess.SummaryOffered = offered.Valid && offered.Int64 != 0
	if duration.Valid {
		sess.DurationMin = &duration.Float64
	}
	sess.ExchangeCount = fromNullInt(exchanges)
	sess.SummaryMsgCount = fromNullInt(summaryCount)
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var (
			m       Message
			role    string
			content sql.NullString
			meta    sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Timestamp, &role, &content, &meta); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		m.Content = content.String
		m.Metadata = parseMetadata(meta.String)
		out = append(out, m)
	}
	return out, rows.Err()
}

// parseMetadata decodes a metadata column, returning nil on absence or
// malformed JSON.
func parseMetadata(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
