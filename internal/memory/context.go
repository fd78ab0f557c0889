package memory

import (
	"database/sql"
	"fmt"
	"sort"
)

// ─── Context queries ─────────────────────────────────────────────────────────
//
// Read-only aggregations used to build session-start context and prompt
// hints. None of these mutate the store.

// DomainCount is the number of topics in one domain.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// KnowledgeStats summarizes the size of the knowledge base.
type KnowledgeStats struct {
	Topics     int           `json:"topics"`
	Statements int           `json:"statements"`
	Domains    []DomainCount `json:"domains"`
}

// KnowledgeStats returns topic/statement counts and the per-domain topic
// breakdown, largest first.
func (s *Store) KnowledgeStats() (*KnowledgeStats, error) {
	var st KnowledgeStats
	var err error
	if st.Topics, err = count(s.db, `SELECT COUNT(*) FROM topics`); err != nil {
		return nil, fmt.Errorf("knowledge stats: %w", err)
	}
	if st.Statements, err = count(s.db, `SELECT COUNT(*) FROM statements`); err != nil {
		return nil, fmt.Errorf("knowledge stats: %w", err)
	}
	if st.Topics == 0 {
		return &st, nil
	}

	rows, err := s.db.Query(
		`SELECT COALESCE(domain, 'unset'), COUNT(*) AS c FROM topics GROUP BY domain ORDER BY c DESC, domain`,
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge stats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, fmt.Errorf("knowledge stats: %w", err)
		}
		st.Domains = append(st.Domains, dc)
	}
	return &st, rows.Err()
}

// RecentStatement is a statement joined with its topic.
type RecentStatement struct {
	StatementID int64  `json:"statement_id"`
	TopicID     int64  `json:"topic_id"`
	TopicTitle  string `json:"topic_title"`
	Claim       string `json:"claim"`
}

// RecentStatements returns the most recently touched statements.
func (s *Store) RecentStatements(limit int) ([]RecentStatement, error) {
	rows, err := s.db.Query(
		`SELECT s.id, t.id, t.title, s.claim
		 FROM topics t JOIN statements s ON s.topic_id = t.id
		 ORDER BY COALESCE(s.updated, s.created) DESC, s.id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent statements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RecentStatement
	for rows.Next() {
		var r RecentStatement
		if err := rows.Scan(&r.StatementID, &r.TopicID, &r.TopicTitle, &r.Claim); err != nil {
			return nil, fmt.Errorf("recent statements: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionSummary is the condensed view of a session used in context.
type SessionSummary struct {
	ID          string
	StartedAt   string
	DurationMin *float64
	// Summary is the agent summary when present, otherwise the title.
	Summary string
}

// RecentSummaries returns the latest sessions that have a summary or title.
func (s *Store) RecentSummaries(limit int) ([]SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, duration_min, COALESCE(agent_summary, title)
		 FROM sessions
		 WHERE agent_summary IS NOT NULL OR title IS NOT NULL
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSummaries(rows)
}

// SessionsMentioning ranks sessions by how many of the given file basenames
// appear in their user/assistant messages. Sessions in exclude are ignored;
// sessions without a summary or title are dropped from the result.
func (s *Store) SessionsMentioning(basenames []string, exclude map[string]bool, limit int) ([]SessionSummary, error) {
	hits := map[string]int{}
	for _, name := range basenames {
		if name == "" {
			continue
		}
		rows, err := s.db.Query(
			`SELECT DISTINCT session_id FROM messages
			 WHERE content LIKE ? ESCAPE '\' AND role IN ('user', 'assistant')`,
			"%"+escapeLike(name)+"%",
		)
		if err != nil {
			return nil, fmt.Errorf("sessions mentioning: %w", err)
		}
		for rows.Next() {
			var sid string
			if err := rows.Scan(&sid); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("sessions mentioning: %w", err)
			}
			if !exclude[sid] {
				hits[sid]++
			}
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("sessions mentioning: %w", err)
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		if hits[ids[i]] != hits[ids[j]] {
			return hits[ids[i]] > hits[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	var out []SessionSummary
	for _, id := range ids {
		rows, err := s.db.Query(
			`SELECT id, started_at, duration_min, COALESCE(agent_summary, title)
			 FROM sessions WHERE id = ?`,
			id,
		)
		if err != nil {
			return nil, fmt.Errorf("sessions mentioning: %w", err)
		}
		got, err := scanSummaries(rows)
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("sessions mentioning: %w", err)
		}
		out = append(out, got...)
	}
	return out, nil
}

// RecentMessages returns the latest messages across all sessions, newest first.
func (s *Store) RecentMessages(limit int) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, timestamp, role, content, metadata
		 FROM messages ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// TotalMessages counts all messages in the store.
func (s *Store) TotalMessages() (int, error) {
	n, err := count(s.db, `SELECT COUNT(*) FROM messages`)
	if err != nil {
		return 0, fmt.Errorf("total messages: %w", err)
	}
	return n, nil
}

func scanSummaries(rows *sql.Rows) ([]SessionSummary, error) {
	var out []SessionSummary
	for rows.Next() {
		var (
			ss       SessionSummary
			duration sql.NullFloat64
			summary  sql.NullString
		)
		if err := rows.Scan(&ss.ID, &ss.StartedAt, &duration, &summary); err != nil {
			return nil, err
		}
		if !summary.Valid || summary.String == "" {
			continue
		}
		ss.Summary = summary.String
		if duration.Valid {
			ss.DurationMin = &duration.Float64
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}
