package memory

import (
	"database/sql"
	"errors"
	"fmt"
)

// ─── Knowledge primitives (transactional) ────────────────────────────────────

// TopicExists reports whether a topic with id exists.
func (t *Tx) TopicExists(id int64) (bool, error) {
	return exists(t.tx, `SELECT 1 FROM topics WHERE id = ?`, id)
}

// StatementExists reports whether a statement with id exists.
func (t *Tx) StatementExists(id int64) (bool, error) {
	return exists(t.tx, `SELECT 1 FROM statements WHERE id = ?`, id)
}

// ClaimExists reports whether claim is stored verbatim under any topic.
func (t *Tx) ClaimExists(claim string) (bool, error) {
	return exists(t.tx, `SELECT 1 FROM statements WHERE claim = ?`, claim)
}

// ClaimExistsInTopic reports whether claim is stored verbatim under topicID.
func (t *Tx) ClaimExistsInTopic(topicID int64, claim string) (bool, error) {
	return exists(t.tx, `SELECT 1 FROM statements WHERE topic_id = ? AND claim = ?`, topicID, claim)
}

// InsertTopic creates a topic and returns its id.
func (t *Tx) InsertTopic(title string, domain Domain, tags string) (int64, error) {
	res, err := t.tx.Exec(
		`INSERT INTO topics (title, domain, tags) VALUES (?, ?, ?)`,
		title, string(domain), tags,
	)
	if err != nil {
		return 0, fmt.Errorf("insert topic: %w", err)
	}
	return res.LastInsertId()
}

// InsertStatement creates a statement under topicID and returns its id.
func (t *Tx) InsertStatement(topicID int64, claim string) (int64, error) {
	res, err := t.tx.Exec(
		`INSERT INTO statements (topic_id, claim) VALUES (?, ?)`,
		topicID, claim,
	)
	if err != nil {
		return 0, fmt.Errorf("insert statement: %w", err)
	}
	return res.LastInsertId()
}

// UpdateStatementClaim overwrites a claim and stamps updated.
func (t *Tx) UpdateStatementClaim(id int64, claim string) error {
	_, err := t.tx.Exec(
		`UPDATE statements SET claim = ?, updated = datetime('now') WHERE id = ?`,
		claim, id,
	)
	if err != nil {
		return fmt.Errorf("update statement: %w", err)
	}
	return nil
}

// UpdateTopic overwrites the title. Domain and tags are only changed when
// non-empty. The updated timestamp is always stamped.
func (t *Tx) UpdateTopic(id int64, title string, domain Domain, tags string) error {
	_, err := t.tx.Exec(
		`UPDATE topics SET
			title = ?,
			domain = COALESCE(?, domain),
			tags = COALESCE(?, tags),
			updated = datetime('now')
		 WHERE id = ?`,
		title, nullableString(string(domain)), nullableString(tags), id,
	)
	if err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	return nil
}

// ─── Knowledge reads ─────────────────────────────────────────────────────────

// GetTopic returns a topic by id, or nil if it does not exist.
func (s *Store) GetTopic(id int64) (*Topic, error) {
	row := s.db.QueryRow(`SELECT id, title, domain, tags, created, updated FROM topics WHERE id = ?`, id)
	tp, err := scanTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return tp, nil
}

// GetStatement returns a statement by id, or nil if it does not exist.
func (s *Store) GetStatement(id int64) (*Statement, error) {
	row := s.db.QueryRow(`SELECT id, topic_id, claim, created, updated FROM statements WHERE id = ?`, id)
	st, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get statement: %w", err)
	}
	return st, nil
}

// ListTopics returns topics ordered by id, optionally filtered by domain.
func (s *Store) ListTopics(domain Domain) ([]Topic, error) {
	q := `SELECT id, title, domain, tags, created, updated FROM topics`
	var args []any
	if domain != "" {
		q += ` WHERE domain = ?`
		args = append(args, string(domain))
	}
	q += ` ORDER BY id`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Topic
	for rows.Next() {
		tp, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("list topics: %w", err)
		}
		out = append(out, *tp)
	}
	return out, rows.Err()
}

// TopicStatements returns the statements of a topic in insertion order.
func (s *Store) TopicStatements(topicID int64) ([]Statement, error) {
	rows, err := s.db.Query(
		`SELECT id, topic_id, claim, created, updated FROM statements WHERE topic_id = ? ORDER BY id`,
		topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("topic statements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("topic statements: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanTopic(row scanner) (*Topic, error) {
	var (
		tp      Topic
		domain  string
		updated sql.NullString
	)
	if err := row.Scan(&tp.ID, &tp.Title, &domain, &tp.Tags, &tp.Created, &updated); err != nil {
		return nil, err
	}
	tp.Domain = Domain(domain)
	tp.Updated = fromNullString(updated)
	return &tp, nil
}

func scanStatement(row scanner) (*Statement, error) {
	var (
		st      Statement
		updated sql.NullString
	)
	if err := row.Scan(&st.ID, &st.TopicID, &st.Claim, &st.Created, &updated); err != nil {
		return nil, err
	}
	st.Updated = fromNullString(updated)
	return &st, nil
}
