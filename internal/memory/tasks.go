package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ─── Task primitives (transactional) ─────────────────────────────────────────

// TaskExists reports whether a task with id exists.
func (t *Tx) TaskExists(id int64) (bool, error) {
	return exists(t.tx, `SELECT 1 FROM tasks WHERE id = ?`, id)
}

// OpenTaskWithTitle reports whether an open task with exactly this title exists.
func (t *Tx) OpenTaskWithTitle(title string) (bool, error) {
	return exists(t.tx, `SELECT 1 FROM tasks WHERE title = ? AND status = 'open'`, title)
}

// InsertTask creates an open task and returns its id.
func (t *Tx) InsertTask(title string, domain Domain, priority Priority, horizon Horizon) (int64, error) {
	res, err := t.tx.Exec(
		`INSERT INTO tasks (title, domain, priority, horizon) VALUES (?, ?, ?, ?)`,
		title, string(domain), string(priority), string(horizon),
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

// TaskFields selects which task columns UpdateTaskFields writes. Zero
// values are left untouched.
type TaskFields struct {
	Status   Status
	Priority Priority
	Horizon  Horizon
	Title    string
}

// Empty reports whether no field is set.
func (f TaskFields) Empty() bool {
	return f == TaskFields{}
}

// UpdateTaskFields writes the non-zero fields of f to the task. It reports
// whether anything was written.
func (t *Tx) UpdateTaskFields(id int64, f TaskFields) (bool, error) {
	var (
		sets []string
		args []any
	)
	if f.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		sets = append(sets, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.Horizon != "" {
		sets = append(sets, "horizon = ?")
		args = append(args, string(f.Horizon))
	}
	if f.Title != "" {
		sets = append(sets, "title = ?")
		args = append(args, f.Title)
	}
	if len(sets) == 0 {
		return false, nil
	}
	args = append(args, id)
	if _, err := t.tx.Exec(`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return false, fmt.Errorf("update task: %w", err)
	}
	return true, nil
}

// UpdateExists reports whether identical content is already recorded for taskID.
func (t *Tx) UpdateExists(taskID int64, content string) (bool, error) {
	return exists(t.tx, `SELECT 1 FROM updates WHERE task_id = ? AND content = ?`, taskID, content)
}

// InsertUpdate appends a progress note to a task and returns its id.
func (t *Tx) InsertUpdate(taskID int64, content string) (int64, error) {
	res, err := t.tx.Exec(`INSERT INTO updates (task_id, content) VALUES (?, ?)`, taskID, content)
	if err != nil {
		return 0, fmt.Errorf("insert update: %w", err)
	}
	return res.LastInsertId()
}

// ─── Task reads ──────────────────────────────────────────────────────────────

const taskColumns = `id, title, domain, status, priority, horizon, metadata, created`

// taskRank orders tasks high/now first.
const taskRank = `CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
	CASE horizon WHEN 'now' THEN 0 WHEN 'soon' THEN 1 ELSE 2 END`

// GetTask returns a task by id, or nil if it does not exist.
func (s *Store) GetTask(id int64) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	tk, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return tk, nil
}

// ListTasks returns tasks ordered by priority then horizon, optionally
// filtered by status.
func (s *Store) ListTasks(status Status) ([]Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY ` + taskRank + `, id`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Task
	for rows.Next() {
		tk, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		out = append(out, *tk)
	}
	return out, rows.Err()
}

// OpenTasks returns open tasks ordered high/now first.
func (s *Store) OpenTasks() ([]Task, error) {
	return s.ListTasks(StatusOpen)
}

// TaskUpdates returns the updates of a task in insertion order.
func (s *Store) TaskUpdates(taskID int64) ([]Update, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, content, timestamp FROM updates WHERE task_id = ? ORDER BY id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("task updates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Update
	for rows.Next() {
		var u Update
		if err := rows.Scan(&u.ID, &u.TaskID, &u.Content, &u.Timestamp); err != nil {
			return nil, fmt.Errorf("task updates: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanTask(row scanner) (*Task, error) {
	var (
		tk                                 Task
		domain, status, priority, horizon string
		meta                               sql.NullString
	)
	if err := row.Scan(&tk.ID, &tk.Title, &domain, &status, &priority, &horizon, &meta, &tk.Created); err != nil {
		return nil, err
	}
	tk.Domain = Domain(domain)
	tk.Status = Status(status)
	tk.Priority = Priority(priority)
	tk.Horizon = Horizon(horizon)
	tk.Metadata = fromNullString(meta)
	return &tk, nil
}
