package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotAQuery is returned by QueryReadOnly for statements that produce no
// result rows.
var ErrNotAQuery = errors.New("statement does not return rows")

// ErrMultipleStatements is returned by QueryReadOnly when the input holds
// more than one SQL statement.
var ErrMultipleStatements = errors.New("only one statement is allowed")

// Row is one result row keyed by column name.
type Row map[string]any

// QueryResult holds the outcome of an ad-hoc SQL statement.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	// RowsAffected is set for write statements run through Exec.
	RowsAffected int64 `json:"rows_affected,omitempty"`
}

// QueryReadOnly runs a single row-returning statement on the read-only
// handle. Input holding more than one statement is rejected before
// anything runs. This backs the read-only query tool offered to the model.
func (s *Store) QueryReadOnly(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	if !singleStatement(query) {
		return nil, ErrMultipleStatements
	}

	rows, err := s.ro.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	res, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if len(res.Columns) == 0 {
		return nil, ErrNotAQuery
	}
	return res, nil
}

// Exec runs an arbitrary statement for the human-facing query command.
// Row-returning statements yield their rows; anything else reports the
// number of affected rows.
func (s *Store) Exec(ctx context.Context, query string) (*QueryResult, error) {
	if returnsRows(query) {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		defer func() { _ = rows.Close() }()
		return collectRows(rows)
	}

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	return &QueryResult{RowsAffected: n}, nil
}

func returnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimLeft(query, " \t\r\n("))
	for _, kw := range []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES"} {
		if strings.HasPrefix(q, kw) {
			return true
		}
	}
	return false
}

// singleStatement reports whether query holds at most one statement. A
// trailing semicolon is fine; semicolons inside quotes, identifiers and
// comments are ignored.
func singleStatement(query string) bool {
	ended := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			for i < len(query) && query[i] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return !ended
			}
			i += end + 3
			continue
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			continue
		}
		if ended {
			return false
		}
		switch c {
		case ';':
			ended = true
		case '\'', '"', '`':
			end := strings.IndexByte(query[i+1:], c)
			if end < 0 {
				return true
			}
			i += end + 1
		case '[':
			end := strings.IndexByte(query[i+1:], ']')
			if end < 0 {
				return true
			}
			i += end + 1
		}
	}
	return true
}

func collectRows(rows *sql.Rows) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

// Cell renders a row value for text output; NULL becomes "".
func Cell(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
