// Package memory implements the persistent store for Larvling.
//
// It uses a single SQLite file per project to keep sessions, messages,
// knowledge (topics and statements) and tasks (tasks and updates). The
// schema is small and fixed; its version lives in PRAGMA user_version and
// is never migrated automatically (see EnsureSchema).
package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrSessionNotFound is returned when a (possibly short) session ID does not
// resolve to a stored session.
var ErrSessionNotFound = errors.New("session not found")

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds memory store configuration.
type Config struct {
	// Path is the SQLite database file.
	Path string
	// BusyTimeout bounds how long a writer waits on a locked database.
	BusyTimeout time.Duration
}

// DefaultConfig returns the default configuration for a project directory.
func DefaultConfig(projectDir string) Config {
	return Config{
		Path:        filepath.Join(projectDir, ".claude", "larvling.db"),
		BusyTimeout: 5 * time.Second,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent memory engine backed by SQLite.
type Store struct {
	db *sql.DB
	// ro is opened with mode=ro; SQLite refuses every write on it.
	ro  *sql.DB
	cfg Config
}

// conn is satisfied by both *sql.DB and *sql.Tx so the same helpers serve
// autocommit calls and the reconciliation transaction.
type conn interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Open creates the data directory if needed and opens SQLite with WAL mode.
// It does not touch the schema; call EnsureSchema for that.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("memory: empty database path")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}
	// A single connection keeps the PRAGMAs below in effect for every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	ro, err := openDB("sqlite", readOnlyDSN(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: open read-only database: %w", err)
	}

	return &Store{db: db, ro: ro, cfg: cfg}, nil
}

// readOnlyDSN builds a SQLite URI that opens path without write access.
func readOnlyDSN(path string, busy time.Duration) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{
		Scheme:   "file",
		Path:     p,
		RawQuery: fmt.Sprintf("mode=ro&_pragma=busy_timeout(%d)", busy.Milliseconds()),
	}
	return u.String()
}

// Close closes the underlying database connections.
func (s *Store) Close() error {
	return errors.Join(s.ro.Close(), s.db.Close())
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.cfg.Path
}

// Exists reports whether a database file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ─── Transactions ────────────────────────────────────────────────────────────

// Tx is one logical unit of work against the store. Reconciliation of a
// single exchange runs inside one Tx that is committed once at the end.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a new transaction.
func (s *Store) Begin() (*Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// exists runs a SELECT 1 query and reports whether it produced a row.
func exists(c conn, query string, args ...any) (bool, error) {
	var one int
	err := c.QueryRow(query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func count(c conn, query string, args ...any) (int, error) {
	var n int
	if err := c.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// escapeLike escapes LIKE wildcards so text matches literally with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Truncate shortens a string to at most max bytes with ellipsis, cutting on
// a rune boundary.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}

// ShortID returns the 8-character prefix used for display and logs.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Now returns the current time formatted for SQLite.
func Now() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}
