package memory

import (
	"fmt"
	"os"
	"strings"
)

// SchemaVersion is the schema revision this build expects. It is stamped in
// PRAGMA user_version when the schema is created.
const SchemaVersion = 11

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		duration_min REAL,
		title TEXT,
		agent_summary TEXT,
		exchange_count INTEGER,
		summary_at TEXT,
		summary_msg_count INTEGER,
		tags TEXT,
		summary_offered INTEGER DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		timestamp TEXT NOT NULL DEFAULT (datetime('now')),
		role TEXT NOT NULL,
		content TEXT,
		metadata TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS topics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		domain TEXT NOT NULL CHECK(domain IN ('personal', 'professional', 'preferences', 'interests', 'knowledge', 'technical', 'workflow')),
		tags TEXT NOT NULL,
		created TEXT NOT NULL DEFAULT (datetime('now')),
		updated TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS statements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic_id INTEGER NOT NULL REFERENCES topics(id),
		claim TEXT NOT NULL,
		created TEXT NOT NULL DEFAULT (datetime('now')),
		updated TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		domain TEXT NOT NULL CHECK(domain IN ('personal', 'professional', 'preferences', 'interests', 'knowledge', 'technical', 'workflow')),
		status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'done', 'dropped')),
		priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('low', 'medium', 'high')),
		horizon TEXT NOT NULL DEFAULT 'later' CHECK(horizon IN ('now', 'soon', 'later')),
		metadata TEXT,
		created TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES tasks(id),
		content TEXT NOT NULL,
		timestamp TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_statements_topic ON statements(topic_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_updates_task ON updates(task_id)`,
}

// SchemaResult is the outcome of EnsureSchema.
type SchemaResult string

const (
	// SchemaFresh means the schema did not exist and was created.
	SchemaFresh SchemaResult = "fresh"
	// SchemaCurrent means the stored version matches SchemaVersion.
	SchemaCurrent SchemaResult = "current"
	// SchemaMigrate means the versions differ and nothing was changed.
	SchemaMigrate SchemaResult = "migrate"
)

// SchemaStatus reports what EnsureSchema found or did.
type SchemaStatus struct {
	Result  SchemaResult
	Version int
	Report  *MigrationReport
}

// MigrationReport carries everything needed to migrate the store by hand
// (or by the agent) without losing data.
type MigrationReport struct {
	DBPath        string
	FromVersion   int
	ToVersion     int
	CurrentSchema string
	DesiredSchema string
	BackupPath    string
}

// EnsureSchema creates the schema on first use and otherwise checks the
// stored version. On a version mismatch it never alters data or schema: it
// backs up the database file and returns a MigrationReport.
func (s *Store) EnsureSchema() (*SchemaStatus, error) {
	has, err := exists(s.db, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'sessions'`)
	if err != nil {
		return nil, fmt.Errorf("memory: inspect schema: %w", err)
	}

	if !has {
		tx, err := s.db.Begin()
		if err != nil {
			return nil, fmt.Errorf("memory: begin schema: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck
		if err := createSchema(tx); err != nil {
			return nil, fmt.Errorf("memory: create schema: %w", err)
		}
		if err := setSchemaVersion(tx, SchemaVersion); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("memory: commit schema: %w", err)
		}
		return &SchemaStatus{Result: SchemaFresh, Version: SchemaVersion}, nil
	}

	version, err := s.SchemaVersion()
	if err != nil {
		return nil, err
	}
	if version == SchemaVersion {
		return &SchemaStatus{Result: SchemaCurrent, Version: version}, nil
	}

	current, err := s.CurrentSchema()
	if err != nil {
		return nil, err
	}
	desired, err := DesiredSchema()
	if err != nil {
		return nil, err
	}

	backup := fmt.Sprintf("%s.v%d.bak", s.cfg.Path, version)
	if err := s.Backup(backup); err != nil {
		return nil, err
	}

	return &SchemaStatus{
		Result:  SchemaMigrate,
		Version: version,
		Report: &MigrationReport{
			DBPath:        s.cfg.Path,
			FromVersion:   version,
			ToVersion:     SchemaVersion,
			CurrentSchema: current,
			DesiredSchema: desired,
			BackupPath:    backup,
		},
	}, nil
}

// SchemaVersion reads PRAGMA user_version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("memory: read schema version: %w", err)
	}
	return v, nil
}

// SetSchemaVersion stamps PRAGMA user_version. Only migration tooling and
// tests should need this.
func (s *Store) SetSchemaVersion(v int) error {
	return setSchemaVersion(s.db, v)
}

func setSchemaVersion(c conn, v int) error {
	// PRAGMA does not accept bound parameters.
	if _, err := c.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("memory: set schema version: %w", err)
	}
	return nil
}

// CurrentSchema returns the live schema as stored in sqlite_master.
func (s *Store) CurrentSchema() (string, error) {
	return introspectSchema(s.db)
}

// DesiredSchema instantiates the schema in a throwaway in-memory database
// and returns it in the same form as CurrentSchema.
func DesiredSchema() (string, error) {
	mem, err := openDB("sqlite", ":memory:")
	if err != nil {
		return "", fmt.Errorf("memory: open scratch database: %w", err)
	}
	defer mem.Close()
	mem.SetMaxOpenConns(1)

	if err := createSchema(mem); err != nil {
		return "", fmt.Errorf("memory: create scratch schema: %w", err)
	}
	return introspectSchema(mem)
}

// Backup writes a consistent copy of the database to path, replacing any
// existing file. VACUUM INTO reads the live database and never writes to it.
func (s *Store) Backup(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("memory: remove old backup: %w", err)
	}
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("memory: backup to %s: %w", path, err)
	}
	return nil
}

// HasTable reports whether a table with the given name exists.
func (s *Store) HasTable(name string) (bool, error) {
	return exists(s.db, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
}

func createSchema(c conn) error {
	for _, stmt := range schemaStatements {
		if _, err := c.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func introspectSchema(c conn) (string, error) {
	rows, err := c.Query(
		`SELECT sql FROM sqlite_master
		 WHERE type IN ('table', 'index') AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL`,
	)
	if err != nil {
		return "", fmt.Errorf("memory: read schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var parts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", err
		}
		parts = append(parts, stmt+";")
	}
	return strings.Join(parts, "\n"), rows.Err()
}

// Markdown renders the migration instructions shown to the agent at
// session start.
func (r *MigrationReport) Markdown() string {
	var b strings.Builder
	path := strings.ReplaceAll(r.DBPath, `\`, "/")

	b.WriteString("# Larvling - Schema Migration Required\n\n")
	fmt.Fprintf(&b, "Database schema is version **%d**, expected **%d**.\n", r.FromVersion, r.ToVersion)
	fmt.Fprintf(&b, "A backup has been saved to `%s`.\n\n", r.BackupPath)
	b.WriteString("## Current Schema (in database)\n")
	fmt.Fprintf(&b, "```sql\n%s\n```\n\n", r.CurrentSchema)
	b.WriteString("## Desired Schema\n")
	fmt.Fprintf(&b, "```sql\n%s\n```\n\n", r.DesiredSchema)
	fmt.Fprintf(&b, "Please migrate the database at `%s` from the current schema to the desired schema.\n", path)
	b.WriteString("Preserve all existing data. After migrating, run:\n")
	fmt.Fprintf(&b, "```sh\nsqlite3 %q \"PRAGMA user_version = %d\"\n```\n", path, r.ToVersion)
	return b.String()
}
