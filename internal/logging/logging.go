// Package logging builds the slog loggers used across larvling.
//
// Two sinks are common: the JSONL event log under .claude/ (one object per
// line, msg is the event name) and a pretty stderr handler for the CLI.
// Multi fans one record out to both.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// EventLogName is the event log file name inside the project's .claude dir.
const EventLogName = "larvling.jsonl"

// SessionKey is the attribute carrying the short session id.
const SessionKey = "sid"

// New returns a *slog.Logger configured by opts. Without options it writes
// text records at Info level to stderr.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo}
	for _, o := range opts {
		o(c)
	}

	var w io.Writer = os.Stderr
	switch len(c.writers) {
	case 0:
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	switch {
	case c.json:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.level}))
	case c.pretty:
		h := log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          "larvling",
			Level:           charmLevel(c.level),
		})
		return slog.New(h)
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.level}))
	}
}

func charmLevel(l slog.Level) log.Level {
	if l <= slog.LevelDebug {
		return log.DebugLevel
	}
	return log.InfoLevel
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OpenEventLog opens (creating if needed) the append-only event log in
// claudeDir and returns a JSON logger writing to it. The caller closes the
// returned file.
func OpenEventLog(claudeDir string, debug bool) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	path := filepath.Join(claudeDir, EventLogName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening event log: %w", err)
	}
	return New(WithJSON(true), WithDebug(debug), WithWriter(f)), f, nil
}

// ForSession returns l with the short session id attached to every record.
// Ids shorter than eight characters are used as-is.
func ForSession(l *slog.Logger, sessionID string) *slog.Logger {
	if sessionID == "" {
		return l
	}
	sid := sessionID
	if len(sid) > 8 {
		sid = sid[:8]
	}
	return l.With(SessionKey, sid)
}
