// Larvling: persistent memory for a coding agent.
//
// The agent calls the hook subcommands around every session; the other
// subcommands are for humans and for the model's own tool calls.
//
// Usage:
//
//	larvling hook <event>        # lifecycle hook, JSON payload on stdin
//	larvling serve               # MCP server (stdio transport)
//	larvling query "<SQL>"       # run SQL against the store
//	larvling summarize --list    # session summaries
//	larvling export <id>         # session transcript as markdown
//	larvling version
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/larvling/internal/config"
	"github.com/HendryAvila/larvling/internal/logging"
	"github.com/HendryAvila/larvling/internal/memory"
	lvserver "github.com/HendryAvila/larvling/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	projectDir string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "larvling",
		Short:         "Persistent memory for coding agents",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.projectDir, "project", "", "project directory (default: current directory)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log debug events and echo them to stderr")

	cmd.AddCommand(
		newHookCmd(opts),
		newServeCmd(opts),
		newQueryCmd(opts),
		newSummarizeCmd(opts),
		newExportCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

const rootLongDesc = `Larvling gives a coding agent memory across sessions.

Hooks record every exchange into .claude/larvling.db, extract durable
knowledge and tasks in the background, and inject a session context at
startup. The store can be read back through the MCP server or the query,
summarize and export commands.`

// app bundles the per-invocation collaborators.
type app struct {
	cfg     *config.Config
	store   *memory.Store
	logger  *slog.Logger
	debug   bool
	closers []io.Closer
}

// open loads the config, builds the logger and opens the store. With
// requireDB it refuses to create a database that does not exist yet.
func (o *rootOptions) open(requireDB bool) (*app, error) {
	dir := o.projectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving project dir: %w", err)
		}
		dir = wd
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	cfg, cfgErr := config.Load(dir)
	a := &app{cfg: cfg, debug: o.debug || cfg.Log.Debug}
	a.logger = a.newLogger(a.debug)
	if cfgErr != nil {
		a.logger.Warn("config_error", "error", cfgErr)
	}

	if requireDB && !memory.Exists(cfg.DBPath()) {
		a.close()
		return nil, fmt.Errorf("no database at %s; start an agent session first", cfg.DBPath())
	}
	store, err := memory.Open(memory.Config{Path: cfg.DBPath()})
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store)
	return a, nil
}

// newLogger writes events to the JSONL log and, in debug mode, to stderr.
// A log file that cannot be opened degrades to stderr only.
func (a *app) newLogger(debug bool) *slog.Logger {
	var loggers []*slog.Logger
	events, f, err := logging.OpenEventLog(a.cfg.ClaudeDir(), debug)
	if err == nil {
		loggers = append(loggers, events)
		a.closers = append(a.closers, f)
	}
	if debug || err != nil {
		loggers = append(loggers, logging.New(logging.WithPretty(true), logging.WithDebug(debug)))
	}
	logger := logging.Multi(loggers...)
	if err != nil {
		logger.Warn("log_error", "error", err)
	}
	return logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the larvling version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "larvling v%s\n", lvserver.Version)
			return err
		},
	}
}
