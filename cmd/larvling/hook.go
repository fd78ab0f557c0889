package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/larvling/internal/cache"
	"github.com/HendryAvila/larvling/internal/extract"
	"github.com/HendryAvila/larvling/internal/hooks"
	"github.com/HendryAvila/larvling/internal/llm"
	lvserver "github.com/HendryAvila/larvling/internal/server"
	"github.com/HendryAvila/larvling/internal/sessionctx"
	"github.com/HendryAvila/larvling/internal/updater"
)

const hookLongDesc = `Run one agent lifecycle hook.

The hook payload is read as JSON from stdin. Hooks never fail the agent:
errors go to .claude/larvling.jsonl and the exit status is always 0.

Events:
  preflight      create or check the database schema
  session-start  print the session context
  prompt         record the user prompt, print context hints
  stop           record the agent reply
  analyze        extract knowledge and tasks in a detached process
  session-end    finalize the session`

func newHookCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Run an agent lifecycle hook",
		Long:  hookLongDesc,
	}

	simple := func(use, short string, pick func(*hooks.Hooks) hooks.HandlerFunc) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				runHook(opts, func(h *hooks.Hooks, _ *slog.Logger) {
					h.Run(c.Context(), use, c.InOrStdin(), pick(h))
				})
				return nil
			},
		}
	}

	preflight := &cobra.Command{
		Use:   "preflight",
		Short: "Create or check the database schema",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			runHook(opts, func(h *hooks.Hooks, logger *slog.Logger) {
				if err := h.Preflight(c.Context()); err != nil {
					logger.Error("hook_error", "hook", "preflight", "error", err)
				}
			})
			return nil
		},
	}

	cmd.AddCommand(
		preflight,
		simple("session-start", "Print the session context", func(h *hooks.Hooks) hooks.HandlerFunc { return h.SessionStart }),
		simple("prompt", "Record the user prompt", func(h *hooks.Hooks) hooks.HandlerFunc { return h.Prompt }),
		simple("stop", "Record the agent reply", func(h *hooks.Hooks) hooks.HandlerFunc { return h.Stop }),
		newAnalyzeCmd(opts),
		simple("session-end", "Finalize the session", func(h *hooks.Hooks) hooks.HandlerFunc { return h.SessionEnd }),
	)
	return cmd
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var detached string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Extract knowledge and tasks from the last exchange",
		Long: `Without --detached, hand the payload to a detached child and return.
With --detached <path>, run the extraction on the payload file and delete it.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			runHook(opts, func(h *hooks.Hooks, _ *slog.Logger) {
				if c.Flags().Changed("detached") {
					h.RunDetached(c.Context(), "analyze", detached, h.Analyze)
					return
				}
				h.Run(c.Context(), "analyze", c.InOrStdin(), h.Offload)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&detached, "detached", "", "payload file written by the foreground hook")
	return cmd
}

// runHook builds the hook handlers and runs fn. Setup failures are logged
// when a logger exists and are otherwise dropped; the hook exits 0 either way.
func runHook(opts *rootOptions, fn func(h *hooks.Hooks, logger *slog.Logger)) {
	if hooks.Internal() {
		return
	}
	defer func() { _ = recover() }()
	a, err := opts.open(false)
	if err != nil {
		return
	}
	defer a.close()

	builder := newContextBuilder(a)

	deps := hooks.Deps{
		Store:     a.store,
		Config:    a.cfg,
		Logger:    a.logger,
		Out:       os.Stdout,
		Context:   builder,
		Offloader: &hooks.DetachedProcess{
			Args:    analyzeArgs(a.cfg.ProjectDir, a.debug),
			WorkDir: a.cfg.ProjectDir,
		},
	}
	if caller, err := llm.New(a.cfg.LLM, llm.StoreQuery(a.store)); err != nil {
		a.logger.Warn("config_error", "error", err)
	} else if orch, err := extract.New(a.store, caller, a.cfg, a.logger, extract.Options{}); err != nil {
		a.logger.Error("hook_error", "hook", "analyze", "error", err)
	} else {
		deps.Extractor = orch
	}

	fn(hooks.New(deps), a.logger)
}

// analyzeArgs re-creates the resolved root flags for the detached child so
// it opens the same project store.
func analyzeArgs(projectDir string, debug bool) []string {
	args := []string{"--project", projectDir}
	if debug {
		args = append(args, "--debug")
	}
	return append(args, "hook", "analyze")
}

// newContextBuilder wires git, geolocation and the release check into a
// session context builder. The lookups share one file cache.
func newContextBuilder(a *app) *sessionctx.Builder {
	fileCache := cache.New(a.cfg.CachePath(), 0)
	git, err := sessionctx.NewGitCLI(a.cfg.ProjectDir, a.cfg.Context.IgnoreFiles)
	if err != nil {
		a.logger.Warn("config_error", "error", err)
	}
	return sessionctx.New(a.store, a.cfg, a.logger,
		sessionctx.WithGit(git),
		sessionctx.WithLocator(sessionctx.NewIPInfo(fileCache)),
		sessionctx.WithUpdates(updater.NewChecker(fileCache), lvserver.Version),
	)
}
