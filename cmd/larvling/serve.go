package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/larvling/internal/cache"
	lvserver "github.com/HendryAvila/larvling/internal/server"
	"github.com/HendryAvila/larvling/internal/updater"
)

const serveLongDesc = `Start the Larvling MCP server on stdio.

Add it to the agent's MCP config:

  {
    "mcpServers": {
      "larvling": {
        "command": "larvling",
        "args": ["serve"]
      }
    }
  }`

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runServe(c.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := opts.open(true)
	if err != nil {
		return err
	}
	defer a.close()

	s, err := lvserver.New(a.store, newContextBuilder(a))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if a.cfg.UpdateCheck {
		// Stderr only; stdout carries the MCP transport.
		go checkForUpdates(ctx, cache.New(a.cfg.CachePath(), 0))
	}

	a.logger.Info("serve", "version", lvserver.Version)
	return server.ServeStdio(s)
}

// checkForUpdates prints a notice to stderr when a newer release exists.
// Network failures are ignored.
func checkForUpdates(ctx context.Context, c updater.Cache) {
	res := updater.NewChecker(c).Check(ctx, lvserver.Version)
	if notice := res.Notice(); notice != "" {
		fmt.Fprintf(os.Stderr, "\n  %s\n\n", notice)
	}
}
