package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/larvling/internal/memory"
)

const exportLongDesc = `Export session transcripts or the knowledge base.

Examples:
  larvling export 5c0ffee0                 # markdown to stdout
  larvling export 5c0ffee0 notes/s.md      # markdown to a file
  larvling export --list                   # list sessions
  larvling export --all                    # every session into .claude/exports/
  larvling export --knowledge --format yaml`

// defaultExportDir is used by --all when no directory is given.
const defaultExportDir = ".claude/exports"

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		list      bool
		all       bool
		knowledge bool
		format    string
		render    bool
	)

	cmd := &cobra.Command{
		Use:   "export [session-id [outfile]]",
		Short: "Export sessions as markdown or knowledge as JSON/YAML",
		Long:  exportLongDesc,
		Args:  cobra.MaximumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			if !list && !all && !knowledge && len(args) == 0 {
				return errors.New("a session id, --list, --all or --knowledge is required")
			}

			a, err := opts.open(true)
			if err != nil {
				return err
			}
			defer a.close()
			w := c.OutOrStdout()

			switch {
			case list:
				return printSessions(w, a.store, false)
			case all:
				dir := defaultExportDir
				if len(args) > 0 {
					dir = args[0]
				}
				return exportAll(w, a.store, dir)
			case knowledge:
				return exportKnowledge(w, a.store, format)
			}

			exp, err := a.store.ExportSession(args[0])
			if errors.Is(err, memory.ErrSessionNotFound) {
				return fmt.Errorf("no session found matching '%s'", args[0])
			}
			if err != nil {
				return err
			}
			md := exp.Markdown()

			if len(args) == 2 {
				if err := writeFile(args[1], md); err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "Exported to %s\n", args[1])
				return err
			}
			if render {
				md = renderMarkdown(md)
			}
			_, err = fmt.Fprintln(w, md)
			return err
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list available sessions")
	cmd.Flags().BoolVar(&all, "all", false, "export every session to a directory (default .claude/exports)")
	cmd.Flags().BoolVar(&knowledge, "knowledge", false, "export topics, statements, tasks and updates")
	cmd.Flags().StringVar(&format, "format", "json", "knowledge export format: json or yaml")
	cmd.Flags().BoolVar(&render, "render", false, "render markdown for the terminal")
	return cmd
}

// exportAll writes each session with messages to <dir>/<short-id>.md.
func exportAll(w io.Writer, store *memory.Store, dir string) error {
	ids, err := store.SessionIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("no sessions to export")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	exported := 0
	for _, id := range ids {
		exp, err := store.ExportSession(id)
		if errors.Is(err, memory.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, memory.ShortID(id)+".md"), exp.Markdown()); err != nil {
			return err
		}
		exported++
	}
	_, err = fmt.Fprintf(w, "Exported %d sessions to %s/\n", exported, dir)
	return err
}

func exportKnowledge(w io.Writer, store *memory.Store, format string) error {
	exp, err := store.ExportKnowledge()
	if err != nil {
		return err
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(exp)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(exp); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
