package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/larvling/internal/memory"
)

const summarizeLongDesc = `Manage session summaries.

Examples:
  larvling summarize --list                       # sessions with summary status
  larvling summarize 5c0ffee0 --get               # print the stored summary
  larvling summarize 5c0ffee0 --store "text"      # store or replace it`

func newSummarizeCmd(opts *rootOptions) *cobra.Command {
	var (
		list  bool
		get   bool
		store string
	)

	cmd := &cobra.Command{
		Use:   "summarize [session-id]",
		Short: "List, read or store session summaries",
		Long:  summarizeLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			storing := c.Flags().Changed("store")
			if !list && (len(args) != 1 || get == storing) {
				return errors.New("use --list, or a session id with exactly one of --get or --store")
			}

			a, err := opts.open(true)
			if err != nil {
				return err
			}
			defer a.close()
			w := c.OutOrStdout()

			switch {
			case list:
				return printSessions(w, a.store, true)
			case get:
				sess, err := a.store.GetSummary(args[0])
				if err != nil && !errors.Is(err, memory.ErrSessionNotFound) {
					return err
				}
				if sess == nil || sess.AgentSummary == nil {
					_, err = fmt.Fprintf(w, "No session summary found for session matching '%s'\n", args[0])
					return err
				}
				_, err = fmt.Fprintln(w, *sess.AgentSummary)
				return err
			default:
				if strings.TrimSpace(store) == "" {
					return errors.New("missing summary text after --store")
				}
				res, err := a.store.StoreSummary(args[0], store)
				if errors.Is(err, memory.ErrSessionNotFound) {
					return fmt.Errorf("no session found matching '%s'", args[0])
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "Session summary stored for session %s (%d messages)\n",
					memory.ShortID(res.SessionID), res.MessageCount)
				return err
			}
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list sessions with their summary status")
	cmd.Flags().BoolVar(&get, "get", false, "print the stored summary")
	cmd.Flags().StringVar(&store, "store", "", "summary text to store")
	return cmd
}

// printSessions lists sessions newest first, one per line:
//
//	5c0ffee0  2026-10-15 14:30 (12.5m)  [summarized 8/10 msgs]  Title
func printSessions(w io.Writer, store *memory.Store, withStatus bool) error {
	sessions, err := store.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}

	for _, s := range sessions {
		var b strings.Builder
		b.WriteString(idStyle.Render(memory.ShortID(s.ID)))
		b.WriteString("  ")
		b.WriteString(startedLabel(s.StartedAt))
		if s.DurationMin != nil && *s.DurationMin != 0 {
			fmt.Fprintf(&b, " (%sm)", strconv.FormatFloat(*s.DurationMin, 'f', -1, 64))
		}
		if withStatus {
			tag := "[not summarized]"
			if s.AgentSummary != nil {
				summarized := 0
				if s.SummaryMsgCount != nil {
					summarized = *s.SummaryMsgCount
				}
				tag = fmt.Sprintf("[summarized %d/%d msgs]", summarized, s.MessageCount)
			}
			b.WriteString("  " + dimStyle.Render(tag))
		}
		if s.Title != nil {
			title, _, _ := strings.Cut(*s.Title, "\n")
			b.WriteString("  " + title)
		}
		if _, err := fmt.Fprintln(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

// startedLabel shows the minute-precision start time with a relative age.
func startedLabel(startedAt string) string {
	if startedAt == "" {
		return "?"
	}
	label := startedAt
	if len(label) > 16 {
		label = label[:16]
	}
	if t, err := time.Parse(time.DateTime, startedAt); err == nil {
		label += " " + dimStyle.Render(humanize.Time(t))
	}
	return label
}
