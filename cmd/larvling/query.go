package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/larvling/internal/memory"
)

const queryLongDesc = `Run SQL against the Larvling store.

Row-returning statements print a table (or JSON with --json); other
statements are executed and report the affected row count. --read-only
rejects anything that writes, which is how the extraction model is
pointed at the store.

Examples:
  larvling query "SELECT id, title FROM topics"
  larvling query "SELECT * FROM tasks WHERE status = 'open'" --json`

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var asJSON, readOnly bool

	cmd := &cobra.Command{
		Use:   `query "<SQL>"`,
		Short: "Run SQL against the store",
		Long:  queryLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := opts.open(true)
			if err != nil {
				return err
			}
			defer a.close()

			var res *memory.QueryResult
			if readOnly {
				res, err = a.store.QueryReadOnly(c.Context(), args[0])
			} else {
				res, err = a.store.Exec(c.Context(), args[0])
			}
			if errors.Is(err, memory.ErrNotAQuery) {
				return errors.New("SQL error: --read-only accepts row-returning statements only")
			}
			if err != nil {
				return fmt.Errorf("SQL error: %w", err)
			}
			return printQuery(c.OutOrStdout(), res, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as a JSON array")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "reject statements that write")
	return cmd
}

func printQuery(w io.Writer, res *memory.QueryResult, asJSON bool) error {
	if len(res.Columns) == 0 {
		_, err := fmt.Fprintf(w, "%d row(s) affected.\n", res.RowsAffected)
		return err
	}
	if asJSON {
		rows := res.Rows
		if rows == nil {
			rows = []memory.Row{}
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding rows: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	if len(res.Rows) == 0 {
		_, err := fmt.Fprintln(w, "No rows returned.")
		return err
	}
	_, err := fmt.Fprintf(w, "%s\n%s\n", renderTable(res), dimStyle.Render(fmt.Sprintf("(%d rows)", len(res.Rows))))
	return err
}
