package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/caretrack/internal/scoring"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

func newCacheCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the offline copy of remote tables",
	}

	refresh := &cobra.Command{
		Use:   "refresh [table...]",
		Short: "Replace cached tables with the remote copy",
		Long: `Fetches each table from the hosted backend and replaces its cached rows in
one transaction. Without arguments every table the scorer reads is
refreshed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := args
			if len(tables) == 0 {
				tables = scoring.Tables()
			}
			return e.withApp(func(a *app) error {
				client, err := a.requireRemote()
				if err != nil {
					return err
				}
				if err := a.queue.RefreshCache(cmd.Context(), client, tables...); err != nil {
					return sysError(err)
				}
				return e.emit(map[string]any{"refreshed": tables}, func(w io.Writer) {
					fmt.Fprintf(w, "Refreshed %d tables\n", len(tables))
				})
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <table>",
		Short: "Print the cached rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				records, err := a.store.GetCachedRecords(cmd.Context(), args[0])
				if err != nil {
					if errors.Is(err, types.ErrInvalidTable) {
						return userError(err)
					}
					return sysError(err)
				}
				if e.flags.jsonMode {
					return printJSON(e.out, records)
				}
				if len(records) == 0 {
					fmt.Fprintf(e.out, "No cached rows for %s\n", args[0])
					return nil
				}
				fmt.Fprintln(e.out, styleMuted.Render(fmt.Sprintf("%d rows, cached %s",
					len(records), records[0].CachedAt.Format(time.RFC3339))))
				for _, r := range records {
					data, err := json.Marshal(r.Data)
					if err != nil {
						return sysError(err)
					}
					fmt.Fprintf(e.out, "%s\t%s\n", r.ID, data)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(refresh, show)
	return cmd
}
