package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type pendingRow struct {
	ID         string    `json:"id"`
	Table      string    `json:"table"`
	Operation  string    `json:"operation"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	RetryCount int       `json:"retry_count"`
}

func newPendingCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued writes in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				pending, err := a.store.ListPendingMutations(cmd.Context())
				if err != nil {
					return sysError(err)
				}
				rows := make([]pendingRow, len(pending))
				for i, p := range pending {
					rows[i] = pendingRow{
						ID:         p.ID,
						Table:      p.Table(),
						Operation:  string(p.Operation()),
						EnqueuedAt: p.EnqueuedAt,
						RetryCount: p.RetryCount,
					}
				}
				return e.emit(rows, func(w io.Writer) {
					if len(rows) == 0 {
						fmt.Fprintln(w, "No pending mutations")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tTABLE\tOPERATION\tENQUEUED\tRETRIES")
					for _, r := range rows {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
							r.ID, r.Table, r.Operation, r.EnqueuedAt.Format(time.RFC3339), r.RetryCount)
					}
					tw.Flush()
				})
			})
		},
	}
}
