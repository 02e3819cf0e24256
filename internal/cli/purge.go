package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newPurgeCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every cached row, queued write, sync time and baseline",
		Long: `Clears the local store. Queued writes that have not been synced are lost.
Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return userError(errors.New("purge deletes all local data; rerun with --yes"))
			}
			return e.withApp(func(a *app) error {
				pending, err := a.store.PendingCount(cmd.Context())
				if err != nil {
					return sysError(err)
				}
				if err := a.store.PurgeAll(cmd.Context()); err != nil {
					return sysError(err)
				}
				e.log.WithField("discarded_pending", pending).Warn("local store purged")
				return e.emit(map[string]int{"discarded_pending": pending}, func(w io.Writer) {
					fmt.Fprintf(w, "Purged local store (%d pending mutations discarded)\n", pending)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
