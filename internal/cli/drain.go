package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

func newDrainCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Replay queued writes against the hosted backend",
		Long: `Replays every queued write in order. Writes that fail stay queued with an
incremented retry count; a write that reaches sync.max_retries failures is
discarded and reported. Requires remote.url; without it the queue is left
untouched. Exits with status 2 when any write failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				if _, err := a.requireRemote(); err != nil {
					return err
				}
				result, err := a.queue.Drain(cmd.Context())
				if err != nil {
					return sysError(err)
				}
				if result.Skipped() {
					return sysError(errors.New("another drain is already running"))
				}
				if err := e.emit(result, func(w io.Writer) { printSyncResult(w, result) }); err != nil {
					return err
				}
				if !result.Success {
					return sysError(fmt.Errorf("%d mutations failed to sync", result.FailedCount))
				}
				return nil
			})
		},
	}
}

func printSyncResult(w io.Writer, r types.SyncResult) {
	fmt.Fprintf(w, "Synced %d, failed %d\n", r.SyncedCount, r.FailedCount)
	for _, se := range r.Errors {
		line := fmt.Sprintf("  %s %s: %s", se.Table, se.ID, se.Error)
		switch {
		case se.Discarded && se.Cause != "":
			line += styleMuted.Render(" (discarded, last error: " + se.Cause + ")")
		case se.Discarded:
			line += styleMuted.Render(" (discarded)")
		}
		fmt.Fprintln(w, line)
	}
}
