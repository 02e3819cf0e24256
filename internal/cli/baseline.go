package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newBaselineCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Capture and list baseline snapshots",
	}

	var wf windowFlags
	var label string
	capture := &cobra.Command{
		Use:   "capture",
		Short: "Score the window and save it as a new baseline",
		Long: `Scores the window and freezes the result as a baseline. Baselines are never
modified; capture another one to move the comparison point.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				w, err := wf.window(a.scorer.Now(), e.settings.Scoring.WindowDays)
				if err != nil {
					return err
				}
				snap, err := a.scorer.CaptureBaseline(cmd.Context(), w, label)
				if err != nil {
					return sysError(err)
				}
				return e.emit(snap, func(out io.Writer) {
					fmt.Fprintf(out, "Captured baseline %s (compliance %.1f, fit-for-audit %.1f)\n",
						snap.ID, snap.ComplianceScore, snap.FitForAuditScore)
				})
			})
		},
	}
	wf.register(capture)
	capture.Flags().StringVar(&label, "label", "", "human readable label for the baseline")

	list := &cobra.Command{
		Use:   "list",
		Short: "List baselines, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				snaps, err := a.store.ListBaselines(cmd.Context())
				if err != nil {
					return sysError(err)
				}
				return e.emit(snaps, func(out io.Writer) {
					if len(snaps) == 0 {
						fmt.Fprintln(out, "No baselines")
						return
					}
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tLABEL\tCAPTURED\tWINDOW\tCOMPLIANCE\tFIT-FOR-AUDIT")
					for _, s := range snaps {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s..%s\t%.1f\t%.1f\n",
							s.ID, s.Label, s.CapturedAt.Format(time.RFC3339),
							s.StartDate.Format(time.DateOnly), s.EndDate.Format(time.DateOnly),
							s.ComplianceScore, s.FitForAuditScore)
					}
					tw.Flush()
				})
			})
		},
	}

	cmd.AddCommand(capture, list)
	return cmd
}
