package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

func newDeltaCmd(e *env) *cobra.Command {
	var baselineID, xlsx string
	var days int
	cmd := &cobra.Command{
		Use:   "delta",
		Short: "Compare the current score with a baseline",
		Long: `Scores the last --days and compares the result with the baseline named by
--baseline, or with the most recently captured baseline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return userError(errors.New("--days must not be negative"))
			}
			if days == 0 {
				days = e.settings.Scoring.WindowDays
			}
			return e.withApp(func(a *app) error {
				report, err := a.delta.Run(cmd.Context(), baselineID, days)
				if errors.Is(err, types.ErrNotFound) {
					return userError(fmt.Errorf("%w: capture one with \"caretrack baseline capture\"", err))
				}
				if err != nil {
					return sysError(err)
				}
				if xlsx != "" {
					if err := writeWorkbookFile(xlsx, report.Current, &report); err != nil {
						return err
					}
				}
				return e.emit(report, func(out io.Writer) { printDelta(out, report) })
			})
		},
	}
	cmd.Flags().StringVar(&baselineID, "baseline", "", "baseline id (default: latest)")
	cmd.Flags().IntVar(&days, "days", 0, "current window length in days (default: scoring.window_days)")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "also write the report to an Excel workbook at this path")
	return cmd
}

func printDelta(w io.Writer, r types.DeltaReport) {
	fmt.Fprintln(w, styleHeading.Render(fmt.Sprintf("Delta against %s (last %d days)", r.BaselineID, r.WindowDays)))
	fmt.Fprintf(w, "Compliance: %.1f -> %.1f (%s pts, %s%%)\n",
		r.BaselineScore, r.CurrentScore, signed(r.AbsoluteDelta), signed(r.PercentDelta))
	fmt.Fprintf(w, "Fit-for-audit change: %s pts\n", signed(r.FitForAuditDelta))
	if len(r.TopDrivers) > 0 {
		fmt.Fprintln(w, "Top drivers:")
		for _, d := range r.TopDrivers {
			fmt.Fprintf(w, "  %-22s %5.1f -> %5.1f  %s\n", d.CheckType.Label(), d.Baseline, d.Current, signed(d.Delta))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, r.Narrative)
}
