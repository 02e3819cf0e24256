package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/caretrack/internal/export"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

func newScoreCmd(e *env) *cobra.Command {
	var wf windowFlags
	var xlsx string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute the compliance and fit-for-audit scores from cached data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(func(a *app) error {
				w, err := wf.window(a.scorer.Now(), e.settings.Scoring.WindowDays)
				if err != nil {
					return err
				}
				result, err := a.scorer.Compute(cmd.Context(), w)
				if err != nil {
					return sysError(err)
				}
				if xlsx != "" {
					if err := writeWorkbookFile(xlsx, result, nil); err != nil {
						return err
					}
				}
				return e.emit(result, func(out io.Writer) { printScore(out, result) })
			})
		},
	}
	wf.register(cmd)
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "also write the score to an Excel workbook at this path")
	return cmd
}

func printScore(w io.Writer, r types.ScoreResult) {
	fmt.Fprintln(w, styleHeading.Render(fmt.Sprintf("Compliance %s to %s",
		r.StartDate.Format(time.DateOnly), r.EndDate.Format(time.DateOnly))))
	fmt.Fprintf(w, "Compliance score:    %.1f\n", r.ComplianceScore)
	fmt.Fprintf(w, "Fit-for-audit score: %.1f\n", r.FitForAuditScore)
	if d := r.Deductions; d.Total() > 0 {
		fmt.Fprintln(w, styleMuted.Render(fmt.Sprintf("  deductions: fridge %.0f, incidents %.0f, complaints %.0f",
			d.FridgeExcursions, d.SevereIncidents, d.BreachedComplaints)))
	}
	fmt.Fprintln(w)
	printDrivers(w, r.Drivers)
}

func printDrivers(w io.Writer, drivers []types.DriverScore) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DRIVER\tSCORE\tPASSED\tTOTAL\tWEIGHT\tIMPACT")
	for _, d := range drivers {
		fmt.Fprintf(tw, "%s\t%.1f\t%d\t%d\t%.2f\t%.1f\n",
			d.CheckType.Label(), d.Score, d.Passed, d.Total, d.Weight, d.WeightedImpact)
	}
	tw.Flush()
}

// writeWorkbookFile renders the workbook in memory and writes it to path so
// that a failed render leaves no partial file.
func writeWorkbookFile(path string, score types.ScoreResult, report *types.DeltaReport) error {
	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, score, report); err != nil {
		return sysError(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return sysError(fmt.Errorf("write workbook: %w", err))
	}
	return nil
}
