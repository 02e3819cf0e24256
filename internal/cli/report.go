package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/caretrack/internal/remote"
)

func newReportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run hosted reporting functions",
	}

	var wf windowFlags
	run := &cobra.Command{
		Use:   "run <function>",
		Short: "Invoke a date-ranged reporting function and print its JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.settings.PracticeID == "" {
				return userError(errors.New("practice_id is not configured"))
			}
			return e.withApp(func(a *app) error {
				client, err := a.requireRemote()
				if err != nil {
					return err
				}
				w, err := wf.window(time.Now(), e.settings.Scoring.WindowDays)
				if err != nil {
					return err
				}
				raw, err := client.Functions().Invoke(cmd.Context(), args[0], remote.FunctionRequest{
					StartDate:  w.Start.Format(time.DateOnly),
					EndDate:    w.End.Format(time.DateOnly),
					PracticeID: e.settings.PracticeID,
				})
				if errors.Is(err, remote.ErrRateLimited) || errors.Is(err, remote.ErrQuotaExhausted) {
					return sysError(fmt.Errorf("%s: %w", args[0], err))
				}
				if err != nil {
					return sysError(err)
				}

				var buf bytes.Buffer
				if err := json.Indent(&buf, raw, "", "  "); err != nil {
					// Not JSON; print as received.
					fmt.Fprintln(e.out, string(raw))
					return nil
				}
				fmt.Fprintln(e.out, buf.String())
				return nil
			})
		},
	}
	wf.register(run)

	cmd.AddCommand(run)
	return cmd
}
