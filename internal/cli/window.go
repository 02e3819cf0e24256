package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/caretrack/internal/scoring"
)

// windowFlags selects a scoring window either as the last N days or as an
// explicit date range.
type windowFlags struct {
	days  int
	start string
	end   string
}

func (f *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.days, "days", 0, "score the last N days (default: scoring.window_days)")
	cmd.Flags().StringVar(&f.start, "start", "", "window start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.end, "end", "", "window end date, YYYY-MM-DD (default: today)")
}

// window resolves the flags against now and the configured default.
func (f *windowFlags) window(now time.Time, defaultDays int) (scoring.Window, error) {
	if f.days < 0 {
		return scoring.Window{}, userError(errors.New("--days must not be negative"))
	}
	if f.start == "" {
		if f.end != "" {
			return scoring.Window{}, userError(errors.New("--end requires --start"))
		}
		days := f.days
		if days == 0 {
			days = defaultDays
		}
		return scoring.LastDays(now, days), nil
	}
	if f.days != 0 {
		return scoring.Window{}, userError(errors.New("--days cannot be combined with --start"))
	}

	start, err := time.ParseInLocation(time.DateOnly, f.start, now.Location())
	if err != nil {
		return scoring.Window{}, userError(fmt.Errorf("--start: %w", err))
	}
	end := now
	if f.end != "" {
		d, err := time.ParseInLocation(time.DateOnly, f.end, now.Location())
		if err != nil {
			return scoring.Window{}, userError(fmt.Errorf("--end: %w", err))
		}
		// Include the whole end day.
		end = d.Add(24*time.Hour - time.Nanosecond)
	}
	w := scoring.Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return scoring.Window{}, userError(err)
	}
	return w, nil
}
