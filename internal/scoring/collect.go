package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// Accepted date layouts for record date fields.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// Fridge temperatures inside this range, in degrees Celsius, pass.
const (
	fridgeMinC = 2.0
	fridgeMaxC = 8.0
)

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the window [now - days, now].
func LastDays(now time.Time, days int) Window {
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

// Validate rejects windows that end before they start.
func (w Window) Validate() error {
	if w.End.Before(w.Start) {
		return types.ErrInvalidWindow
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Signal counts the items due and passed for one check type.
type Signal struct {
	Passed int
	Total  int
}

// Signals is everything the score needs from the cached tables.
type Signals struct {
	Checks map[types.CheckType]Signal

	// SevereIncident is set when a major or critical incident occurred in
	// the window.
	SevereIncident bool

	// BreachedComplaint is set when a complaint in the window breached its
	// SLA.
	BreachedComplaint bool
}

// collector describes how one check type is read from its table.
type collector struct {
	check     types.CheckType
	table     string
	dateField string
	passed    func(types.Record) bool
}

var collectors = []collector{
	{types.CheckTaskCompletion, "tasks", "due_date", statusIn("completed")},
	{types.CheckPolicyReview, "policies", "review_due", statusIn("reviewed", "current")},
	{types.CheckIPCAudits, "ipc_audits", "audit_date", statusIn("completed")},
	{types.CheckFridgeTemp, "fridge_logs", "logged_at", fridgeInRange},
	{types.CheckIncidentManagement, "incidents", "occurred_at", statusIn("closed", "resolved")},
	{types.CheckComplaintSLA, "complaints", "received_at", func(r types.Record) bool {
		return stringField(r, "sla_status") != "breached"
	}},
	{types.CheckTraining, "training_records", "due_date", statusIn("completed")},
	{types.CheckDBS, "dbs_checks", "expiry_date", statusIn("valid")},
}

// Tables lists every cached table the scorer reads.
func Tables() []string {
	out := make([]string, len(collectors))
	for i, c := range collectors {
		out[i] = c.table
	}
	return out
}

// RecordSource reads cached rows.
type RecordSource interface {
	GetCachedRecords(ctx context.Context, table string) ([]types.CachedRecord, error)
}

// Collect counts due and passed items per check type for records whose date
// field falls inside w. Records with a missing or unparseable date are
// skipped.
func Collect(ctx context.Context, src RecordSource, w Window) (Signals, error) {
	sig := Signals{Checks: make(map[types.CheckType]Signal, len(collectors))}
	for _, c := range collectors {
		records, err := src.GetCachedRecords(ctx, c.table)
		if err != nil {
			return Signals{}, fmt.Errorf("reading %s: %w", c.table, err)
		}
		var s Signal
		for _, rec := range records {
			at, ok := parseDate(rec.Data[c.dateField])
			if !ok || !w.Contains(at) {
				continue
			}
			s.Total++
			if c.passed(rec.Data) {
				s.Passed++
			}
			switch c.check {
			case types.CheckIncidentManagement:
				if sev := stringField(rec.Data, "severity"); sev == "major" || sev == "critical" {
					sig.SevereIncident = true
				}
			case types.CheckComplaintSLA:
				if stringField(rec.Data, "sla_status") == "breached" {
					sig.BreachedComplaint = true
				}
			}
		}
		sig.Checks[c.check] = s
	}
	return sig, nil
}

func statusIn(values ...string) func(types.Record) bool {
	return func(r types.Record) bool {
		status := stringField(r, "status")
		for _, v := range values {
			if status == v {
				return true
			}
		}
		return false
	}
}

func fridgeInRange(r types.Record) bool {
	lo, okLo := numberField(r, "min_temp")
	hi, okHi := numberField(r, "max_temp")
	return okLo && okHi && lo >= fridgeMinC && hi <= fridgeMaxC
}

func stringField(r types.Record, name string) string {
	s, _ := r[name].(string)
	return strings.ToLower(strings.TrimSpace(s))
}

func numberField(r types.Record, name string) (float64, bool) {
	switch v := r[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
