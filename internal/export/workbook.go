// Package export writes scores and delta reports as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// Sheet names.
const (
	SheetSummary = "Summary"
	SheetDrivers = "Drivers"
	SheetDelta   = "Delta"
)

// WriteWorkbook writes an .xlsx workbook for score to w. The Delta sheet is
// added only when report is non-nil.
func WriteWorkbook(w io.Writer, score types.ScoreResult, report *types.DeltaReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("naming summary sheet: %w", err)
	}
	summary := [][]any{
		{"Window start", score.StartDate.Format(time.DateOnly)},
		{"Window end", score.EndDate.Format(time.DateOnly)},
		{"Compliance score", score.ComplianceScore},
		{"Fit for audit score", score.FitForAuditScore},
		{"Fridge excursion deduction", score.Deductions.FridgeExcursions},
		{"Severe incident deduction", score.Deductions.SevereIncidents},
		{"Breached complaint deduction", score.Deductions.BreachedComplaints},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetDrivers); err != nil {
		return fmt.Errorf("creating drivers sheet: %w", err)
	}
	drivers := [][]any{{"Check", "Score", "Passed", "Total", "Weight", "Weighted impact"}}
	for _, d := range score.Drivers {
		drivers = append(drivers, []any{d.CheckType.Label(), d.Score, d.Passed, d.Total, d.Weight, d.WeightedImpact})
	}
	if err := writeRows(f, SheetDrivers, drivers); err != nil {
		return err
	}

	if report != nil {
		if _, err := f.NewSheet(SheetDelta); err != nil {
			return fmt.Errorf("creating delta sheet: %w", err)
		}
		rows := [][]any{
			{"Baseline", report.BaselineID},
			{"Window days", report.WindowDays},
			{"Baseline score", report.BaselineScore},
			{"Current score", report.CurrentScore},
			{"Absolute delta", report.AbsoluteDelta},
			{"Percent delta", report.PercentDelta},
			{"Fit for audit delta", report.FitForAuditDelta},
			{"Narrative", report.Narrative},
			{},
			{"Driver", "Baseline", "Current", "Delta"},
		}
		for _, d := range report.TopDrivers {
			rows = append(rows, []any{d.CheckType.Label(), d.Baseline, d.Current, d.Delta})
		}
		if err := writeRows(f, SheetDelta, rows); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
