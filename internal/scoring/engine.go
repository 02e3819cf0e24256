// Package scoring reduces cached operational records into a 0-100
// compliance score, explained by weighted per-check drivers, and a 0-100
// fit-for-audit score that further penalizes audit red flags.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// Fit-for-audit deductions.
var (
	fridgeDeductionRate     = decimal.RequireFromString("0.1")
	severeIncidentDeduction = decimal.NewFromInt(10)
	breachedSLADeduction    = decimal.NewFromInt(5)
)

var hundred = decimal.NewFromInt(100)

// Score computes the compliance and fit-for-audit scores for sig. Drivers
// appear in reporting order for every check type with a positive weight.
func Score(sig Signals, weights Weights, w Window) types.ScoreResult {
	result := types.ScoreResult{StartDate: w.Start, EndDate: w.End, Drivers: []types.DriverScore{}}

	compliance := decimal.Zero
	for _, c := range weights.active() {
		s := sig.Checks[c]
		score := driverScore(s)
		weight := decimal.NewFromFloat(weights[c])
		impact := score.Mul(weight).Round(1)
		compliance = compliance.Add(impact)

		result.Drivers = append(result.Drivers, types.DriverScore{
			CheckType:      c,
			Score:          score.InexactFloat64(),
			Total:          s.Total,
			Passed:         s.Passed,
			Weight:         weights[c],
			WeightedImpact: impact.InexactFloat64(),
		})
	}

	// Fridge excursions are deducted even when fridge_temp carries no weight.
	var ded types.Deductions
	if fridge := driverScore(sig.Checks[types.CheckFridgeTemp]); fridge.LessThan(hundred) {
		ded.FridgeExcursions = hundred.Sub(fridge).Mul(fridgeDeductionRate).Round(0).InexactFloat64()
	}
	if sig.SevereIncident {
		ded.SevereIncidents = severeIncidentDeduction.InexactFloat64()
	}
	if sig.BreachedComplaint {
		ded.BreachedComplaints = breachedSLADeduction.InexactFloat64()
	}

	fit := compliance.Sub(decimal.NewFromFloat(ded.Total()))
	fit = decimal.Max(decimal.Zero, decimal.Min(hundred, fit))

	result.ComplianceScore = compliance.InexactFloat64()
	result.FitForAuditScore = fit.InexactFloat64()
	result.Deductions = ded
	return result
}

// driverScore is 100 when nothing was due, otherwise the pass rate as a
// percentage rounded to one decimal.
func driverScore(s Signal) decimal.Decimal {
	if s.Total == 0 {
		return hundred
	}
	return decimal.NewFromInt(int64(s.Passed)).
		Div(decimal.NewFromInt(int64(s.Total))).
		Mul(hundred).
		Round(1)
}

// Store is the storage the engine reads records from and saves baselines to.
type Store interface {
	RecordSource
	SaveBaseline(ctx context.Context, s types.BaselineSnapshot) (string, error)
}

// Config holds optional Engine parameters.
type Config struct {
	// Weights defaults to DefaultWeights.
	Weights Weights

	Now    func() time.Time
	Logger logrus.FieldLogger
}

// Engine scores cached records and captures baselines.
type Engine struct {
	store   Store
	weights Weights
	now     func() time.Time
	log     logrus.FieldLogger
}

// NewEngine validates cfg and creates an Engine over store.
func NewEngine(store Store, cfg Config) (*Engine, error) {
	e := &Engine{store: store, weights: cfg.Weights, now: cfg.Now, log: cfg.Logger}
	if e.weights == nil {
		e.weights = DefaultWeights()
	}
	if err := e.weights.Validate(); err != nil {
		return nil, err
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	return e, nil
}

// Now returns the engine's clock reading.
func (e *Engine) Now() time.Time { return e.now() }

// Compute scores the records inside w.
func (e *Engine) Compute(ctx context.Context, w Window) (types.ScoreResult, error) {
	if err := w.Validate(); err != nil {
		return types.ScoreResult{}, err
	}
	sig, err := Collect(ctx, e.store, w)
	if err != nil {
		return types.ScoreResult{}, err
	}
	result := Score(sig, e.weights, w)
	e.log.WithFields(logrus.Fields{
		"start":         w.Start.Format(time.DateOnly),
		"end":           w.End.Format(time.DateOnly),
		"compliance":    result.ComplianceScore,
		"fit_for_audit": result.FitForAuditScore,
	}).Debug("score computed")
	return result, nil
}

// CaptureBaseline scores w and stores the result as a new baseline.
func (e *Engine) CaptureBaseline(ctx context.Context, w Window, label string) (types.BaselineSnapshot, error) {
	result, err := e.Compute(ctx, w)
	if err != nil {
		return types.BaselineSnapshot{}, err
	}
	snap := types.BaselineFromScore(result, label)
	snap.CapturedAt = e.now()
	id, err := e.store.SaveBaseline(ctx, snap)
	if err != nil {
		return types.BaselineSnapshot{}, fmt.Errorf("saving baseline: %w", err)
	}
	snap.ID = id
	e.log.WithFields(logrus.Fields{"baseline_id": id, "compliance": snap.ComplianceScore}).Info("baseline captured")
	return snap, nil
}
