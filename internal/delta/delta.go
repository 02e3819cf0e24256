// Package delta compares a current compliance score with a stored baseline
// and explains the change through its largest-moving drivers.
package delta

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/caretrack/internal/scoring"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// DefaultWindowDays is the comparison window used when none is given.
const DefaultWindowDays = 90

// MaxTopDrivers caps the drivers reported in a delta.
const MaxTopDrivers = 5

// Compare reports the change from baseline to current. It does not set
// WindowDays.
func Compare(baseline types.BaselineSnapshot, current types.ScoreResult) types.DeltaReport {
	base := decimal.NewFromFloat(baseline.ComplianceScore)
	absDelta := decimal.NewFromFloat(current.ComplianceScore).Sub(base).Round(1)
	pctDelta := decimal.Zero
	if !base.IsZero() {
		pctDelta = absDelta.Div(base).Mul(decimal.NewFromInt(100)).Round(1)
	}
	fit := decimal.NewFromFloat(current.FitForAuditScore).
		Sub(decimal.NewFromFloat(baseline.FitForAuditScore)).
		Round(1)

	drivers := driverDeltas(baseline.DriverDetails, current.Drivers)
	top := drivers
	if len(top) > MaxTopDrivers {
		top = top[:MaxTopDrivers]
	}

	return types.DeltaReport{
		BaselineID:       baseline.ID,
		BaselineScore:    baseline.ComplianceScore,
		CurrentScore:     current.ComplianceScore,
		AbsoluteDelta:    absDelta.InexactFloat64(),
		PercentDelta:     pctDelta.InexactFloat64(),
		FitForAuditDelta: fit.InexactFloat64(),
		TopDrivers:       top,
		Narrative:        narrative(absDelta, pctDelta, top),
		Current:          current,
	}
}

// driverDeltas returns the non-zero changes for check types present in both
// lists, largest magnitude first. Equal magnitudes keep current order.
func driverDeltas(baseline, current []types.DriverScore) []types.DriverDelta {
	prior := make(map[types.CheckType]float64, len(baseline))
	for _, d := range baseline {
		prior[d.CheckType] = d.Score
	}

	out := []types.DriverDelta{}
	for _, d := range current {
		b, ok := prior[d.CheckType]
		if !ok {
			continue
		}
		delta := decimal.NewFromFloat(d.Score).Sub(decimal.NewFromFloat(b)).Round(1)
		if delta.IsZero() {
			continue
		}
		out = append(out, types.DriverDelta{
			CheckType: d.CheckType,
			Baseline:  b,
			Current:   d.Score,
			Delta:     delta.InexactFloat64(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Delta) > abs(out[j].Delta)
	})
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// narrative renders the one-sentence summary, e.g.
// "Your compliance score is up 12 pts (17.1%) since the baseline, driven
// mainly by task completion (up 8 pts)."
func narrative(absDelta, pctDelta decimal.Decimal, top []types.DriverDelta) string {
	var b strings.Builder
	b.WriteString("Your compliance score is ")
	if absDelta.IsZero() {
		b.WriteString("unchanged since the baseline")
	} else {
		fmt.Fprintf(&b, "%s %s pts (%s%%) since the baseline",
			direction(absDelta), absDelta.Abs().String(), pctDelta.Abs().String())
	}
	if len(top) > 0 {
		d := decimal.NewFromFloat(top[0].Delta)
		fmt.Fprintf(&b, ", driven mainly by %s (%s %s pts)",
			top[0].CheckType.Label(), direction(d), d.Abs().String())
	}
	b.WriteString(".")
	return b.String()
}

func direction(d decimal.Decimal) string {
	if d.IsNegative() {
		return "down"
	}
	return "up"
}

// Scorer computes a score over a window.
type Scorer interface {
	Compute(ctx context.Context, w scoring.Window) (types.ScoreResult, error)
	Now() time.Time
}

// BaselineSource loads stored baselines.
type BaselineSource interface {
	GetBaseline(ctx context.Context, id string) (types.BaselineSnapshot, error)
	LatestBaseline(ctx context.Context) (types.BaselineSnapshot, error)
}

// Engine produces delta reports against stored baselines.
type Engine struct {
	scorer    Scorer
	baselines BaselineSource
	log       logrus.FieldLogger
}

// NewEngine creates an Engine. A nil logger uses the logrus standard logger.
func NewEngine(scorer Scorer, baselines BaselineSource, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{scorer: scorer, baselines: baselines, log: log}
}

// Run scores the last windowDays and compares the result with the baseline
// named by baselineID, or with the latest baseline when baselineID is empty.
// A windowDays of zero uses DefaultWindowDays.
func (e *Engine) Run(ctx context.Context, baselineID string, windowDays int) (types.DeltaReport, error) {
	if windowDays < 0 {
		return types.DeltaReport{}, fmt.Errorf("%w: %d days", types.ErrInvalidWindow, windowDays)
	}
	if windowDays == 0 {
		windowDays = DefaultWindowDays
	}

	baseline, err := e.loadBaseline(ctx, baselineID)
	if err != nil {
		return types.DeltaReport{}, err
	}

	current, err := e.scorer.Compute(ctx, scoring.LastDays(e.scorer.Now(), windowDays))
	if err != nil {
		return types.DeltaReport{}, fmt.Errorf("computing current score: %w", err)
	}

	report := Compare(baseline, current)
	report.WindowDays = windowDays
	e.log.WithFields(logrus.Fields{
		"baseline_id":    baseline.ID,
		"window_days":    windowDays,
		"absolute_delta": report.AbsoluteDelta,
	}).Info("delta computed")
	return report, nil
}

func (e *Engine) loadBaseline(ctx context.Context, id string) (types.BaselineSnapshot, error) {
	if id == "" {
		b, err := e.baselines.LatestBaseline(ctx)
		if err != nil {
			return types.BaselineSnapshot{}, fmt.Errorf("loading latest baseline: %w", err)
		}
		return b, nil
	}
	b, err := e.baselines.GetBaseline(ctx, id)
	if err != nil {
		return types.BaselineSnapshot{}, fmt.Errorf("loading baseline %s: %w", id, err)
	}
	return b, nil
}
