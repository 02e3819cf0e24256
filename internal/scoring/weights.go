package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// Weights maps each check type to its share of the compliance score.
// Check types with weight 0 are collected but do not appear as drivers.
type Weights map[types.CheckType]float64

// DefaultWeights returns the standard driver weights.
func DefaultWeights() Weights {
	return Weights{
		types.CheckTaskCompletion:     0.25,
		types.CheckPolicyReview:       0.20,
		types.CheckIPCAudits:          0.20,
		types.CheckFridgeTemp:         0.15,
		types.CheckIncidentManagement: 0.10,
		types.CheckComplaintSLA:       0.10,
		types.CheckTraining:           0,
		types.CheckDBS:                0,
	}
}

// WeightsFromConfig overlays config overrides, keyed by check type name,
// on the defaults and validates the result.
func WeightsFromConfig(overrides map[string]float64) (Weights, error) {
	w := DefaultWeights()
	for name, v := range overrides {
		c := types.CheckType(name)
		if !types.ValidCheckType(c) {
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidCheckType, name)
		}
		w[c] = v
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks every weight is in [0, 1] and that they sum to exactly 1.
func (w Weights) Validate() error {
	sum := decimal.Zero
	for c, v := range w {
		if !types.ValidCheckType(c) {
			return fmt.Errorf("%w: %q", types.ErrInvalidCheckType, c)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%v", types.ErrInvalidWeight, c, v)
		}
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: got %s", types.ErrWeightsSum, sum.String())
	}
	return nil
}

// active returns the check types with a positive weight in reporting order.
func (w Weights) active() []types.CheckType {
	var out []types.CheckType
	for _, c := range types.CheckTypes {
		if w[c] > 0 {
			out = append(out, c)
		}
	}
	return out
}
