package types

import (
	"errors"
	"time"
)

// CheckType names one compliance driver.
type CheckType string

// Compliance check types.
const (
	CheckTaskCompletion     CheckType = "task_completion"
	CheckPolicyReview       CheckType = "policy_review"
	CheckIPCAudits          CheckType = "ipc_audits"
	CheckFridgeTemp         CheckType = "fridge_temp"
	CheckIncidentManagement CheckType = "incident_management"
	CheckComplaintSLA       CheckType = "complaint_sla"
	CheckTraining           CheckType = "training"
	CheckDBS                CheckType = "dbs_checks"
)

// CheckTypes lists every check type in reporting order.
var CheckTypes = []CheckType{
	CheckTaskCompletion,
	CheckPolicyReview,
	CheckIPCAudits,
	CheckFridgeTemp,
	CheckIncidentManagement,
	CheckComplaintSLA,
	CheckTraining,
	CheckDBS,
}

var checkTypeLabels = map[CheckType]string{
	CheckTaskCompletion:     "task completion",
	CheckPolicyReview:       "policy review",
	CheckIPCAudits:          "IPC audits",
	CheckFridgeTemp:         "fridge temperatures",
	CheckIncidentManagement: "incident management",
	CheckComplaintSLA:       "complaint SLA",
	CheckTraining:           "training",
	CheckDBS:                "DBS checks",
}

// Label returns a human readable name for narratives and exports.
func (c CheckType) Label() string {
	if l, ok := checkTypeLabels[c]; ok {
		return l
	}
	return string(c)
}

// ValidCheckType reports whether c is a known check type.
func ValidCheckType(c CheckType) bool {
	_, ok := checkTypeLabels[c]
	return ok
}

// DriverScore is one check type's contribution to the compliance score.
type DriverScore struct {
	CheckType      CheckType `json:"check_type"`
	Score          float64   `json:"score"`
	Total          int       `json:"total"`
	Passed         int       `json:"passed"`
	Weight         float64   `json:"weight"`
	WeightedImpact float64   `json:"weighted_impact"`
}

// Deductions lists the fit-for-audit penalties applied to a score.
type Deductions struct {
	FridgeExcursions   float64 `json:"fridge_excursions"`
	SevereIncidents    float64 `json:"severe_incidents"`
	BreachedComplaints float64 `json:"breached_complaints"`
}

// Total returns the sum of all deductions.
func (d Deductions) Total() float64 {
	return d.FridgeExcursions + d.SevereIncidents + d.BreachedComplaints
}

// ScoreResult is a computed compliance score over a date window.
type ScoreResult struct {
	StartDate        time.Time     `json:"start_date"`
	EndDate          time.Time     `json:"end_date"`
	ComplianceScore  float64       `json:"compliance_score"`
	FitForAuditScore float64       `json:"fit_for_audit_score"`
	Deductions       Deductions    `json:"deductions"`
	Drivers          []DriverScore `json:"drivers"`
}

// Driver returns the driver for check type c.
func (s ScoreResult) Driver(c CheckType) (DriverScore, bool) {
	for _, d := range s.Drivers {
		if d.CheckType == c {
			return d, true
		}
	}
	return DriverScore{}, false
}

// BaselineSnapshot is a frozen score used as the comparison point for delta
// reports. Snapshots are never modified after they are saved.
type BaselineSnapshot struct {
	ID               string        `json:"id"`
	Label            string        `json:"label,omitempty"`
	CapturedAt       time.Time     `json:"captured_at"`
	StartDate        time.Time     `json:"start_date"`
	EndDate          time.Time     `json:"end_date"`
	ComplianceScore  float64       `json:"compliance_score"`
	FitForAuditScore float64       `json:"fit_for_audit_score"`
	DriverDetails    []DriverScore `json:"driver_details"`
}

// BaselineFromScore freezes a score result as a baseline snapshot. The id
// and capture time are assigned by the store.
func BaselineFromScore(s ScoreResult, label string) BaselineSnapshot {
	drivers := make([]DriverScore, len(s.Drivers))
	copy(drivers, s.Drivers)
	return BaselineSnapshot{
		Label:            label,
		StartDate:        s.StartDate,
		EndDate:          s.EndDate,
		ComplianceScore:  s.ComplianceScore,
		FitForAuditScore: s.FitForAuditScore,
		DriverDetails:    drivers,
	}
}

// DriverDelta is the change in one driver's score against the baseline.
type DriverDelta struct {
	CheckType CheckType `json:"check_type"`
	Baseline  float64   `json:"baseline"`
	Current   float64   `json:"current"`
	Delta     float64   `json:"delta"`
}

// DeltaReport compares a current score window with a baseline.
type DeltaReport struct {
	BaselineID       string        `json:"baseline_id"`
	WindowDays       int           `json:"window_days"`
	BaselineScore    float64       `json:"baseline_score"`
	CurrentScore     float64       `json:"current_score"`
	AbsoluteDelta    float64       `json:"absolute_delta"`
	PercentDelta     float64       `json:"percent_delta"`
	FitForAuditDelta float64       `json:"fit_for_audit_delta"`
	TopDrivers       []DriverDelta `json:"top_drivers"`
	Narrative        string        `json:"narrative"`
	Current          ScoreResult   `json:"current"`
}

// Scoring errors.
var (
	ErrWeightsSum       = errors.New("check type weights must sum to 1.0")
	ErrInvalidWeight    = errors.New("check type weight must be between 0 and 1")
	ErrInvalidCheckType = errors.New("unknown check type")
	ErrInvalidWindow    = errors.New("window end must not precede start")
)
