package domain

import "time"

// RiskLevel is the categorical band of a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskScore is the per-well reduction of gate outcomes and correlations.
// One current score per well; prior scores are retained as history.
type RiskScore struct {
	ID         string `json:"id"`
	WellID     string `json:"wellId"`
	RunID      string `json:"runId"`
	OperatorID string `json:"operatorId"`

	// Score is in [0,100]; higher is worse.
	Score float64   `json:"score"`
	Level RiskLevel `json:"level"`

	ComputedAt time.Time `json:"computedAt"`

	// Contributions, for audit and explainability.
	GateOutcomes   []GateOutcome `json:"gateOutcomes,omitempty"`
	CorrelationIDs []string      `json:"correlationIds,omitempty"`
	Contradictions int           `json:"contradictions"`
}

// RiskConfig holds the scoring parameters. Exact boundaries are
// configuration, not business logic, but the defaults are documented here.
type RiskConfig struct {
	// GatePenalties maps gate index to the score contributed by a FAIL at
	// that gate. PASS and SKIPPED contribute zero.
	GatePenalties map[int]float64 `json:"gatePenalties"`

	// ContradictionPenalty is added per CONTRADICTORY correlation.
	ContradictionPenalty float64 `json:"contradictionPenalty"`

	// Level cut points: score < MediumCut is LOW, < HighCut is MEDIUM,
	// < CriticalCut is HIGH, else CRITICAL.
	MediumCut   float64 `json:"mediumCut"`
	HighCut     float64 `json:"highCut"`
	CriticalCut float64 `json:"criticalCut"`
}

// DefaultRiskConfig returns the shipped scoring parameters.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		GatePenalties: map[int]float64{
			1: 8,  // data-provenance
			2: 8,  // log-completeness
			3: 15, // material-integrity
			4: 18, // cement-integrity
			5: 18, // pressure-containment
			6: 10, // operational-history
			7: 12, // cross-validation
		},
		ContradictionPenalty: 5,
		MediumCut:            25,
		HighCut:              50,
		CriticalCut:          75,
	}
}

// LevelFor maps a score to its categorical level.
func (c RiskConfig) LevelFor(score float64) RiskLevel {
	switch {
	case score < c.MediumCut:
		return RiskLow
	case score < c.HighCut:
		return RiskMedium
	case score < c.CriticalCut:
		return RiskHigh
	default:
		return RiskCritical
	}
}
