// Package risk reduces gate outcomes and correlations into a per-well
// risk score and categorical level.
package risk

import (
	"fmt"
	"time"

	"github.com/welltegra/brahan/internal/domain"
)

// Scorer is a deterministic reduction: re-scoring a well with identical
// inputs is bit-for-bit reproducible.
type Scorer struct {
	cfg domain.RiskConfig
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg domain.RiskConfig) *Scorer {
	if cfg.GatePenalties == nil {
		cfg = domain.DefaultRiskConfig()
	}
	return &Scorer{cfg: cfg}
}

// Score computes a well's risk from its gate outcomes and correlations.
// FAIL contributes the gate's configured penalty; PASS and SKIPPED
// contribute zero; each CONTRADICTORY correlation adds the contradiction
// penalty. The result is clipped to [0,100].
func (s *Scorer) Score(operatorID, runID, wellID string, outcomes []domain.GateOutcome, correlations []domain.Correlation, computedAt time.Time) *domain.RiskScore {
	score := &domain.RiskScore{
		ID:           fmt.Sprintf("risk-%s-%s", runID, wellID),
		WellID:       wellID,
		RunID:        runID,
		OperatorID:   operatorID,
		ComputedAt:   computedAt,
		GateOutcomes: outcomes,
	}

	var total float64
	for _, o := range outcomes {
		if o.Status == domain.GateStatusFail {
			total += s.cfg.GatePenalties[o.GateIndex]
		}
	}

	for _, c := range correlations {
		score.CorrelationIDs = append(score.CorrelationIDs, c.ID)
		if c.Relation == domain.RelationContradictory {
			score.Contradictions++
			total += s.cfg.ContradictionPenalty
		}
	}

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	score.Score = total
	score.Level = s.cfg.LevelFor(total)
	return score
}

// Reasons extracts human-readable explanations from a risk score.
func Reasons(score *domain.RiskScore) []string {
	var reasons []string
	for _, o := range score.GateOutcomes {
		if o.Status == domain.GateStatusFail {
			reasons = append(reasons, fmt.Sprintf("gate %d (%s) failed with pass ratio %.2f", o.GateIndex, o.GateName, o.PassRatio))
		}
	}
	if score.Contradictions > 0 {
		reasons = append(reasons, fmt.Sprintf("%d contradictory cross-subsystem correlations", score.Contradictions))
	}
	return reasons
}
