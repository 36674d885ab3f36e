package correlate

import (
	"math"

	"github.com/welltegra/brahan/internal/domain"
)

// Strategy scores a candidate pair of findings from different subsystems.
// It is injected as a capability object rather than a reassignable global,
// so alternative scoring schemes can be swapped in without engine changes.
type Strategy interface {
	// Score reports the correlation for the pair and whether it should be
	// recorded at all.
	Score(a, b *domain.Finding) (domain.Correlation, bool)
}

// ToleranceStrategy is the default scoring scheme: temporal window,
// spatial tolerance, and per-domain relative value tolerances, with a
// confidence bonus when temporal and spatial overlap both hold.
type ToleranceStrategy struct {
	cfg domain.EvaluationConfig
}

// NewToleranceStrategy creates the default strategy from configuration.
func NewToleranceStrategy(cfg domain.EvaluationConfig) *ToleranceStrategy {
	return &ToleranceStrategy{cfg: cfg}
}

func (s *ToleranceStrategy) Score(a, b *domain.Finding) (domain.Correlation, bool) {
	c := domain.Correlation{
		WellID:     a.WellID,
		FindingA:   domain.EvidenceRef{FindingID: a.ID, IngestSeq: a.IngestSeq},
		FindingB:   domain.EvidenceRef{FindingID: b.ID, IngestSeq: b.IngestSeq},
		SubsystemA: a.Subsystem,
		SubsystemB: b.Subsystem,
		Domain:     a.Domain,
	}

	delta := a.ObservedAt.Sub(b.ObservedAt)
	if delta < 0 {
		delta = -delta
	}
	c.TemporalOverlap = delta <= s.cfg.TemporalWindow

	c.SpatialOverlap = a.Location != nil && b.Location != nil &&
		planarDistance(a.Location, b.Location) <= s.cfg.SpatialTolerance &&
		math.Abs(a.Location.DepthM-b.Location.DepthM) <= s.cfg.DepthTolerance

	if !c.TemporalOverlap && !c.SpatialOverlap {
		return c, false
	}

	c.MatchConfidence = a.Confidence * b.Confidence
	if c.TemporalOverlap && c.SpatialOverlap {
		c.MatchConfidence = math.Min(1, c.MatchConfidence*s.cfg.OverlapBonus)
	}

	sameMetric := a.Metric == b.Metric

	if c.TemporalOverlap && c.SpatialOverlap && sameMetric {
		c.Metric = a.Metric
		c.ValueDelta = math.Abs(a.Value - b.Value)
		if s.valuesAgree(a, b) {
			c.Relation = domain.RelationConsistent
		} else {
			c.Relation = domain.RelationContradictory
		}
		return c, true
	}

	// Weaker partial matches: recorded only above the low floor, which
	// bounds the combinatorial output.
	if c.MatchConfidence <= s.cfg.WeakMatchFloor {
		return c, false
	}
	if c.TemporalOverlap {
		c.Relation = domain.RelationTemporalOverlap
	} else {
		c.Relation = domain.RelationSpatialOverlap
	}
	return c, true
}

// valuesAgree applies the per-domain relative tolerance.
func (s *ToleranceStrategy) valuesAgree(a, b *domain.Finding) bool {
	tol, ok := s.cfg.ValueTolerances[a.Domain]
	if !ok {
		tol = 0.1
	}
	scale := math.Max(math.Abs(a.Value), math.Abs(b.Value))
	if scale == 0 {
		return true
	}
	return math.Abs(a.Value-b.Value) <= tol*scale
}

func planarDistance(a, b *domain.Location) float64 {
	dLat := a.Latitude - b.Latitude
	dLon := a.Longitude - b.Longitude
	return math.Sqrt(dLat*dLat + dLon*dLon)
}
