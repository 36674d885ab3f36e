package domain

// Relation classifies a cross-subsystem relationship between two findings.
type Relation string

const (
	// RelationConsistent means both subsystems agree within tolerance.
	RelationConsistent Relation = "CONSISTENT"

	// RelationContradictory means the metrics disagree beyond tolerance
	// despite temporal and spatial overlap.
	RelationContradictory Relation = "CONTRADICTORY"

	// RelationTemporalOverlap and RelationSpatialOverlap are weaker
	// partial matches, recorded only above the weak-match floor.
	RelationTemporalOverlap Relation = "TEMPORAL_OVERLAP"
	RelationSpatialOverlap  Relation = "SPATIAL_OVERLAP"
)

// Correlation is an immutable cross-subsystem relationship between two
// findings for the same well.
type Correlation struct {
	ID     string `json:"id"`
	WellID string `json:"wellId"`

	FindingA EvidenceRef `json:"findingA"`
	FindingB EvidenceRef `json:"findingB"`

	SubsystemA Subsystem `json:"subsystemA"`
	SubsystemB Subsystem `json:"subsystemB"`
	Domain     Domain    `json:"domain"`
	Metric     string    `json:"metric"`

	Relation        Relation `json:"relation"`
	MatchConfidence float64  `json:"matchConfidence"`

	TemporalOverlap bool `json:"temporalOverlap"`
	SpatialOverlap  bool `json:"spatialOverlap"`

	// ValueDelta is the absolute difference between the two values after
	// normalization, meaningful for CONSISTENT and CONTRADICTORY pairs.
	ValueDelta float64 `json:"valueDelta"`
}
