package correlate

import (
	"reflect"
	"testing"
	"time"

	"github.com/welltegra/brahan/internal/domain"
)

func testStrategy() *ToleranceStrategy {
	return NewToleranceStrategy(domain.DefaultEvaluationConfig())
}

type pairFinding struct {
	id        string
	subsystem domain.Subsystem
	metric    string
	value     float64
	conf      float64
	at        time.Time
	loc       *domain.Location
	seq       uint64
}

func build(p pairFinding) *domain.Finding {
	return &domain.Finding{
		ID:         p.id,
		Subsystem:  p.subsystem,
		WellID:     "well-0001",
		Domain:     domain.DomainCement,
		Metric:     p.metric,
		Value:      p.value,
		Confidence: p.conf,
		ObservedAt: p.at,
		Location:   p.loc,
		IngestSeq:  p.seq,
	}
}

var (
	baseTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	siteA    = &domain.Location{Latitude: 58.3, Longitude: 1.9, DepthM: 2450}
)

func TestConsistentPair(t *testing.T) {
	engine := NewEngine(testStrategy())

	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.80, 0.9, baseTime, siteA, 1})
	b := build(pairFinding{"f2", domain.SubsystemWellABuild, "bond_quality", 0.82, 0.9, baseTime.Add(2 * time.Hour), siteA, 2})

	correlations := engine.CorrelateWell("well-0001", []*domain.Finding{a, b})
	if len(correlations) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(correlations))
	}

	c := correlations[0]
	if c.Relation != domain.RelationConsistent {
		t.Errorf("expected CONSISTENT, got %s", c.Relation)
	}
	if !c.TemporalOverlap || !c.SpatialOverlap {
		t.Error("expected both temporal and spatial overlap")
	}
	if c.ID != "corr-1-2" {
		t.Errorf("expected deterministic id corr-1-2, got %s", c.ID)
	}

	// Overlap bonus: 0.9 * 0.9 * 1.25.
	want := 0.9 * 0.9 * 1.25
	if c.MatchConfidence < want-1e-9 || c.MatchConfidence > want+1e-9 {
		t.Errorf("expected match confidence %.4f, got %.4f", want, c.MatchConfidence)
	}
}

func TestContradictoryPair(t *testing.T) {
	engine := NewEngine(testStrategy())

	// Same metric, same place and time, values disagreeing far beyond the
	// cement tolerance.
	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.90, 0.9, baseTime, siteA, 1})
	b := build(pairFinding{"f2", domain.SubsystemAirtight, "bond_quality", 0.30, 0.9, baseTime.Add(time.Hour), siteA, 2})

	correlations := engine.CorrelateWell("well-0001", []*domain.Finding{a, b})
	if len(correlations) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(correlations))
	}
	if correlations[0].Relation != domain.RelationContradictory {
		t.Errorf("expected CONTRADICTORY, got %s", correlations[0].Relation)
	}
	if d := correlations[0].ValueDelta; d < 0.6-1e-9 || d > 0.6+1e-9 {
		t.Errorf("expected value delta 0.6, got %.3f", d)
	}
}

func TestSameSubsystemNeverPaired(t *testing.T) {
	engine := NewEngine(testStrategy())

	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.80, 0.9, baseTime, siteA, 1})
	b := build(pairFinding{"f2", domain.SubsystemWellArk, "bond_quality", 0.20, 0.9, baseTime, siteA, 2})

	correlations := engine.CorrelateWell("well-0001", []*domain.Finding{a, b})
	if len(correlations) != 0 {
		t.Errorf("same-subsystem pair must not correlate, got %d", len(correlations))
	}
}

func TestCrossDomainNeverPaired(t *testing.T) {
	engine := NewEngine(testStrategy())

	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.80, 0.9, baseTime, siteA, 1})
	b := build(pairFinding{"f2", domain.SubsystemWellABuild, "wall_thickness", 11.0, 0.9, baseTime, siteA, 2})
	b.Domain = domain.DomainCasing

	correlations := engine.CorrelateWell("well-0001", []*domain.Finding{a, b})
	if len(correlations) != 0 {
		t.Errorf("cross-domain pair must not correlate, got %d", len(correlations))
	}
}

func TestTemporalOverlapOnly(t *testing.T) {
	engine := NewEngine(testStrategy())

	// Same window, no locations: a weaker temporal partial match.
	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.80, 0.9, baseTime, nil, 1})
	b := build(pairFinding{"f2", domain.SubsystemWellABuild, "top_of_cement_coverage", 0.75, 0.9, baseTime.Add(time.Hour), nil, 2})

	correlations := engine.CorrelateWell("well-0001", []*domain.Finding{a, b})
	if len(correlations) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(correlations))
	}
	if correlations[0].Relation != domain.RelationTemporalOverlap {
		t.Errorf("expected TEMPORAL_OVERLAP, got %s", correlations[0].Relation)
	}
}

func TestDepthSeparatedFindingsNotSpatial(t *testing.T) {
	engine := NewEngine(testStrategy())

	// Same surface coordinates, but one reading is from far deeper in the
	// wellbore than the depth tolerance allows. The pair still overlaps
	// in time, so it is recorded as temporal only, never graded for
	// value consistency.
	deep := &domain.Location{Latitude: siteA.Latitude, Longitude: siteA.Longitude, DepthM: siteA.DepthM + 800}

	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.90, 0.9, baseTime, siteA, 1})
	b := build(pairFinding{"f2", domain.SubsystemWellABuild, "bond_quality", 0.30, 0.9, baseTime.Add(time.Hour), deep, 2})

	correlations := engine.CorrelateWell("well-0001", []*domain.Finding{a, b})
	if len(correlations) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(correlations))
	}

	c := correlations[0]
	if c.SpatialOverlap {
		t.Error("depth-separated findings must not overlap spatially")
	}
	if c.Relation != domain.RelationTemporalOverlap {
		t.Errorf("expected TEMPORAL_OVERLAP, got %s", c.Relation)
	}
}

func TestDepthWithinToleranceIsSpatial(t *testing.T) {
	engine := NewEngine(testStrategy())

	near := &domain.Location{Latitude: siteA.Latitude, Longitude: siteA.Longitude, DepthM: siteA.DepthM + 20}

	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.80, 0.9, baseTime, siteA, 1})
	b := build(pairFinding{"f2", domain.SubsystemWellABuild, "bond_quality", 0.82, 0.9, baseTime.Add(time.Hour), near, 2})

	correlations := engine.CorrelateWell("well-0001", []*domain.Finding{a, b})
	if len(correlations) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(correlations))
	}
	if !correlations[0].SpatialOverlap {
		t.Error("findings within the depth tolerance must overlap spatially")
	}
	if correlations[0].Relation != domain.RelationConsistent {
		t.Errorf("expected CONSISTENT, got %s", correlations[0].Relation)
	}
}

func TestWeakMatchFloorPrunes(t *testing.T) {
	engine := NewEngine(testStrategy())

	// 0.5 * 0.5 = 0.25, below the 0.3 weak-match floor: not recorded.
	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.80, 0.5, baseTime, nil, 1})
	b := build(pairFinding{"f2", domain.SubsystemWellABuild, "top_of_cement_coverage", 0.75, 0.5, baseTime.Add(time.Hour), nil, 2})

	correlations := engine.CorrelateWell("well-0001", []*domain.Finding{a, b})
	if len(correlations) != 0 {
		t.Errorf("partial match below the weak floor must be pruned, got %d", len(correlations))
	}
}

func TestNoOverlapNoCorrelation(t *testing.T) {
	engine := NewEngine(testStrategy())

	// 10 days apart, no locations: neither overlap holds.
	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.80, 0.9, baseTime, nil, 1})
	b := build(pairFinding{"f2", domain.SubsystemWellABuild, "bond_quality", 0.80, 0.9, baseTime.Add(240 * time.Hour), nil, 2})

	correlations := engine.CorrelateWell("well-0001", []*domain.Finding{a, b})
	if len(correlations) != 0 {
		t.Errorf("disjoint findings must not correlate, got %d", len(correlations))
	}
}

func TestMatchConfidenceCappedAtOne(t *testing.T) {
	s := testStrategy()

	a := build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.80, 1.0, baseTime, siteA, 1})
	b := build(pairFinding{"f2", domain.SubsystemWellABuild, "bond_quality", 0.80, 1.0, baseTime, siteA, 2})

	c, ok := s.Score(a, b)
	if !ok {
		t.Fatal("expected a correlation")
	}
	if c.MatchConfidence > 1.0 {
		t.Errorf("match confidence must not exceed 1, got %.3f", c.MatchConfidence)
	}
}

func TestDeterministicOrderAndIDs(t *testing.T) {
	engine := NewEngine(testStrategy())

	findings := []*domain.Finding{
		build(pairFinding{"f3", domain.SubsystemAirtight, "bond_quality", 0.78, 0.9, baseTime.Add(time.Hour), siteA, 3}),
		build(pairFinding{"f1", domain.SubsystemWellArk, "bond_quality", 0.80, 0.9, baseTime, siteA, 1}),
		build(pairFinding{"f2", domain.SubsystemWellABuild, "bond_quality", 0.82, 0.9, baseTime.Add(2 * time.Hour), siteA, 2}),
	}

	first := engine.CorrelateWell("well-0001", findings)
	second := engine.CorrelateWell("well-0001", findings)

	if !reflect.DeepEqual(first, second) {
		t.Fatal("re-running the scan produced a different result")
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 pairwise correlations, got %d", len(first))
	}
	wantIDs := []string{"corr-1-2", "corr-1-3", "corr-2-3"}
	for i, c := range first {
		if c.ID != wantIDs[i] {
			t.Errorf("correlation %d: expected id %s, got %s", i, wantIDs[i], c.ID)
		}
	}
}

func TestContradictionsFilter(t *testing.T) {
	correlations := []domain.Correlation{
		{ID: "corr-1-2", Relation: domain.RelationConsistent},
		{ID: "corr-1-3", Relation: domain.RelationContradictory},
		{ID: "corr-2-3", Relation: domain.RelationTemporalOverlap},
	}

	got := Contradictions(correlations)
	if len(got) != 1 || got[0].ID != "corr-1-3" {
		t.Errorf("expected only corr-1-3, got %v", got)
	}
}
