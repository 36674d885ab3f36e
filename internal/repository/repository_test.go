package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/welltegra/brahan/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "brahan-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	operatorID := "op-001"
	observedAt := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetFinding", func(t *testing.T) {
		f := &domain.Finding{
			ID:            "f-001",
			OperatorID:    operatorID,
			Subsystem:     domain.SubsystemWellArk,
			SchemaVersion: "1.0",
			WellID:        "well-0001",
			Domain:        domain.DomainCement,
			Metric:        "bond_quality",
			Value:         0.82,
			Unit:          "ratio",
			Confidence:    0.9,
			ObservedAt:    observedAt,
			Location:      &domain.Location{Latitude: 58.3, Longitude: 1.9, DepthM: 2450},
			IngestSeq:     1,
			IngestedAt:    observedAt.Add(time.Minute),
		}

		if err := repo.SaveFinding(ctx, operatorID, f); err != nil {
			t.Fatalf("SaveFinding failed: %v", err)
		}

		got, err := repo.GetFinding(ctx, operatorID, "f-001")
		if err != nil {
			t.Fatalf("GetFinding failed: %v", err)
		}
		if got.Metric != "bond_quality" || got.Value != 0.82 {
			t.Errorf("finding mismatch: %+v", got)
		}
		if got.Location == nil || got.Location.DepthM != 2450 {
			t.Errorf("location not round-tripped: %+v", got.Location)
		}
	})

	t.Run("FindingWithoutLocation", func(t *testing.T) {
		f := &domain.Finding{
			ID:         "f-002",
			OperatorID: operatorID,
			Subsystem:  domain.SubsystemWellABuild,
			WellID:     "well-0001",
			Domain:     domain.DomainCasing,
			Metric:     "wall_thickness",
			Value:      11.4,
			Unit:       "mm",
			Confidence: 0.85,
			ObservedAt: observedAt,
			IngestSeq:  2,
			IngestedAt: observedAt.Add(time.Minute),
		}
		if err := repo.SaveFinding(ctx, operatorID, f); err != nil {
			t.Fatalf("SaveFinding failed: %v", err)
		}

		got, err := repo.GetFinding(ctx, operatorID, "f-002")
		if err != nil {
			t.Fatalf("GetFinding failed: %v", err)
		}
		if got.Location != nil {
			t.Errorf("expected nil location, got %+v", got.Location)
		}
	})

	t.Run("GetFindingNotFound", func(t *testing.T) {
		if _, err := repo.GetFinding(ctx, operatorID, "missing"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListFindingsUpTo", func(t *testing.T) {
		f := &domain.Finding{
			ID: "f-003", OperatorID: operatorID, Subsystem: domain.SubsystemAirtight,
			WellID: "well-0002", Domain: domain.DomainDocumentation, Metric: "record_completeness",
			Value: 0.95, Unit: "ratio", Confidence: 0.8,
			ObservedAt: observedAt, IngestSeq: 3, IngestedAt: observedAt.Add(2 * time.Minute),
		}
		if err := repo.SaveFinding(ctx, operatorID, f); err != nil {
			t.Fatalf("SaveFinding failed: %v", err)
		}

		// The snapshot at seq 2 excludes seq 3.
		findings, err := repo.ListFindingsUpTo(ctx, operatorID, 2)
		if err != nil {
			t.Fatalf("ListFindingsUpTo failed: %v", err)
		}
		if len(findings) != 2 {
			t.Fatalf("expected 2 findings at snapshot 2, got %d", len(findings))
		}
		if findings[0].IngestSeq != 1 || findings[1].IngestSeq != 2 {
			t.Errorf("findings not in ingest order: %d, %d", findings[0].IngestSeq, findings[1].IngestSeq)
		}
	})

	t.Run("MaxIngestSeq", func(t *testing.T) {
		seq, err := repo.MaxIngestSeq(ctx, operatorID)
		if err != nil {
			t.Fatalf("MaxIngestSeq failed: %v", err)
		}
		if seq != 3 {
			t.Errorf("expected max seq 3, got %d", seq)
		}

		empty, err := repo.MaxIngestSeq(ctx, "op-empty")
		if err != nil {
			t.Fatalf("MaxIngestSeq failed for empty operator: %v", err)
		}
		if empty != 0 {
			t.Errorf("expected 0 for empty operator, got %d", empty)
		}
	})

	t.Run("CountFindingsBySubsystem", func(t *testing.T) {
		n, err := repo.CountFindingsBySubsystem(ctx, operatorID, "well-0001", domain.SubsystemWellArk, observedAt.Add(-time.Hour))
		if err != nil {
			t.Fatalf("CountFindingsBySubsystem failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 wellark finding, got %d", n)
		}
	})

	t.Run("LatestFindingAt", func(t *testing.T) {
		latest, err := repo.LatestFindingAt(ctx, operatorID, domain.SubsystemWellABuild)
		if err != nil {
			t.Fatalf("LatestFindingAt failed: %v", err)
		}
		if latest.IsZero() {
			t.Error("expected a timestamp for wellabuild")
		}

		silent, err := repo.LatestFindingAt(ctx, "op-empty", domain.SubsystemWellArk)
		if err != nil {
			t.Fatalf("LatestFindingAt failed: %v", err)
		}
		if !silent.IsZero() {
			t.Errorf("expected zero time for silent subsystem, got %v", silent)
		}
	})

	t.Run("SaveAndLoadCatalog", func(t *testing.T) {
		preds := []*domain.Predicate{
			{ID: "cement-bond-floor", Domain: domain.DomainCement, Metric: "bond_quality", Expression: "value >= 0.6", Weight: 0.9, Enabled: true},
		}
		if err := repo.SaveCatalog(ctx, operatorID, "2026.08.1", domain.DefaultGates(), preds); err != nil {
			t.Fatalf("SaveCatalog failed: %v", err)
		}

		version, gates, loaded, err := repo.LoadCatalog(ctx, operatorID)
		if err != nil {
			t.Fatalf("LoadCatalog failed: %v", err)
		}
		if version != "2026.08.1" {
			t.Errorf("expected version 2026.08.1, got %s", version)
		}
		if len(gates) != domain.GateCount {
			t.Errorf("expected %d gates, got %d", domain.GateCount, len(gates))
		}
		if len(loaded) != 1 || loaded[0].ID != "cement-bond-floor" {
			t.Errorf("predicates not round-tripped: %+v", loaded)
		}

		// Upsert replaces.
		if err := repo.SaveCatalog(ctx, operatorID, "2026.08.2", domain.DefaultGates(), preds); err != nil {
			t.Fatalf("SaveCatalog upsert failed: %v", err)
		}
		version, _, _, _ = repo.LoadCatalog(ctx, operatorID)
		if version != "2026.08.2" {
			t.Errorf("expected upserted version, got %s", version)
		}
	})

	t.Run("SaveAndGetRun", func(t *testing.T) {
		run := &domain.AnalysisRun{
			ID:             "run-001",
			OperatorID:     operatorID,
			Status:         domain.RunRunning,
			SnapshotSeq:    3,
			CatalogVersion: "2026.08.1",
			StartedAt:      observedAt,
		}
		if err := repo.SaveRun(ctx, operatorID, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		completed := observedAt.Add(time.Minute)
		run.Status = domain.RunCompleted
		run.CompletedAt = &completed
		run.Audit = domain.AuditRange{FirstSeq: 1, LastSeq: 9}
		run.AbsentSubsystems = []domain.Subsystem{domain.SubsystemAirtight}
		if err := repo.SaveRun(ctx, operatorID, run); err != nil {
			t.Fatalf("SaveRun update failed: %v", err)
		}

		got, err := repo.GetRun(ctx, operatorID, "run-001")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.Status != domain.RunCompleted || got.CompletedAt == nil {
			t.Errorf("run not finalized: %+v", got)
		}
		if got.SnapshotSeq != 3 || got.Audit.LastSeq != 9 {
			t.Errorf("run fields not round-tripped: %+v", got)
		}
		if len(got.AbsentSubsystems) != 1 || got.AbsentSubsystems[0] != domain.SubsystemAirtight {
			t.Errorf("absent subsystems not round-tripped: %v", got.AbsentSubsystems)
		}
	})

	t.Run("SaveCorrelationsAndList", func(t *testing.T) {
		correlations := []domain.Correlation{
			{
				ID: "corr-1-2", WellID: "well-0001",
				FindingA:   domain.EvidenceRef{FindingID: "f-001", IngestSeq: 1},
				FindingB:   domain.EvidenceRef{FindingID: "f-002", IngestSeq: 2},
				SubsystemA: domain.SubsystemWellArk, SubsystemB: domain.SubsystemWellABuild,
				Domain: domain.DomainCement, Metric: "bond_quality",
				Relation: domain.RelationContradictory, MatchConfidence: 0.81, ValueDelta: 0.4,
			},
		}
		if err := repo.SaveCorrelations(ctx, operatorID, "run-001", correlations); err != nil {
			t.Fatalf("SaveCorrelations failed: %v", err)
		}

		got, err := repo.ListCorrelations(ctx, operatorID, "well-0001", "run-001")
		if err != nil {
			t.Fatalf("ListCorrelations failed: %v", err)
		}
		if len(got) != 1 || got[0].Relation != domain.RelationContradictory {
			t.Errorf("correlations not round-tripped: %+v", got)
		}

		// Unfiltered query still finds them.
		all, err := repo.ListCorrelations(ctx, operatorID, "well-0001", "")
		if err != nil {
			t.Fatalf("ListCorrelations unfiltered failed: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("expected 1 correlation unfiltered, got %d", len(all))
		}
	})

	t.Run("RiskScoreHistory", func(t *testing.T) {
		first := &domain.RiskScore{
			ID: "risk-run-001-well-0001", WellID: "well-0001", RunID: "run-001",
			OperatorID: operatorID, Score: 36, Level: domain.RiskMedium,
			ComputedAt: observedAt,
		}
		if err := repo.SaveRiskScore(ctx, operatorID, first); err != nil {
			t.Fatalf("SaveRiskScore failed: %v", err)
		}

		second := &domain.RiskScore{
			ID: "risk-run-002-well-0001", WellID: "well-0001", RunID: "run-002",
			OperatorID: operatorID, Score: 54, Level: domain.RiskHigh,
			ComputedAt: observedAt.Add(time.Hour),
		}
		if err := repo.SaveRiskScore(ctx, operatorID, second); err != nil {
			t.Fatalf("SaveRiskScore failed: %v", err)
		}

		latest, err := repo.GetLatestRiskScore(ctx, operatorID, "well-0001")
		if err != nil {
			t.Fatalf("GetLatestRiskScore failed: %v", err)
		}
		if latest.RunID != "run-002" {
			t.Errorf("expected the newest score, got run %s", latest.RunID)
		}

		history, err := repo.ListRiskHistory(ctx, operatorID, "well-0001")
		if err != nil {
			t.Fatalf("ListRiskHistory failed: %v", err)
		}
		if len(history) != 2 {
			t.Errorf("prior scores must be retained, got %d", len(history))
		}
	})

	t.Run("WellResults", func(t *testing.T) {
		results := []domain.WellResult{
			{WellID: "well-0002", Disposition: domain.GateStatusPass},
			{WellID: "well-0001", Disposition: domain.GateStatusFail, SkippedGates: []int{6}},
		}
		if err := repo.SaveWellResults(ctx, operatorID, "run-001", results); err != nil {
			t.Fatalf("SaveWellResults failed: %v", err)
		}

		got, err := repo.ListWellResults(ctx, operatorID, "run-001")
		if err != nil {
			t.Fatalf("ListWellResults failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 results, got %d", len(got))
		}
		if got[0].WellID != "well-0001" {
			t.Errorf("results not ordered by well id: %s first", got[0].WellID)
		}
		if len(got[0].SkippedGates) != 1 || got[0].SkippedGates[0] != 6 {
			t.Errorf("skipped gates not round-tripped: %v", got[0].SkippedGates)
		}
	})

	t.Run("AuditRecords", func(t *testing.T) {
		records := []domain.AuditRecord{
			{Seq: 1, EntityType: domain.EntityFinding, EntityID: "f-001", Action: domain.AuditActionCreated, Payload: []byte(`{}`), Hash: "h1", Timestamp: observedAt},
			{Seq: 2, EntityType: domain.EntityRun, EntityID: "run-001", Action: domain.AuditActionRunOpened, PrevHash: "h1", Hash: "h2", Payload: []byte(`{}`), Timestamp: observedAt},
		}
		if err := repo.AppendAuditRecords(ctx, operatorID, records); err != nil {
			t.Fatalf("AppendAuditRecords failed: %v", err)
		}

		got, err := repo.ListAuditRecords(ctx, operatorID, 1, 0)
		if err != nil {
			t.Fatalf("ListAuditRecords failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 records, got %d", len(got))
		}
		if got[1].PrevHash != "h1" {
			t.Errorf("record linkage not round-tripped: %+v", got[1])
		}

		last, err := repo.LastAuditRecord(ctx, operatorID)
		if err != nil {
			t.Fatalf("LastAuditRecord failed: %v", err)
		}
		if last == nil || last.Seq != 2 {
			t.Errorf("expected head at seq 2, got %+v", last)
		}

		none, err := repo.LastAuditRecord(ctx, "op-empty")
		if err != nil {
			t.Fatalf("LastAuditRecord for empty chain failed: %v", err)
		}
		if none != nil {
			t.Errorf("expected nil head for empty chain, got %+v", none)
		}
	})

	t.Run("OperatorIsolation", func(t *testing.T) {
		if _, err := repo.GetFinding(ctx, "op-002", "f-001"); err != ErrNotFound {
			t.Errorf("finding leaked across operators: %v", err)
		}
		if _, err := repo.GetRun(ctx, "op-002", "run-001"); err != ErrNotFound {
			t.Errorf("run leaked across operators: %v", err)
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	lite := &SQLRepository{driver: "sqlite"}

	tests := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM findings WHERE id = ?", "SELECT * FROM findings WHERE id = $1"},
		{"INSERT INTO t (a, b, c) VALUES (?, ?, ?)", "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"},
		{"SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		if got := pg.rebind(tt.in); got != tt.want {
			t.Errorf("rebind(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := lite.rebind(tt.in); got != tt.in {
			t.Errorf("sqlite rebind must not touch %q, got %q", tt.in, got)
		}
	}
}
