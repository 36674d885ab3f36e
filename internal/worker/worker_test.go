package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/welltegra/brahan/internal/bus"
	"github.com/welltegra/brahan/internal/catalog"
	"github.com/welltegra/brahan/internal/correlate"
	"github.com/welltegra/brahan/internal/coverage"
	"github.com/welltegra/brahan/internal/domain"
	"github.com/welltegra/brahan/internal/gate"
	"github.com/welltegra/brahan/internal/ingest"
	"github.com/welltegra/brahan/internal/ledger"
	"github.com/welltegra/brahan/internal/predicate"
	"github.com/welltegra/brahan/internal/repository"
	"github.com/welltegra/brahan/internal/risk"
	"github.com/welltegra/brahan/internal/run"
)

type fixture struct {
	repo     domain.Repository
	bus      domain.EventBus
	ingestor *ingest.Ingestor
	worker   *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "brahan-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	b, err := bus.New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 16})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}

	cfg := domain.DefaultEvaluationConfig()
	evaluator, err := predicate.NewEngine(cfg.DefaultMinConfidence, cfg.MaxEvalWorkers)
	if err != nil {
		t.Fatalf("failed to create evaluator: %v", err)
	}

	led := ledger.New(repo)
	ingestor := ingest.New(repo, nil, nil)
	runner := run.New(
		repo, nil, nil,
		evaluator,
		gate.NewPipeline(nil),
		correlate.NewEngine(correlate.NewToleranceStrategy(cfg)),
		risk.NewScorer(domain.DefaultRiskConfig()),
		led,
		coverage.NewService(repo, nil),
		cfg,
	)

	cat, err := catalog.New("test-1", domain.DefaultGates(), []*domain.Predicate{
		{ID: "cement-bond-floor", Domain: domain.DomainCement, Metric: "bond_quality", Expression: "value >= 0.6", Weight: 0.9, Enabled: true},
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	if err := runner.UseCatalog(cat); err != nil {
		t.Fatalf("failed to install catalog: %v", err)
	}

	w := NewWorker(b, ingestor, runner)

	t.Cleanup(func() {
		w.Stop()
		b.Close()
		repo.Close()
		os.Remove(tmpPath)
	})

	return &fixture{repo: repo, bus: b, ingestor: ingestor, worker: w}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWorkerIngestsSubsystemResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.worker.Start(Config{OperatorIDs: []string{"op-001"}}); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	value := 0.85
	at := time.Now().UTC().Add(-time.Minute)
	batch := domain.RawResult{
		Subsystem:     domain.SubsystemWellArk,
		SchemaVersion: "1.0",
		Observations: []domain.RawObservation{{
			WellID:     "well-0001",
			Domain:     "cement",
			Metric:     "bond_quality",
			Value:      &value,
			Confidence: 0.9,
			ObservedAt: &at,
		}},
	}
	payload, _ := json.Marshal(batch)

	if err := f.bus.Publish(ctx, "op-001", domain.TopicSubsystemResult, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	ok := waitFor(t, 2*time.Second, func() bool {
		seq, _ := f.repo.MaxIngestSeq(ctx, "op-001")
		return seq == 1
	})
	if !ok {
		t.Fatal("subsystem result was not ingested")
	}

	findings, err := f.repo.ListFindingsUpTo(ctx, "op-001", 1)
	if err != nil {
		t.Fatalf("failed to load findings: %v", err)
	}
	if len(findings) != 1 || findings[0].Metric != "bond_quality" {
		t.Errorf("unexpected findings: %+v", findings)
	}
}

func TestWorkerExecutesRunRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.worker.Start(Config{OperatorIDs: []string{"op-001"}}); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	// Seed a finding directly so the run has evidence.
	value := 0.85
	at := time.Now().UTC().Add(-time.Minute)
	if _, err := f.ingestor.IngestBatch(ctx, "op-001", &domain.RawResult{
		Subsystem: domain.SubsystemWellArk,
		Observations: []domain.RawObservation{{
			WellID: "well-0001", Domain: "cement", Metric: "bond_quality",
			Value: &value, Confidence: 0.9, ObservedAt: &at,
		}},
	}); err != nil {
		t.Fatalf("seed ingest failed: %v", err)
	}

	payload, _ := json.Marshal(RunRequest{OperatorID: "op-001", RequestID: "req-001"})
	if err := f.bus.Publish(ctx, "op-001", domain.TopicRunRequested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	ok := waitFor(t, 5*time.Second, func() bool {
		score, err := f.repo.GetLatestRiskScore(ctx, "op-001", "well-0001")
		return err == nil && score != nil
	})
	if !ok {
		t.Fatal("run request did not produce a risk score")
	}
}

func TestWorkerIgnoresMalformedMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.worker.Start(Config{OperatorIDs: []string{"op-001"}}); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	if err := f.bus.Publish(ctx, "op-001", domain.TopicSubsystemResult, []byte("not json")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// Nothing must be ingested, and the worker must stay alive for a
	// well-formed follow-up.
	time.Sleep(50 * time.Millisecond)
	if seq, _ := f.repo.MaxIngestSeq(ctx, "op-001"); seq != 0 {
		t.Errorf("malformed message was ingested: seq %d", seq)
	}

	value := 0.85
	at := time.Now().UTC().Add(-time.Minute)
	batch, _ := json.Marshal(domain.RawResult{
		Subsystem: domain.SubsystemWellArk,
		Observations: []domain.RawObservation{{
			WellID: "well-0001", Domain: "cement", Metric: "bond_quality",
			Value: &value, Confidence: 0.9, ObservedAt: &at,
		}},
	})
	if err := f.bus.Publish(ctx, "op-001", domain.TopicSubsystemResult, batch); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	ok := waitFor(t, 2*time.Second, func() bool {
		seq, _ := f.repo.MaxIngestSeq(ctx, "op-001")
		return seq == 1
	})
	if !ok {
		t.Fatal("worker stopped processing after a malformed message")
	}
}

func TestWorkerStop(t *testing.T) {
	f := newFixture(t)

	if err := f.worker.Start(Config{OperatorIDs: []string{"op-001"}}); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	if err := f.worker.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
