// Package ingest normalizes heterogeneous subsystem outputs into canonical
// Finding records.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/welltegra/brahan/internal/coverage"
	"github.com/welltegra/brahan/internal/domain"
)

type counter struct {
	seq    uint64
	loaded bool
}

// Ingestor accepts raw subsystem result batches, validates and normalizes
// them, and assigns ingestion sequence ids. Sequences are per operator,
// matching the per-operator finding store. Multiple producers may ingest
// concurrently; assignment and persistence of each finding are serialized
// under a single lock so ids stay gap-free and strictly increasing, and a
// sequence a snapshot can see is always already persisted.
type Ingestor struct {
	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus

	mu       sync.Mutex
	counters map[string]*counter
}

// New creates an ingestor. Each operator's sequence is seeded from the
// highest persisted sequence on first use, so restarts continue the
// sequence instead of reusing ids.
func New(repo domain.Repository, cache domain.Cache, bus domain.EventBus) *Ingestor {
	return &Ingestor{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		counters: make(map[string]*counter),
	}
}

// CurrentSeq returns the operator's highest assigned ingest sequence. A
// run snapshots this value before evaluation begins.
func (i *Ingestor) CurrentSeq(ctx context.Context, operatorID string) (uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	c, err := i.loadCounter(ctx, operatorID)
	if err != nil {
		return 0, err
	}
	return c.seq, nil
}

// loadCounter restores an operator's sequence high-water mark from the
// repository after startup or a failed save. Caller holds the lock.
func (i *Ingestor) loadCounter(ctx context.Context, operatorID string) (*counter, error) {
	c, ok := i.counters[operatorID]
	if !ok {
		c = &counter{}
		i.counters[operatorID] = c
	}
	if c.loaded {
		return c, nil
	}
	last, err := i.repo.MaxIngestSeq(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("load ingest sequence for %s: %w", operatorID, err)
	}
	c.seq = last
	c.loaded = true
	return c, nil
}

// assign gives the finding the operator's next sequence id and persists it
// before releasing the lock, so MaxIngestSeq never runs ahead of the
// stored findings a snapshot at that sequence would read.
func (i *Ingestor) assign(ctx context.Context, operatorID string, f *domain.Finding) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, err := i.loadCounter(ctx, operatorID)
	if err != nil {
		return err
	}

	f.IngestSeq = c.seq + 1
	f.IngestedAt = time.Now().UTC()

	if err := i.repo.SaveFinding(ctx, operatorID, f); err != nil {
		// The counter must not advance past what is persisted.
		c.loaded = false
		return err
	}
	c.seq = f.IngestSeq
	return nil
}

// IngestBatch validates and ingests one subsystem result batch.
// Malformed observations are quarantined and reported; the rest of the
// batch proceeds. The returned report lists both sides.
func (i *Ingestor) IngestBatch(ctx context.Context, operatorID string, batch *domain.RawResult) (*domain.IngestReport, error) {
	report := &domain.IngestReport{}

	for idx, obs := range batch.Observations {
		if err := validate(idx, &obs); err != nil {
			report.Quarantined = append(report.Quarantined, domain.QuarantinedObservation{
				Index:       idx,
				Observation: obs,
				Reason:      err.Error(),
			})
			slog.Warn("finding quarantined",
				"subsystem", batch.Subsystem,
				"index", idx,
				"reason", err.Error(),
			)
			continue
		}

		value, unit, err := normalizeUnit(domain.Domain(obs.Domain), obs.Unit, *obs.Value)
		if err != nil {
			report.Quarantined = append(report.Quarantined, domain.QuarantinedObservation{
				Index:       idx,
				Observation: obs,
				Reason:      (&domain.MalformedFindingError{Index: idx, Field: "unit", Reason: err.Error()}).Error(),
			})
			continue
		}

		f := &domain.Finding{
			ID:            uuid.New().String(),
			OperatorID:    operatorID,
			Subsystem:     batch.Subsystem,
			SchemaVersion: batch.SchemaVersion,
			WellID:        obs.WellID,
			Domain:        domain.Domain(obs.Domain),
			Metric:        obs.Metric,
			Value:         value,
			Unit:          unit,
			Confidence:    obs.Confidence,
			ObservedAt:    obs.ObservedAt.UTC(),
			Location:      obs.Location,
		}

		if err := i.assign(ctx, operatorID, f); err != nil {
			return report, err
		}

		report.Accepted = append(report.Accepted, f)
		report.AcceptedIDs = append(report.AcceptedIDs, f.ID)

		i.trackCoverage(ctx, operatorID, f)
		i.publishIngested(ctx, operatorID, f)
	}

	slog.Info("batch ingested",
		"subsystem", batch.Subsystem,
		"operator_id", operatorID,
		"accepted", len(report.Accepted),
		"quarantined", len(report.Quarantined),
	)

	return report, nil
}

// validate checks the required observation fields: well_id, domain, metric,
// value, observed_at, and a confidence inside [0,1].
func validate(idx int, obs *domain.RawObservation) error {
	if obs.WellID == "" {
		return &domain.MalformedFindingError{Index: idx, Field: "well_id", Reason: "is required"}
	}
	if obs.Domain == "" {
		return &domain.MalformedFindingError{Index: idx, Field: "domain", Reason: "is required"}
	}
	valid := false
	for _, d := range domain.KnownDomains() {
		if domain.Domain(obs.Domain) == d {
			valid = true
			break
		}
	}
	if !valid {
		return &domain.MalformedFindingError{Index: idx, Field: "domain", Reason: "is not a known forensic domain"}
	}
	if obs.Metric == "" {
		return &domain.MalformedFindingError{Index: idx, Field: "metric_name", Reason: "is required"}
	}
	if obs.Value == nil {
		return &domain.MalformedFindingError{Index: idx, Field: "value", Reason: "is required"}
	}
	if obs.ObservedAt == nil || obs.ObservedAt.IsZero() {
		return &domain.MalformedFindingError{Index: idx, Field: "observed_at", Reason: "is required"}
	}
	if obs.Confidence < 0 || obs.Confidence > 1 {
		return &domain.MalformedFindingError{Index: idx, Field: "confidence", Reason: "must be in [0,1]"}
	}
	return nil
}

// trackCoverage bumps the per-(well, subsystem) coverage counter used by
// the coverage service to detect absent subsystems.
func (i *Ingestor) trackCoverage(ctx context.Context, operatorID string, f *domain.Finding) {
	if i.cache == nil {
		return
	}
	key := coverage.CounterKey(f.WellID, f.Subsystem)
	if _, err := i.cache.IncrementCounter(ctx, operatorID, key, coverage.CounterWindow); err != nil {
		slog.Debug("coverage counter increment failed", "key", key, "error", err)
	}
}

func (i *Ingestor) publishIngested(ctx context.Context, operatorID string, f *domain.Finding) {
	if i.bus == nil {
		return
	}
	payload, _ := json.Marshal(f)
	if err := i.bus.Publish(ctx, operatorID, domain.TopicFindingIngested, payload); err != nil {
		slog.Error("failed to publish ingested finding",
			"finding_id", f.ID,
			"error", err,
		)
	}
}
