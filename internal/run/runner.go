// Package run orchestrates analysis runs: snapshot the finding stream,
// fan out per-well pipelines, and reduce verdicts into gate outcomes,
// correlations, and risk scores under one audit span.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/welltegra/brahan/internal/catalog"
	"github.com/welltegra/brahan/internal/correlate"
	"github.com/welltegra/brahan/internal/coverage"
	"github.com/welltegra/brahan/internal/domain"
	"github.com/welltegra/brahan/internal/gate"
	"github.com/welltegra/brahan/internal/ledger"
	"github.com/welltegra/brahan/internal/predicate"
	"github.com/welltegra/brahan/internal/risk"
)

// Runner executes analysis runs against a snapshot of ingested findings.
// Wells are processed in parallel; ledger appends and result persistence
// happen per well, so cancellation leaves completed wells durable and
// audit-covered without any rollback.
type Runner struct {
	repo domain.Repository

	cache domain.Cache
	bus   domain.EventBus

	evaluator  *predicate.Engine
	pipeline   *gate.Pipeline
	correlator *correlate.Engine
	scorer     *risk.Scorer
	ledger     *ledger.Ledger
	coverage   *coverage.Service

	cfg domain.EvaluationConfig

	mu             sync.RWMutex
	catalogVersion string
}

// New creates a runner wired to the shared components.
func New(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	evaluator *predicate.Engine,
	pipeline *gate.Pipeline,
	correlator *correlate.Engine,
	scorer *risk.Scorer,
	led *ledger.Ledger,
	cov *coverage.Service,
	cfg domain.EvaluationConfig,
) *Runner {
	return &Runner{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		evaluator:  evaluator,
		pipeline:   pipeline,
		correlator: correlator,
		scorer:     scorer,
		ledger:     led,
		coverage:   cov,
		cfg:        cfg,
	}
}

// UseCatalog validates and installs a predicate catalog. A catalog that
// fails validation is rejected atomically: the previously installed
// catalog stays active.
func (r *Runner) UseCatalog(cat *catalog.Catalog) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	if err := r.evaluator.LoadCatalog(cat); err != nil {
		return err
	}
	r.pipeline.Load(cat.GatesInOrder())

	r.mu.Lock()
	r.catalogVersion = cat.Version
	r.mu.Unlock()
	return nil
}

// CatalogVersion returns the version of the installed catalog.
func (r *Runner) CatalogVersion() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalogVersion
}

// Gates returns the installed gate definitions in pipeline order.
func (r *Runner) Gates() []domain.GateDef {
	return r.pipeline.Gates()
}

// PredicateCount returns the number of compiled predicates.
func (r *Runner) PredicateCount() int {
	return r.evaluator.PredicateCount()
}

// Execute runs the full pipeline for one operator. The snapshot sequence
// is fixed before evaluation begins: findings ingested afterwards do not
// participate. Returns the unified result document covering every well
// that had evidence in the snapshot.
func (r *Runner) Execute(ctx context.Context, operatorID string) (*domain.RunResult, error) {
	if r.CatalogVersion() == "" {
		return nil, fmt.Errorf("no catalog installed")
	}

	runID := uuid.New().String()
	startedAt := time.Now().UTC()

	snapshotSeq, err := r.repo.MaxIngestSeq(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot ingest sequence: %w", err)
	}

	absent, err := r.coverage.AbsentSubsystems(ctx, operatorID, startedAt, r.cfg.SubsystemTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to check subsystem coverage: %w", err)
	}
	for _, sub := range absent {
		timeoutErr := &domain.SubsystemTimeoutError{Subsystem: sub, Window: r.cfg.SubsystemTimeout}
		slog.Warn("subsystem absent for run; its evidence degrades rather than failing",
			"run_id", runID,
			"error", timeoutErr,
		)
	}

	run := &domain.AnalysisRun{
		ID:               runID,
		OperatorID:       operatorID,
		Status:           domain.RunRunning,
		SnapshotSeq:      snapshotSeq,
		CatalogVersion:   r.CatalogVersion(),
		StartedAt:        startedAt,
		AbsentSubsystems: absent,
	}
	if err := r.repo.SaveRun(ctx, operatorID, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	opened, err := r.ledger.Append(ctx, operatorID, []ledger.Entry{{
		EntityType: domain.EntityRun,
		EntityID:   runID,
		Action:     domain.AuditActionRunOpened,
		RunID:      runID,
		Payload:    run,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit span: %w", err)
	}
	run.Audit.FirstSeq = opened[0].Seq

	findings, err := r.repo.ListFindingsUpTo(ctx, operatorID, snapshotSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot findings: %w", err)
	}

	byWell := groupByWell(findings)
	wellIDs := make([]string, 0, len(byWell))
	for id := range byWell {
		wellIDs = append(wellIDs, id)
	}
	sort.Strings(wellIDs)

	slog.Info("analysis run started",
		"run_id", runID,
		"operator_id", operatorID,
		"snapshot_seq", snapshotSeq,
		"wells", len(wellIDs),
		"catalog_version", run.CatalogVersion,
	)

	var (
		resultsMu sync.Mutex
		results   = make([]domain.WellResult, 0, len(wellIDs))
		failed    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.wellWorkers())

	for _, wellID := range wellIDs {
		wellID := wellID
		wellFindings := byWell[wellID]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			wr, err := r.processWell(gctx, operatorID, runID, wellID, wellFindings, startedAt)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				slog.Error("well pipeline failed",
					"run_id", runID,
					"well_id", wellID,
					"error", err,
				)
				resultsMu.Lock()
				failed++
				resultsMu.Unlock()
				return nil
			}

			resultsMu.Lock()
			results = append(results, *wr)
			resultsMu.Unlock()
			return nil
		})
	}

	gerr := g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].WellID < results[j].WellID })

	switch {
	case gerr != nil:
		run.Status = domain.RunCancelled
	case failed > 0 && len(results) == 0:
		run.Status = domain.RunFailed
	case failed > 0:
		run.Status = domain.RunPartial
	default:
		run.Status = domain.RunCompleted
	}

	// Close the audit span even for cancelled runs: already-appended
	// records stay in the ledger and the closing record brackets them.
	finCtx := context.WithoutCancel(ctx)
	closed, err := r.ledger.Append(finCtx, operatorID, []ledger.Entry{{
		EntityType: domain.EntityRun,
		EntityID:   runID,
		Action:     domain.AuditActionRunClosed,
		RunID:      runID,
		Payload:    map[string]any{"status": run.Status, "wells": len(results), "failed": failed},
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to close audit span: %w", err)
	}
	run.Audit.LastSeq = closed[0].Seq

	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	if err := r.repo.SaveRun(finCtx, operatorID, run); err != nil {
		return nil, fmt.Errorf("failed to finalize run: %w", err)
	}

	result := &domain.RunResult{Run: *run, Wells: results}
	r.publishCompleted(finCtx, operatorID, result)

	slog.Info("analysis run finished",
		"run_id", runID,
		"status", run.Status,
		"wells", len(results),
		"failed", failed,
		"duration_ms", completedAt.Sub(startedAt).Milliseconds(),
	)

	if gerr != nil {
		return result, gerr
	}
	return result, nil
}

// processWell runs the evaluator and correlator concurrently for one
// well, reduces gate outcomes and risk, appends the well's audit batch,
// and persists everything.
func (r *Runner) processWell(ctx context.Context, operatorID, runID, wellID string, findings []*domain.Finding, asOf time.Time) (*domain.WellResult, error) {
	var (
		verdicts     []domain.Verdict
		correlations []domain.Correlation
		wg           sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		verdicts = r.evaluator.EvaluateWell(ctx, wellID, findings, asOf)
	}()
	go func() {
		defer wg.Done()
		correlations = r.correlator.CorrelateWell(wellID, findings)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := r.pipeline.Evaluate(wellID, verdicts)
	score := r.scorer.Score(operatorID, runID, wellID, outcomes, correlations, time.Now().UTC())

	entries := make([]ledger.Entry, 0, len(verdicts)+len(outcomes)+len(correlations)+1)
	for i := range verdicts {
		entries = append(entries, ledger.Entry{
			EntityType: domain.EntityVerdict,
			EntityID:   verdicts[i].PredicateID,
			Action:     domain.AuditActionCreated,
			WellID:     wellID,
			RunID:      runID,
			Payload:    verdicts[i],
		})
	}
	for i := range outcomes {
		entries = append(entries, ledger.Entry{
			EntityType: domain.EntityGateOutcome,
			EntityID:   fmt.Sprintf("%s-gate-%d", wellID, outcomes[i].GateIndex),
			Action:     domain.AuditActionCreated,
			WellID:     wellID,
			RunID:      runID,
			Payload:    outcomes[i],
		})
	}
	for i := range correlations {
		entries = append(entries, ledger.Entry{
			EntityType: domain.EntityCorrelation,
			EntityID:   correlations[i].ID,
			Action:     domain.AuditActionCreated,
			WellID:     wellID,
			RunID:      runID,
			Payload:    correlations[i],
		})
	}
	entries = append(entries, ledger.Entry{
		EntityType: domain.EntityRiskScore,
		EntityID:   score.ID,
		Action:     domain.AuditActionCreated,
		WellID:     wellID,
		RunID:      runID,
		Payload:    score,
	})

	if _, err := r.ledger.Append(ctx, operatorID, entries); err != nil {
		return nil, fmt.Errorf("failed to append audit batch: %w", err)
	}

	if err := r.repo.SaveVerdicts(ctx, operatorID, runID, verdicts); err != nil {
		return nil, fmt.Errorf("failed to save verdicts: %w", err)
	}
	if err := r.repo.SaveGateOutcomes(ctx, operatorID, runID, outcomes); err != nil {
		return nil, fmt.Errorf("failed to save gate outcomes: %w", err)
	}
	if err := r.repo.SaveCorrelations(ctx, operatorID, runID, correlations); err != nil {
		return nil, fmt.Errorf("failed to save correlations: %w", err)
	}
	if err := r.repo.SaveRiskScore(ctx, operatorID, score); err != nil {
		return nil, fmt.Errorf("failed to save risk score: %w", err)
	}

	wr := &domain.WellResult{
		WellID:       wellID,
		Disposition:  domain.Disposition(outcomes),
		GateOutcomes: outcomes,
		Risk:         score,
		Correlations: correlations,
	}
	for i := range verdicts {
		if verdicts[i].Outcome == domain.OutcomeIndeterminate {
			wr.IndeterminatePredicates = append(wr.IndeterminatePredicates, verdicts[i].PredicateID)
		}
	}
	for i := range outcomes {
		if outcomes[i].Status == domain.GateStatusSkipped {
			wr.SkippedGates = append(wr.SkippedGates, outcomes[i].GateIndex)
		}
	}

	if err := r.repo.SaveWellResults(ctx, operatorID, runID, []domain.WellResult{*wr}); err != nil {
		return nil, fmt.Errorf("failed to save well result: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.SetRiskScore(ctx, operatorID, wellID, score, 5*time.Minute)
	}
	r.publishScored(ctx, operatorID, score)

	return wr, nil
}

func (r *Runner) wellWorkers() int {
	if r.cfg.WellWorkers <= 0 {
		return 1
	}
	return r.cfg.WellWorkers
}

func (r *Runner) publishScored(ctx context.Context, operatorID string, score *domain.RiskScore) {
	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(score)
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, operatorID, domain.TopicRiskScored, payload); err != nil {
		slog.Warn("failed to publish risk score", "well_id", score.WellID, "error", err)
	}

	if score.Level == domain.RiskCritical {
		if err := r.bus.Publish(ctx, operatorID, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert", "well_id", score.WellID, "error", err)
		}
	}
}

func (r *Runner) publishCompleted(ctx context.Context, operatorID string, result *domain.RunResult) {
	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(result.Run)
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, operatorID, domain.TopicRunCompleted, payload); err != nil {
		slog.Warn("failed to publish run completion", "run_id", result.Run.ID, "error", err)
	}
}

func groupByWell(findings []*domain.Finding) map[string][]*domain.Finding {
	byWell := make(map[string][]*domain.Finding)
	for _, f := range findings {
		byWell[f.WellID] = append(byWell[f.WellID], f)
	}
	return byWell
}
