// Package predicate provides the CEL-Go based predicate evaluation engine.
package predicate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/welltegra/brahan/internal/catalog"
	"github.com/welltegra/brahan/internal/domain"
)

// Engine evaluates the predicate catalog against a well's findings.
// Evaluation is a pure function of (predicate definition, finding set,
// evaluation time): re-running against the same closed finding set
// reproduces identical verdicts.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*CompiledPredicate

	defaultMinConfidence float64
	maxWorkers           int
}

// CompiledPredicate holds a pre-compiled CEL program.
type CompiledPredicate struct {
	Def     *domain.Predicate
	Program cel.Program
}

// NewEngine creates a new predicate evaluation engine.
func NewEngine(defaultMinConfidence float64, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 100
	}
	if defaultMinConfidence <= 0 {
		defaultMinConfidence = 0.5
	}

	// CEL environment with the evidence variables every comparator can use.
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DoubleType),
		cel.Variable("unit", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("metric", cel.StringType),
		cel.Variable("domain", cel.StringType),
		cel.Variable("age_days", cel.DoubleType),
		cel.Variable("finding_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:                  env,
		defaultMinConfidence: defaultMinConfidence,
		maxWorkers:           maxWorkers,
	}, nil
}

// ValidatePredicate compiles a predicate definition without loading it.
func (e *Engine) ValidatePredicate(p *domain.Predicate) error {
	if p == nil {
		return fmt.Errorf("predicate definition is required")
	}
	_, err := e.compile(p)
	return err
}

// LoadCatalog compiles and loads all enabled predicates from a validated
// catalog, replacing any previously loaded set.
func (e *Engine) LoadCatalog(cat *catalog.Catalog) error {
	compiled := make([]*CompiledPredicate, 0, len(cat.Predicates))
	for _, p := range cat.EnabledPredicates() {
		cp, err := e.compile(p)
		if err != nil {
			return err
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	e.compiled = compiled
	e.mu.Unlock()
	return nil
}

// PredicateCount returns the number of loaded predicates.
func (e *Engine) PredicateCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// EvaluateWell evaluates every loaded predicate against one well's findings.
// asOf is the run snapshot time, used for the age_days variable so results
// are reproducible. Verdicts are returned in predicate id order.
func (e *Engine) EvaluateWell(ctx context.Context, wellID string, findings []*domain.Finding, asOf time.Time) []domain.Verdict {
	e.mu.RLock()
	compiled := e.compiled
	e.mu.RUnlock()

	if len(compiled) == 0 {
		return nil
	}

	// Bucket evidence once per (domain, metric); most recent first, ties
	// broken by descending ingest sequence.
	buckets := bucketEvidence(findings)

	verdicts := make([]domain.Verdict, len(compiled))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, cp := range compiled {
		wg.Add(1)
		go func(idx int, cp *CompiledPredicate) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			verdicts[idx] = e.evaluate(cp, wellID, buckets[evidenceKey{cp.Def.Domain, cp.Def.Metric}], asOf)
		}(i, cp)
	}

	wg.Wait()
	return verdicts
}

type evidenceKey struct {
	domain domain.Domain
	metric string
}

func bucketEvidence(findings []*domain.Finding) map[evidenceKey][]*domain.Finding {
	buckets := make(map[evidenceKey][]*domain.Finding)
	for _, f := range findings {
		key := evidenceKey{f.Domain, f.Metric}
		buckets[key] = append(buckets[key], f)
	}
	for key := range buckets {
		b := buckets[key]
		sort.Slice(b, func(i, j int) bool {
			if !b[i].ObservedAt.Equal(b[j].ObservedAt) {
				return b[i].ObservedAt.After(b[j].ObservedAt)
			}
			return b[i].IngestSeq > b[j].IngestSeq
		})
	}
	return buckets
}

// evaluate runs one predicate against its evidence bucket. A fault is
// caught and recorded as INDETERMINATE; it never halts the remaining
// predicates.
func (e *Engine) evaluate(cp *CompiledPredicate, wellID string, evidence []*domain.Finding, asOf time.Time) domain.Verdict {
	v := domain.Verdict{
		PredicateID: cp.Def.ID,
		WellID:      wellID,
		Domain:      cp.Def.Domain,
	}
	for _, f := range evidence {
		v.Evidence = append(v.Evidence, domain.EvidenceRef{FindingID: f.ID, IngestSeq: f.IngestSeq})
	}

	floor := cp.Def.MinConfidence
	if floor == 0 {
		floor = e.defaultMinConfidence
	}

	// Most recent sufficient-confidence finding wins.
	var witness *domain.Finding
	for _, f := range evidence {
		if f.Confidence >= floor {
			witness = f
			break
		}
	}
	if witness == nil {
		v.Outcome = domain.OutcomeIndeterminate
		v.Note = "no finding meets the confidence floor"
		return v
	}

	activation := map[string]any{
		"value":         witness.Value,
		"unit":          witness.Unit,
		"confidence":    witness.Confidence,
		"metric":        witness.Metric,
		"domain":        string(witness.Domain),
		"age_days":      asOf.Sub(witness.ObservedAt).Hours() / 24,
		"finding_count": int64(len(evidence)),
	}

	out, _, err := cp.Program.Eval(activation)
	if err != nil {
		fault := &domain.EvaluationFault{PredicateID: cp.Def.ID, WellID: wellID, Cause: err}
		slog.Warn("predicate evaluation fault",
			"predicate_id", cp.Def.ID,
			"well_id", wellID,
			"error", err,
		)
		v.Outcome = domain.OutcomeIndeterminate
		v.Note = fault.Error()
		return v
	}

	if pass, ok := out.(types.Bool); ok && bool(pass) {
		v.Outcome = domain.OutcomePass
	} else {
		v.Outcome = domain.OutcomeFail
	}

	v.Confidence = clip01(witness.Confidence * cp.Def.Weight)
	return v
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func (e *Engine) compile(p *domain.Predicate) (*CompiledPredicate, error) {
	ast, issues := e.env.Compile(p.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile predicate %s: %w", p.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("predicate %s: expression must return bool, got %s", p.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for predicate %s: %w", p.ID, err)
	}

	return &CompiledPredicate{Def: p, Program: program}, nil
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = nil
	return nil
}
