// Package gate implements the seven-stage gate pipeline that aggregates
// predicate verdicts per well into gate outcomes.
package gate

import (
	"sort"
	"sync"

	"github.com/welltegra/brahan/internal/domain"
)

// Pipeline is the fixed ordered sequence of gates. The reduction itself is
// stateless and re-derivable from stored verdicts at any time; the ordered
// model exists for reporting and so a future gate can depend on an earlier
// gate's outcome without restructuring.
type Pipeline struct {
	mu    sync.RWMutex
	gates []domain.GateDef
}

// NewPipeline creates a pipeline from gate definitions, ordered by index.
func NewPipeline(gates []domain.GateDef) *Pipeline {
	p := &Pipeline{}
	p.Load(gates)
	return p
}

// Load replaces the gate definitions (hot reload with the catalog).
func (p *Pipeline) Load(gates []domain.GateDef) {
	ordered := make([]domain.GateDef, len(gates))
	copy(ordered, gates)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	p.mu.Lock()
	p.gates = ordered
	p.mu.Unlock()
}

// Gates returns the loaded gate definitions in ascending order.
func (p *Pipeline) Gates() []domain.GateDef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	gates := make([]domain.GateDef, len(p.gates))
	copy(gates, p.gates)
	return gates
}

// Evaluate reduces a well's verdicts through every gate in fixed ascending
// order. Gates do not short-circuit: a FAIL at gate 3 does not prevent
// gates 4-7 from evaluating, since the output must reflect the complete
// evidence picture for audit purposes.
func (p *Pipeline) Evaluate(wellID string, verdicts []domain.Verdict) []domain.GateOutcome {
	p.mu.RLock()
	gates := p.gates
	p.mu.RUnlock()

	outcomes := make([]domain.GateOutcome, 0, len(gates))
	for _, g := range gates {
		outcomes = append(outcomes, evaluateGate(g, wellID, verdicts))
	}
	return outcomes
}

// evaluateGate collects the verdicts in the gate's domain set and computes
// pass_ratio = PASS/(PASS+FAIL), ignoring INDETERMINATE. With no verdicts,
// or none that are gradable, the gate is SKIPPED.
func evaluateGate(g domain.GateDef, wellID string, verdicts []domain.Verdict) domain.GateOutcome {
	owned := make(map[domain.Domain]bool, len(g.Domains))
	for _, d := range g.Domains {
		owned[d] = true
	}

	outcome := domain.GateOutcome{
		GateIndex: g.Index,
		GateName:  g.Name,
		WellID:    wellID,
	}

	for _, v := range verdicts {
		if !owned[v.Domain] {
			continue
		}
		outcome.Verdicts = append(outcome.Verdicts, v)
		switch v.Outcome {
		case domain.OutcomePass:
			outcome.PassCount++
		case domain.OutcomeFail:
			outcome.FailCount++
		default:
			outcome.IndeterminateCount++
		}
	}

	sort.Slice(outcome.Verdicts, func(i, j int) bool {
		return outcome.Verdicts[i].PredicateID < outcome.Verdicts[j].PredicateID
	})

	graded := outcome.PassCount + outcome.FailCount
	if graded == 0 {
		outcome.Status = domain.GateStatusSkipped
		return outcome
	}

	outcome.PassRatio = float64(outcome.PassCount) / float64(graded)
	if outcome.PassRatio >= g.RequiredPassRatio {
		outcome.Status = domain.GateStatusPass
	} else {
		outcome.Status = domain.GateStatusFail
	}
	return outcome
}
