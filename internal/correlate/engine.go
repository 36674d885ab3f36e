// Package correlate cross-references findings from different subsystems
// for the same well, scoring match confidence and flagging contradictions.
package correlate

import (
	"fmt"
	"sort"

	"github.com/welltegra/brahan/internal/domain"
)

// Engine runs the pairwise correlation scan. It is read-only over the
// immutable finding set and may run in parallel with predicate evaluation.
type Engine struct {
	strategy Strategy
}

// NewEngine creates a correlation engine with the given scoring strategy.
func NewEngine(strategy Strategy) *Engine {
	return &Engine{strategy: strategy}
}

// CorrelateWell scans every cross-subsystem pair of findings for one well.
// The scan is O(n^2) per (well, domain) bucket; bucketing by domain first
// prunes the dominant cost. Output order and ids are deterministic.
func (e *Engine) CorrelateWell(wellID string, findings []*domain.Finding) []domain.Correlation {
	byDomain := make(map[domain.Domain][]*domain.Finding)
	for _, f := range findings {
		byDomain[f.Domain] = append(byDomain[f.Domain], f)
	}

	var correlations []domain.Correlation
	for _, d := range domain.KnownDomains() {
		bucket := byDomain[d]
		if len(bucket) < 2 {
			continue
		}
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].IngestSeq < bucket[j].IngestSeq })

		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				if a.Subsystem == b.Subsystem {
					continue
				}
				c, ok := e.strategy.Score(a, b)
				if !ok {
					continue
				}
				c.ID = pairID(a, b)
				correlations = append(correlations, c)
			}
		}
	}

	sort.Slice(correlations, func(i, j int) bool {
		if correlations[i].FindingA.IngestSeq != correlations[j].FindingA.IngestSeq {
			return correlations[i].FindingA.IngestSeq < correlations[j].FindingA.IngestSeq
		}
		return correlations[i].FindingB.IngestSeq < correlations[j].FindingB.IngestSeq
	})
	return correlations
}

// pairID derives a stable id from the two ingest sequences so re-running
// the scan over the same snapshot reproduces identical correlations.
func pairID(a, b *domain.Finding) string {
	return fmt.Sprintf("corr-%d-%d", a.IngestSeq, b.IngestSeq)
}

// Contradictions filters the CONTRADICTORY subset.
func Contradictions(correlations []domain.Correlation) []domain.Correlation {
	var out []domain.Correlation
	for _, c := range correlations {
		if c.Relation == domain.RelationContradictory {
			out = append(out, c)
		}
	}
	return out
}
