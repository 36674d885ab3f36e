package domain

// Predicate is a named rule evaluated against findings within a forensic
// domain. Predicates live in a static catalog loaded at process start and
// are read-only during evaluation.
type Predicate struct {
	ID          string `json:"id" yaml:"id"`
	Domain      Domain `json:"domain" yaml:"domain"`
	Metric      string `json:"metric" yaml:"metric"`
	Description string `json:"description" yaml:"description"`

	// Expression is a CEL expression over the evidence variables
	// (value, unit, confidence, metric, age_days, finding_count).
	// Must compile to bool: true is PASS, false is FAIL.
	Expression string `json:"expression" yaml:"expression"`

	// Weight scales the verdict confidence, in (0,1].
	Weight float64 `json:"weight" yaml:"weight"`

	// MinConfidence is the evidence confidence floor. Findings below it
	// never produce a PASS/FAIL verdict. Zero means the catalog default.
	MinConfidence float64 `json:"minConfidence" yaml:"minConfidence"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Outcome is the graded result of evaluating one predicate for one well.
type Outcome string

const (
	OutcomePass          Outcome = "PASS"
	OutcomeFail          Outcome = "FAIL"
	OutcomeIndeterminate Outcome = "INDETERMINATE"
)

// EvidenceRef points at a finding that contributed to a verdict.
type EvidenceRef struct {
	FindingID string `json:"findingId"`
	IngestSeq uint64 `json:"ingestSeq"`
}

// Verdict is the result of evaluating one predicate against one well's
// findings. Created once per (predicate, well) per run; never mutated,
// only superseded by a new run.
type Verdict struct {
	PredicateID string  `json:"predicateId"`
	WellID      string  `json:"wellId"`
	Domain      Domain  `json:"domain"`
	Outcome     Outcome `json:"outcome"`

	// Confidence = evidence confidence x predicate weight, clipped to [0,1].
	Confidence float64 `json:"confidence"`

	// Evidence is the ordered sequence of findings considered, most
	// recent first.
	Evidence []EvidenceRef `json:"evidence,omitempty"`

	// Note carries the fault message when an evaluation error degraded
	// the outcome to INDETERMINATE.
	Note string `json:"note,omitempty"`
}
