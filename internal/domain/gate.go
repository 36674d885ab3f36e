package domain

// GateDef is one of the seven fixed, ordered aggregation stages. Each gate
// owns a subset of the predicate domains.
type GateDef struct {
	Index             int      `json:"index" yaml:"index"`
	Name              string   `json:"name" yaml:"name"`
	Domains           []Domain `json:"domains" yaml:"domains"`
	RequiredPassRatio float64  `json:"requiredPassRatio" yaml:"requiredPassRatio"`
}

// GateCount is the fixed number of pipeline stages.
const GateCount = 7

// DefaultGates returns the standard seven-gate pipeline definition.
// Pass ratios are configuration; these are the shipped defaults.
func DefaultGates() []GateDef {
	return []GateDef{
		{Index: 1, Name: "data-provenance", Domains: []Domain{DomainDocumentation}, RequiredPassRatio: 0.9},
		{Index: 2, Name: "log-completeness", Domains: []Domain{DomainDocumentation, DomainOperations}, RequiredPassRatio: 0.8},
		{Index: 3, Name: "material-integrity", Domains: []Domain{DomainCasing}, RequiredPassRatio: 0.75},
		{Index: 4, Name: "cement-integrity", Domains: []Domain{DomainCement}, RequiredPassRatio: 0.75},
		{Index: 5, Name: "pressure-containment", Domains: []Domain{DomainPressure}, RequiredPassRatio: 0.8},
		{Index: 6, Name: "operational-history", Domains: []Domain{DomainOperations}, RequiredPassRatio: 0.7},
		{Index: 7, Name: "cross-validation", Domains: []Domain{DomainCement, DomainCasing, DomainPressure}, RequiredPassRatio: 0.85},
	}
}

// GateStatus is the outcome of one gate for one well.
type GateStatus string

const (
	GateStatusPass GateStatus = "PASS"
	GateStatusFail GateStatus = "FAIL"

	// GateStatusSkipped means no verdicts existed in the gate's domains.
	GateStatusSkipped GateStatus = "SKIPPED"
)

// GateOutcome is the reduction of a gate's verdicts for one well.
type GateOutcome struct {
	GateIndex int        `json:"gateIndex"`
	GateName  string     `json:"gateName"`
	WellID    string     `json:"wellId"`
	Status    GateStatus `json:"status"`

	// PassRatio = PASS / (PASS + FAIL), ignoring INDETERMINATE.
	// Zero when the gate was skipped.
	PassRatio float64 `json:"passRatio"`

	PassCount          int `json:"passCount"`
	FailCount          int `json:"failCount"`
	IndeterminateCount int `json:"indeterminateCount"`

	// Verdicts that contributed to this gate, in predicate ID order.
	Verdicts []Verdict `json:"verdicts,omitempty"`
}

// Disposition returns the worst status across all non-skipped gates.
// FAIL dominates PASS; a well whose gates were all skipped is SKIPPED.
func Disposition(outcomes []GateOutcome) GateStatus {
	disposition := GateStatusSkipped
	for _, o := range outcomes {
		switch o.Status {
		case GateStatusFail:
			return GateStatusFail
		case GateStatusPass:
			disposition = GateStatusPass
		}
	}
	return disposition
}
