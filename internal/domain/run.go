package domain

import "time"

// RunStatus tracks an analysis run's lifecycle.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunPartial   RunStatus = "PARTIAL"
	RunCancelled RunStatus = "CANCELLED"
	RunFailed    RunStatus = "FAILED"
)

// AnalysisRun scopes one evaluation to a snapshot of findings closed before
// evaluation begins.
type AnalysisRun struct {
	ID         string    `json:"id"`
	OperatorID string    `json:"operatorId"`
	Status     RunStatus `json:"status"`

	// SnapshotSeq is the highest ingest sequence included in the run.
	// Findings ingested after the snapshot do not participate.
	SnapshotSeq uint64 `json:"snapshotSeq"`

	CatalogVersion string `json:"catalogVersion"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Audit AuditRange `json:"audit"`

	// AbsentSubsystems lists producers that delivered nothing within the
	// subsystem timeout; their predicates and correlations degrade to
	// INDETERMINATE/SKIPPED rather than failing the run.
	AbsentSubsystems []Subsystem `json:"absentSubsystems,omitempty"`
}

// WellResult is the per-well section of the unified result document. A
// completed run returns a result for every well with available evidence,
// annotated rather than omitted when data was missing or faulty.
type WellResult struct {
	WellID      string     `json:"wellId"`
	Disposition GateStatus `json:"disposition"`

	GateOutcomes []GateOutcome `json:"gateOutcomes"`
	Risk         *RiskScore    `json:"risk"`
	Correlations []Correlation `json:"correlations,omitempty"`

	IndeterminatePredicates []string `json:"indeterminatePredicates,omitempty"`
	SkippedGates            []int    `json:"skippedGates,omitempty"`
}

// RunResult is the unified result document for one analysis run.
type RunResult struct {
	Run   AnalysisRun  `json:"run"`
	Wells []WellResult `json:"wells"`
}
