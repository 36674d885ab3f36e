package domain

import (
	"fmt"
	"time"
)

// MalformedFindingError reports a raw observation that failed validation.
// Bad records are quarantined and reported; ingestion of the rest of the
// batch continues.
type MalformedFindingError struct {
	Index  int
	Field  string
	Reason string
}

func (e *MalformedFindingError) Error() string {
	return fmt.Sprintf("malformed finding at index %d: field %q %s", e.Index, e.Field, e.Reason)
}

// CatalogValidationError is fatal: it aborts a run before evaluation starts.
type CatalogValidationError struct {
	Problems []string
}

func (e *CatalogValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "catalog validation failed: " + e.Problems[0]
	}
	return fmt.Sprintf("catalog validation failed with %d problems: %s", len(e.Problems), e.Problems[0])
}

// EvaluationFault wraps a per-predicate evaluation error. It degrades that
// predicate's verdict to INDETERMINATE and never halts the remaining
// predicates.
type EvaluationFault struct {
	PredicateID string
	WellID      string
	Cause       error
}

func (e *EvaluationFault) Error() string {
	return fmt.Sprintf("predicate %s faulted for well %s: %v", e.PredicateID, e.WellID, e.Cause)
}

func (e *EvaluationFault) Unwrap() error { return e.Cause }

// SubsystemTimeoutError marks a subsystem that produced no findings within
// the configured window. Treated as absent evidence, not a fatal error.
type SubsystemTimeoutError struct {
	Subsystem Subsystem
	Window    time.Duration
}

func (e *SubsystemTimeoutError) Error() string {
	return fmt.Sprintf("subsystem %s produced no findings within %s", e.Subsystem, e.Window)
}

// AuditChainIntegrityError is raised only by chain verification. It signals
// tampering or corruption and halts trust in the affected range.
type AuditChainIntegrityError struct {
	Seq    uint64
	Reason string
}

func (e *AuditChainIntegrityError) Error() string {
	return fmt.Sprintf("audit chain integrity violation at seq %d: %s", e.Seq, e.Reason)
}
