package domain

import "time"

// EntityType names the kind of entity an audit record covers.
type EntityType string

const (
	EntityFinding     EntityType = "finding"
	EntityVerdict     EntityType = "verdict"
	EntityGateOutcome EntityType = "gate_outcome"
	EntityCorrelation EntityType = "correlation"
	EntityRiskScore   EntityType = "risk_score"
	EntityRun         EntityType = "run"
)

// Audit actions.
const (
	AuditActionCreated   = "created"
	AuditActionRunOpened = "run_opened"
	AuditActionRunClosed = "run_closed"
)

// AuditRecord is one link in the append-only hash chain.
// Hash = hex(sha256(PrevHash || canonical payload JSON)). Sequence numbers
// are strictly increasing with no gaps.
type AuditRecord struct {
	Seq        uint64     `json:"seq"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Action     string     `json:"action"`

	WellID string `json:"wellId,omitempty"`
	RunID  string `json:"runId,omitempty"`

	// Payload is the canonical JSON serialization of the entity at the
	// time the record was appended.
	Payload []byte `json:"payload"`

	PrevHash  string    `json:"prevHash"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditRange references the span of the ledger covering one run.
type AuditRange struct {
	FirstSeq uint64 `json:"firstSeq"`
	LastSeq  uint64 `json:"lastSeq"`
}
