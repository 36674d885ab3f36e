package domain

import (
	"time"
)

// Subsystem identifies one of the upstream analysis subsystems.
type Subsystem string

const (
	// SubsystemWellArk is the legacy log/document forensics pipeline.
	SubsystemWellArk Subsystem = "wellark"

	// SubsystemWellABuild is the physics-based material-integrity engine.
	SubsystemWellABuild Subsystem = "wellabuild"

	// SubsystemAirtight is the document-intelligence pipeline.
	SubsystemAirtight Subsystem = "airtight"
)

// KnownSubsystems lists the three upstream producers.
func KnownSubsystems() []Subsystem {
	return []Subsystem{SubsystemWellArk, SubsystemWellABuild, SubsystemAirtight}
}

// KnownSubsystem reports whether s is one of the upstream producers.
func KnownSubsystem(s Subsystem) bool {
	for _, known := range KnownSubsystems() {
		if s == known {
			return true
		}
	}
	return false
}

// Domain is a forensic analysis domain.
type Domain string

const (
	DomainCement        Domain = "cement"
	DomainCasing        Domain = "casing"
	DomainPressure      Domain = "pressure"
	DomainDocumentation Domain = "documentation"
	DomainOperations    Domain = "operations"
)

// KnownDomains lists the five forensic domains in canonical order.
func KnownDomains() []Domain {
	return []Domain{DomainCement, DomainCasing, DomainPressure, DomainDocumentation, DomainOperations}
}

// Location is an optional spatial reference for a finding.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	DepthM    float64 `json:"depthM"`
}

// Finding is a single normalized observation about a well.
// Immutable once ingested.
type Finding struct {
	ID         string    `json:"id"`
	OperatorID string    `json:"operatorId"`

	Subsystem     Subsystem `json:"subsystem"`
	SchemaVersion string    `json:"schemaVersion"`

	WellID string  `json:"wellId"`
	Domain Domain  `json:"domain"`
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`

	// Confidence reported by the producing subsystem, in [0,1].
	Confidence float64 `json:"confidence"`

	ObservedAt time.Time `json:"observedAt"`
	Location   *Location `json:"location,omitempty"`

	// IngestSeq is assigned by the ingestor under single-writer discipline
	// and used for deterministic tie-breaking.
	IngestSeq  uint64    `json:"ingestSeq"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// RawObservation is one metric observation as produced by a subsystem,
// before normalization.
type RawObservation struct {
	WellID     string     `json:"wellId"`
	Domain     string     `json:"domain"`
	Metric     string     `json:"metric"`
	Value      *float64   `json:"value"`
	Unit       string     `json:"unit"`
	Confidence float64    `json:"confidence"`
	ObservedAt *time.Time `json:"observedAt"`
	Location   *Location  `json:"location,omitempty"`
}

// RawResult is a batch of observations from one subsystem run.
type RawResult struct {
	Subsystem     Subsystem        `json:"subsystem"`
	SchemaVersion string           `json:"schemaVersion"`
	Observations  []RawObservation `json:"observations"`
}

// QuarantinedObservation pairs a rejected observation with the reason it
// was rejected. Bad records are reported, not fatal.
type QuarantinedObservation struct {
	Index       int            `json:"index"`
	Observation RawObservation `json:"observation"`
	Reason      string         `json:"reason"`
}

// IngestReport summarizes a batch ingestion.
type IngestReport struct {
	Accepted    []*Finding               `json:"-"`
	AcceptedIDs []string                 `json:"acceptedIds"`
	Quarantined []QuarantinedObservation `json:"quarantined"`
}
