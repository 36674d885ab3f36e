// Package domain defines the core interfaces and types for Brahan.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require operatorID for strict multi-operator isolation.
type Repository interface {
	// Finding operations. Findings are immutable once saved.
	SaveFinding(ctx context.Context, operatorID string, f *Finding) error
	GetFinding(ctx context.Context, operatorID string, findingID string) (*Finding, error)
	ListFindingsUpTo(ctx context.Context, operatorID string, maxSeq uint64) ([]*Finding, error)
	CountFindingsBySubsystem(ctx context.Context, operatorID string, wellID string, subsystem Subsystem, since time.Time) (int64, error)
	LatestFindingAt(ctx context.Context, operatorID string, subsystem Subsystem) (time.Time, error)
	MaxIngestSeq(ctx context.Context, operatorID string) (uint64, error)

	// Predicate catalog operations.
	SaveCatalog(ctx context.Context, operatorID string, version string, gates []GateDef, predicates []*Predicate) error
	LoadCatalog(ctx context.Context, operatorID string) (version string, gates []GateDef, predicates []*Predicate, err error)

	// Run artifacts. All are write-once; re-running supersedes, never
	// overwrites.
	SaveRun(ctx context.Context, operatorID string, run *AnalysisRun) error
	GetRun(ctx context.Context, operatorID string, runID string) (*AnalysisRun, error)
	SaveVerdicts(ctx context.Context, operatorID string, runID string, verdicts []Verdict) error
	SaveGateOutcomes(ctx context.Context, operatorID string, runID string, outcomes []GateOutcome) error
	SaveCorrelations(ctx context.Context, operatorID string, runID string, correlations []Correlation) error
	SaveRiskScore(ctx context.Context, operatorID string, score *RiskScore) error
	GetLatestRiskScore(ctx context.Context, operatorID string, wellID string) (*RiskScore, error)
	ListRiskHistory(ctx context.Context, operatorID string, wellID string) ([]*RiskScore, error)
	ListCorrelations(ctx context.Context, operatorID string, wellID string, runID string) ([]Correlation, error)
	SaveWellResults(ctx context.Context, operatorID string, runID string, results []WellResult) error
	ListWellResults(ctx context.Context, operatorID string, runID string) ([]WellResult, error)

	// Audit ledger persistence. Append-only; records are never edited.
	AppendAuditRecords(ctx context.Context, operatorID string, records []AuditRecord) error
	ListAuditRecords(ctx context.Context, operatorID string, fromSeq, toSeq uint64) ([]AuditRecord, error)
	LastAuditRecord(ctx context.Context, operatorID string) (*AuditRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
