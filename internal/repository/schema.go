package repository

// Schema definitions for the Brahan database.
// Compatible with both SQLite and PostgreSQL.

const schemaFindings = `
CREATE TABLE IF NOT EXISTS findings (
    id TEXT PRIMARY KEY,
    operator_id TEXT NOT NULL,
    subsystem TEXT NOT NULL,
    schema_version TEXT NOT NULL,
    well_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    metric TEXT NOT NULL,
    value REAL NOT NULL,
    unit TEXT NOT NULL,
    confidence REAL NOT NULL,
    observed_at TIMESTAMP NOT NULL,
    lat REAL,
    lon REAL,
    depth_m REAL,
    ingest_seq INTEGER NOT NULL,
    ingested_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_findings_operator ON findings(operator_id);
CREATE INDEX IF NOT EXISTS idx_findings_seq ON findings(operator_id, ingest_seq);
CREATE INDEX IF NOT EXISTS idx_findings_well ON findings(operator_id, well_id, domain);
CREATE INDEX IF NOT EXISTS idx_findings_subsystem ON findings(operator_id, subsystem, ingested_at);
`

const schemaCatalogs = `
CREATE TABLE IF NOT EXISTS catalogs (
    operator_id TEXT PRIMARY KEY,
    version TEXT NOT NULL,
    gates TEXT NOT NULL,
    predicates TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    operator_id TEXT NOT NULL,
    status TEXT NOT NULL,
    snapshot_seq INTEGER NOT NULL,
    catalog_version TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    audit_first_seq INTEGER NOT NULL DEFAULT 0,
    audit_last_seq INTEGER NOT NULL DEFAULT 0,
    absent_subsystems TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_operator ON runs(operator_id, started_at);
`

const schemaVerdicts = `
CREATE TABLE IF NOT EXISTS verdicts (
    run_id TEXT NOT NULL,
    operator_id TEXT NOT NULL,
    well_id TEXT NOT NULL,
    predicate_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    outcome TEXT NOT NULL,
    confidence REAL NOT NULL,
    evidence TEXT,
    note TEXT,
    PRIMARY KEY (run_id, well_id, predicate_id)
);

CREATE INDEX IF NOT EXISTS idx_verdicts_well ON verdicts(operator_id, well_id);
`

const schemaGateOutcomes = `
CREATE TABLE IF NOT EXISTS gate_outcomes (
    run_id TEXT NOT NULL,
    operator_id TEXT NOT NULL,
    well_id TEXT NOT NULL,
    gate_index INTEGER NOT NULL,
    gate_name TEXT NOT NULL,
    status TEXT NOT NULL,
    pass_ratio REAL NOT NULL,
    pass_count INTEGER NOT NULL,
    fail_count INTEGER NOT NULL,
    indeterminate_count INTEGER NOT NULL,
    verdicts TEXT,
    PRIMARY KEY (run_id, well_id, gate_index)
);
`

const schemaCorrelations = `
CREATE TABLE IF NOT EXISTS correlations (
    id TEXT NOT NULL,
    run_id TEXT NOT NULL,
    operator_id TEXT NOT NULL,
    well_id TEXT NOT NULL,
    relation TEXT NOT NULL,
    match_confidence REAL NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_correlations_well ON correlations(operator_id, well_id);
`

const schemaRiskScores = `
CREATE TABLE IF NOT EXISTS risk_scores (
    id TEXT PRIMARY KEY,
    operator_id TEXT NOT NULL,
    well_id TEXT NOT NULL,
    run_id TEXT NOT NULL,
    score REAL NOT NULL,
    level TEXT NOT NULL,
    computed_at TIMESTAMP NOT NULL,
    data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_scores_well ON risk_scores(operator_id, well_id, computed_at);
`

const schemaWellResults = `
CREATE TABLE IF NOT EXISTS well_results (
    run_id TEXT NOT NULL,
    operator_id TEXT NOT NULL,
    well_id TEXT NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (run_id, well_id)
);
`

// Audit records are write-once: the repository exposes no UPDATE or DELETE
// path for this table.
const schemaAuditRecords = `
CREATE TABLE IF NOT EXISTS audit_records (
    operator_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    action TEXT NOT NULL,
    well_id TEXT,
    run_id TEXT,
    payload TEXT NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (operator_id, seq)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaFindings,
		schemaCatalogs,
		schemaRuns,
		schemaVerdicts,
		schemaGateOutcomes,
		schemaCorrelations,
		schemaRiskScores,
		schemaWellResults,
		schemaAuditRecords,
	}
}
