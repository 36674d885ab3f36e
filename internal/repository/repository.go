// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/welltegra/brahan/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveFinding stores an immutable finding with operator isolation.
func (r *SQLRepository) SaveFinding(ctx context.Context, operatorID string, f *domain.Finding) error {
	if operatorID == "" {
		return fmt.Errorf("%w: operatorID is required", ErrInvalidInput)
	}

	var lat, lon, depth sql.NullFloat64
	if f.Location != nil {
		lat = sql.NullFloat64{Float64: f.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: f.Location.Longitude, Valid: true}
		depth = sql.NullFloat64{Float64: f.Location.DepthM, Valid: true}
	}

	query := `
		INSERT INTO findings (
			id, operator_id, subsystem, schema_version, well_id, domain,
			metric, value, unit, confidence, observed_at, lat, lon, depth_m,
			ingest_seq, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		f.ID, operatorID, f.Subsystem, f.SchemaVersion, f.WellID, f.Domain,
		f.Metric, f.Value, f.Unit, f.Confidence, f.ObservedAt, lat, lon, depth,
		f.IngestSeq, f.IngestedAt,
	)
	return err
}

// GetFinding retrieves a finding by ID with operator isolation.
func (r *SQLRepository) GetFinding(ctx context.Context, operatorID string, findingID string) (*domain.Finding, error) {
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operatorID is required", ErrInvalidInput)
	}

	query := findingSelect + ` WHERE operator_id = ? AND id = ?`
	row := r.db.QueryRowContext(ctx, r.rebind(query), operatorID, findingID)
	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// ListFindingsUpTo retrieves every finding at or below the snapshot
// sequence, ordered by ascending ingest sequence.
func (r *SQLRepository) ListFindingsUpTo(ctx context.Context, operatorID string, maxSeq uint64) ([]*domain.Finding, error) {
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operatorID is required", ErrInvalidInput)
	}

	query := findingSelect + ` WHERE operator_id = ? AND ingest_seq <= ? ORDER BY ingest_seq ASC`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), operatorID, maxSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []*domain.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// CountFindingsBySubsystem counts a subsystem's findings for a well since
// the given time.
func (r *SQLRepository) CountFindingsBySubsystem(ctx context.Context, operatorID string, wellID string, subsystem domain.Subsystem, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM findings
		WHERE operator_id = ? AND well_id = ? AND subsystem = ? AND ingested_at >= ?
	`
	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), operatorID, wellID, subsystem, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count findings: %w", err)
	}
	return count, nil
}

// LatestFindingAt returns the newest ingested_at for a subsystem, or the
// zero time when it has produced nothing.
func (r *SQLRepository) LatestFindingAt(ctx context.Context, operatorID string, subsystem domain.Subsystem) (time.Time, error) {
	query := `
		SELECT ingested_at FROM findings
		WHERE operator_id = ? AND subsystem = ?
		ORDER BY ingested_at DESC LIMIT 1
	`
	var t time.Time
	err := r.db.QueryRowContext(ctx, r.rebind(query), operatorID, subsystem).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	return t, err
}

// MaxIngestSeq returns the highest assigned ingest sequence.
func (r *SQLRepository) MaxIngestSeq(ctx context.Context, operatorID string) (uint64, error) {
	query := `SELECT COALESCE(MAX(ingest_seq), 0) FROM findings WHERE operator_id = ?`
	var seq uint64
	err := r.db.QueryRowContext(ctx, r.rebind(query), operatorID).Scan(&seq)
	return seq, err
}

// SaveCatalog stores the operator's current predicate catalog.
func (r *SQLRepository) SaveCatalog(ctx context.Context, operatorID string, version string, gates []domain.GateDef, predicates []*domain.Predicate) error {
	if operatorID == "" {
		return fmt.Errorf("%w: operatorID is required", ErrInvalidInput)
	}

	gatesJSON, err := json.Marshal(gates)
	if err != nil {
		return err
	}
	predsJSON, err := json.Marshal(predicates)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if r.driver == "postgres" {
		query := `
			INSERT INTO catalogs (operator_id, version, gates, predicates, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (operator_id) DO UPDATE SET
				version = EXCLUDED.version,
				gates = EXCLUDED.gates,
				predicates = EXCLUDED.predicates,
				updated_at = EXCLUDED.updated_at
		`
		_, err = r.db.ExecContext(ctx, r.rebind(query), operatorID, version, string(gatesJSON), string(predsJSON), now)
		return err
	}

	query := `
		INSERT OR REPLACE INTO catalogs (operator_id, version, gates, predicates, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query, operatorID, version, string(gatesJSON), string(predsJSON), now)
	return err
}

// LoadCatalog retrieves the operator's current predicate catalog.
func (r *SQLRepository) LoadCatalog(ctx context.Context, operatorID string) (string, []domain.GateDef, []*domain.Predicate, error) {
	query := `SELECT version, gates, predicates FROM catalogs WHERE operator_id = ?`

	var version, gatesJSON, predsJSON string
	err := r.db.QueryRowContext(ctx, r.rebind(query), operatorID).Scan(&version, &gatesJSON, &predsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, nil, ErrNotFound
	}
	if err != nil {
		return "", nil, nil, err
	}

	var gates []domain.GateDef
	if err := json.Unmarshal([]byte(gatesJSON), &gates); err != nil {
		return "", nil, nil, fmt.Errorf("decode stored gates: %w", err)
	}
	var predicates []*domain.Predicate
	if err := json.Unmarshal([]byte(predsJSON), &predicates); err != nil {
		return "", nil, nil, fmt.Errorf("decode stored predicates: %w", err)
	}
	return version, gates, predicates, nil
}

// SaveRun stores or updates an analysis run.
func (r *SQLRepository) SaveRun(ctx context.Context, operatorID string, run *domain.AnalysisRun) error {
	if operatorID == "" {
		return fmt.Errorf("%w: operatorID is required", ErrInvalidInput)
	}

	absent, _ := json.Marshal(run.AbsentSubsystems)
	var completed sql.NullTime
	if run.CompletedAt != nil {
		completed = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}

	if r.driver == "postgres" {
		query := `
			INSERT INTO runs (id, operator_id, status, snapshot_seq, catalog_version,
				started_at, completed_at, audit_first_seq, audit_last_seq, absent_subsystems)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				completed_at = EXCLUDED.completed_at,
				audit_first_seq = EXCLUDED.audit_first_seq,
				audit_last_seq = EXCLUDED.audit_last_seq,
				absent_subsystems = EXCLUDED.absent_subsystems
		`
		_, err := r.db.ExecContext(ctx, r.rebind(query),
			run.ID, operatorID, run.Status, run.SnapshotSeq, run.CatalogVersion,
			run.StartedAt, completed, run.Audit.FirstSeq, run.Audit.LastSeq, string(absent))
		return err
	}

	query := `
		INSERT OR REPLACE INTO runs (id, operator_id, status, snapshot_seq, catalog_version,
			started_at, completed_at, audit_first_seq, audit_last_seq, absent_subsystems)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID, operatorID, run.Status, run.SnapshotSeq, run.CatalogVersion,
		run.StartedAt, completed, run.Audit.FirstSeq, run.Audit.LastSeq, string(absent))
	return err
}

// GetRun retrieves an analysis run by ID.
func (r *SQLRepository) GetRun(ctx context.Context, operatorID string, runID string) (*domain.AnalysisRun, error) {
	query := `
		SELECT id, status, snapshot_seq, catalog_version, started_at,
			completed_at, audit_first_seq, audit_last_seq, absent_subsystems
		FROM runs WHERE operator_id = ? AND id = ?
	`

	run := domain.AnalysisRun{OperatorID: operatorID}
	var completed sql.NullTime
	var absent sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), operatorID, runID).Scan(
		&run.ID, &run.Status, &run.SnapshotSeq, &run.CatalogVersion, &run.StartedAt,
		&completed, &run.Audit.FirstSeq, &run.Audit.LastSeq, &absent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	if absent.Valid && absent.String != "" {
		json.Unmarshal([]byte(absent.String), &run.AbsentSubsystems)
	}
	return &run, nil
}

// SaveVerdicts stores a run's predicate verdicts.
func (r *SQLRepository) SaveVerdicts(ctx context.Context, operatorID string, runID string, verdicts []domain.Verdict) error {
	query := r.rebind(`
		INSERT INTO verdicts (run_id, operator_id, well_id, predicate_id, domain, outcome, confidence, evidence, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, v := range verdicts {
		evidence, _ := json.Marshal(v.Evidence)
		if _, err := r.db.ExecContext(ctx, query,
			runID, operatorID, v.WellID, v.PredicateID, v.Domain, v.Outcome, v.Confidence, string(evidence), v.Note,
		); err != nil {
			return err
		}
	}
	return nil
}

// SaveGateOutcomes stores a run's gate outcomes.
func (r *SQLRepository) SaveGateOutcomes(ctx context.Context, operatorID string, runID string, outcomes []domain.GateOutcome) error {
	query := r.rebind(`
		INSERT INTO gate_outcomes (run_id, operator_id, well_id, gate_index, gate_name,
			status, pass_ratio, pass_count, fail_count, indeterminate_count, verdicts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, o := range outcomes {
		verdicts, _ := json.Marshal(o.Verdicts)
		if _, err := r.db.ExecContext(ctx, query,
			runID, operatorID, o.WellID, o.GateIndex, o.GateName,
			o.Status, o.PassRatio, o.PassCount, o.FailCount, o.IndeterminateCount, string(verdicts),
		); err != nil {
			return err
		}
	}
	return nil
}

// SaveCorrelations stores a run's correlations.
func (r *SQLRepository) SaveCorrelations(ctx context.Context, operatorID string, runID string, correlations []domain.Correlation) error {
	query := r.rebind(`
		INSERT INTO correlations (id, run_id, operator_id, well_id, relation, match_confidence, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	for _, c := range correlations {
		data, _ := json.Marshal(c)
		if _, err := r.db.ExecContext(ctx, query,
			c.ID, runID, operatorID, c.WellID, c.Relation, c.MatchConfidence, string(data),
		); err != nil {
			return err
		}
	}
	return nil
}

// ListCorrelations retrieves correlations for a well, optionally scoped to
// one run.
func (r *SQLRepository) ListCorrelations(ctx context.Context, operatorID string, wellID string, runID string) ([]domain.Correlation, error) {
	query := `SELECT data FROM correlations WHERE operator_id = ? AND well_id = ?`
	args := []any{operatorID, wellID}
	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var correlations []domain.Correlation
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c domain.Correlation
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("decode stored correlation: %w", err)
		}
		correlations = append(correlations, c)
	}
	return correlations, rows.Err()
}

// SaveRiskScore stores a risk score. History is retained: prior scores are
// never overwritten.
func (r *SQLRepository) SaveRiskScore(ctx context.Context, operatorID string, score *domain.RiskScore) error {
	data, err := json.Marshal(score)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO risk_scores (id, operator_id, well_id, run_id, score, level, computed_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		score.ID, operatorID, score.WellID, score.RunID, score.Score, score.Level, score.ComputedAt, string(data))
	return err
}

// GetLatestRiskScore retrieves the current score for a well.
func (r *SQLRepository) GetLatestRiskScore(ctx context.Context, operatorID string, wellID string) (*domain.RiskScore, error) {
	query := `
		SELECT data FROM risk_scores
		WHERE operator_id = ? AND well_id = ?
		ORDER BY computed_at DESC LIMIT 1
	`
	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), operatorID, wellID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var score domain.RiskScore
	if err := json.Unmarshal([]byte(data), &score); err != nil {
		return nil, fmt.Errorf("decode stored risk score: %w", err)
	}
	return &score, nil
}

// ListRiskHistory retrieves all retained scores for a well, newest first.
func (r *SQLRepository) ListRiskHistory(ctx context.Context, operatorID string, wellID string) ([]*domain.RiskScore, error) {
	query := `
		SELECT data FROM risk_scores
		WHERE operator_id = ? AND well_id = ?
		ORDER BY computed_at DESC
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), operatorID, wellID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*domain.RiskScore
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var score domain.RiskScore
		if err := json.Unmarshal([]byte(data), &score); err != nil {
			return nil, fmt.Errorf("decode stored risk score: %w", err)
		}
		history = append(history, &score)
	}
	return history, rows.Err()
}

// SaveWellResults stores a run's per-well result documents.
func (r *SQLRepository) SaveWellResults(ctx context.Context, operatorID string, runID string, results []domain.WellResult) error {
	query := r.rebind(`
		INSERT INTO well_results (run_id, operator_id, well_id, data)
		VALUES (?, ?, ?, ?)
	`)

	for _, wr := range results {
		data, err := json.Marshal(wr)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, query, runID, operatorID, wr.WellID, string(data)); err != nil {
			return err
		}
	}
	return nil
}

// ListWellResults retrieves a run's per-well results in well id order.
func (r *SQLRepository) ListWellResults(ctx context.Context, operatorID string, runID string) ([]domain.WellResult, error) {
	query := `
		SELECT data FROM well_results
		WHERE operator_id = ? AND run_id = ?
		ORDER BY well_id
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), operatorID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.WellResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var wr domain.WellResult
		if err := json.Unmarshal([]byte(data), &wr); err != nil {
			return nil, fmt.Errorf("decode stored well result: %w", err)
		}
		results = append(results, wr)
	}
	return results, rows.Err()
}

// AppendAuditRecords persists a batch of chained audit records inside one
// transaction, so a partial append can never leave a gap.
func (r *SQLRepository) AppendAuditRecords(ctx context.Context, operatorID string, records []domain.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO audit_records (operator_id, seq, entity_type, entity_id, action,
			well_id, run_id, payload, prev_hash, hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query,
			operatorID, rec.Seq, rec.EntityType, rec.EntityID, rec.Action,
			rec.WellID, rec.RunID, string(rec.Payload), rec.PrevHash, rec.Hash, rec.Timestamp,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListAuditRecords retrieves the chain segment [fromSeq, toSeq] in order.
// toSeq of zero means the current head.
func (r *SQLRepository) ListAuditRecords(ctx context.Context, operatorID string, fromSeq, toSeq uint64) ([]domain.AuditRecord, error) {
	query := `
		SELECT seq, entity_type, entity_id, action, well_id, run_id,
			payload, prev_hash, hash, timestamp
		FROM audit_records
		WHERE operator_id = ? AND seq >= ?
	`
	args := []any{operatorID, fromSeq}
	if toSeq > 0 {
		query += ` AND seq <= ?`
		args = append(args, toSeq)
	}
	query += ` ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var wellID, runID sql.NullString
		var payload string
		if err := rows.Scan(
			&rec.Seq, &rec.EntityType, &rec.EntityID, &rec.Action, &wellID, &runID,
			&payload, &rec.PrevHash, &rec.Hash, &rec.Timestamp,
		); err != nil {
			return nil, err
		}
		rec.WellID = wellID.String
		rec.RunID = runID.String
		rec.Payload = []byte(payload)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LastAuditRecord retrieves the chain head, or nil when the chain is empty.
func (r *SQLRepository) LastAuditRecord(ctx context.Context, operatorID string) (*domain.AuditRecord, error) {
	query := `
		SELECT seq, entity_type, entity_id, action, well_id, run_id,
			payload, prev_hash, hash, timestamp
		FROM audit_records
		WHERE operator_id = ?
		ORDER BY seq DESC LIMIT 1
	`

	var rec domain.AuditRecord
	var wellID, runID sql.NullString
	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), operatorID).Scan(
		&rec.Seq, &rec.EntityType, &rec.EntityID, &rec.Action, &wellID, &runID,
		&payload, &rec.PrevHash, &rec.Hash, &rec.Timestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.WellID = wellID.String
	rec.RunID = runID.String
	rec.Payload = []byte(payload)
	return &rec, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const findingSelect = `
	SELECT id, operator_id, subsystem, schema_version, well_id, domain,
		metric, value, unit, confidence, observed_at, lat, lon, depth_m,
		ingest_seq, ingested_at
	FROM findings
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (*domain.Finding, error) {
	var f domain.Finding
	var lat, lon, depth sql.NullFloat64

	err := row.Scan(
		&f.ID, &f.OperatorID, &f.Subsystem, &f.SchemaVersion, &f.WellID, &f.Domain,
		&f.Metric, &f.Value, &f.Unit, &f.Confidence, &f.ObservedAt, &lat, &lon, &depth,
		&f.IngestSeq, &f.IngestedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lon.Valid {
		f.Location = &domain.Location{Latitude: lat.Float64, Longitude: lon.Float64, DepthM: depth.Float64}
	}
	return &f, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
