package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/welltegra/brahan/internal/catalog"
	"github.com/welltegra/brahan/internal/domain"
	"github.com/welltegra/brahan/internal/ingest"
	"github.com/welltegra/brahan/internal/ledger"
	"github.com/welltegra/brahan/internal/repository"
	"github.com/welltegra/brahan/internal/run"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	ingestor *ingest.Ingestor
	runner   *run.Runner
	ledger   *ledger.Ledger

	catalogPath string
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, ingestor *ingest.Ingestor, runner *run.Runner, led *ledger.Ledger, catalogPath, version string) *Handler {
	return &Handler{
		repo:        repo,
		cache:       cache,
		bus:         bus,
		ingestor:    ingestor,
		runner:      runner,
		ledger:      led,
		catalogPath: catalogPath,
		version:     version,
	}
}

// IngestResponse is the response for POST /findings.
type IngestResponse struct {
	Subsystem   domain.Subsystem                `json:"subsystem"`
	Accepted    int                             `json:"accepted"`
	AcceptedIDs []string                        `json:"acceptedIds"`
	Quarantined []domain.QuarantinedObservation `json:"quarantined,omitempty"`
	IngestSeq   uint64                          `json:"ingestSeq"`
	Metadata    struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// IngestFindings handles POST /findings: one subsystem result batch.
// Malformed observations are quarantined and reported; they never fail
// the batch.
func (h *Handler) IngestFindings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	operatorID := GetOperatorID(ctx)
	traceID := GetTraceID(ctx)

	var batch domain.RawResult
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if batch.Subsystem == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "subsystem is required",
		})
		return
	}
	if !domain.KnownSubsystem(batch.Subsystem) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown subsystem: " + string(batch.Subsystem),
		})
		return
	}

	report, err := h.ingestor.IngestBatch(ctx, operatorID, &batch)
	if err != nil {
		slog.Error("batch ingestion failed", "subsystem", batch.Subsystem, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "ingestion failed",
		})
		return
	}

	seq, err := h.ingestor.CurrentSeq(ctx, operatorID)
	if err != nil {
		slog.Warn("failed to read ingest sequence", "operator_id", operatorID, "error", err)
	}

	resp := IngestResponse{
		Subsystem:   batch.Subsystem,
		Accepted:    len(report.AcceptedIDs),
		AcceptedIDs: report.AcceptedIDs,
		Quarantined: report.Quarantined,
		IngestSeq:   seq,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// StartRun handles POST /runs: executes a full analysis run synchronously
// against a snapshot of the finding stream.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := GetOperatorID(ctx)

	result, err := h.runner.Execute(ctx, operatorID)
	if err != nil {
		if result != nil && result.Run.Status == domain.RunCancelled {
			// Completed wells stay durable; report what finished.
			writeJSON(w, http.StatusOK, result)
			return
		}
		slog.Error("analysis run failed", "operator_id", operatorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis run failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetRun retrieves a run and its per-well results.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := GetOperatorID(ctx)
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	analysisRun, err := h.repo.GetRun(ctx, operatorID, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "run not found",
			})
			return
		}
		slog.Error("failed to get run", "id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load run",
		})
		return
	}

	wells, err := h.repo.ListWellResults(ctx, operatorID, runID)
	if err != nil {
		slog.Error("failed to list well results", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load well results",
		})
		return
	}

	writeJSON(w, http.StatusOK, domain.RunResult{Run: *analysisRun, Wells: wells})
}

// GetWellRisk retrieves the current risk score for a well, cache first.
func (h *Handler) GetWellRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := GetOperatorID(ctx)
	wellID := chi.URLParam(r, "id")

	if wellID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "well id is required",
		})
		return
	}

	if h.cache != nil {
		if score, err := h.cache.GetRiskScore(ctx, operatorID, wellID); err == nil && score != nil {
			writeJSON(w, http.StatusOK, score)
			return
		}
	}

	score, err := h.repo.GetLatestRiskScore(ctx, operatorID, wellID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no risk score for well",
			})
			return
		}
		slog.Error("failed to get risk score", "well_id", wellID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load risk score",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetRiskScore(ctx, operatorID, wellID, score, 5*time.Minute)
	}

	writeJSON(w, http.StatusOK, score)
}

// GetRiskHistory retrieves every retained risk score for a well, newest
// first. Prior scores are never overwritten.
func (h *Handler) GetRiskHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := GetOperatorID(ctx)
	wellID := chi.URLParam(r, "id")

	history, err := h.repo.ListRiskHistory(ctx, operatorID, wellID)
	if err != nil {
		slog.Error("failed to list risk history", "well_id", wellID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load risk history",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wellId":  wellID,
		"history": history,
		"count":   len(history),
	})
}

// GetWellCorrelations retrieves correlations for a well, optionally scoped
// to one run via ?run=.
func (h *Handler) GetWellCorrelations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := GetOperatorID(ctx)
	wellID := chi.URLParam(r, "id")
	runID := r.URL.Query().Get("run")

	correlations, err := h.repo.ListCorrelations(ctx, operatorID, wellID, runID)
	if err != nil {
		slog.Error("failed to list correlations", "well_id", wellID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load correlations",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wellId":         wellID,
		"correlations":   correlations,
		"count":          len(correlations),
		"contradictions": len(filterContradictory(correlations)),
	})
}

func filterContradictory(correlations []domain.Correlation) []domain.Correlation {
	var out []domain.Correlation
	for _, c := range correlations {
		if c.Relation == domain.RelationContradictory {
			out = append(out, c)
		}
	}
	return out
}

// GetCatalog returns the installed catalog summary.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	gates := h.runner.Gates()

	writeJSON(w, http.StatusOK, map[string]any{
		"version":    h.runner.CatalogVersion(),
		"gates":      gates,
		"predicates": h.runner.PredicateCount(),
	})
}

// ReloadCatalog reloads the catalog from its YAML file and installs it
// atomically. A catalog that fails validation leaves the previous one
// active.
func (h *Handler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := GetOperatorID(ctx)

	cat, err := catalog.LoadFile(h.catalogPath)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to load catalog: " + err.Error(),
		})
		return
	}

	if err := h.runner.UseCatalog(cat); err != nil {
		var validationErr *domain.CatalogValidationError
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":    "catalog validation failed",
				"problems": validationErr.Problems,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to install catalog: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveCatalog(ctx, operatorID, cat.Version, cat.GatesInOrder(), cat.Predicates); err != nil {
			slog.Error("failed to persist catalog", "version", cat.Version, "error", err)
		}
	}

	slog.Info("catalog reloaded", "version", cat.Version, "predicates", len(cat.Predicates))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "catalog reloaded successfully",
		"version":    cat.Version,
		"predicates": len(cat.Predicates),
	})
}

// ExportAudit streams a ledger segment as JSON, for regulator submission.
// Bounds come from ?from= and ?to=; zero "to" means the chain head.
func (h *Handler) ExportAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := GetOperatorID(ctx)

	fromSeq := parseSeq(r.URL.Query().Get("from"), 1)
	toSeq := parseSeq(r.URL.Query().Get("to"), 0)

	records, err := h.ledger.Export(ctx, operatorID, fromSeq, toSeq)
	if err != nil {
		slog.Error("failed to export audit records", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to export audit records",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// VerifyAudit walks a ledger segment and recomputes the hash chain. A
// broken chain reports the first offending sequence.
func (h *Handler) VerifyAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := GetOperatorID(ctx)

	fromSeq := parseSeq(r.URL.Query().Get("from"), 1)
	toSeq := parseSeq(r.URL.Query().Get("to"), 0)

	if err := h.ledger.Verify(ctx, operatorID, fromSeq, toSeq); err != nil {
		var integrityErr *domain.AuditChainIntegrityError
		if errors.As(err, &integrityErr) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"valid":  false,
				"seq":    integrityErr.Seq,
				"reason": integrityErr.Reason,
			})
			return
		}
		slog.Error("audit verification failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "audit verification failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func parseSeq(s string, def uint64) uint64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
