//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Brahan
// well-integrity correlation engine.
//
// These tests exercise the COMPLETE pipeline against a running server:
//
//	Findings → Predicates → Gates → Correlations → Risk → Audit
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. FINDING: One normalized observation about a well, produced by one of
//    three upstream subsystems (wellark, wellabuild, airtight).
//
// 2. PREDICATE: A CEL rule over a (domain, metric) evidence bucket. PASS,
//    FAIL, or INDETERMINATE when evidence is missing or low-confidence.
//
// 3. GATE: One of seven ordered aggregation stages. pass_ratio counts only
//    graded verdicts; a gate with no graded evidence is SKIPPED.
//
// 4. CORRELATION: A cross-subsystem pair for the same well and domain.
//    Agreement within tolerance is CONSISTENT; disagreement despite
//    temporal and spatial overlap is CONTRADICTORY.
//
// 5. RISK: Gate failures and contradictions reduce to a 0-100 score and a
//    LOW/MEDIUM/HIGH/CRITICAL level per well.
//
// 6. AUDIT: Every artifact lands in a hash-chained ledger; GET
//    /audit/verify recomputes the chain.
//
// The server must be started with the default catalog before running.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration.
type TestConfig struct {
	BaseURL    string
	OperatorID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("BRAHAN_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:    baseURL,
		OperatorID: fmt.Sprintf("it-%d", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching Brahan's API contract)
// ============================================================================

type Observation struct {
	WellID     string    `json:"wellId"`
	Domain     string    `json:"domain"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observedAt"`
	Location   *Location `json:"location,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	DepthM    float64 `json:"depthM"`
}

type FindingBatch struct {
	Subsystem     string        `json:"subsystem"`
	SchemaVersion string        `json:"schemaVersion"`
	Observations  []Observation `json:"observations"`
}

type IngestResponse struct {
	Subsystem   string   `json:"subsystem"`
	Accepted    int      `json:"accepted"`
	AcceptedIDs []string `json:"acceptedIds"`
	Quarantined []struct {
		Index  int    `json:"index"`
		Reason string `json:"reason"`
	} `json:"quarantined"`
	IngestSeq uint64 `json:"ingestSeq"`
}

type RunResult struct {
	Run struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		SnapshotSeq uint64 `json:"snapshotSeq"`
		Audit       struct {
			FirstSeq uint64 `json:"firstSeq"`
			LastSeq  uint64 `json:"lastSeq"`
		} `json:"audit"`
	} `json:"run"`
	Wells []struct {
		WellID       string `json:"wellId"`
		Disposition  string `json:"disposition"`
		GateOutcomes []struct {
			GateIndex int     `json:"gateIndex"`
			Status    string  `json:"status"`
			PassRatio float64 `json:"passRatio"`
		} `json:"gateOutcomes"`
		Risk struct {
			Score          float64 `json:"score"`
			Level          string  `json:"level"`
			Contradictions int     `json:"contradictions"`
		} `json:"risk"`
		SkippedGates []int `json:"skippedGates"`
	} `json:"wells"`
}

type VerifyResponse struct {
	Valid  bool   `json:"valid"`
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, config TestConfig, method, path string, body any, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Operator-ID", config.OperatorID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("failed to parse response %s: %v", string(data), err)
		}
	}
	return resp.StatusCode
}

func requireServer(t *testing.T, config TestConfig) {
	t.Helper()
	resp, err := http.Get(config.BaseURL + "/health")
	if err != nil {
		t.Skipf("server not reachable at %s: %v", config.BaseURL, err)
	}
	resp.Body.Close()
}

func ingestWell(t *testing.T, config TestConfig, subsystem, wellID string, obs ...Observation) IngestResponse {
	t.Helper()
	var resp IngestResponse
	code := call(t, config, http.MethodPost, "/findings", FindingBatch{
		Subsystem:     subsystem,
		SchemaVersion: "1.0",
		Observations:  obs,
	}, &resp)
	if code != http.StatusOK {
		t.Fatalf("ingest returned %d", code)
	}
	return resp
}

func observation(wellID, domain, metric string, value float64, at time.Time) Observation {
	return Observation{
		WellID:     wellID,
		Domain:     domain,
		Metric:     metric,
		Value:      value,
		Confidence: 0.9,
		ObservedAt: at,
		Location:   &Location{Latitude: 58.3, Longitude: 1.9, DepthM: 2450},
	}
}

// ============================================================================
// Scenarios
// ============================================================================

func TestFullPipeline(t *testing.T) {
	config := getTestConfig()
	requireServer(t, config)

	at := time.Now().UTC().Add(-30 * time.Minute)

	// A healthy well-0001 and a well-0002 where the subsystems disagree
	// about cement bond quality.
	ingestWell(t, config, "wellark", "well-0001",
		observation("well-0001", "cement", "bond_quality", 0.88, at),
		observation("well-0001", "casing", "wall_thickness", 11.5, at),
	)
	ingestWell(t, config, "wellabuild", "well-0001",
		observation("well-0001", "pressure", "annular_pressure", 3100, at),
		observation("well-0002", "cement", "bond_quality", 0.32, at.Add(10*time.Minute)),
	)
	ingestWell(t, config, "wellark", "well-0002",
		observation("well-0002", "cement", "bond_quality", 0.91, at),
	)

	var result RunResult
	code := call(t, config, http.MethodPost, "/runs", nil, &result)
	if code != http.StatusOK {
		t.Fatalf("run returned %d", code)
	}

	if result.Run.Status != "COMPLETED" {
		t.Errorf("expected COMPLETED, got %s", result.Run.Status)
	}
	if len(result.Wells) != 2 {
		t.Fatalf("expected 2 wells, got %d", len(result.Wells))
	}

	var contradicted bool
	for _, w := range result.Wells {
		if w.WellID == "well-0002" && w.Risk.Contradictions > 0 {
			contradicted = true
		}
	}
	if !contradicted {
		t.Error("expected a contradiction on well-0002")
	}

	t.Run("RunIsRetrievable", func(t *testing.T) {
		var got RunResult
		code := call(t, config, http.MethodGet, "/runs/"+result.Run.ID, nil, &got)
		if code != http.StatusOK {
			t.Fatalf("get run returned %d", code)
		}
		if got.Run.ID != result.Run.ID || len(got.Wells) != 2 {
			t.Errorf("stored run mismatch: %+v", got.Run)
		}
	})

	t.Run("RiskIsServed", func(t *testing.T) {
		var score struct {
			WellID string  `json:"wellId"`
			Score  float64 `json:"score"`
			Level  string  `json:"level"`
		}
		code := call(t, config, http.MethodGet, "/wells/well-0002/risk", nil, &score)
		if code != http.StatusOK {
			t.Fatalf("get risk returned %d", code)
		}
		if score.WellID != "well-0002" || score.Level == "" {
			t.Errorf("unexpected score: %+v", score)
		}
	})

	t.Run("CorrelationsAreServed", func(t *testing.T) {
		var resp struct {
			Count          int `json:"count"`
			Contradictions int `json:"contradictions"`
		}
		code := call(t, config, http.MethodGet, "/wells/well-0002/correlations?run="+result.Run.ID, nil, &resp)
		if code != http.StatusOK {
			t.Fatalf("get correlations returned %d", code)
		}
		if resp.Contradictions == 0 {
			t.Error("expected the cement contradiction to be listed")
		}
	})

	t.Run("AuditChainVerifies", func(t *testing.T) {
		var verify VerifyResponse
		code := call(t, config, http.MethodGet,
			fmt.Sprintf("/audit/verify?from=%d&to=%d", result.Run.Audit.FirstSeq, result.Run.Audit.LastSeq),
			nil, &verify)
		if code != http.StatusOK {
			t.Fatalf("verify returned %d: %+v", code, verify)
		}
		if !verify.Valid {
			t.Errorf("chain invalid at seq %d: %s", verify.Seq, verify.Reason)
		}
	})
}

func TestQuarantineDoesNotFailBatch(t *testing.T) {
	config := getTestConfig()
	requireServer(t, config)

	at := time.Now().UTC()
	good := observation("well-0003", "cement", "bond_quality", 0.8, at)
	bad := observation("", "cement", "bond_quality", 0.8, at)

	resp := ingestWell(t, config, "airtight", "well-0003", good, bad)
	if resp.Accepted != 1 {
		t.Errorf("expected 1 accepted, got %d", resp.Accepted)
	}
	if len(resp.Quarantined) != 1 {
		t.Fatalf("expected 1 quarantined, got %d", len(resp.Quarantined))
	}
	if resp.Quarantined[0].Reason == "" {
		t.Error("quarantine must explain itself")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	config := getTestConfig()
	requireServer(t, config)

	at := time.Now().UTC().Add(-10 * time.Minute)
	ingestWell(t, config, "wellark", "well-0010",
		observation("well-0010", "cement", "bond_quality", 0.85, at),
	)

	var first RunResult
	if code := call(t, config, http.MethodPost, "/runs", nil, &first); code != http.StatusOK {
		t.Fatalf("run returned %d", code)
	}

	// Evidence ingested after the snapshot belongs to the next run only.
	ingestWell(t, config, "wellabuild", "well-0011",
		observation("well-0011", "casing", "wall_thickness", 10.8, at),
	)

	var second RunResult
	if code := call(t, config, http.MethodPost, "/runs", nil, &second); code != http.StatusOK {
		t.Fatalf("run returned %d", code)
	}

	if second.Run.SnapshotSeq <= first.Run.SnapshotSeq {
		t.Errorf("snapshot did not advance: %d then %d", first.Run.SnapshotSeq, second.Run.SnapshotSeq)
	}
	if len(second.Wells) != len(first.Wells)+1 {
		t.Errorf("expected one more well in the second run: %d then %d", len(first.Wells), len(second.Wells))
	}
}

func TestUnknownSubsystemRejected(t *testing.T) {
	config := getTestConfig()
	requireServer(t, config)

	code := call(t, config, http.MethodPost, "/findings", FindingBatch{
		Subsystem: "seismograph",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown subsystem, got %d", code)
	}
}

func TestOperatorHeaderRequired(t *testing.T) {
	config := getTestConfig()
	requireServer(t, config)

	req, _ := http.NewRequest(http.MethodPost, config.BaseURL+"/runs", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without X-Operator-ID, got %d", resp.StatusCode)
	}
}
