// Benchmark tool for testing Brahan against synthetic well data.
//
// Usage:
//   go run cmd/benchmark/main.go -wells 200 -url http://localhost:8080
//
// This tool:
//   1. Generates synthetic findings for N wells across all subsystems
//   2. Seeds a configurable fraction of wells with integrity faults
//   3. Ingests the findings and triggers an analysis run
//   4. Compares Brahan's risk levels with the seeded fault labels
//   5. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// syntheticWell is one generated well with its ground-truth label.
type syntheticWell struct {
	ID      string
	Faulty  bool
	Batches []findingBatch
}

// findingBatch mirrors the POST /findings request body.
type findingBatch struct {
	Subsystem     string        `json:"subsystem"`
	SchemaVersion string        `json:"schemaVersion"`
	Observations  []observation `json:"observations"`
}

type observation struct {
	WellID     string    `json:"wellId"`
	Domain     string    `json:"domain"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observedAt"`
}

// runResult mirrors the POST /runs response body.
type runResult struct {
	Run struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"run"`
	Wells []struct {
		WellID      string `json:"wellId"`
		Disposition string `json:"disposition"`
		Risk        struct {
			Score float64 `json:"score"`
			Level string  `json:"level"`
		} `json:"risk"`
	} `json:"wells"`
}

// metrics tracks benchmark results.
type metrics struct {
	TruePositives  int64 // Faulty well flagged
	FalsePositives int64 // Healthy well flagged
	TrueNegatives  int64 // Healthy well passed
	FalseNegatives int64 // Faulty well passed (missed!)

	TotalWells    int64
	TotalFaulty   int64
	TotalHealthy  int64
	IngestErrors  int64
	IngestedObs   int64
	QuarantinedOb int64
}

var subsystems = []string{"wellark", "wellabuild", "airtight"}

var domainMetrics = map[string][]string{
	"cement":        {"bond_quality", "top_of_cement_coverage"},
	"casing":        {"wall_thickness", "corrosion_depth"},
	"pressure":      {"annular_pressure", "buildup_rate"},
	"documentation": {"record_completeness", "log_coverage"},
	"operations":    {"intervention_count", "anomaly_count"},
}

var domainUnits = map[string]string{
	"cement":        "ratio",
	"casing":        "mm",
	"pressure":      "kPa",
	"documentation": "ratio",
	"operations":    "count",
}

func main() {
	// Parse flags
	wells := flag.Int("wells", 100, "Number of synthetic wells")
	baseURL := flag.String("url", "http://localhost:8080", "Brahan base URL")
	operatorID := flag.String("operator", "benchmark-test", "Operator ID for requests")
	faultRate := flag.Float64("fault-rate", 0.2, "Fraction of wells seeded with faults (0.0-1.0)")
	flagLevel := flag.String("flag-level", "HIGH", "Risk level treated as flagged (MEDIUM, HIGH, CRITICAL)")
	seed := flag.Int64("seed", 42, "Random seed (deterministic output per seed)")
	verbose := flag.Bool("verbose", false, "Print each well result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        BRAHAN BENCHMARK - Synthetic Well Integrity            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nBrahan URL:  %s\n", *baseURL)
	fmt.Printf("Operator:    %s\n", *operatorID)
	fmt.Printf("Wells:       %d\n", *wells)
	fmt.Printf("Fault Rate:  %.2f\n", *faultRate)
	fmt.Printf("Flag Level:  %s\n", *flagLevel)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	// Check Brahan is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Brahan not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Brahan is running:")
		fmt.Println("  go run cmd/brahan/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Brahan is healthy")

	// Generate synthetic wells
	rng := rand.New(rand.NewSource(*seed))
	generated := generateWells(rng, *wells, *faultRate)

	faultyCount := 0
	for _, w := range generated {
		if w.Faulty {
			faultyCount++
		}
	}
	fmt.Printf("✓ Generated %d wells (%d faulty, %d healthy)\n\n", len(generated), faultyCount, len(generated)-faultyCount)

	m := &metrics{TotalWells: int64(len(generated))}
	client := &http.Client{Timeout: 60 * time.Second}

	// Ingest all batches
	fmt.Println("Ingesting findings...")
	ingestStart := time.Now()
	for _, w := range generated {
		for _, batch := range w.Batches {
			accepted, quarantined, err := ingestBatch(client, *baseURL, *operatorID, batch)
			if err != nil {
				m.IngestErrors++
				continue
			}
			m.IngestedObs += int64(accepted)
			m.QuarantinedOb += int64(quarantined)
		}
	}
	fmt.Printf("✓ Ingested %d findings (%d quarantined, %d batch errors) in %v\n\n",
		m.IngestedObs, m.QuarantinedOb, m.IngestErrors, time.Since(ingestStart).Round(time.Millisecond))

	// Trigger the analysis run
	fmt.Println("Executing analysis run...")
	runStart := time.Now()
	result, err := executeRun(client, *baseURL, *operatorID)
	if err != nil {
		fmt.Printf("ERROR: analysis run failed: %v\n", err)
		os.Exit(1)
	}
	runDuration := time.Since(runStart)
	fmt.Printf("✓ Run %s finished: %s, %d wells in %v\n",
		result.Run.ID, result.Run.Status, len(result.Wells), runDuration.Round(time.Millisecond))

	// Score against ground truth
	labels := make(map[string]bool, len(generated))
	for _, w := range generated {
		labels[w.ID] = w.Faulty
		if w.Faulty {
			m.TotalFaulty++
		} else {
			m.TotalHealthy++
		}
	}

	threshold := levelRank(*flagLevel)
	for _, wr := range result.Wells {
		flagged := levelRank(wr.Risk.Level) >= threshold
		faulty := labels[wr.WellID]

		switch {
		case flagged && faulty:
			m.TruePositives++
		case flagged && !faulty:
			m.FalsePositives++
		case !flagged && !faulty:
			m.TrueNegatives++
		default:
			m.FalseNegatives++
		}

		if *verbose {
			status := "✓"
			if flagged != faulty {
				status = "✗"
			}
			fmt.Printf("%s %-12s | Faulty: %-5v | Brahan: %-8s (%.1f) | Disposition: %s\n",
				status, wr.WellID, faulty, wr.Risk.Level, wr.Risk.Score, wr.Disposition)
		}
	}

	printResults(m, runDuration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateWells builds per-well finding batches. Healthy wells get
// consistent metrics across subsystems; faulty wells get degraded values
// in one or more domains plus a contradictory reading between subsystems.
func generateWells(rng *rand.Rand, count int, faultRate float64) []syntheticWell {
	baseTime := time.Now().UTC().Add(-24 * time.Hour)
	wells := make([]syntheticWell, 0, count)

	for i := 0; i < count; i++ {
		w := syntheticWell{
			ID:     fmt.Sprintf("well-%04d", i),
			Faulty: rng.Float64() < faultRate,
		}

		faultDomain := ""
		if w.Faulty {
			domains := []string{"cement", "casing", "pressure", "documentation", "operations"}
			faultDomain = domains[rng.Intn(len(domains))]
		}

		for _, sub := range subsystems {
			batch := findingBatch{Subsystem: sub, SchemaVersion: "1.0"}

			for dom, names := range domainMetrics {
				for _, metric := range names {
					value := healthyValue(rng, dom)
					if w.Faulty && dom == faultDomain {
						// Degrade the value and disagree across subsystems
						// to force contradictions.
						value = faultyValue(rng, dom, sub)
					}

					batch.Observations = append(batch.Observations, observation{
						WellID:     w.ID,
						Domain:     dom,
						Metric:     metric,
						Value:      value,
						Unit:       domainUnits[dom],
						Confidence: 0.7 + rng.Float64()*0.3,
						ObservedAt: baseTime.Add(time.Duration(rng.Intn(3600)) * time.Second),
					})
				}
			}
			w.Batches = append(w.Batches, batch)
		}

		wells = append(wells, w)
	}

	return wells
}

func healthyValue(rng *rand.Rand, dom string) float64 {
	switch dom {
	case "cement", "documentation":
		return 0.85 + rng.Float64()*0.1
	case "casing":
		return 11.0 + rng.Float64()*1.0
	case "pressure":
		return 500 + rng.Float64()*50
	default: // operations
		return float64(rng.Intn(3))
	}
}

func faultyValue(rng *rand.Rand, dom, subsystem string) float64 {
	// Each subsystem reports a different degraded value so the pair
	// disagrees beyond the per-domain tolerance.
	skew := 1.0
	switch subsystem {
	case "wellabuild":
		skew = 0.5
	case "airtight":
		skew = 1.6
	}

	switch dom {
	case "cement", "documentation":
		return (0.2 + rng.Float64()*0.2) * skew
	case "casing":
		return (4.0 + rng.Float64()*1.0) * skew
	case "pressure":
		return (1400 + rng.Float64()*200) * skew
	default:
		return float64(8+rng.Intn(8)) * skew
	}
}

func ingestBatch(client *http.Client, baseURL, operatorID string, batch findingBatch) (accepted, quarantined int, err error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, 0, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/findings", bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Operator-ID", operatorID)

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	var report struct {
		Accepted    int `json:"accepted"`
		Quarantined []struct {
			Index int `json:"index"`
		} `json:"quarantined"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return 0, 0, err
	}
	return report.Accepted, len(report.Quarantined), nil
}

func executeRun(client *http.Client, baseURL, operatorID string) (*runResult, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/runs", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Operator-ID", operatorID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result runResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func levelRank(level string) int {
	switch level {
	case "LOW":
		return 0
	case "MEDIUM":
		return 1
	case "HIGH":
		return 2
	case "CRITICAL":
		return 3
	default:
		return -1
	}
}

func printResults(m *metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Wells:      %d\n", m.TotalWells)
	fmt.Printf("   Faulty Wells:     %d\n", m.TotalFaulty)
	fmt.Printf("   Healthy Wells:    %d\n", m.TotalHealthy)
	fmt.Printf("   Findings:         %d (%d quarantined)\n", m.IngestedObs, m.QuarantinedOb)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  Flagged      Passed")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           H  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged wells, how many were faulty)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of faulty wells, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Run Duration:     %v\n", duration.Round(time.Millisecond))
	if m.TotalWells > 0 && duration > 0 {
		fmt.Printf("   Throughput:       %.2f wells/sec\n", float64(m.TotalWells)/duration.Seconds())
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most integrity faults")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some faults")
	} else {
		fmt.Println("   ❌ Poor recall - most faults are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else {
		fmt.Println("   ⚠️  Low precision - many false flags")
	}

	fmt.Println()
}
