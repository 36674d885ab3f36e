// Brahan - Well-integrity correlation and risk engine.
// Copyright (c) 2025 welltegra
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/welltegra/brahan/internal/api"
	"github.com/welltegra/brahan/internal/bus"
	"github.com/welltegra/brahan/internal/cache"
	"github.com/welltegra/brahan/internal/catalog"
	"github.com/welltegra/brahan/internal/correlate"
	"github.com/welltegra/brahan/internal/coverage"
	"github.com/welltegra/brahan/internal/domain"
	"github.com/welltegra/brahan/internal/gate"
	"github.com/welltegra/brahan/internal/ingest"
	"github.com/welltegra/brahan/internal/ledger"
	"github.com/welltegra/brahan/internal/predicate"
	"github.com/welltegra/brahan/internal/repository"
	"github.com/welltegra/brahan/internal/risk"
	"github.com/welltegra/brahan/internal/run"
	"github.com/welltegra/brahan/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// DefaultOperatorID is used when no operator list is configured.
const DefaultOperatorID = "default"

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("BRAHAN_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting brahan",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("BRAHAN_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if path := os.Getenv("BRAHAN_CATALOG"); path != "" {
		cfg.CatalogPath = path
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"catalog", cfg.CatalogPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Per-operator ingest sequences resume lazily from the stored
	// high-water marks
	ingestor := ingest.New(repo, cacheImpl, busImpl)
	slog.Info("ingestor initialized")

	// Initialize Predicate Engine
	evaluator, err := predicate.NewEngine(cfg.Evaluation.DefaultMinConfidence, cfg.Evaluation.MaxEvalWorkers)
	if err != nil {
		slog.Error("failed to initialize predicate engine", "error", err)
		os.Exit(1)
	}

	// Initialize remaining pipeline components
	pipeline := gate.NewPipeline(nil)
	correlator := correlate.NewEngine(correlate.NewToleranceStrategy(cfg.Evaluation))
	scorer := risk.NewScorer(cfg.Risk)
	led := ledger.New(repo)
	coverageSvc := coverage.NewService(repo, cacheImpl)

	runner := run.New(repo, cacheImpl, busImpl, evaluator, pipeline, correlator, scorer, led, coverageSvc, cfg.Evaluation)

	// Load the predicate catalog: YAML file first, stored copy as fallback
	if err := loadCatalog(ctx, cfg, repo, runner); err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("catalog installed",
		"version", runner.CatalogVersion(),
		"gates", len(runner.Gates()),
		"predicates", runner.PredicateCount(),
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("BRAHAN_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, ingestor, runner)

		var operatorIDs []string
		if envOperators := os.Getenv("BRAHAN_OPERATORS"); envOperators != "" {
			operatorIDs = strings.Split(envOperators, ",")
		}

		workerCfg := worker.Config{
			OperatorIDs: operatorIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "operator_count", len(operatorIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, ingestor, runner, led, cfg.CatalogPath, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("brahan is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("brahan shutdown complete")
}

// loadCatalog installs the predicate catalog from the configured YAML
// file, falling back to the last catalog persisted in the repository.
func loadCatalog(ctx context.Context, cfg *domain.Config, repo domain.Repository, runner *run.Runner) error {
	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err == nil {
		if err := runner.UseCatalog(cat); err != nil {
			return err
		}
		if err := repo.SaveCatalog(ctx, DefaultOperatorID, cat.Version, cat.GatesInOrder(), cat.Predicates); err != nil {
			slog.Warn("failed to persist catalog", "error", err)
		}
		return nil
	}
	slog.Warn("catalog file not loadable, trying stored catalog",
		"path", cfg.CatalogPath,
		"error", err,
	)

	version, gates, predicates, err := repo.LoadCatalog(ctx, DefaultOperatorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("no catalog available: provide one at %s", cfg.CatalogPath)
		}
		return err
	}

	stored, err := catalog.New(version, gates, predicates)
	if err != nil {
		return err
	}
	return runner.UseCatalog(stored)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🛢  BRAHAN                   ║")
	fmt.Println("  ║    Well-Integrity Correlation Engine      ║")
	fmt.Println("  ║     Every finding, on the record.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /findings                 - Ingest a subsystem result batch")
	fmt.Println("    POST /runs                     - Execute an analysis run")
	fmt.Println("    GET  /runs/{id}                - Get a run with per-well results")
	fmt.Println("    GET  /wells/{id}/risk          - Current risk score for a well")
	fmt.Println("    GET  /wells/{id}/risk/history  - Retained risk score history")
	fmt.Println("    GET  /wells/{id}/correlations  - Cross-subsystem correlations")
	fmt.Println("    GET  /catalog                  - Installed predicate catalog")
	fmt.Println("    POST /catalog/reload           - Hot-reload the catalog")
	fmt.Println("    GET  /audit/records            - Export the audit ledger")
	fmt.Println("    GET  /audit/verify             - Verify the hash chain")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
