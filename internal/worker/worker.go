// Package worker provides async message processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/welltegra/brahan/internal/domain"
	"github.com/welltegra/brahan/internal/ingest"
	"github.com/welltegra/brahan/internal/run"
)

// Worker consumes subsystem result batches and run requests from the
// EventBus and drives them through the ingestor and runner.
type Worker struct {
	bus      domain.EventBus
	ingestor *ingest.Ingestor
	runner   *run.Runner

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// OperatorIDs is the list of operators to process.
	OperatorIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, ingestor *ingest.Ingestor, runner *run.Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		ingestor: ingestor,
		runner:   runner,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given operators.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.OperatorIDs) == 0 {
		return w.startOperatorWorker("_global")
	}

	for _, operatorID := range cfg.OperatorIDs {
		if err := w.startOperatorWorker(operatorID); err != nil {
			slog.Error("failed to start worker for operator",
				"operator_id", operatorID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"operator_count", len(cfg.OperatorIDs),
	)

	return nil
}

// startOperatorWorker subscribes one operator's topics.
func (w *Worker) startOperatorWorker(operatorID string) error {
	resultSub, err := w.bus.Subscribe(w.ctx, operatorID, domain.TopicSubsystemResult, func(ctx context.Context, msg *domain.Message) error {
		return w.processSubsystemResult(ctx, operatorID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, resultSub)

	runSub, err := w.bus.Subscribe(w.ctx, operatorID, domain.TopicRunRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRunRequest(ctx, operatorID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, runSub)

	slog.Info("operator worker started",
		"operator_id", operatorID,
		"topics", []string{domain.TopicSubsystemResult, domain.TopicRunRequested},
	)

	return nil
}

// processSubsystemResult ingests a subsystem's batch of raw observations.
// Malformed observations are quarantined inside the ingestor; they never
// fail the batch.
func (w *Worker) processSubsystemResult(ctx context.Context, operatorID string, msg *domain.Message) error {
	start := time.Now()

	var batch domain.RawResult
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		slog.Error("failed to parse subsystem result",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if msg.OperatorID != "" {
		operatorID = msg.OperatorID
	}

	report, err := w.ingestor.IngestBatch(ctx, operatorID, &batch)
	if err != nil {
		slog.Error("batch ingestion failed",
			"subsystem", batch.Subsystem,
			"operator_id", operatorID,
			"error", err,
		)
		return err
	}

	slog.Info("subsystem result processed",
		"subsystem", batch.Subsystem,
		"operator_id", operatorID,
		"accepted", len(report.AcceptedIDs),
		"quarantined", len(report.Quarantined),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// RunRequest is the message payload for requesting an analysis run.
type RunRequest struct {
	OperatorID string `json:"operatorId"`
	RequestID  string `json:"requestId,omitempty"`
}

// processRunRequest executes a full analysis run.
func (w *Worker) processRunRequest(ctx context.Context, operatorID string, msg *domain.Message) error {
	start := time.Now()

	var req RunRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse run request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if req.OperatorID != "" {
		operatorID = req.OperatorID
	}

	result, err := w.runner.Execute(ctx, operatorID)
	if err != nil {
		slog.Error("analysis run failed",
			"operator_id", operatorID,
			"request_id", req.RequestID,
			"error", err,
		)
		return err
	}

	slog.Info("run request processed",
		"operator_id", operatorID,
		"run_id", result.Run.ID,
		"status", result.Run.Status,
		"wells", len(result.Wells),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
