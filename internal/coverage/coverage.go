// Package coverage reports evidence coverage per well and subsystem.
package coverage

import (
	"context"
	"fmt"
	"time"

	"github.com/welltegra/brahan/internal/domain"
)

// CounterWindow is how long the ingest-maintained coverage counters live.
const CounterWindow = 24 * time.Hour

// CounterKey names the cache counter the ingestor bumps per accepted
// finding for (well, subsystem).
func CounterKey(wellID string, subsystem domain.Subsystem) string {
	return "coverage:" + wellID + ":" + string(subsystem)
}

// Service answers how much evidence a subsystem has produced, used to
// decide whether a silent subsystem should be treated as absent.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a coverage service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// FindingCount returns the number of findings for (well, subsystem) since
// the given time. Queries inside the counter window are served from the
// coverage counters the ingestor maintains; older windows, cache misses,
// and expired counters fall through to the repository.
func (s *Service) FindingCount(ctx context.Context, operatorID, wellID string, subsystem domain.Subsystem, since time.Time) (int64, error) {
	if operatorID == "" || wellID == "" {
		return 0, fmt.Errorf("operatorID and wellID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	if s.cache != nil && time.Since(since) <= CounterWindow {
		count, err := s.cache.GetCounter(ctx, operatorID, CounterKey(wellID, subsystem))
		if err == nil && count > 0 {
			return count, nil
		}
	}

	count, err := s.repo.CountFindingsBySubsystem(ctx, operatorID, wellID, subsystem, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count findings: %w", err)
	}
	return count, nil
}

// AbsentSubsystems returns the subsystems that have produced nothing within
// the timeout window ending at asOf. Absence degrades their predicates and
// correlations to INDETERMINATE/SKIPPED; it is never fatal.
func (s *Service) AbsentSubsystems(ctx context.Context, operatorID string, asOf time.Time, timeout time.Duration) ([]domain.Subsystem, error) {
	var absent []domain.Subsystem
	for _, sub := range domain.KnownSubsystems() {
		last, err := s.repo.LatestFindingAt(ctx, operatorID, sub)
		if err != nil {
			return nil, fmt.Errorf("latest finding for %s: %w", sub, err)
		}
		if last.IsZero() || asOf.Sub(last) > timeout {
			absent = append(absent, sub)
		}
	}
	return absent, nil
}
