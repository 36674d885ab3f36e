package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require operatorID for strict multi-operator isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, operatorID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, operatorID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, operatorID string, key string) error

	// GetRiskScore retrieves a cached current risk score for a well.
	GetRiskScore(ctx context.Context, operatorID string, wellID string) (*RiskScore, error)

	// SetRiskScore caches the current risk score for a well.
	SetRiskScore(ctx context.Context, operatorID string, wellID string, score *RiskScore, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used for evidence coverage counts per (well, subsystem) window.
	IncrementCounter(ctx context.Context, operatorID string, key string, window time.Duration) (int64, error)

	// GetCounter reads a counter without incrementing it. Returns 0 when
	// the counter is absent or its window has expired.
	GetCounter(ctx context.Context, operatorID string, key string) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
