package domain

import "time"

// Config holds the complete Brahan configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure wiring
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Evaluation tunables
	Evaluation EvaluationConfig `json:"evaluation"`
	Risk       RiskConfig       `json:"risk"`

	// CatalogPath points at the versioned predicate catalog file; the
	// repository copy takes precedence when both exist.
	CatalogPath string `json:"catalogPath"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// EvaluationConfig holds the tunables for predicate evaluation and
// cross-subsystem correlation.
type EvaluationConfig struct {
	// TemporalWindow bounds temporal overlap between two findings.
	TemporalWindow time.Duration `json:"temporalWindow"`

	// SpatialTolerance is the maximum lat/lon distance (degrees) for
	// spatial overlap.
	SpatialTolerance float64 `json:"spatialTolerance"`

	// DepthTolerance is the maximum measured-depth difference (meters)
	// for spatial overlap. Depth is checked separately from lat/lon
	// because the units differ.
	DepthTolerance float64 `json:"depthTolerance"`

	// ValueTolerances holds per-domain relative tolerances for the
	// metric-consistency check.
	ValueTolerances map[Domain]float64 `json:"valueTolerances"`

	// DefaultMinConfidence is the evidence floor for predicates that do
	// not set one.
	DefaultMinConfidence float64 `json:"defaultMinConfidence"`

	// WeakMatchFloor bounds combinatorial output: partial overlap
	// correlations below this confidence are dropped.
	WeakMatchFloor float64 `json:"weakMatchFloor"`

	// OverlapBonus scales match confidence when temporal and spatial
	// overlap both hold.
	OverlapBonus float64 `json:"overlapBonus"`

	// SubsystemTimeout after which a silent subsystem is treated as
	// absent evidence.
	SubsystemTimeout time.Duration `json:"subsystemTimeout"`

	// MaxEvalWorkers bounds concurrent predicate evaluations per well.
	MaxEvalWorkers int `json:"maxEvalWorkers"`

	// WellWorkers bounds concurrent per-well pipelines in a run.
	WellWorkers int `json:"wellWorkers"`
}

// DefaultEvaluationConfig returns the shipped evaluation tunables.
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		TemporalWindow:   72 * time.Hour,
		SpatialTolerance: 0.001,
		DepthTolerance:   50,
		ValueTolerances: map[Domain]float64{
			DomainCement:        0.15,
			DomainCasing:        0.10,
			DomainPressure:      0.10,
			DomainDocumentation: 0.25,
			DomainOperations:    0.20,
		},
		DefaultMinConfidence: 0.5,
		WeakMatchFloor:       0.3,
		OverlapBonus:         1.25,
		SubsystemTimeout:     30 * time.Second,
		MaxEvalWorkers:       100,
		WellWorkers:          8,
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + channels.
	TierCommunity Tier = "community"

	// TierPro is the tier with PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./brahan.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Evaluation:  DefaultEvaluationConfig(),
		Risk:        DefaultRiskConfig(),
		CatalogPath: "./catalog.yaml",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "brahan",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "brahan",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
