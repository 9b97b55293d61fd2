// Package config defines all configuration structures for SynthonScout.  No
// I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/turtacn/SynthonScout/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// LogConfig holds logger parameters.
type LogConfig struct {
	Level            string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string   `mapstructure:"format"` // "json" | "console"
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MetricsConfig holds Prometheus registry parameters.
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Namespace      string `mapstructure:"namespace"`
	ProcessMetrics bool   `mapstructure:"process_metrics"`
	GoMetrics      bool   `mapstructure:"go_metrics"`
}

// StatusConfig holds the status HTTP server tunables.
type StatusConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// QueryConfig names the query structure all scoring compares against.
// Code wins over File when both are set.
type QueryConfig struct {
	Code string `mapstructure:"code"`
	File string `mapstructure:"file"`
}

// DownsampleConfig holds the k-centers request and its worker pool.
type DownsampleConfig struct {
	Input                       string  `mapstructure:"input"`
	Output                      string  `mapstructure:"output"`
	MaxCenters                  int     `mapstructure:"max_centers"`
	SizeCapScale                float64 `mapstructure:"size_cap_scale"`
	SizeCapOffset               float64 `mapstructure:"size_cap_offset"`
	MinSimilarity               float64 `mapstructure:"min_similarity"`
	RandomSeed                  int64   `mapstructure:"random_seed"`
	EnforceConnectorEquivalence bool    `mapstructure:"enforce_connector_equivalence"`
	Workers                     int     `mapstructure:"workers"`
	ProgressStep                float64 `mapstructure:"progress_step"`
}

// NeighborConfig holds the descriptor settings of the toolkit whose
// descriptors the neighbor cache memoizes.
type NeighborConfig struct {
	FingerprintBits int `mapstructure:"fingerprint_bits"`
	MinNGram        int `mapstructure:"min_ngram"`
	MaxNGram        int `mapstructure:"max_ngram"`
}

// PassConfig parameterises one beam optimization pass.
type PassConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	BeamSize             int     `mapstructure:"beam_size"`
	MaxRounds            int     `mapstructure:"max_rounds"`
	NeighborTopL         int     `mapstructure:"neighbor_top_l"`
	SampledNeighbors     int     `mapstructure:"sampled_neighbors"`
	PerPositionCap       int     `mapstructure:"per_position_cap"`
	Patience             int     `mapstructure:"patience"`
	ImprovementTolerance float64 `mapstructure:"improvement_tolerance"`
	MemoCapacity         int     `mapstructure:"memo_capacity"`
	MinSimilarity        float64 `mapstructure:"min_similarity"`
}

// OptimizeConfig holds the micro pass over the downsampled pools and the
// full pass over the complete space.  Micro.Enabled toggles the micro pass;
// the full pass always runs.
type OptimizeConfig struct {
	Micro      PassConfig `mapstructure:"micro"`
	Full       PassConfig `mapstructure:"full"`
	RandomSeed int64      `mapstructure:"random_seed"`
	Workers    int        `mapstructure:"workers"`
	Seeds      string     `mapstructure:"seeds"`
	Output     string     `mapstructure:"output"`
}

// SamplerConfig holds the candidate sampler parameters.
type SamplerConfig struct {
	AttemptsPerReaction int     `mapstructure:"attempts_per_reaction"`
	MinSimilarity       float64 `mapstructure:"min_similarity"`
	MinAtoms            int     `mapstructure:"min_atoms"`
	MaxAtoms            int     `mapstructure:"max_atoms"`
	MaxRotatableBonds   int     `mapstructure:"max_rotatable_bonds"`
}

// SchedulerConfig holds the reaction weighting parameters.
type SchedulerConfig struct {
	Exponent  float64 `mapstructure:"exponent"`
	MinWeight float64 `mapstructure:"min_weight"`
}

// ScreeningConfig holds the orchestrator parameters.  Iterations of 0 runs
// until interrupted.
type ScreeningConfig struct {
	Space          string        `mapstructure:"space"`
	Downsampled    string        `mapstructure:"downsampled"`
	Output         string        `mapstructure:"output"`
	Iterations     int           `mapstructure:"iterations"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	RandomSeed     int64         `mapstructure:"random_seed"`
}

// DedupConfig selects the duplicate filter backend.
type DedupConfig struct {
	Backend    string        `mapstructure:"backend"` // "memory" | "redis"
	MaxEntries int           `mapstructure:"max_entries"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Mode          string        `mapstructure:"mode"` // "standalone" | "sentinel" | "cluster"
	Addr          string        `mapstructure:"addr"`
	MasterName    string        `mapstructure:"master_name"`
	SentinelAddrs []string      `mapstructure:"sentinel_addrs"`
	ClusterAddrs  []string      `mapstructure:"cluster_addrs"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	PoolSize      int           `mapstructure:"pool_size"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	TLSEnabled    bool          `mapstructure:"tls_enabled"`
	TLSCAFile     string        `mapstructure:"tls_ca_file"`
}

// KafkaConfig holds the result publisher parameters.
type KafkaConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Brokers       []string      `mapstructure:"brokers"`
	Topic         string        `mapstructure:"topic"`
	Acks          string        `mapstructure:"acks"` // "none" | "one" | "all"
	MaxRetries    int           `mapstructure:"max_retries"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchTimeout  time.Duration `mapstructure:"batch_timeout"`
	Compression   string        `mapstructure:"compression"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	SASLEnabled   bool          `mapstructure:"sasl_enabled"`
	SASLMechanism string        `mapstructure:"sasl_mechanism"`
	SASLUsername  string        `mapstructure:"sasl_username"`
	SASLPassword  string        `mapstructure:"sasl_password"`
	TLSEnabled    bool          `mapstructure:"tls_enabled"`
	TLSCertPath   string        `mapstructure:"tls_cert_path"`
}

// MinIOConfig holds result archive parameters.
type MinIOConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	Prefix          string        `mapstructure:"prefix"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.  Every component reads its
// settings from the relevant sub-struct.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Status     StatusConfig     `mapstructure:"status"`
	Query      QueryConfig      `mapstructure:"query"`
	Downsample DownsampleConfig `mapstructure:"downsample"`
	Neighbor   NeighborConfig   `mapstructure:"neighbor"`
	Optimize   OptimizeConfig   `mapstructure:"optimize"`
	Sampler    SamplerConfig    `mapstructure:"sampler"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Screening  ScreeningConfig  `mapstructure:"screening"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

func invalid(format string, args ...interface{}) error {
	return errors.New(errors.ErrCodeValidation, "invalid configuration").WithDetail(fmt.Sprintf(format, args...))
}

func unit(v float64) bool { return v >= 0 && v <= 1 && !math.IsNaN(v) }

// Validate performs semantic validation of the fully-populated Config.  It
// returns the first error encountered; callers should treat any error as
// fatal and refuse to start.  Input paths are checked by the commands that
// need them.
func (c *Config) Validate() error {
	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q; expected json|console", c.Log.Format)
	}

	// Metrics / Status
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return invalid("metrics.namespace is required when metrics are enabled")
	}
	switch c.Status.Mode {
	case "debug", "release", "test":
	default:
		return invalid("status.mode %q; expected debug|release|test", c.Status.Mode)
	}
	if c.Status.Enabled && c.Status.Addr == "" {
		return invalid("status.addr is required when the status server is enabled")
	}

	// Downsample
	if c.Downsample.MaxCenters < 0 {
		return invalid("downsample.max_centers must be >= 0, got %d", c.Downsample.MaxCenters)
	}
	if !unit(c.Downsample.MinSimilarity) {
		return invalid("downsample.min_similarity %g must be within [0,1]", c.Downsample.MinSimilarity)
	}
	if c.Downsample.Workers < 1 {
		return invalid("downsample.workers must be >= 1, got %d", c.Downsample.Workers)
	}
	if c.Downsample.ProgressStep <= 0 || c.Downsample.ProgressStep > 1 {
		return invalid("downsample.progress_step %g must be within (0,1]", c.Downsample.ProgressStep)
	}

	// Neighbor
	if c.Neighbor.FingerprintBits < 8 {
		return invalid("neighbor.fingerprint_bits must be >= 8, got %d", c.Neighbor.FingerprintBits)
	}
	if c.Neighbor.MinNGram < 1 || c.Neighbor.MaxNGram < c.Neighbor.MinNGram {
		return invalid("neighbor ngram range [%d,%d] is invalid", c.Neighbor.MinNGram, c.Neighbor.MaxNGram)
	}

	// Optimize
	for _, pass := range []struct {
		name string
		p    PassConfig
	}{{"micro", c.Optimize.Micro}, {"full", c.Optimize.Full}} {
		name, p := pass.name, pass.p
		if !unit(p.MinSimilarity) {
			return invalid("optimize.%s.min_similarity %g must be within [0,1]", name, p.MinSimilarity)
		}
		if p.BeamSize < 1 || p.MaxRounds < 1 || p.NeighborTopL < 1 || p.SampledNeighbors < 1 ||
			p.PerPositionCap < 1 || p.Patience < 1 {
			return invalid("optimize.%s beam parameters must all be >= 1", name)
		}
	}
	if c.Optimize.Workers < 1 {
		return invalid("optimize.workers must be >= 1, got %d", c.Optimize.Workers)
	}

	// Sampler / Scheduler
	if c.Sampler.AttemptsPerReaction < 1 {
		return invalid("sampler.attempts_per_reaction must be >= 1, got %d", c.Sampler.AttemptsPerReaction)
	}
	if !unit(c.Sampler.MinSimilarity) {
		return invalid("sampler.min_similarity %g must be within [0,1]", c.Sampler.MinSimilarity)
	}
	if c.Sampler.MaxAtoms > 0 && c.Sampler.MaxAtoms < c.Sampler.MinAtoms {
		return invalid("sampler.max_atoms %d is below min_atoms %d", c.Sampler.MaxAtoms, c.Sampler.MinAtoms)
	}
	if c.Scheduler.Exponent <= 0 || math.IsNaN(c.Scheduler.Exponent) {
		return invalid("scheduler.exponent must be > 0, got %g", c.Scheduler.Exponent)
	}
	if c.Scheduler.MinWeight < 0 {
		return invalid("scheduler.min_weight must be >= 0, got %g", c.Scheduler.MinWeight)
	}

	// Screening
	if c.Screening.Iterations < 0 {
		return invalid("screening.iterations must be >= 0, got %d", c.Screening.Iterations)
	}
	if c.Screening.Workers < 1 {
		return invalid("screening.workers must be >= 1, got %d", c.Screening.Workers)
	}
	if c.Screening.QueueSize < 0 {
		return invalid("screening.queue_size must be >= 0, got %d", c.Screening.QueueSize)
	}
	if c.Screening.ReportInterval <= 0 {
		return invalid("screening.report_interval must be > 0, got %s", c.Screening.ReportInterval)
	}

	// Dedup / Redis
	switch c.Dedup.Backend {
	case "memory":
		if c.Dedup.MaxEntries < 1 {
			return invalid("dedup.max_entries must be >= 1, got %d", c.Dedup.MaxEntries)
		}
	case "redis":
		if c.Redis.Addr == "" && len(c.Redis.SentinelAddrs) == 0 && len(c.Redis.ClusterAddrs) == 0 {
			return invalid("redis address is required for the redis dedup backend")
		}
	default:
		return invalid("dedup.backend %q; expected memory|redis", c.Dedup.Backend)
	}
	if c.Redis.DB < 0 {
		return invalid("redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Kafka / MinIO
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return invalid("kafka.brokers must contain at least one broker when kafka is enabled")
	}
	if c.MinIO.Enabled && c.MinIO.Endpoint == "" {
		return invalid("minio.endpoint is required when minio is enabled")
	}
	return nil
}
