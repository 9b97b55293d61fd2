package config

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "synthonscout"

	DefaultStatusAddr = ":9090"
	DefaultStatusMode = "release"

	DefaultDownsampleMaxCenters    = 100
	DefaultDownsampleMinSimilarity = 0.5
	DefaultDownsampleProgressStep  = 0.1

	DefaultFingerprintBits = 1024
	DefaultMinNGram        = 1
	DefaultMaxNGram        = 3

	DefaultSamplerAttempts      = 20
	DefaultSamplerMinSimilarity = 0.6

	DefaultSchedulerExponent  = 1.0
	DefaultSchedulerMinWeight = 1e-3

	DefaultScreeningQueueSize      = 256
	DefaultScreeningReportInterval = 30 * time.Second
	DefaultScreeningOutput         = "out/hits.tsv"

	DefaultDedupBackend    = "memory"
	DefaultDedupMaxEntries = 1_000_000
	DefaultDedupTTL        = 24 * time.Hour

	DefaultRedisAddr = "localhost:6379"
)

// microDefaults is a cheap pass: small beam, few rounds.
var microDefaults = PassConfig{
	BeamSize:             4,
	MaxRounds:            2,
	NeighborTopL:         16,
	SampledNeighbors:     4,
	PerPositionCap:       2,
	Patience:             1,
	ImprovementTolerance: 1e-3,
	MemoCapacity:         1024,
}

var fullDefaults = PassConfig{
	BeamSize:             8,
	MaxRounds:            6,
	NeighborTopL:         64,
	SampledNeighbors:     8,
	PerPositionCap:       3,
	Patience:             2,
	ImprovementTolerance: 1e-3,
	MemoCapacity:         4096,
}

// DefaultConfig returns a Config with every default applied, including the
// fields whose zero value is itself a valid setting.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Downsample.MaxCenters = DefaultDownsampleMaxCenters
	cfg.Downsample.MinSimilarity = DefaultDownsampleMinSimilarity
	cfg.Sampler.MinSimilarity = DefaultSamplerMinSimilarity
	cfg.Scheduler.Exponent = DefaultSchedulerExponent
	cfg.Scheduler.MinWeight = DefaultSchedulerMinWeight
	cfg.Optimize.Micro.ImprovementTolerance = microDefaults.ImprovementTolerance
	cfg.Optimize.Full.ImprovementTolerance = fullDefaults.ImprovementTolerance
	ApplyDefaults(cfg)
	return cfg
}

// setViperDefaults seeds the keys whose zero value is meaningful, so that an
// explicit 0 in a file or the environment reaches Validate unchanged.
// max_centers 0 means unbounded; exponent 0 is rejected.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("downsample.max_centers", DefaultDownsampleMaxCenters)
	v.SetDefault("downsample.min_similarity", DefaultDownsampleMinSimilarity)
	v.SetDefault("sampler.min_similarity", DefaultSamplerMinSimilarity)
	v.SetDefault("scheduler.exponent", DefaultSchedulerExponent)
	v.SetDefault("scheduler.min_weight", DefaultSchedulerMinWeight)
	v.SetDefault("optimize.micro.improvement_tolerance", microDefaults.ImprovementTolerance)
	v.SetDefault("optimize.full.improvement_tolerance", fullDefaults.ImprovementTolerance)
}

// ApplyDefaults fills the zero-value fields in cfg whose zero value is not a
// valid setting.  Fields already set by the caller are left unchanged so
// explicit configuration always wins.  It must run after unmarshalling and
// before Validate.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Metrics / Status ──────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Status.Addr == "" {
		cfg.Status.Addr = DefaultStatusAddr
	}
	if cfg.Status.Mode == "" {
		cfg.Status.Mode = DefaultStatusMode
	}
	if cfg.Status.ReadTimeout == 0 {
		cfg.Status.ReadTimeout = 5 * time.Second
	}
	if cfg.Status.ShutdownTimeout == 0 {
		cfg.Status.ShutdownTimeout = 5 * time.Second
	}

	// ── Downsample ────────────────────────────────────────────────────────────
	if cfg.Downsample.Workers == 0 {
		cfg.Downsample.Workers = defaultWorkers()
	}
	if cfg.Downsample.ProgressStep == 0 {
		cfg.Downsample.ProgressStep = DefaultDownsampleProgressStep
	}

	// ── Neighbor ──────────────────────────────────────────────────────────────
	if cfg.Neighbor.FingerprintBits == 0 {
		cfg.Neighbor.FingerprintBits = DefaultFingerprintBits
	}
	if cfg.Neighbor.MinNGram == 0 {
		cfg.Neighbor.MinNGram = DefaultMinNGram
	}
	if cfg.Neighbor.MaxNGram == 0 {
		cfg.Neighbor.MaxNGram = DefaultMaxNGram
	}

	// ── Optimize ──────────────────────────────────────────────────────────────
	applyPassDefaults(&cfg.Optimize.Micro, microDefaults)
	applyPassDefaults(&cfg.Optimize.Full, fullDefaults)
	if cfg.Optimize.Workers == 0 {
		cfg.Optimize.Workers = defaultWorkers()
	}

	// ── Sampler ───────────────────────────────────────────────────────────────
	if cfg.Sampler.AttemptsPerReaction == 0 {
		cfg.Sampler.AttemptsPerReaction = DefaultSamplerAttempts
	}

	// ── Screening ─────────────────────────────────────────────────────────────
	if cfg.Screening.Workers == 0 {
		cfg.Screening.Workers = defaultWorkers()
	}
	if cfg.Screening.QueueSize == 0 {
		cfg.Screening.QueueSize = DefaultScreeningQueueSize
	}
	if cfg.Screening.ReportInterval == 0 {
		cfg.Screening.ReportInterval = DefaultScreeningReportInterval
	}
	if cfg.Screening.Output == "" {
		cfg.Screening.Output = DefaultScreeningOutput
	}

	// ── Dedup / Redis ─────────────────────────────────────────────────────────
	if cfg.Dedup.Backend == "" {
		cfg.Dedup.Backend = DefaultDedupBackend
	}
	if cfg.Dedup.MaxEntries == 0 {
		cfg.Dedup.MaxEntries = DefaultDedupMaxEntries
	}
	if cfg.Dedup.TTL == 0 {
		cfg.Dedup.TTL = DefaultDedupTTL
	}
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = "standalone"
	}
	if cfg.Redis.Addr == "" && cfg.Redis.Mode == "standalone" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
}

// applyPassDefaults fills the zero fields of p from def.  Enabled,
// MinSimilarity and ImprovementTolerance are left alone since their zero
// values are meaningful.
func applyPassDefaults(p *PassConfig, def PassConfig) {
	if p.BeamSize == 0 {
		p.BeamSize = def.BeamSize
	}
	if p.MaxRounds == 0 {
		p.MaxRounds = def.MaxRounds
	}
	if p.NeighborTopL == 0 {
		p.NeighborTopL = def.NeighborTopL
	}
	if p.SampledNeighbors == 0 {
		p.SampledNeighbors = def.SampledNeighbors
	}
	if p.PerPositionCap == 0 {
		p.PerPositionCap = def.PerPositionCap
	}
	if p.Patience == 0 {
		p.Patience = def.Patience
	}
	if p.MemoCapacity == 0 {
		p.MemoCapacity = def.MemoCapacity
	}
}

func defaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}
