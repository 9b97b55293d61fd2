package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/pkg/errors"
)

const validConfigYAML = `
log:
  level: debug
  format: console
query:
  code: "c1ccccc1C(=O)N"
downsample:
  max_centers: 10
  min_similarity: 0.4
optimize:
  micro:
    enabled: true
    beam_size: 2
  full:
    beam_size: 6
sampler:
  attempts_per_reaction: 5
screening:
  iterations: 100
  workers: 3
  report_interval: 10s
dedup:
  backend: redis
redis:
  addr: "redis:6379"
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "c1ccccc1C(=O)N", cfg.Query.Code)
	assert.Equal(t, 10, cfg.Downsample.MaxCenters)
	assert.Equal(t, 0.4, cfg.Downsample.MinSimilarity)
	assert.True(t, cfg.Optimize.Micro.Enabled)
	assert.Equal(t, 2, cfg.Optimize.Micro.BeamSize)
	assert.Equal(t, microDefaults.MaxRounds, cfg.Optimize.Micro.MaxRounds)
	assert.Equal(t, 6, cfg.Optimize.Full.BeamSize)
	assert.Equal(t, 100, cfg.Screening.Iterations)
	assert.Equal(t, 10*time.Second, cfg.Screening.ReportInterval)
	assert.Equal(t, "redis", cfg.Dedup.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "invalid_yaml: ["))
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "scheduler:\n  exponent: -2\n"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestLoad_FromFile_ExplicitZerosSurvive(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, `
downsample:
  max_centers: 0
  min_similarity: 0
sampler:
  min_similarity: 0
scheduler:
  min_weight: 0
optimize:
  full:
    improvement_tolerance: 0
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Downsample.MaxCenters)
	assert.Zero(t, cfg.Downsample.MinSimilarity)
	assert.Zero(t, cfg.Sampler.MinSimilarity)
	assert.Zero(t, cfg.Scheduler.MinWeight)
	assert.Zero(t, cfg.Optimize.Full.ImprovementTolerance)
	assert.Equal(t, microDefaults.ImprovementTolerance, cfg.Optimize.Micro.ImprovementTolerance)
	assert.Equal(t, DefaultSchedulerExponent, cfg.Scheduler.Exponent)
}

func TestLoad_FromFile_ZeroExponentRejected(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "scheduler:\n  exponent: 0\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestLoad_AbsentKeysTakeDefaults(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, "log:\n  level: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDownsampleMaxCenters, cfg.Downsample.MaxCenters)
	assert.Equal(t, DefaultDownsampleMinSimilarity, cfg.Downsample.MinSimilarity)
	assert.Equal(t, DefaultSamplerMinSimilarity, cfg.Sampler.MinSimilarity)
	assert.Equal(t, DefaultSchedulerExponent, cfg.Scheduler.Exponent)
	assert.Equal(t, DefaultSchedulerMinWeight, cfg.Scheduler.MinWeight)
	assert.Equal(t, fullDefaults.ImprovementTolerance, cfg.Optimize.Full.ImprovementTolerance)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SYNTHON_SCREENING_WORKERS", "9")
	t.Setenv("SYNTHON_LOG_LEVEL", "warn")

	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Screening.Workers)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("SYNTHON_QUERY_CODE", "CCO")
	t.Setenv("SYNTHON_SCREENING_ITERATIONS", "42")
	t.Setenv("SYNTHON_DEDUP_TTL", "2h")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "CCO", cfg.Query.Code)
	assert.Equal(t, 42, cfg.Screening.Iterations)
	assert.Equal(t, 2*time.Hour, cfg.Dedup.TTL)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
}

func TestMustLoad(t *testing.T) {
	assert.NotPanics(t, func() { MustLoad(createTempConfigFile(t, validConfigYAML)) })
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)

	var level atomic.Value
	Watch(path, func(cfg *Config) { level.Store(cfg.Log.Level) }, nil)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o644))
	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "error"
	}, 5*time.Second, 20*time.Millisecond)
}
