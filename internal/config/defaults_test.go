package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, DefaultScreeningReportInterval, cfg.Screening.ReportInterval)
	assert.Equal(t, DefaultDedupBackend, cfg.Dedup.Backend)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, microDefaults.BeamSize, cfg.Optimize.Micro.BeamSize)
	assert.Equal(t, fullDefaults.MaxRounds, cfg.Optimize.Full.MaxRounds)
	assert.False(t, cfg.Optimize.Micro.Enabled)
	assert.Positive(t, cfg.Screening.Workers)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Log.Level = "debug"
	cfg.Screening.ReportInterval = time.Second
	cfg.Optimize.Full.BeamSize = 32
	cfg.Redis.Mode = "cluster"
	ApplyDefaults(cfg)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, time.Second, cfg.Screening.ReportInterval)
	assert.Equal(t, 32, cfg.Optimize.Full.BeamSize)
	assert.Equal(t, fullDefaults.Patience, cfg.Optimize.Full.Patience)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestApplyDefaults_KeepsMeaningfulZeros(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Zero(t, cfg.Downsample.MaxCenters)
	assert.Zero(t, cfg.Downsample.MinSimilarity)
	assert.Zero(t, cfg.Sampler.MinSimilarity)
	assert.Zero(t, cfg.Scheduler.Exponent)
	assert.Zero(t, cfg.Scheduler.MinWeight)
	assert.Zero(t, cfg.Optimize.Full.ImprovementTolerance)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultDownsampleMaxCenters, cfg.Downsample.MaxCenters)
	assert.Equal(t, DefaultDownsampleMinSimilarity, cfg.Downsample.MinSimilarity)
	assert.Equal(t, DefaultSamplerMinSimilarity, cfg.Sampler.MinSimilarity)
	assert.Equal(t, DefaultSchedulerExponent, cfg.Scheduler.Exponent)
	assert.Equal(t, DefaultSchedulerMinWeight, cfg.Scheduler.MinWeight)
	assert.Equal(t, microDefaults.ImprovementTolerance, cfg.Optimize.Micro.ImprovementTolerance)
	assert.Equal(t, fullDefaults.ImprovementTolerance, cfg.Optimize.Full.ImprovementTolerance)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
