package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/pkg/errors"
)

func validConfig() *Config {
	return DefaultConfig()
}

func TestConfig_Validate_Defaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"log format", func(c *Config) { c.Log.Format = "text" }},
		{"metrics namespace", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Namespace = "" }},
		{"status mode", func(c *Config) { c.Status.Mode = "prod" }},
		{"status addr", func(c *Config) { c.Status.Enabled = true; c.Status.Addr = "" }},
		{"negative max centers", func(c *Config) { c.Downsample.MaxCenters = -1 }},
		{"downsample similarity", func(c *Config) { c.Downsample.MinSimilarity = 1.5 }},
		{"progress step", func(c *Config) { c.Downsample.ProgressStep = 2 }},
		{"fingerprint bits", func(c *Config) { c.Neighbor.FingerprintBits = 4 }},
		{"ngram range", func(c *Config) { c.Neighbor.MinNGram = 4; c.Neighbor.MaxNGram = 2 }},
		{"micro beam", func(c *Config) { c.Optimize.Micro.BeamSize = -1 }},
		{"full similarity", func(c *Config) { c.Optimize.Full.MinSimilarity = -0.1 }},
		{"sampler attempts", func(c *Config) { c.Sampler.AttemptsPerReaction = -3 }},
		{"atom bounds", func(c *Config) { c.Sampler.MinAtoms = 30; c.Sampler.MaxAtoms = 10 }},
		{"non-positive exponent", func(c *Config) { c.Scheduler.Exponent = -1 }},
		{"zero exponent", func(c *Config) { c.Scheduler.Exponent = 0 }},
		{"negative iterations", func(c *Config) { c.Screening.Iterations = -1 }},
		{"queue size", func(c *Config) { c.Screening.QueueSize = -1 }},
		{"dedup backend", func(c *Config) { c.Dedup.Backend = "etcd" }},
		{"redis without address", func(c *Config) { c.Dedup.Backend = "redis"; c.Redis.Addr = "" }},
		{"kafka brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"minio endpoint", func(c *Config) { c.MinIO.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
		})
	}
}

func TestConfig_Validate_RedisBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Dedup.Backend = "redis"
	assert.NoError(t, cfg.Validate())

	cfg.Redis.Addr = ""
	cfg.Redis.ClusterAddrs = []string{"a:7000", "b:7000"}
	assert.NoError(t, cfg.Validate())
}
