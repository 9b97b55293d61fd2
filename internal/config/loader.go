package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	apperrors "github.com/turtacn/SynthonScout/pkg/errors"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "SYNTHON"

// newViper builds a Viper instance with the standard settings: YAML file
// type, SYNTHON_ env prefix, automatic env binding, and a key replacer that
// maps "." → "_" so that "screening.workers" resolves to
// "SYNTHON_SCREENING_WORKERS".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v)
	setViperDefaults(v)
	return v
}

// bindEnvKeys registers every key that may come from the environment alone.
// AutomaticEnv only resolves keys viper already knows about.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"log.level", "log.format",
		"metrics.enabled", "metrics.namespace",
		"status.enabled", "status.addr", "status.mode",
		"query.code", "query.file",
		"downsample.input", "downsample.output", "downsample.max_centers", "downsample.min_similarity",
		"downsample.random_seed", "downsample.workers",
		"optimize.micro.enabled", "optimize.seeds", "optimize.output", "optimize.workers", "optimize.random_seed",
		"sampler.attempts_per_reaction", "sampler.min_similarity",
		"scheduler.exponent", "scheduler.min_weight",
		"screening.space", "screening.downsampled", "screening.output", "screening.iterations",
		"screening.workers", "screening.queue_size", "screening.report_interval", "screening.random_seed",
		"dedup.backend", "dedup.max_entries", "dedup.key_prefix", "dedup.ttl",
		"redis.addr", "redis.password", "redis.db",
		"kafka.enabled", "kafka.brokers", "kafka.topic",
		"minio.enabled", "minio.endpoint", "minio.access_key_id", "minio.secret_access_key", "minio.bucket",
	} {
		_ = v.BindEnv(key)
	}
}

// Load reads the YAML file at configPath, merges SYNTHON_* environment
// overrides, applies defaults for absent keys, and validates the result.
// An empty configPath loads from the environment only.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) || errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "config file not found").WithDetail(configPath)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to parse config file").WithDetail(configPath)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from SYNTHON_* environment variables and
// defaults alone.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to unmarshal configuration")
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the re-parsed Config
// whenever the file changes on disk.  A change that fails to parse or
// validate is reported to onError, when set, and onChange is skipped.
// Callers apply only the settings that are safe to change at runtime.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad wraps Load and panics on any error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic("config: MustLoad failed: " + err.Error())
	}
	return cfg
}
