package cli

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/turtacn/SynthonScout/internal/application/optimize"
	"github.com/turtacn/SynthonScout/internal/application/screening"
	"github.com/turtacn/SynthonScout/internal/config"
	"github.com/turtacn/SynthonScout/internal/domain/molecule"
	"github.com/turtacn/SynthonScout/internal/infrastructure/database/redis"
	"github.com/turtacn/SynthonScout/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/SynthonScout/internal/infrastructure/storage/minio"
	statushttp "github.com/turtacn/SynthonScout/internal/interfaces/http"
	"github.com/turtacn/SynthonScout/internal/interfaces/http/handlers"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Chemistry
// ─────────────────────────────────────────────────────────────────────────────

func newToolkit(cfg config.NeighborConfig) *molecule.FingerprintToolkit {
	return molecule.NewFingerprintToolkit(
		molecule.WithFingerprintBits(cfg.FingerprintBits),
		molecule.WithNGramRange(cfg.MinNGram, cfg.MaxNGram),
	)
}

// queryCode returns the inline query, or the first non-blank line of the
// query file.
func queryCode(cfg config.QueryConfig) (string, error) {
	if code := strings.TrimSpace(cfg.Code); code != "" {
		return code, nil
	}
	if cfg.File == "" {
		return "", errors.InvalidParam("a query is required: set query.code or query.file")
	}
	f, err := os.Open(cfg.File)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeNotFound, "failed to open query file").WithDetail(cfg.File)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeValidation, "failed to read query file").WithDetail(cfg.File)
	}
	return "", errors.InvalidParam("query file is empty").WithDetail(cfg.File)
}

func loadQuery(ctx context.Context, cfg config.QueryConfig, tk molecule.Toolkit) (molecule.Descriptor, error) {
	code, err := queryCode(cfg)
	if err != nil {
		return nil, err
	}
	desc, err := molecule.QueryDescriptor(ctx, tk, code)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to describe query").WithDetail(code)
	}
	return desc, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Component configs
// ─────────────────────────────────────────────────────────────────────────────

func passRequest(p config.PassConfig, seed int64) optimize.Request {
	return optimize.Request{
		BeamSize:             p.BeamSize,
		MaxRounds:            p.MaxRounds,
		NeighborTopL:         p.NeighborTopL,
		SampledNeighbors:     p.SampledNeighbors,
		PerPositionCap:       p.PerPositionCap,
		Patience:             p.Patience,
		ImprovementTolerance: p.ImprovementTolerance,
		RandomSeed:           seed,
		MemoCapacity:         p.MemoCapacity,
	}
}

func propertyFilter(s config.SamplerConfig) optimize.PropertyFilter {
	return optimize.PropertyFilter{
		MinAtoms:          s.MinAtoms,
		MaxAtoms:          s.MaxAtoms,
		MaxRotatableBonds: s.MaxRotatableBonds,
	}
}

func redisConfig(c config.RedisConfig) *redis.RedisConfig {
	return &redis.RedisConfig{
		Mode:          c.Mode,
		Addr:          c.Addr,
		MasterName:    c.MasterName,
		SentinelAddrs: c.SentinelAddrs,
		ClusterAddrs:  c.ClusterAddrs,
		Username:      c.Username,
		Password:      c.Password,
		DB:            c.DB,
		PoolSize:      c.PoolSize,
		DialTimeout:   c.DialTimeout,
		ReadTimeout:   c.ReadTimeout,
		WriteTimeout:  c.WriteTimeout,
		TLSEnabled:    c.TLSEnabled,
		TLSCAFile:     c.TLSCAFile,
	}
}

func producerConfig(c config.KafkaConfig) kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:          c.Brokers,
		Topic:            c.Topic,
		Acks:             c.Acks,
		MaxRetries:       c.MaxRetries,
		BatchSize:        c.BatchSize,
		BatchTimeout:     c.BatchTimeout,
		CompressionCodec: c.Compression,
		WriteTimeout:     c.WriteTimeout,
		SASLEnabled:      c.SASLEnabled,
		SASLMechanism:    c.SASLMechanism,
		SASLUsername:     c.SASLUsername,
		SASLPassword:     c.SASLPassword,
		TLSEnabled:       c.TLSEnabled,
		TLSCertPath:      c.TLSCertPath,
	}
}

func minioConfig(c config.MinIOConfig) *minio.MinIOConfig {
	return &minio.MinIOConfig{
		Enabled:         c.Enabled,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		UseSSL:          c.UseSSL,
		Region:          c.Region,
		Bucket:          c.Bucket,
		Prefix:          c.Prefix,
		Timeout:         c.Timeout,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Infrastructure
// ─────────────────────────────────────────────────────────────────────────────

// newDuplicateFilter builds the configured seen-set.  The returned client is
// non-nil only for the redis backend and must be closed by the caller.
func newDuplicateFilter(cfg *config.Config, logger logging.Logger) (screening.DuplicateFilter, *redis.Client, error) {
	if cfg.Dedup.Backend != "redis" {
		return screening.NewMemoryDuplicateFilter(cfg.Dedup.MaxEntries), nil, nil
	}
	client, err := redis.NewClient(redisConfig(cfg.Redis), logger)
	if err != nil {
		return nil, nil, err
	}
	opts := []redis.DuplicateStoreOption{redis.WithTTL(cfg.Dedup.TTL)}
	if cfg.Dedup.KeyPrefix != "" {
		opts = append(opts, redis.WithKeyPrefix(cfg.Dedup.KeyPrefix))
	}
	return redis.NewDuplicateStore(client, logger, opts...), client, nil
}

// newMetrics returns a nil collector and metric set when metrics are off.
func newMetrics(cfg config.MetricsConfig, logger logging.Logger) (prometheus.MetricsCollector, *prometheus.ScreeningMetrics, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Namespace,
		EnableProcessMetrics: cfg.ProcessMetrics,
		EnableGoMetrics:      cfg.GoMetrics,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return collector, prometheus.NewScreeningMetrics(collector), nil
}

// startStatusServer starts the status surface when enabled.  It returns a
// stop function that is always safe to call.
func startStatusServer(cfg config.StatusConfig, collector prometheus.MetricsCollector, progress *handlers.ProgressHandler, logger logging.Logger, checkers ...handlers.HealthChecker) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}
	rc := statushttp.RouterConfig{
		Mode:            cfg.Mode,
		HealthHandler:   handlers.NewHealthHandler(Version, checkers...),
		ProgressHandler: progress,
		Logger:          logger,
	}
	if collector != nil {
		rc.Metrics = collector.Handler()
	}
	srv := statushttp.NewServer(statushttp.ServerConfig{
		Addr:            cfg.Addr,
		ReadTimeout:     cfg.ReadTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, statushttp.NewRouter(rc), logger)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			logger.Warn("Status server shutdown failed", logging.Err(err))
		}
	}, nil
}

// watchConfig applies the runtime-safe settings of a changed config file.
func watchConfig(path string, logger logging.Logger, apply func(*config.Config)) {
	if path == "" {
		return
	}
	config.Watch(path, func(cfg *config.Config) {
		if ls, ok := logger.(logging.LevelSetter); ok {
			ls.SetLevel(cfg.Log.Level)
		}
		if apply != nil {
			apply(cfg)
		}
		logger.Info("Configuration reloaded", logging.String("path", path), logging.String("log_level", cfg.Log.Level))
	}, func(err error) {
		logger.Warn("Ignoring invalid configuration change", logging.String("path", path), logging.Err(err))
	})
}
