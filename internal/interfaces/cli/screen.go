package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turtacn/SynthonScout/internal/application/neighbor"
	"github.com/turtacn/SynthonScout/internal/application/optimize"
	"github.com/turtacn/SynthonScout/internal/application/screening"
	"github.com/turtacn/SynthonScout/internal/config"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/internal/infrastructure/storage/minio"
	"github.com/turtacn/SynthonScout/internal/infrastructure/storage/tsv"
	"github.com/turtacn/SynthonScout/internal/interfaces/http/handlers"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// ScreenSummary reports one screening run.
type ScreenSummary struct {
	RunID       string             `json:"run_id"`
	Output      string             `json:"output"`
	Archived    string             `json:"archived,omitempty"`
	Interrupted bool               `json:"interrupted"`
	Progress    screening.Snapshot `json:"progress"`
}

func (s ScreenSummary) TableHeaders() []string { return []string{"METRIC", "VALUE"} }

func (s ScreenSummary) TableRows() [][]string {
	p := s.Progress
	rows := [][]string{
		{"run_id", s.RunID},
		{"output", s.Output},
		{"sampled", strconv.FormatInt(p.Sampled, 10)},
		{"no_candidate", strconv.FormatInt(p.NoCandidate, 10)},
		{"duplicates", strconv.FormatInt(p.Duplicates, 10)},
		{"micro_empty", strconv.FormatInt(p.MicroEmpty, 10)},
		{"submitted", strconv.FormatInt(p.Submitted, 10)},
		{"failures", strconv.FormatInt(p.Failures, 10)},
		{"hits", strconv.FormatInt(p.Hits, 10)},
		{"sample_comparisons", strconv.FormatInt(p.SampleComparisons, 10)},
		{"micro_comparisons", strconv.FormatInt(p.MicroComparisons, 10)},
		{"full_comparisons", strconv.FormatInt(p.FullComparisons, 10)},
		{"sampled_per_second", strconv.FormatFloat(p.SampledPerSecond, 'f', 2, 64)},
	}
	if s.Archived != "" {
		rows = append(rows, []string{"archived", s.Archived})
	}
	if s.Interrupted {
		rows = append(rows, []string{"interrupted", "true"})
	}
	return rows
}

// NewScreenCmd creates the screen command.
func NewScreenCmd() *cobra.Command {
	var space, downsampled, output string
	var iterations int

	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Continuously sample and optimize assemblies against the query",
		Long: "Samples reactions weighted by their combinatorial size, draws assemblies from\n" +
			"the downsampled space, optionally refines them with a cheap micro pass, and\n" +
			"optimizes survivors over the full space.  Every hit is appended to the result\n" +
			"table.  With iterations 0 the run continues until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			sc := &cc.Config.Screening
			if space != "" {
				sc.Space = space
			}
			if downsampled != "" {
				sc.Downsampled = downsampled
			}
			if output != "" {
				sc.Output = output
			}
			if cmd.Flags().Changed("iterations") {
				if iterations < 0 {
					return errors.InvalidParam("iterations must be >= 0")
				}
				sc.Iterations = iterations
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScreen(ctx, cmd, cc)
		},
	}

	f := cmd.Flags()
	f.StringVar(&space, "space", "", "full synthon table (overrides screening.space)")
	f.StringVar(&downsampled, "downsampled", "", "downsampled synthon table (overrides screening.downsampled)")
	f.StringVar(&output, "out", "", "result table to append to (overrides screening.output)")
	f.IntVarP(&iterations, "iterations", "n", 0, "jobs to run, 0 until interrupted (overrides screening.iterations)")
	return cmd
}

// screenPipeline holds the wired components of one screening run.
type screenPipeline struct {
	runID        string
	orchestrator *screening.Orchestrator
	writer       *tsv.ResultWriter
	closers      []func()
}

func (p *screenPipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func loadSpaces(sc config.ScreeningConfig, logger logging.Logger) (full, reduced synthon.Source, err error) {
	if sc.Space == "" {
		return nil, nil, errors.InvalidParam("screening needs the full synthon table")
	}
	fullSpace, err := tsv.ReadSynthonTableFile(sc.Space)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Synthon space loaded",
		logging.String("path", sc.Space),
		logging.Int("reactions", len(fullSpace.ReactionIDs())),
		logging.Int("synthons", fullSpace.NumSynthons()))
	if sc.Downsampled == "" {
		return fullSpace, fullSpace, nil
	}
	reducedSpace, err := tsv.ReadSynthonTableFile(sc.Downsampled)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Downsampled space loaded",
		logging.String("path", sc.Downsampled),
		logging.Int("synthons", reducedSpace.NumSynthons()))
	return fullSpace, reducedSpace, nil
}

// buildScreenPipeline wires sampler, optimizers, filter and sinks.  On error
// everything opened so far is released.
func buildScreenPipeline(ctx context.Context, cc *CLIContext, progress *handlers.ProgressHandler) (p *screenPipeline, err error) {
	cfg := cc.Config
	logger := cc.Logger
	p = &screenPipeline{runID: uuid.NewString()}
	defer func() {
		if err != nil {
			p.close()
		}
	}()

	fullSrc, reducedSrc, err := loadSpaces(cfg.Screening, logger)
	if err != nil {
		return nil, err
	}
	tk := newToolkit(cfg.Neighbor)
	query, err := loadQuery(ctx, cfg.Query, tk)
	if err != nil {
		return nil, err
	}

	metrics := screening.NewMetrics()
	filter := propertyFilter(cfg.Sampler)
	cache := neighbor.NewCache(tk, logger.Named("neighbor"))
	fullAcc := synthon.NewAccessor(fullSrc)
	reducedAcc := fullAcc
	if reducedSrc != fullSrc {
		reducedAcc = synthon.NewAccessor(reducedSrc)
	}

	sampler, err := screening.NewCandidateSampler(reducedAcc,
		optimize.NewShapeScorer(tk, query, cfg.Sampler.MinSimilarity, filter, metrics.Comparisons(screening.StageSample), logger),
		cfg.Sampler.AttemptsPerReaction, logger.Named("sampler"))
	if err != nil {
		return nil, err
	}
	full, err := optimize.NewBeamOptimizer(fullAcc, cache,
		optimize.NewShapeScorer(tk, query, cfg.Optimize.Full.MinSimilarity, filter, metrics.Comparisons(screening.StageFull), logger),
		passRequest(cfg.Optimize.Full, cfg.Optimize.RandomSeed), logger.Named("optimize.full"))
	if err != nil {
		return nil, err
	}
	scheduler, err := screening.NewSchedulerForSource(reducedSrc, screening.SchedulerConfig{
		Exponent:  cfg.Scheduler.Exponent,
		MinWeight: cfg.Scheduler.MinWeight,
	})
	if err != nil {
		return nil, err
	}

	opts := []screening.Option{screening.WithMetrics(metrics), screening.WithRunID(p.runID)}
	if cfg.Optimize.Micro.Enabled {
		micro, err := optimize.NewBeamOptimizer(reducedAcc, cache,
			optimize.NewShapeScorer(tk, query, cfg.Optimize.Micro.MinSimilarity, filter, metrics.Comparisons(screening.StageMicro), logger),
			passRequest(cfg.Optimize.Micro, cfg.Optimize.RandomSeed), logger.Named("optimize.micro"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, screening.WithMicroOptimizer(micro))
	}

	dedup, redisClient, err := newDuplicateFilter(cfg, logger)
	if err != nil {
		return nil, err
	}
	var checkers []handlers.HealthChecker
	if redisClient != nil {
		p.closers = append(p.closers, func() { _ = redisClient.Close() })
		checkers = append(checkers, redisClient)
	}
	opts = append(opts, screening.WithDuplicateFilter(dedup))

	collector, promMetrics, err := newMetrics(cfg.Metrics, logger)
	if err != nil {
		return nil, err
	}
	if promMetrics != nil {
		opts = append(opts, screening.WithObserver(promMetrics))
	}
	stopStatus, err := startStatusServer(cfg.Status, collector, progress, logger, checkers...)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, stopStatus)

	writer, err := tsv.NewResultWriter(cfg.Screening.Output, logger)
	if err != nil {
		return nil, err
	}
	p.writer = writer
	sinks := []screening.ResultSink{writer}
	if cfg.Kafka.Enabled {
		pub, err := kafka.NewResultPublisher(producerConfig(cfg.Kafka), p.runID, logger)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
		sinks = append(sinks, pub)
	}
	sink := screening.NewMultiSink(sinks...)

	orc, err := screening.NewOrchestrator(screening.Config{
		Workers:        cfg.Screening.Workers,
		QueueSize:      cfg.Screening.QueueSize,
		ReportInterval: cfg.Screening.ReportInterval,
		RandomSeed:     cfg.Screening.RandomSeed,
	}, scheduler, sampler, full, sink, logger, opts...)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	p.orchestrator = orc
	return p, nil
}

func runScreen(ctx context.Context, cmd *cobra.Command, cc *CLIContext) error {
	cfg := cc.Config
	logger := cc.Logger

	progress := handlers.NewProgressHandler()
	p, err := buildScreenPipeline(ctx, cc, progress)
	if err != nil {
		return err
	}
	defer p.close()
	progress.Attach(p.orchestrator)

	watchConfig(cc.ConfigPath, logger, func(next *config.Config) {
		p.orchestrator.SetReportInterval(next.Screening.ReportInterval)
	})

	summary := ScreenSummary{RunID: p.runID, Output: p.writer.Path()}
	runErr := p.orchestrator.Run(ctx, cfg.Screening.Iterations)
	if errors.IsCode(runErr, errors.ErrCodeCancelled) {
		logger.Info("Screening interrupted, result file is complete", logging.RunID(p.runID))
		summary.Interrupted = true
		runErr = nil
	}
	summary.Progress = p.orchestrator.Progress()
	if runErr != nil {
		return runErr
	}

	if cfg.MinIO.Enabled {
		object, err := archiveResults(cfg.MinIO, p.runID, p.writer.Path(), logger)
		if err != nil {
			return err
		}
		summary.Archived = object
	}

	if err := PrintResult(cmd, summary); err != nil {
		return fmt.Errorf("print summary: %w", err)
	}
	return nil
}

// archiveResults uploads a closed result file.  It runs on its own context
// so an interrupted run is still archived.
func archiveResults(cfg config.MinIOConfig, runID, path string, logger logging.Logger) (string, error) {
	mc := minioConfig(cfg)
	uploader, err := minio.NewArchiveUploader(mc, logger)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), mc.Timeout)
	defer cancel()
	return uploader.Upload(ctx, runID, path)
}
