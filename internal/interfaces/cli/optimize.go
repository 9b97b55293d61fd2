package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/SynthonScout/internal/application/neighbor"
	"github.com/turtacn/SynthonScout/internal/application/optimize"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/internal/infrastructure/storage/tsv"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// OptimizeSummary reports one seed optimization run.
type OptimizeSummary struct {
	Seeds       int    `json:"seeds"`
	Written     int64  `json:"written"`
	Empty       int64  `json:"empty"`
	Failed      int64  `json:"failed"`
	Rows        int64  `json:"rows"`
	Comparisons int64  `json:"comparisons"`
	Output      string `json:"output"`
	Duration    string `json:"duration"`
}

func (s OptimizeSummary) TableHeaders() []string { return []string{"METRIC", "VALUE"} }

func (s OptimizeSummary) TableRows() [][]string {
	return [][]string{
		{"seeds", strconv.Itoa(s.Seeds)},
		{"written", strconv.FormatInt(s.Written, 10)},
		{"empty", strconv.FormatInt(s.Empty, 10)},
		{"failed", strconv.FormatInt(s.Failed, 10)},
		{"rows", strconv.FormatInt(s.Rows, 10)},
		{"comparisons", strconv.FormatInt(s.Comparisons, 10)},
		{"output", s.Output},
		{"duration", s.Duration},
	}
}

// NewOptimizeCmd creates the optimize command.
func NewOptimizeCmd() *cobra.Command {
	var seeds, space, output string

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run the full beam optimizer on every assembly of a seed table",
		Long: "Reads seed assemblies (any result table qualifies), optimizes each one over\n" +
			"the full synthon space on the worker pool, and appends the final beams to the\n" +
			"output table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if seeds != "" {
				cc.Config.Optimize.Seeds = seeds
			}
			if space != "" {
				cc.Config.Screening.Space = space
			}
			if output != "" {
				cc.Config.Optimize.Output = output
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runOptimize(ctx, cmd, cc)
		},
	}

	f := cmd.Flags()
	f.StringVar(&seeds, "seeds", "", "seed table (overrides optimize.seeds)")
	f.StringVar(&space, "space", "", "full synthon table (overrides screening.space)")
	f.StringVar(&output, "out", "", "result table to append to (overrides optimize.output)")
	return cmd
}

func runOptimize(ctx context.Context, cmd *cobra.Command, cc *CLIContext) error {
	cfg := cc.Config
	logger := cc.Logger
	switch {
	case cfg.Optimize.Seeds == "":
		return errors.InvalidParam("optimize needs a seed table")
	case cfg.Optimize.Output == "":
		return errors.InvalidParam("optimize needs an output table")
	case cfg.Screening.Space == "":
		return errors.InvalidParam("optimize needs the full synthon table")
	}

	seeds, err := tsv.ReadSeedFile(cfg.Optimize.Seeds)
	if err != nil {
		return err
	}
	space, err := tsv.ReadSynthonTableFile(cfg.Screening.Space)
	if err != nil {
		return err
	}
	tk := newToolkit(cfg.Neighbor)
	query, err := loadQuery(ctx, cfg.Query, tk)
	if err != nil {
		return err
	}

	var comparisons atomic.Int64
	scorer := optimize.NewShapeScorer(tk, query, cfg.Optimize.Full.MinSimilarity, propertyFilter(cfg.Sampler), &comparisons, logger)
	optimizer, err := optimize.NewBeamOptimizer(synthon.NewAccessor(space), neighbor.NewCache(tk, logger.Named("neighbor")),
		scorer, passRequest(cfg.Optimize.Full, cfg.Optimize.RandomSeed), logger.Named("optimize.full"))
	if err != nil {
		return err
	}

	writer, err := tsv.NewResultWriter(cfg.Optimize.Output, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	var written, empty, failed atomic.Int64
	logger.Info("Seed optimization started",
		logging.Int("seeds", len(seeds)),
		logging.Int("workers", cfg.Optimize.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Optimize.Workers)
	for _, seed := range seeds {
		seed := seed
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := optimizer.Optimize(gctx, seed)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				failed.Add(1)
				logger.Warn("Seed optimization failed",
					logging.ReactionID(seed.ReactionID),
					logging.FragmentIDs(seed.FragmentIDs),
					logging.Err(err))
				return nil
			}
			if len(res.Beam) == 0 {
				empty.Add(1)
				return nil
			}
			if err := writer.Write(gctx, res); err != nil {
				return err
			}
			written.Add(1)
			return nil
		})
	}
	runErr := g.Wait()
	closeErr := writer.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCancelled, "seed optimization interrupted")
	}

	summary := OptimizeSummary{
		Seeds:       len(seeds),
		Written:     written.Load(),
		Empty:       empty.Load(),
		Failed:      failed.Load(),
		Rows:        writer.Rows(),
		Comparisons: comparisons.Load(),
		Output:      writer.Path(),
		Duration:    time.Since(start).Truncate(time.Millisecond).String(),
	}
	logging.LogOperationDuration(logger, "optimize", start,
		logging.Int64("written", summary.Written),
		logging.Int64("failed", summary.Failed))
	if err := PrintResult(cmd, summary); err != nil {
		return fmt.Errorf("print summary: %w", err)
	}
	return nil
}
