package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/SynthonScout/internal/application/downsample"
	"github.com/turtacn/SynthonScout/internal/application/neighbor"
	"github.com/turtacn/SynthonScout/internal/config"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/internal/infrastructure/storage/tsv"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// DownsampleSummary reports one downsampling run.
type DownsampleSummary struct {
	Input           string           `json:"input"`
	Output          string           `json:"output"`
	Algorithm       string           `json:"algorithm"`
	Sets            []SetSummaryLine `json:"sets"`
	Original        int              `json:"original"`
	Representatives int              `json:"representatives"`
}

// SetSummaryLine is the per-set line of a DownsampleSummary.
type SetSummaryLine struct {
	ReactionID      string `json:"rxn_id"`
	Position        int    `json:"position"`
	Original        int    `json:"original"`
	Representatives int    `json:"representatives"`
}

func (s DownsampleSummary) TableHeaders() []string {
	return []string{"RXN", "POSITION", "ORIGINAL", "REPRESENTATIVES"}
}

func (s DownsampleSummary) TableRows() [][]string {
	rows := make([][]string, 0, len(s.Sets)+1)
	for _, l := range s.Sets {
		rows = append(rows, []string{l.ReactionID, strconv.Itoa(l.Position), strconv.Itoa(l.Original), strconv.Itoa(l.Representatives)})
	}
	rows = append(rows, []string{"total", "", strconv.Itoa(s.Original), strconv.Itoa(s.Representatives)})
	return rows
}

// NewDownsampleCmd creates the downsample command.
func NewDownsampleCmd() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "downsample",
		Short: "Reduce every synthon set to k-centers representatives",
		Long: "Reads a synthon table, clusters every (reaction, position) set with online\n" +
			"k-centers, and writes the representatives with their cluster statistics as a\n" +
			"table that the screen command accepts as its downsampled space.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if input != "" {
				cc.Config.Downsample.Input = input
			}
			if output != "" {
				cc.Config.Downsample.Output = output
			}
			return runDownsample(cmd, cc)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "synthon table to downsample (overrides downsample.input)")
	cmd.Flags().StringVar(&output, "out", "", "downsampled table to write (overrides downsample.output)")
	return cmd
}

func downsampleRequest(c config.DownsampleConfig) downsample.Request {
	return downsample.Request{
		MaxCenters:                  c.MaxCenters,
		SizeCapScale:                c.SizeCapScale,
		SizeCapOffset:               c.SizeCapOffset,
		MinSimilarity:               c.MinSimilarity,
		RandomSeed:                  c.RandomSeed,
		EnforceConnectorEquivalence: c.EnforceConnectorEquivalence,
	}
}

func runDownsample(cmd *cobra.Command, cc *CLIContext) error {
	cfg := cc.Config
	logger := cc.Logger
	if cfg.Downsample.Input == "" || cfg.Downsample.Output == "" {
		return errors.InvalidParam("downsample needs an input and an output table")
	}

	space, err := tsv.ReadSynthonTableFile(cfg.Downsample.Input)
	if err != nil {
		return err
	}
	logger.Info("Synthon table loaded",
		logging.String("path", cfg.Downsample.Input),
		logging.Int("reactions", len(space.ReactionIDs())),
		logging.Int("synthons", space.NumSynthons()))

	collector, metrics, err := newMetrics(cfg.Metrics, logger)
	if err != nil {
		return err
	}
	stopStatus, err := startStatusServer(cfg.Status, collector, nil, logger)
	if err != nil {
		return err
	}
	defer stopStatus()

	cache := neighbor.NewCache(newToolkit(cfg.Neighbor), logger.Named("neighbor"))
	opts := []downsample.Option{
		downsample.WithWorkers(cfg.Downsample.Workers),
		downsample.WithProgressStep(cfg.Downsample.ProgressStep),
	}
	if metrics != nil {
		opts = append(opts, downsample.WithObserver(metrics.DownsampleObserver()))
	}
	ds, err := downsample.NewSpaceDownsampler(downsample.NewKCenters(cache), logger.Named("downsample"), opts...).
		Downsample(cmd.Context(), space, downsampleRequest(cfg.Downsample))
	if err != nil {
		return err
	}
	if err := tsv.WriteDownsampledTableFile(cfg.Downsample.Output, ds); err != nil {
		return err
	}

	stats := cache.Stats()
	logger.Info("Downsampled table written",
		logging.String("path", cfg.Downsample.Output),
		logging.Int64("descriptor_misses", stats.DescriptorMisses),
		logging.Int64("descriptor_hits", stats.DescriptorHits))

	summary := DownsampleSummary{
		Input:     cfg.Downsample.Input,
		Output:    cfg.Downsample.Output,
		Algorithm: ds.AlgorithmName,
	}
	for _, r := range ds.Results() {
		summary.Sets = append(summary.Sets, SetSummaryLine{
			ReactionID:      r.Key.ReactionID,
			Position:        r.Key.Position,
			Original:        r.OriginalSize,
			Representatives: len(r.Representatives),
		})
	}
	summary.Original, summary.Representatives = ds.Totals()
	if err := PrintResult(cmd, summary); err != nil {
		return fmt.Errorf("print summary: %w", err)
	}
	return nil
}
