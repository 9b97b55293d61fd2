package downsample

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// DownsampledSpace
// ─────────────────────────────────────────────────────────────────────────────

// DownsampledSpace holds the representative pools of every set.  It
// implements synthon.Source and is read-only after construction.
type DownsampledSpace struct {
	AlgorithmName string
	Request       Request

	sets    map[string]map[int][]*synthon.Synthon
	results map[synthon.SetKey]*SetResult
}

// NewDownsampledSpace assembles a space from per-set results.
func NewDownsampledSpace(algorithm string, req Request, results []*SetResult) *DownsampledSpace {
	ds := &DownsampledSpace{
		AlgorithmName: algorithm,
		Request:       req,
		sets:          make(map[string]map[int][]*synthon.Synthon),
		results:       make(map[synthon.SetKey]*SetResult, len(results)),
	}
	for _, r := range results {
		positions, ok := ds.sets[r.Key.ReactionID]
		if !ok {
			positions = make(map[int][]*synthon.Synthon)
			ds.sets[r.Key.ReactionID] = positions
		}
		positions[r.Key.Position] = r.Representatives
		ds.results[r.Key] = r
	}
	return ds
}

// ReactionIDs implements synthon.Source.
func (ds *DownsampledSpace) ReactionIDs() []string {
	out := make([]string, 0, len(ds.sets))
	for k := range ds.sets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PositionSets implements synthon.Source.
func (ds *DownsampledSpace) PositionSets(reactionID string) (map[int][]*synthon.Synthon, bool) {
	p, ok := ds.sets[reactionID]
	return p, ok
}

// Result returns the downsampling result of one set.
func (ds *DownsampledSpace) Result(key synthon.SetKey) (*SetResult, bool) {
	r, ok := ds.results[key]
	return r, ok
}

// Results returns every set result ordered by reaction then position.
func (ds *DownsampledSpace) Results() []*SetResult {
	keys := synthon.SetKeysOf(ds)
	out := make([]*SetResult, 0, len(keys))
	for _, k := range keys {
		out = append(out, ds.results[k])
	}
	return out
}

// Totals returns the summed original and representative counts.
func (ds *DownsampledSpace) Totals() (original, representatives int) {
	for _, r := range ds.results {
		original += r.OriginalSize
		representatives += len(r.Representatives)
	}
	return original, representatives
}

// ─────────────────────────────────────────────────────────────────────────────
// SpaceDownsampler
// ─────────────────────────────────────────────────────────────────────────────

// Observer is notified after each set completes.
type Observer func(result *SetResult, elapsed time.Duration)

// Option configures a SpaceDownsampler.
type Option func(*SpaceDownsampler)

// WithWorkers sets the number of sets processed concurrently.
func WithWorkers(n int) Option {
	return func(d *SpaceDownsampler) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithProgressStep sets the completed fraction between progress reports.
func WithProgressStep(step float64) Option {
	return func(d *SpaceDownsampler) {
		if step > 0 && step <= 1 {
			d.progressStep = step
		}
	}
}

// WithObserver registers a per-set completion callback.
func WithObserver(o Observer) Option {
	return func(d *SpaceDownsampler) { d.observer = o }
}

// SpaceDownsampler runs an Algorithm over every set of a space on a bounded
// worker pool.  The first failing set aborts the run.
type SpaceDownsampler struct {
	algorithm    Algorithm
	logger       logging.Logger
	workers      int
	progressStep float64
	observer     Observer
}

// NewSpaceDownsampler creates a SpaceDownsampler.
func NewSpaceDownsampler(algorithm Algorithm, logger logging.Logger, opts ...Option) *SpaceDownsampler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	d := &SpaceDownsampler{
		algorithm:    algorithm,
		logger:       logger.Named("downsample"),
		workers:      runtime.NumCPU(),
		progressStep: 0.1,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Downsample processes every set of src and returns the downsampled space.
func (d *SpaceDownsampler) Downsample(ctx context.Context, src synthon.Source, req Request) (*DownsampledSpace, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	keys := synthon.SetKeysOf(src)
	total := len(keys)
	start := time.Now()
	d.logger.Info("downsampling started",
		logging.String("algorithm", d.algorithm.Name()),
		logging.Int("sets", total),
		logging.Int("workers", d.workers))

	results := make([]*SetResult, total)
	reportEvery := int(math.Max(1, math.Ceil(float64(total)*d.progressStep)))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, key := range keys {
		i, key := i, key
		positions, _ := src.PositionSets(key.ReactionID)
		set := positions[key.Position]

		g.Go(func() error {
			unitStart := time.Now()
			res, err := d.algorithm.Downsample(gctx, key, set, req)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeDownsampleUnitFailed, "downsampling unit failed").
					WithDetail(key.String())
			}
			results[i] = res
			if res.ConnectorFallbacks > 0 {
				d.logger.Warn("synthons assigned across connector classes",
					logging.ReactionID(key.ReactionID),
					logging.Position(key.Position),
					logging.Int("count", res.ConnectorFallbacks))
			}
			if d.observer != nil {
				d.observer(res, time.Since(unitStart))
			}
			done := int(completed.Add(1))
			if done%reportEvery == 0 || done == total {
				d.logger.Info("downsampling progress",
					logging.Int("completed", done),
					logging.Int("total", total),
					logging.Float64("percent", 100*float64(done)/float64(total)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Error("downsampling aborted", logging.Err(err))
		return nil, err
	}

	ds := NewDownsampledSpace(d.algorithm.Name(), req, results)
	original, reps := ds.Totals()
	logging.LogOperationDuration(d.logger, "downsample", start,
		logging.Int("original", original),
		logging.Int("representatives", reps))
	return ds, nil
}
