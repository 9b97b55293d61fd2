package screening

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// Config sizes the worker pool and the progress reporter.
type Config struct {
	Workers        int           `mapstructure:"workers" json:"workers"`
	QueueSize      int           `mapstructure:"queue_size" json:"queue_size"`
	ReportInterval time.Duration `mapstructure:"report_interval" json:"report_interval"`
	RandomSeed     int64         `mapstructure:"random_seed" json:"random_seed"`
}

// Validate checks the pool parameters.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return errors.New(errors.ErrCodeScreeningConfigInvalid, "workers must be >= 1").
			WithDetail(fmt.Sprintf("workers=%d", c.Workers))
	case c.QueueSize < 0:
		return errors.New(errors.ErrCodeScreeningConfigInvalid, "queue_size must be >= 0").
			WithDetail(fmt.Sprintf("queue_size=%d", c.QueueSize))
	case c.ReportInterval < 0:
		return errors.New(errors.ErrCodeScreeningConfigInvalid, "report_interval must be >= 0").
			WithDetail(c.ReportInterval.String())
	}
	return nil
}

// Sampler draws screening candidates.  *CandidateSampler satisfies it.
type Sampler interface {
	Sample(ctx context.Context, reactionID string, rng *rand.Rand) (*synthon.ScreeningCandidate, bool)
}

// Optimizer improves a seed.  *optimize.BeamOptimizer satisfies it.
type Optimizer interface {
	Optimize(ctx context.Context, seed synthon.SeedAssembly) (*synthon.OptimizationResult, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMicroOptimizer enables the optimization pass over downsampled pools.
func WithMicroOptimizer(o Optimizer) Option {
	return func(orc *Orchestrator) { orc.micro = o }
}

// WithDuplicateFilter replaces the default in-memory duplicate filter.
func WithDuplicateFilter(f DuplicateFilter) Option {
	return func(orc *Orchestrator) {
		if f != nil {
			orc.dedup = f
		}
	}
}

// WithMetrics shares a Metrics instance, typically the one whose comparison
// counters were handed to the scorers.
func WithMetrics(m *Metrics) Option {
	return func(orc *Orchestrator) {
		if m != nil {
			orc.metrics = m
		}
	}
}

// WithObserver mirrors job outcomes and snapshots to o.
func WithObserver(o Observer) Option {
	return func(orc *Orchestrator) {
		if o != nil {
			orc.observer = o
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(orc *Orchestrator) {
		if id != "" {
			orc.runID = id
		}
	}
}

// Orchestrator runs independent sample → dedup → micro → full → write jobs
// on a bounded worker pool.  When the work queue is full the submitting
// goroutine runs the job itself.
type Orchestrator struct {
	cfg       Config
	runID     string
	scheduler *ReactionScheduler
	sampler   Sampler
	micro     Optimizer
	full      Optimizer
	dedup     DuplicateFilter
	sink      ResultSink
	metrics   *Metrics
	observer  Observer
	logger    logging.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	reportInterval  atomic.Int64
	intervalChanged chan struct{}

	fatalMu sync.Mutex
	fatal   error
}

// NewOrchestrator validates cfg and wires the pipeline.
func NewOrchestrator(cfg Config, scheduler *ReactionScheduler, sampler Sampler, full Optimizer, sink ResultSink, logger logging.Logger, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scheduler == nil || sampler == nil || full == nil || sink == nil {
		return nil, errors.New(errors.ErrCodeScreeningConfigInvalid, "scheduler, sampler, full optimizer and sink are required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	o := &Orchestrator{
		cfg:       cfg,
		runID:     uuid.NewString(),
		scheduler: scheduler,
		sampler:   sampler,
		full:      full,
		dedup:     NewMemoryDuplicateFilter(0),
		sink:      sink,
		metrics:   NewMetrics(),
		observer:  noopObserver{},

		intervalChanged: make(chan struct{}, 1),
	}
	o.reportInterval.Store(int64(cfg.ReportInterval))
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logger.Named("screening").With(logging.RunID(o.runID))
	return o, nil
}

// RunID identifies this orchestrator's run in logs and published results.
func (o *Orchestrator) RunID() string { return o.runID }

// Progress returns the current metrics snapshot.
func (o *Orchestrator) Progress() Snapshot {
	s := o.metrics.Snapshot()
	s.RunID = o.runID
	return s
}

// Run executes iterations jobs, or runs until ctx is cancelled when
// iterations is not positive.  The sink is closed exactly once before Run
// returns.  A sink write failure aborts the run and is returned.
func (o *Orchestrator) Run(ctx context.Context, iterations int) error {
	if o.closed.Load() {
		return errors.New(errors.ErrCodeOrchestratorClosed, "orchestrator already closed")
	}
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.logger.Info("screening started",
		logging.Int("iterations", iterations),
		logging.Int("workers", o.cfg.Workers),
		logging.Int("queue_size", o.cfg.QueueSize),
		logging.Bool("micro", o.micro != nil))

	jobs := make(chan int, o.cfg.QueueSize)
	var wg sync.WaitGroup
	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				o.runJob(runCtx, cancel, i)
			}
		}()
	}

	stopReporter := o.startReporter()

	for i := 0; iterations <= 0 || i < iterations; i++ {
		if runCtx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
		default:
			o.runJob(runCtx, cancel, i)
		}
	}
	close(jobs)
	wg.Wait()
	stopReporter()

	snap := o.Progress()
	o.logger.Info("screening finished", snapshotFields(snap)...)
	o.observer.ObserveSnapshot(snap)
	logging.LogOperationDuration(o.logger, "screening", start)

	closeErr := o.Close()
	if err := o.fatalErr(); err != nil {
		o.logger.Error("screening aborted", logging.Err(err))
		return err
	}
	if closeErr != nil {
		o.logger.Error("closing result sink failed", logging.Err(closeErr))
		return errors.Wrap(closeErr, errors.ErrCodeResultWriteFailed, "closing result sink")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCancelled, "screening interrupted")
	}
	return nil
}

// Close closes the sink.  Only the first call has an effect.
func (o *Orchestrator) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	return o.sink.Close()
}

func (o *Orchestrator) runJob(ctx context.Context, abort context.CancelFunc, index int) {
	start := time.Now()
	rng := rand.New(rand.NewSource(jobSeed(o.cfg.RandomSeed, index)))
	outcome, err := o.screen(ctx, rng)
	if err != nil {
		o.setFatal(err)
		abort()
	}
	o.observer.ObserveJob(outcome, time.Since(start))
}

// screen runs one job.  Only a sink failure is returned as an error.
func (o *Orchestrator) screen(ctx context.Context, rng *rand.Rand) (Outcome, error) {
	rxn := o.scheduler.Pick(rng)
	o.metrics.Sampled.Add(1)

	cand, ok := o.sampler.Sample(ctx, rxn, rng)
	if !ok {
		if ctx.Err() != nil {
			return OutcomeCancelled, nil
		}
		o.metrics.NoCandidate.Add(1)
		return OutcomeNoCandidate, nil
	}
	if o.dedup.MarkIfDuplicate(ctx, cand.AssembledCode) {
		o.metrics.Duplicates.Add(1)
		return OutcomeDuplicate, nil
	}

	seed := cand.Seed()
	if o.micro != nil {
		res, err := o.micro.Optimize(ctx, seed)
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeCancelled, nil
			}
			o.logger.Debug("micro optimization failed", logging.ReactionID(rxn), logging.Err(err))
		}
		best, ok := res.Best()
		if !ok {
			o.metrics.MicroEmpty.Add(1)
			return OutcomeMicroEmpty, nil
		}
		seed = best.Seed()
	}

	o.metrics.Submitted.Add(1)
	res, err := o.full.Optimize(ctx, seed)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled, nil
		}
		o.metrics.Failures.Add(1)
		o.logger.Warn("full optimization failed",
			logging.ReactionID(rxn),
			logging.FragmentIDs(seed.FragmentIDs),
			logging.Err(err))
		return OutcomeFailed, nil
	}
	if len(res.Beam) == 0 {
		o.metrics.Failures.Add(1)
		return OutcomeFailed, nil
	}
	if err := o.write(ctx, res); err != nil {
		return OutcomeFailed, err
	}
	o.metrics.Hits.Add(1)
	return OutcomeHit, nil
}

func (o *Orchestrator) write(ctx context.Context, res *synthon.OptimizationResult) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if o.closed.Load() {
		return errors.New(errors.ErrCodeOrchestratorClosed, "result sink already closed")
	}
	return o.sink.Write(ctx, res)
}

func (o *Orchestrator) setFatal(err error) {
	o.fatalMu.Lock()
	defer o.fatalMu.Unlock()
	if o.fatal == nil {
		o.fatal = err
	}
}

func (o *Orchestrator) fatalErr() error {
	o.fatalMu.Lock()
	defer o.fatalMu.Unlock()
	return o.fatal
}

// SetReportInterval changes the progress reporting period, also while Run
// is in progress.  A non-positive interval pauses reporting.
func (o *Orchestrator) SetReportInterval(d time.Duration) {
	if time.Duration(o.reportInterval.Swap(int64(d))) == d {
		return
	}
	select {
	case o.intervalChanged <- struct{}{}:
	default:
	}
	o.logger.Info("report interval changed", logging.Duration("interval", d))
}

// startReporter logs and observes a snapshot every report interval until
// the returned stop function is called.
func (o *Orchestrator) startReporter() (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var ticker *time.Ticker
		var tick <-chan time.Time
		reset := func() {
			if ticker != nil {
				ticker.Stop()
				ticker, tick = nil, nil
			}
			if d := time.Duration(o.reportInterval.Load()); d > 0 {
				ticker = time.NewTicker(d)
				tick = ticker.C
			}
		}
		reset()
		defer func() {
			if ticker != nil {
				ticker.Stop()
			}
		}()
		for {
			select {
			case <-done:
				return
			case <-o.intervalChanged:
				reset()
			case <-tick:
				snap := o.Progress()
				o.logger.Info("screening progress", snapshotFields(snap)...)
				o.observer.ObserveSnapshot(snap)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func snapshotFields(s Snapshot) []logging.Field {
	return []logging.Field{
		logging.Int64("sampled", s.Sampled),
		logging.Int64("submitted", s.Submitted),
		logging.Int64("hits", s.Hits),
		logging.Int64("duplicates", s.Duplicates),
		logging.Int64("no_candidate", s.NoCandidate),
		logging.Int64("micro_empty", s.MicroEmpty),
		logging.Int64("failures", s.Failures),
		logging.Int64("sample_comparisons", s.SampleComparisons),
		logging.Int64("micro_comparisons", s.MicroComparisons),
		logging.Int64("full_comparisons", s.FullComparisons),
		logging.Float64("sampled_per_second", s.SampledPerSecond),
	}
}

// jobSeed derives a distinct, reproducible seed for every job index.
func jobSeed(base int64, index int) int64 {
	return int64(uint64(base) + uint64(index+1)*0x9E3779B97F4A7C15)
}
