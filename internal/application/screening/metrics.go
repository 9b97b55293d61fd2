package screening

import (
	"sync/atomic"
	"time"
)

// Stage names a scoring stage whose comparisons are counted separately.
type Stage string

const (
	StageSample Stage = "sample"
	StageMicro  Stage = "micro"
	StageFull   Stage = "full"
)

// Outcome is how a single screening job ended.
type Outcome string

const (
	OutcomeNoCandidate Outcome = "no_candidate"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeMicroEmpty  Outcome = "micro_empty"
	OutcomeFailed      Outcome = "failed"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeHit         Outcome = "hit"
)

// Metrics holds the run's counters.  Every field is updated atomically from
// many workers.
type Metrics struct {
	started time.Time

	Sampled     atomic.Int64
	NoCandidate atomic.Int64
	Duplicates  atomic.Int64
	MicroEmpty  atomic.Int64
	Submitted   atomic.Int64
	Failures    atomic.Int64
	Hits        atomic.Int64

	sampleComparisons atomic.Int64
	microComparisons  atomic.Int64
	fullComparisons   atomic.Int64
}

// NewMetrics creates a Metrics whose throughput clock starts now.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

// Comparisons returns the shared comparison counter of a stage, to be handed
// to the scorer of that stage.
func (m *Metrics) Comparisons(stage Stage) *atomic.Int64 {
	switch stage {
	case StageMicro:
		return &m.microComparisons
	case StageFull:
		return &m.fullComparisons
	default:
		return &m.sampleComparisons
	}
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	RunID             string  `json:"run_id,omitempty"`
	Sampled           int64   `json:"sampled"`
	NoCandidate       int64   `json:"no_candidate"`
	Duplicates        int64   `json:"duplicates"`
	MicroEmpty        int64   `json:"micro_empty"`
	Submitted         int64   `json:"submitted"`
	Failures          int64   `json:"failures"`
	Hits              int64   `json:"hits"`
	SampleComparisons int64   `json:"sample_comparisons"`
	MicroComparisons  int64   `json:"micro_comparisons"`
	FullComparisons   int64   `json:"full_comparisons"`
	ElapsedSeconds    float64 `json:"elapsed_seconds"`
	SampledPerSecond  float64 `json:"sampled_per_second"`
}

// Snapshot reads every counter.
func (m *Metrics) Snapshot() Snapshot {
	elapsed := time.Since(m.started).Seconds()
	s := Snapshot{
		Sampled:           m.Sampled.Load(),
		NoCandidate:       m.NoCandidate.Load(),
		Duplicates:        m.Duplicates.Load(),
		MicroEmpty:        m.MicroEmpty.Load(),
		Submitted:         m.Submitted.Load(),
		Failures:          m.Failures.Load(),
		Hits:              m.Hits.Load(),
		SampleComparisons: m.sampleComparisons.Load(),
		MicroComparisons:  m.microComparisons.Load(),
		FullComparisons:   m.fullComparisons.Load(),
		ElapsedSeconds:    elapsed,
	}
	if elapsed > 0 {
		s.SampledPerSecond = float64(s.Sampled) / elapsed
	}
	return s
}

// Observer receives job outcomes and periodic snapshots, typically to
// mirror them into an external metrics system.
type Observer interface {
	ObserveJob(outcome Outcome, elapsed time.Duration)
	ObserveSnapshot(s Snapshot)
}

type noopObserver struct{}

func (noopObserver) ObserveJob(Outcome, time.Duration) {}
func (noopObserver) ObserveSnapshot(Snapshot)          {}
