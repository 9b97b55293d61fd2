package prometheus

import (
	"time"

	"github.com/turtacn/SynthonScout/internal/application/downsample"
	"github.com/turtacn/SynthonScout/internal/application/screening"
)

// Default Buckets
var (
	DefaultJobDurationBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300}
	DefaultSetDurationBuckets = []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60, 300}
	DefaultReductionBuckets   = []float64{.001, .01, .05, .1, .25, .5, .75, 1}
)

// ScreeningMetrics mirrors screening progress and downsampling work into
// Prometheus.  It implements screening.Observer.
type ScreeningMetrics struct {
	JobsTotal          CounterVec
	JobDuration        HistogramVec
	Progress           GaugeVec
	Comparisons        GaugeVec
	SampledPerSecond   GaugeVec
	ElapsedSeconds     GaugeVec
	DownsampleSets     CounterVec
	DownsampleDuration HistogramVec
	DownsampleRatio    HistogramVec
	Representatives    CounterVec
}

// NewScreeningMetrics registers the metric set on collector.
func NewScreeningMetrics(collector MetricsCollector) *ScreeningMetrics {
	m := &ScreeningMetrics{}

	// Screening
	m.JobsTotal = collector.RegisterCounter("screening_jobs_total", "Screening jobs by outcome", "outcome")
	m.JobDuration = collector.RegisterHistogram("screening_job_duration_seconds", "Screening job duration", DefaultJobDurationBuckets, "outcome")
	m.Progress = collector.RegisterGauge("screening_progress", "Screening run counters at the last report", "counter")
	m.Comparisons = collector.RegisterGauge("screening_comparisons", "Shape comparisons per stage at the last report", "stage")
	m.SampledPerSecond = collector.RegisterGauge("screening_sampled_per_second", "Sampling throughput since the run started")
	m.ElapsedSeconds = collector.RegisterGauge("screening_elapsed_seconds", "Seconds since the run started")

	// Downsampling
	m.DownsampleSets = collector.RegisterCounter("downsample_sets_total", "Synthon sets downsampled", "reaction")
	m.DownsampleDuration = collector.RegisterHistogram("downsample_set_duration_seconds", "Per-set downsampling duration", DefaultSetDurationBuckets)
	m.DownsampleRatio = collector.RegisterHistogram("downsample_reduction_ratio", "Representatives divided by original set size", DefaultReductionBuckets)
	m.Representatives = collector.RegisterCounter("downsample_representatives_total", "Representatives kept across all sets")

	return m
}

// ObserveJob implements screening.Observer.
func (m *ScreeningMetrics) ObserveJob(outcome screening.Outcome, elapsed time.Duration) {
	m.JobsTotal.WithLabelValues(string(outcome)).Inc()
	m.JobDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// ObserveSnapshot implements screening.Observer.
func (m *ScreeningMetrics) ObserveSnapshot(s screening.Snapshot) {
	m.Progress.WithLabelValues("sampled").Set(float64(s.Sampled))
	m.Progress.WithLabelValues("no_candidate").Set(float64(s.NoCandidate))
	m.Progress.WithLabelValues("duplicates").Set(float64(s.Duplicates))
	m.Progress.WithLabelValues("micro_empty").Set(float64(s.MicroEmpty))
	m.Progress.WithLabelValues("submitted").Set(float64(s.Submitted))
	m.Progress.WithLabelValues("failures").Set(float64(s.Failures))
	m.Progress.WithLabelValues("hits").Set(float64(s.Hits))

	m.Comparisons.WithLabelValues(string(screening.StageSample)).Set(float64(s.SampleComparisons))
	m.Comparisons.WithLabelValues(string(screening.StageMicro)).Set(float64(s.MicroComparisons))
	m.Comparisons.WithLabelValues(string(screening.StageFull)).Set(float64(s.FullComparisons))

	m.SampledPerSecond.WithLabelValues().Set(s.SampledPerSecond)
	m.ElapsedSeconds.WithLabelValues().Set(s.ElapsedSeconds)
}

// DownsampleObserver returns a per-set completion callback for a
// downsample.SpaceDownsampler.
func (m *ScreeningMetrics) DownsampleObserver() downsample.Observer {
	return func(r *downsample.SetResult, elapsed time.Duration) {
		RecordSetDownsampled(m, r, elapsed)
	}
}

// Helpers

func RecordSetDownsampled(m *ScreeningMetrics, r *downsample.SetResult, elapsed time.Duration) {
	if r == nil {
		return
	}
	m.DownsampleSets.WithLabelValues(r.Key.ReactionID).Inc()
	m.DownsampleDuration.WithLabelValues().Observe(elapsed.Seconds())
	m.Representatives.WithLabelValues().Add(float64(len(r.Representatives)))
	if r.OriginalSize > 0 {
		m.DownsampleRatio.WithLabelValues().Observe(float64(len(r.Representatives)) / float64(r.OriginalSize))
	}
}

var _ screening.Observer = (*ScreeningMetrics)(nil)
