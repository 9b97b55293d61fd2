package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/internal/application/downsample"
	"github.com/turtacn/SynthonScout/internal/application/screening"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
)

func TestScreeningMetrics_ObserveJob(t *testing.T) {
	c := newTestCollector(t)
	m := NewScreeningMetrics(c)

	m.ObserveJob(screening.OutcomeHit, 200*time.Millisecond)
	m.ObserveJob(screening.OutcomeHit, 300*time.Millisecond)
	m.ObserveJob(screening.OutcomeDuplicate, time.Millisecond)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_screening_jobs_total{outcome="hit"} 2`)
	assert.Contains(t, output, `test_unit_screening_jobs_total{outcome="duplicate"} 1`)
	assert.Contains(t, output, `test_unit_screening_job_duration_seconds_count{outcome="hit"} 2`)
}

func TestScreeningMetrics_ObserveSnapshot(t *testing.T) {
	c := newTestCollector(t)
	m := NewScreeningMetrics(c)

	m.ObserveSnapshot(screening.Snapshot{
		Sampled: 120, Hits: 7, Duplicates: 3, Submitted: 9,
		SampleComparisons: 600, FullComparisons: 4000,
		ElapsedSeconds: 60, SampledPerSecond: 2,
	})

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_screening_progress{counter="sampled"} 120`)
	assert.Contains(t, output, `test_unit_screening_progress{counter="hits"} 7`)
	assert.Contains(t, output, `test_unit_screening_progress{counter="submitted"} 9`)
	assert.Contains(t, output, `test_unit_screening_comparisons{stage="full"} 4000`)
	assert.Contains(t, output, `test_unit_screening_comparisons{stage="micro"} 0`)
	assert.Contains(t, output, "test_unit_screening_sampled_per_second 2")
	assert.Contains(t, output, "test_unit_screening_elapsed_seconds 60")
}

func TestScreeningMetrics_RegistersTwice(t *testing.T) {
	c := newTestCollector(t)
	NewScreeningMetrics(c).ObserveJob(screening.OutcomeHit, time.Millisecond)
	NewScreeningMetrics(c).ObserveJob(screening.OutcomeHit, time.Millisecond)
	assert.Contains(t, scrapeMetrics(t, c), `test_unit_screening_jobs_total{outcome="hit"} 2`)
}

func TestScreeningMetrics_DownsampleObserver(t *testing.T) {
	c := newTestCollector(t)
	m := NewScreeningMetrics(c)
	observe := m.DownsampleObserver()
	require.NotNil(t, observe)

	rep := &synthon.Synthon{ReactionID: "r1", Position: 0, FragmentID: "f", Code: "C"}
	observe(&downsample.SetResult{
		Key:             synthon.SetKey{ReactionID: "r1", Position: 0},
		Representatives: []*synthon.Synthon{rep},
		OriginalSize:    4,
	}, 20*time.Millisecond)
	observe(nil, time.Millisecond)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, `test_unit_downsample_sets_total{reaction="r1"} 1`)
	assert.Contains(t, output, "test_unit_downsample_representatives_total 1")
	assert.Contains(t, output, `test_unit_downsample_reduction_ratio_bucket{le="0.25"} 1`)
	assert.Contains(t, output, "test_unit_downsample_set_duration_seconds_count 1")
}
