package screening

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/internal/testutil"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

func TestNewReactionScheduler_Errors(t *testing.T) {
	_, err := NewReactionScheduler(nil, DefaultSchedulerConfig())
	assert.True(t, errors.IsCode(err, errors.ErrCodeSchedulerConfigInvalid))

	sizes := map[string]float64{"a": 1}
	for _, exp := range []float64{0, -1, math.NaN()} {
		_, err = NewReactionScheduler(sizes, SchedulerConfig{Exponent: exp})
		assert.True(t, errors.IsCode(err, errors.ErrCodeSchedulerConfigInvalid), "exponent %g", exp)
	}
	_, err = NewReactionScheduler(sizes, SchedulerConfig{Exponent: 1, MinWeight: -1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSchedulerConfigInvalid))
}

func TestReactionScheduler_UniformWeights(t *testing.T) {
	sizes := map[string]float64{"a": 5, "b": 5, "c": 5, "d": 5}
	s, err := NewReactionScheduler(sizes, DefaultSchedulerConfig())
	require.NoError(t, err)

	const n = 200000
	rng := rand.New(rand.NewSource(42))
	counts := make(map[string]int)
	for i := 0; i < n; i++ {
		counts[s.Pick(rng)]++
	}
	require.Len(t, counts, 4)
	for id, c := range counts {
		assert.InDelta(t, 0.25, float64(c)/n, 0.01, "reaction %s", id)
		assert.InDelta(t, 0.25, s.Probability(id), 1e-12)
	}
}

func TestReactionScheduler_HugeProductsDoNotOverflow(t *testing.T) {
	// Products of 10^400 and 10^401 overflow float64 without normalisation.
	sizes := map[string]float64{"small": 400 * math.Ln10, "large": 401 * math.Ln10}
	s, err := NewReactionScheduler(sizes, SchedulerConfig{Exponent: 1})
	require.NoError(t, err)

	pLarge := s.Probability("large")
	assert.False(t, math.IsNaN(pLarge))
	assert.InDelta(t, 10.0/11.0, pLarge, 1e-9)
}

func TestReactionScheduler_MinWeightFloor(t *testing.T) {
	sizes := map[string]float64{"tiny": 0, "huge": math.Log(1e6)}
	s, err := NewReactionScheduler(sizes, SchedulerConfig{Exponent: 1, MinWeight: 0.1})
	require.NoError(t, err)

	assert.InDelta(t, 0.1/1.1, s.Probability("tiny"), 1e-9)
	assert.Equal(t, 0.0, s.Probability("missing"))

	rng := rand.New(rand.NewSource(7))
	hits := 0
	for i := 0; i < 20000; i++ {
		if s.Pick(rng) == "tiny" {
			hits++
		}
	}
	assert.Greater(t, hits, 1000)
}

func TestNewSchedulerForSource(t *testing.T) {
	sp := testutil.NumericSpace("r1", 10, 10)
	testutil.AddNumericReaction(sp, "r2", 10, 10, 10)
	s, err := NewSchedulerForSource(sp, SchedulerConfig{Exponent: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, s.Reactions())
	assert.InDelta(t, 100.0/1100.0, s.Probability("r1"), 1e-9)
}
