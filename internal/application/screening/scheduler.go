// Package screening implements continuous screening: weighted reaction
// scheduling, candidate sampling, duplicate filtering, and the orchestrator
// that drives sampled seeds through micro and full optimization.
package screening

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// SchedulerConfig controls how strongly large reactions are preferred.
type SchedulerConfig struct {
	Exponent  float64 `mapstructure:"exponent" json:"exponent"`
	MinWeight float64 `mapstructure:"min_weight" json:"min_weight"`
}

// DefaultSchedulerConfig returns a linear preference in log size with a
// small floor.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Exponent: 1.0, MinWeight: 1e-3}
}

// Validate checks the scheduler parameters.
func (c SchedulerConfig) Validate() error {
	if !(c.Exponent > 0) || math.IsInf(c.Exponent, 0) {
		return errors.New(errors.ErrCodeSchedulerConfigInvalid, "scheduler exponent must be positive").
			WithDetail(fmt.Sprintf("exponent=%g", c.Exponent))
	}
	if c.MinWeight < 0 || math.IsNaN(c.MinWeight) {
		return errors.New(errors.ErrCodeSchedulerConfigInvalid, "scheduler min_weight must be >= 0").
			WithDetail(fmt.Sprintf("min_weight=%g", c.MinWeight))
	}
	return nil
}

// ReactionScheduler picks reactions with probability proportional to
// exp(exponent·logSize − max), floored at MinWeight.  It is immutable after
// construction and safe for concurrent use; callers supply their own rng.
type ReactionScheduler struct {
	ids        []string
	weights    []float64
	cumulative []float64
}

// NewReactionScheduler builds a scheduler from per-reaction log
// combinatorial sizes.
func NewReactionScheduler(logSizes map[string]float64, cfg SchedulerConfig) (*ReactionScheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(logSizes) == 0 {
		return nil, errors.New(errors.ErrCodeSchedulerConfigInvalid, "scheduler needs at least one reaction")
	}

	ids := make([]string, 0, len(logSizes))
	for id := range logSizes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	maxLog := math.Inf(-1)
	for _, id := range ids {
		if v := cfg.Exponent * logSizes[id]; v > maxLog {
			maxLog = v
		}
	}

	s := &ReactionScheduler{
		ids:        ids,
		weights:    make([]float64, len(ids)),
		cumulative: make([]float64, len(ids)),
	}
	total := 0.0
	for i, id := range ids {
		w := math.Exp(cfg.Exponent*logSizes[id] - maxLog)
		if w < cfg.MinWeight {
			w = cfg.MinWeight
		}
		s.weights[i] = w
		total += w
		s.cumulative[i] = total
	}
	if !(total > 0) {
		return nil, errors.New(errors.ErrCodeSchedulerConfigInvalid, "scheduler weights sum to zero")
	}
	return s, nil
}

// NewSchedulerForSource builds a scheduler over every reaction of src.
func NewSchedulerForSource(src synthon.Source, cfg SchedulerConfig) (*ReactionScheduler, error) {
	sizes := make(map[string]float64)
	for _, rxn := range src.ReactionIDs() {
		positions, ok := src.PositionSets(rxn)
		if !ok {
			continue
		}
		sizes[rxn] = synthon.LogCombinatorialSize(positions)
	}
	return NewReactionScheduler(sizes, cfg)
}

// Pick draws a reaction id.
func (s *ReactionScheduler) Pick(rng *rand.Rand) string {
	total := s.cumulative[len(s.cumulative)-1]
	u := rng.Float64() * total
	i := sort.Search(len(s.cumulative), func(i int) bool { return s.cumulative[i] > u })
	if i == len(s.ids) {
		i = len(s.ids) - 1
	}
	return s.ids[i]
}

// Reactions returns the scheduled reaction ids in sorted order.
func (s *ReactionScheduler) Reactions() []string {
	return append([]string(nil), s.ids...)
}

// Probability returns the selection probability of a reaction, or 0 if it
// is not scheduled.
func (s *ReactionScheduler) Probability(reactionID string) float64 {
	i := sort.SearchStrings(s.ids, reactionID)
	if i == len(s.ids) || s.ids[i] != reactionID {
		return 0
	}
	return s.weights[i] / s.cumulative[len(s.cumulative)-1]
}
