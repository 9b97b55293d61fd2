package optimize

import (
	"fmt"
	"math"

	"github.com/turtacn/SynthonScout/pkg/errors"
)

// DefaultMemoCapacity bounds the per-run score memo when none is configured.
const DefaultMemoCapacity = 4096

// Request parameterises the beam optimizer.
type Request struct {
	BeamSize             int     `mapstructure:"beam_size" json:"beam_size"`
	MaxRounds            int     `mapstructure:"max_rounds" json:"max_rounds"`
	NeighborTopL         int     `mapstructure:"neighbor_top_l" json:"neighbor_top_l"`
	SampledNeighbors     int     `mapstructure:"sampled_neighbors" json:"sampled_neighbors"`
	PerPositionCap       int     `mapstructure:"per_position_cap" json:"per_position_cap"`
	Patience             int     `mapstructure:"patience" json:"patience"`
	ImprovementTolerance float64 `mapstructure:"improvement_tolerance" json:"improvement_tolerance"`
	RandomSeed           int64   `mapstructure:"random_seed" json:"random_seed"`
	MemoCapacity         int     `mapstructure:"memo_capacity" json:"memo_capacity"`
}

// DefaultRequest returns the parameters of a full optimization pass.
func DefaultRequest() Request {
	return Request{
		BeamSize:             8,
		MaxRounds:            6,
		NeighborTopL:         64,
		SampledNeighbors:     8,
		PerPositionCap:       3,
		Patience:             2,
		ImprovementTolerance: 1e-3,
		MemoCapacity:         DefaultMemoCapacity,
	}
}

// Validate checks the request parameters.
func (r Request) Validate() error {
	check := func(ok bool, format string, args ...interface{}) error {
		if ok {
			return nil
		}
		return errors.New(errors.ErrCodeOptimizeRequestInvalid, "invalid optimization request").
			WithDetail(fmt.Sprintf(format, args...))
	}
	for _, err := range []error{
		check(r.BeamSize >= 1, "beam_size=%d must be >= 1", r.BeamSize),
		check(r.MaxRounds >= 1, "max_rounds=%d must be >= 1", r.MaxRounds),
		check(r.NeighborTopL >= 1, "neighbor_top_l=%d must be >= 1", r.NeighborTopL),
		check(r.SampledNeighbors >= 1, "sampled_neighbors=%d must be >= 1", r.SampledNeighbors),
		check(r.PerPositionCap >= 1, "per_position_cap=%d must be >= 1", r.PerPositionCap),
		check(r.Patience >= 1, "patience=%d must be >= 1", r.Patience),
		check(r.ImprovementTolerance >= 0 && !math.IsNaN(r.ImprovementTolerance),
			"improvement_tolerance=%g must be >= 0", r.ImprovementTolerance),
		check(r.MemoCapacity >= 0, "memo_capacity=%d must be >= 0", r.MemoCapacity),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
