package screening

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/turtacn/SynthonScout/internal/application/optimize"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SynthonScout/pkg/errors"
)

// CandidateSampler draws random assemblies from a reaction's pools until one
// passes the scorer.
type CandidateSampler struct {
	accessor synthon.Accessor
	scorer   optimize.AssemblyScorer
	attempts int
	logger   logging.Logger
}

// NewCandidateSampler creates a sampler that tries at most attempts random
// assemblies per call.
func NewCandidateSampler(accessor synthon.Accessor, scorer optimize.AssemblyScorer, attempts int, logger logging.Logger) (*CandidateSampler, error) {
	if attempts < 1 {
		return nil, errors.New(errors.ErrCodeScreeningConfigInvalid, "attempts per reaction must be >= 1").
			WithDetail(fmt.Sprintf("attempts=%d", attempts))
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CandidateSampler{accessor: accessor, scorer: scorer, attempts: attempts, logger: logger}, nil
}

// Sample returns an accepted candidate, or false when every attempt was
// rejected.  Running out of attempts is a normal outcome.
func (s *CandidateSampler) Sample(ctx context.Context, reactionID string, rng *rand.Rand) (*synthon.ScreeningCandidate, bool) {
	positions, err := s.accessor.Positions(reactionID)
	if err != nil {
		s.logger.Debug("reaction not sampleable", logging.ReactionID(reactionID), logging.Err(err))
		return nil, false
	}
	pools := make([][]*synthon.Synthon, len(positions))
	for i, pos := range positions {
		pool, err := s.accessor.Candidates(reactionID, pos)
		if err != nil || len(pool) == 0 {
			s.logger.Debug("empty sampling pool", logging.ReactionID(reactionID), logging.Position(pos))
			return nil, false
		}
		pools[i] = pool
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, false
		}
		frags := make([]*synthon.Synthon, len(pools))
		for i, pool := range pools {
			frags[i] = pool[rng.Intn(len(pool))]
		}
		entry, ok := s.scorer.Score(ctx, reactionID, frags, 0)
		if !ok {
			continue
		}
		return &synthon.ScreeningCandidate{
			ReactionID:     reactionID,
			Fragments:      entry.Fragments,
			AssembledCode:  entry.AssembledCode,
			Similarity:     entry.Score,
			AtomCount:      entry.AtomCount,
			RotatableBonds: entry.RotatableBonds,
		}, true
	}
	return nil, false
}
