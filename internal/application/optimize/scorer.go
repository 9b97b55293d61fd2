// Package optimize implements the assembly scorer and the local beam
// optimizer that walks one reaction's fragment lattice a position at a time.
package optimize

import (
	"context"
	"sync/atomic"

	"github.com/turtacn/SynthonScout/internal/domain/molecule"
	"github.com/turtacn/SynthonScout/internal/domain/synthon"
	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
)

// PropertyFilter holds the cheap physicochemical bounds checked before any
// 3-D work.  Zero bounds are disabled.
type PropertyFilter struct {
	MinAtoms          int `mapstructure:"min_atoms" json:"min_atoms"`
	MaxAtoms          int `mapstructure:"max_atoms" json:"max_atoms"`
	MaxRotatableBonds int `mapstructure:"max_rotatable_bonds" json:"max_rotatable_bonds"`
}

// Accept reports whether the counts fall within the bounds.
func (f PropertyFilter) Accept(atoms, rotatableBonds int) bool {
	if f.MinAtoms > 0 && atoms < f.MinAtoms {
		return false
	}
	if f.MaxAtoms > 0 && atoms > f.MaxAtoms {
		return false
	}
	if f.MaxRotatableBonds > 0 && rotatableBonds > f.MaxRotatableBonds {
		return false
	}
	return true
}

// AssemblyScorer turns an ordered fragment choice into a BeamEntry.  The
// second result is false when the assembly is not competitive, including
// when the chemistry toolkit fails on it.
type AssemblyScorer interface {
	Score(ctx context.Context, reactionID string, fragments []*synthon.Synthon, round int) (*synthon.BeamEntry, bool)
}

// ShapeScorer rates assemblies by shape similarity to a query descriptor.
type ShapeScorer struct {
	toolkit       molecule.Toolkit
	query         molecule.Descriptor
	minSimilarity float64
	filter        PropertyFilter
	comparisons   *atomic.Int64
	logger        logging.Logger
}

// NewShapeScorer creates a ShapeScorer.  comparisons may be shared between
// many scorers; a nil counter gets a private one.
func NewShapeScorer(toolkit molecule.Toolkit, query molecule.Descriptor, minSimilarity float64, filter PropertyFilter, comparisons *atomic.Int64, logger logging.Logger) *ShapeScorer {
	if comparisons == nil {
		comparisons = &atomic.Int64{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ShapeScorer{
		toolkit:       toolkit,
		query:         query,
		minSimilarity: minSimilarity,
		filter:        filter,
		comparisons:   comparisons,
		logger:        logger,
	}
}

// Comparisons returns the number of descriptor comparisons performed.
func (s *ShapeScorer) Comparisons() int64 { return s.comparisons.Load() }

// Filter returns the property bounds of the scorer.
func (s *ShapeScorer) Filter() PropertyFilter { return s.filter }

// Rate computes the similarity of st to the query.  It returns false when
// conformers or the descriptor cannot be produced.
func (s *ShapeScorer) Rate(ctx context.Context, st *molecule.Structure) (float64, bool) {
	desc, err := molecule.DescribeStructure(ctx, s.toolkit, st)
	if err != nil {
		s.logger.Debug("shape descriptor failed", logging.String("code", st.Code), logging.Err(err))
		return 0, false
	}
	s.comparisons.Add(1)
	return s.toolkit.Similarity(s.query, desc), true
}

// Score implements AssemblyScorer.
func (s *ShapeScorer) Score(ctx context.Context, reactionID string, fragments []*synthon.Synthon, round int) (*synthon.BeamEntry, bool) {
	st, err := s.toolkit.Assemble(ctx, fragments)
	if err != nil {
		s.logger.Debug("assembly failed",
			logging.ReactionID(reactionID),
			logging.FragmentIDs(synthon.FragmentIDs(fragments)),
			logging.Err(err))
		return nil, false
	}
	rotatable := s.toolkit.CountRotatableBonds(st)
	if !s.filter.Accept(st.AtomCount, rotatable) {
		return nil, false
	}
	sim, ok := s.Rate(ctx, st)
	if !ok || sim < s.minSimilarity {
		return nil, false
	}
	return &synthon.BeamEntry{
		ReactionID:     reactionID,
		Fragments:      fragments,
		Score:          sim,
		AtomCount:      st.AtomCount,
		RotatableBonds: rotatable,
		AssembledCode:  s.toolkit.CanonicalCode(st),
		Round:          round,
	}, true
}
